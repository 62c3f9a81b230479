package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/augur/backend/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }
func (j *fakeJob) Run(ctx context.Context) error {
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func TestAddJobRejectsDuplicateName(t *testing.T) {
	s := New(logger.NewNop())

	job := &fakeJob{name: "nightly", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	err := s.AddJob(&fakeJob{name: "nightly", schedule: "@weekly"})
	assert.Error(t, err)
	assert.Len(t, s.GetAllJobs(), 1)
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(logger.NewNop())

	err := s.AddJob(&fakeJob{name: "broken", schedule: "not a cron expr"})
	assert.Error(t, err)
	assert.Empty(t, s.GetAllJobs())
}

func TestRunJobUnknownName(t *testing.T) {
	s := New(logger.NewNop())
	assert.Error(t, s.RunJob("nope"))
}

func TestRunJobRecordsHistory(t *testing.T) {
	s := New(logger.NewNop())
	job := &fakeJob{name: "ok", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	s.runJob(job)

	history, err := s.GetJobHistory("ok")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.True(t, history.Results[0].Success)
	assert.Equal(t, 1.0, history.GetSuccessRate())
}

func TestRunJobRecordsFailure(t *testing.T) {
	s := New(logger.NewNop())
	job := &fakeJob{
		name:     "flaky",
		schedule: "@daily",
		run:      func(context.Context) error { return fmt.Errorf("boom") },
	}
	require.NoError(t, s.AddJob(job))

	s.runJob(job)

	history, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.False(t, history.Results[0].Success)
	assert.Equal(t, "boom", history.Results[0].Error)
}

func TestExecuteRecoversPanic(t *testing.T) {
	s := New(logger.NewNop())
	job := &fakeJob{
		name:     "panicky",
		schedule: "@daily",
		run:      func(context.Context) error { panic("unexpected state") },
	}

	err := s.execute(job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job panicked")
}

func TestRunJobOverlapGuard(t *testing.T) {
	s := New(logger.NewNop())
	job := &fakeJob{name: "slow", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	s.mu.Lock()
	s.running["slow"] = true
	s.mu.Unlock()

	s.runJob(job)

	history, err := s.GetJobHistory("slow")
	require.NoError(t, err)
	assert.Empty(t, history.Results, "overlapping trigger must be skipped, not recorded")
}

func TestJobHistoryRingBound(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%2 == 0})
	}

	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(10), 10)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 0.01)
}

func TestGetJobStats(t *testing.T) {
	s := New(logger.NewNop())
	ok := &fakeJob{name: "ok", schedule: "@daily"}
	bad := &fakeJob{
		name:     "bad",
		schedule: "@daily",
		run:      func(context.Context) error { return fmt.Errorf("down") },
	}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	s.runJob(ok)
	s.runJob(ok)
	s.runJob(bad)

	stats := s.GetJobStats()
	require.Contains(t, stats, "ok")
	require.Contains(t, stats, "bad")

	assert.Equal(t, 2, stats["ok"].TotalRuns)
	assert.Equal(t, 2, stats["ok"].SuccessCount)
	assert.NotNil(t, stats["ok"].LastSuccess)

	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.NotNil(t, stats["bad"].LastFailure)
}
