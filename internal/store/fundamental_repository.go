package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/augur/backend/internal/contracts"
)

// FundamentalRepository implements contracts.FundamentalRepository
// ⭐ SSOT: 펀더멘털 데이터 저장소는 여기서만
type FundamentalRepository struct {
	pool *pgxpool.Pool
}

// NewFundamentalRepository creates a new fundamental repository
func NewFundamentalRepository(pool *pgxpool.Pool) *FundamentalRepository {
	return &FundamentalRepository{pool: pool}
}

const fundamentalColumns = `ticker, asof, pe, pb, ev_ebitda, roe, roce, de_ratio,
		eps_g3y, rev_g3y, profit_g3y, opm, npm, div_yield, promoter_hold, pledged_pct`

// Upsert writes snapshots keyed by (ticker, asof). Nil metrics store as
// SQL null so a later as-of join can tell "not reported" from zero.
func (r *FundamentalRepository) Upsert(ctx context.Context, snaps []*contracts.FundamentalSnapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO fundamentals (` + fundamentalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (ticker, asof) DO UPDATE SET
			pe = EXCLUDED.pe,
			pb = EXCLUDED.pb,
			ev_ebitda = EXCLUDED.ev_ebitda,
			roe = EXCLUDED.roe,
			roce = EXCLUDED.roce,
			de_ratio = EXCLUDED.de_ratio,
			eps_g3y = EXCLUDED.eps_g3y,
			rev_g3y = EXCLUDED.rev_g3y,
			profit_g3y = EXCLUDED.profit_g3y,
			opm = EXCLUDED.opm,
			npm = EXCLUDED.npm,
			div_yield = EXCLUDED.div_yield,
			promoter_hold = EXCLUDED.promoter_hold,
			pledged_pct = EXCLUDED.pledged_pct
	`

	batch := &pgx.Batch{}
	for _, s := range snaps {
		batch.Queue(query, s.Ticker, contracts.Day(s.AsOf),
			s.PE, s.PB, s.EVEBITDA, s.ROE, s.ROCE, s.DERatio,
			s.EPSGrowth3Y, s.RevGrowth3Y, s.ProfitGrowth3Y,
			s.OPM, s.NPM, s.DivYield, s.PromoterHold, s.PledgedPct)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range snaps {
		ct, err := br.Exec()
		if err != nil {
			return written, err
		}
		written += int(ct.RowsAffected())
	}
	return written, nil
}

// GetByTicker retrieves every snapshot for a ticker, oldest first.
func (r *FundamentalRepository) GetByTicker(ctx context.Context, ticker string) ([]*contracts.FundamentalSnapshot, error) {
	query := `
		SELECT ` + fundamentalColumns + `
		FROM fundamentals
		WHERE ticker = $1
		ORDER BY asof ASC
	`

	rows, err := r.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*contracts.FundamentalSnapshot
	for rows.Next() {
		s, err := scanFundamental(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// GetLatestByTicker retrieves the most recent snapshot for a ticker, or
// nil when none is stored.
func (r *FundamentalRepository) GetLatestByTicker(ctx context.Context, ticker string) (*contracts.FundamentalSnapshot, error) {
	query := `
		SELECT ` + fundamentalColumns + `
		FROM fundamentals
		WHERE ticker = $1
		ORDER BY asof DESC
		LIMIT 1
	`

	rows, err := r.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanFundamental(rows)
}

func scanFundamental(rows pgx.Rows) (*contracts.FundamentalSnapshot, error) {
	var s contracts.FundamentalSnapshot
	err := rows.Scan(&s.Ticker, &s.AsOf,
		&s.PE, &s.PB, &s.EVEBITDA, &s.ROE, &s.ROCE, &s.DERatio,
		&s.EPSGrowth3Y, &s.RevGrowth3Y, &s.ProfitGrowth3Y,
		&s.OPM, &s.NPM, &s.DivYield, &s.PromoterHold, &s.PledgedPct)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
