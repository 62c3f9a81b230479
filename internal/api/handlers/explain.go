package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/pkg/logger"
)

// ExplainHandler serves per-prediction feature attributions.
type ExplainHandler struct {
	explainer *ml.Explainer
	logger    *logger.Logger
}

// NewExplainHandler creates a new explain handler.
func NewExplainHandler(explainer *ml.Explainer, log *logger.Logger) *ExplainHandler {
	return &ExplainHandler{
		explainer: explainer,
		logger:    log,
	}
}

// Get decomposes one stored prediction into its top feature contributions.
// The model is resolved from the training-run registry.
// GET /api/v1/explain/{ticker}/{date}?top_k=10
func (h *ExplainHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	ticker := vars["ticker"]

	date, err := parseDateParam(vars["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respondError(w, http.StatusBadRequest, "top_k must be an integer in [1, 100]")
			return
		}
		topK = n
	}

	exp, err := h.explainer.Explain(ctx, "", ticker, date, topK)
	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrNotFound):
			respondError(w, http.StatusNotFound, "No feature row or model for ticker/date")
		case contracts.IsValidation(err):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.WithError(err).Error("Failed to explain prediction")
			respondError(w, http.StatusInternalServerError, "Failed to explain prediction")
		}
		return
	}

	respondJSON(w, http.StatusOK, exp)
}
