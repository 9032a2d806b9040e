package api

import (
	"errors"
	"net/http"
	"strconv"

	service "github.com/okian/talentlens/internal/app"
	"github.com/okian/talentlens/internal/domain/model"
)

// AnalysisHandler serves the analysis pipeline routes.
type AnalysisHandler struct {
	deps Dependencies
	w    responder
}

type batchRequest struct {
	IDs        []string         `json:"ids"`
	Parameters model.Parameters `json:"parameters"`
}

type compareRequest struct {
	IDs []string `json:"ids"`
}

type historyResponse struct {
	Kind    model.Kind     `json:"kind"`
	ID      string         `json:"id"`
	Limit   int            `json:"limit"`
	Records []model.Record `json:"records"`
}

// HandleAnalyze handles POST /subjects/{kind}/{id}/analyze. The body holds
// optional analysis parameters.
func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"
	kind, err := kindParam(r, op)
	if err != nil {
		h.w.error(w, r, err)
		return
	}
	var params model.Parameters
	if err := decodeBody(w, r, op, &params); err != nil {
		h.w.error(w, r, err)
		return
	}
	a, err := h.deps.AnalyzeOne(r.Context(), kind, r.PathValue("id"), params)
	if err != nil {
		h.w.error(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleHistory handles GET /subjects/{kind}/{id}/history?limit=N.
func (h *AnalysisHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.history"
	kind, err := kindParam(r, op)
	if err != nil {
		h.w.error(w, r, err)
		return
	}
	limit := service.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.w.error(w, r, WrapKind(op, ErrBadRequest, errors.New("limit must be a non-negative integer")))
			return
		}
		limit = n
	}
	id := r.PathValue("id")
	records, err := h.deps.History(r.Context(), kind, id, limit)
	if err != nil {
		h.w.error(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Kind: kind, ID: id, Limit: h.deps.HistoryLimit(limit), Records: records})
}

// HandleBatch handles POST /subjects/{kind}/batch-analyze.
func (h *AnalysisHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.batch_analyze"
	kind, err := kindParam(r, op)
	if err != nil {
		h.w.error(w, r, err)
		return
	}
	var req batchRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		h.w.error(w, r, err)
		return
	}
	res, err := h.deps.AnalyzeBatch(r.Context(), kind, req.IDs, req.Parameters)
	if err != nil {
		h.w.error(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCompare handles POST /subjects/{kind}/compare.
func (h *AnalysisHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare"
	kind, err := kindParam(r, op)
	if err != nil {
		h.w.error(w, r, err)
		return
	}
	var req compareRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		h.w.error(w, r, err)
		return
	}
	res, err := h.deps.Compare(r.Context(), kind, req.IDs)
	if err != nil {
		h.w.error(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
