// Activity handlers read the journal of domain events. They operate on the
// activity store, not on the live registry or escalator.
package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/activity"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// ActivityHandler implements HTTP handlers for the activity journal.
type ActivityHandler struct {
	responder
	store activity.Store
	now   func() time.Time
}

// NewActivityHandler creates a new ActivityHandler. now anchors the default
// lookback windows.
func NewActivityHandler(store activity.Store, now func() time.Time, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{responder: responder{logger: logger}, store: store, now: now}
}

// HandleGetEntityActivity returns a chronological activity feed for any entity.
// GET /v1/activity/{entity_type}/{entity_id}
func (h *ActivityHandler) HandleGetEntityActivity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	if entityType == "" || entityID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "entity_type and entity_id are required")
		return
	}

	now := h.now()
	since := now.AddDate(0, -6, 0)
	opts := activity.QueryOptions{Since: &since, Until: &now, MinWeight: "info", Limit: 100}

	q := newQueryParser(r)
	if t := q.timestamp("since", false); t != nil {
		opts.Since = t
	}
	if t := q.timestamp("until", true); t != nil {
		opts.Until = t
	}
	if cats := q.text("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.text("min_weight"); mw != "" {
		if _, known := activity.WeightOrder[mw]; !known {
			q.errs.Add("min_weight", "must be one of critical, moderate, low, info")
		}
		opts.MinWeight = mw
	}
	if l := q.number("limit"); l > 0 {
		if l > 500 {
			l = 500
		}
		opts.Limit = l
	}
	opts.Cursor = q.text("cursor")
	if err := q.err(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), entityType, entityID, opts)
	if err != nil {
		h.logger.Error("activity query failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "QUERY_FAILED", "activity query failed")
		return
	}

	resp := struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
		Period     struct {
			Since time.Time `json:"since"`
			Until time.Time `json:"until"`
		} `json:"period"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	}
	resp.Period.Since = *opts.Since
	resp.Period.Until = *opts.Until
	if resp.Activities == nil {
		resp.Activities = []types.ActivityEntry{}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetActivitySummary returns per-category counts and trends for an
// entity over the last year.
// GET /v1/activity/summary/{entity_type}/{entity_id}
func (h *ActivityHandler) HandleGetActivitySummary(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")

	until := h.now()
	since := until.AddDate(-1, 0, 0)
	q := newQueryParser(r)
	if t := q.timestamp("since", false); t != nil {
		since = *t
	}
	if err := q.err(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	opts := activity.QueryOptions{
		Since:     &since,
		Until:     &until,
		MinWeight: "info",
		Limit:     500, // fetch all for aggregation
	}
	entries, _, _, err := h.store.QueryByEntity(r.Context(), entityType, entityID, opts)
	if err != nil {
		h.logger.Error("activity query failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "QUERY_FAILED", "activity query failed")
		return
	}

	h.writeJSON(w, http.StatusOK, activity.Summarize(entries, entityType, entityID, since, until))
}

// HandleSearchActivity performs full-text search across activity streams.
// POST /v1/activity/search
func (h *ActivityHandler) HandleSearchActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string   `json:"query"`
		EntityType string   `json:"entity_type,omitempty"`
		Since      string   `json:"since,omitempty"`
		Categories []string `json:"categories,omitempty"`
		Limit      int      `json:"limit,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "query is required")
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.EntityType = req.EntityType
	opts.Categories = req.Categories
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Since != "" {
		t, err := parseTime(req.Since, false)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since: "+err.Error())
			return
		}
		opts.Since = &t
	}

	entries, totalCount, err := h.store.Search(r.Context(), req.Query, opts)
	if err != nil {
		h.logger.Error("activity search failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", "activity search failed")
		return
	}

	resp := struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}{
		Results:    entries,
		TotalCount: totalCount,
	}
	if resp.Results == nil {
		resp.Results = []types.ActivityEntry{}
	}

	h.writeJSON(w, http.StatusOK, resp)
}
