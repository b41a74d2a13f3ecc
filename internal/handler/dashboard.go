package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/desk"
)

// DashboardHandler serves read-only reference data and derived metrics.
type DashboardHandler struct {
	responder
	desk *desk.Desk
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(d *desk.Desk, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{responder: responder{logger: logger}, desk: d}
}

// GetMetrics computes a fresh metrics snapshot. year selects the trend
// series; it defaults to the year of the latest complaint.
// GET /v1/metrics?year=
func (h *DashboardHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	year := q.number("year")
	if year != 0 && (year < 1970 || year > 9999) {
		q.errs.Add("year", "must be between 1970 and 9999")
	}
	if err := q.err(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	snap, err := h.desk.Metrics(year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// ListDepartments returns the department catalog.
// GET /v1/departments
func (h *DashboardHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, struct {
		Departments any `json:"departments"`
	}{h.desk.Departments()})
}
