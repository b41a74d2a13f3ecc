package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/alert"
	"github.com/matthewbaird/civicpulse/internal/desk"
	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// AlertHandler implements HTTP handlers for alerts.
type AlertHandler struct {
	responder
	desk *desk.Desk
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(d *desk.Desk, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{responder: responder{logger: logger}, desk: d}
}

// alertView adds the display fields derived from the desk clock.
type alertView struct {
	types.Alert
	TimeSince   string `json:"time_since"`
	SLABreached bool   `json:"sla_breached"`
}

func (h *AlertHandler) view(a types.Alert) alertView {
	now := h.desk.Now()
	return alertView{
		Alert:       a,
		TimeSince:   alert.TimeSince(a, now),
		SLABreached: alert.Breached(a, now, h.desk.SLAPolicy()),
	}
}

// RaiseAlert opens an alert directly, without a backing complaint.
// POST /v1/alerts
func (h *AlertHandler) RaiseAlert(w http.ResponseWriter, r *http.Request) {
	var req alert.Source
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	a, err := h.desk.Raise(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.view(a))
}

// GetAlert returns one alert.
// GET /v1/alerts/{id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.desk.Alert(id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.view(a))
}

// ListAlerts filters alerts in creation order.
// GET /v1/alerts?department=&severity=&acknowledged=&area=
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	criteria := filter.AlertCriteria{
		Department:   q.text("department"),
		Severity:     q.severity("severity"),
		Acknowledged: q.flag("acknowledged"),
		Area:         q.text("area"),
	}
	if err := q.err(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := h.desk.Alerts(criteria)
	views := make([]alertView, 0, len(items))
	for _, a := range items {
		views = append(views, h.view(a))
	}
	h.writeJSON(w, http.StatusOK, struct {
		Alerts     []alertView `json:"alerts"`
		TotalCount int         `json:"total_count"`
	}{views, len(views)})
}

// AcknowledgeAlert marks an alert as seen by its department.
// POST /v1/alerts/{id}/acknowledge
func (h *AlertHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.desk.Acknowledge(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.view(a))
}
