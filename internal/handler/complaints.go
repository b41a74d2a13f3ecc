package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/complaint"
	"github.com/matthewbaird/civicpulse/internal/desk"
	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// ComplaintHandler implements HTTP handlers for complaints.
type ComplaintHandler struct {
	responder
	desk *desk.Desk
}

// NewComplaintHandler creates a new ComplaintHandler.
func NewComplaintHandler(d *desk.Desk, logger *zap.Logger) *ComplaintHandler {
	return &ComplaintHandler{responder: responder{logger: logger}, desk: d}
}

// CreateComplaint files a new complaint.
// POST /v1/complaints
func (h *ComplaintHandler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	var req complaint.SubmitInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	c, err := h.desk.Submit(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

// GetComplaint returns one complaint.
// GET /v1/complaints/{id}
func (h *ComplaintHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.desk.Complaint(id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// ListComplaints filters complaints by department, status, issue type and
// creation window.
// GET /v1/complaints?department=&status=&issue_type=&since=&until=&order=
func (h *ComplaintHandler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	criteria := filter.ComplaintCriteria{
		Department: q.text("department"),
		Status:     q.status("status"),
		IssueType:  types.IssueType(q.text("issue_type")),
		Since:      q.timestamp("since", false),
		Until:      q.timestamp("until", true),
	}
	order := complaint.OldestFirst
	switch q.text("order") {
	case "", "oldest":
	case "newest":
		order = complaint.NewestFirst
	default:
		q.errs.Add("order", "must be oldest or newest")
	}
	if err := q.err(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := h.desk.Complaints(criteria, order)
	if items == nil {
		items = []types.Complaint{}
	}
	h.writeJSON(w, http.StatusOK, struct {
		Complaints []types.Complaint `json:"complaints"`
		TotalCount int               `json:"total_count"`
	}{items, len(items)})
}

type transitionRequest struct {
	Status string        `json:"status"`
	Impact *types.Impact `json:"impact,omitempty"`
}

// TransitionComplaint moves a complaint to a new status. Escalating also
// raises the complaint's alert; impact, when given, drives its severity.
// POST /v1/complaints/{id}/transition
func (h *ComplaintHandler) TransitionComplaint(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	target, ok := types.ParseStatus(req.Status)
	if !ok {
		verr := &types.ValidationError{}
		verr.Add("status", "must be one of pending, escalated, resolved")
		h.writeDomainError(w, r, verr)
		return
	}

	var (
		res desk.TransitionResult
		err error
	)
	if target == types.StatusEscalated && req.Impact != nil {
		res, err = h.desk.Escalate(r.Context(), id, *req.Impact)
	} else {
		res, err = h.desk.Transition(r.Context(), id, target)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
