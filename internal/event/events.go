package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/civicpulse/internal/types"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string            `json:"id"`
	EventType        string            `json:"event_type"`
	OccurredAt       time.Time         `json:"occurred_at"`
	Actor            string            `json:"actor,omitempty"`
	AffectedEntities []types.SourceRef `json:"affected_entities"`
	Summary          string            `json:"summary"`
	Category         string            `json:"category"` // "complaint", "alert"
	Weight           string            `json:"weight"`   // alert severity, or "info"
	Payload          json.RawMessage   `json:"payload"`
}

// Event types.
const (
	TypeComplaintSubmitted    = "complaint_submitted"
	TypeComplaintTransitioned = "complaint_transitioned"
	TypeAlertRaised           = "alert_raised"
	TypeAlertAcknowledged     = "alert_acknowledged"
	TypeAlertSLABreached      = "alert_sla_breached"
)

const weightInfo = "info"

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func idString(id int64) string { return strconv.FormatInt(id, 10) }

func complaintRef(id int64, role string) types.SourceRef {
	return types.SourceRef{EntityType: "complaint", EntityID: idString(id), Role: role}
}

func alertRef(id int64, role string) types.SourceRef {
	return types.SourceRef{EntityType: "alert", EntityID: idString(id), Role: role}
}

func departmentRef(name string) types.SourceRef {
	return types.SourceRef{EntityType: "department", EntityID: name, Role: "context"}
}

// ── Complaint events ─────────────────────────────────────────────────────────

// ComplaintSubmittedPayload carries event-specific data for ComplaintSubmitted.
type ComplaintSubmittedPayload struct {
	ComplaintID int64           `json:"complaint_id"`
	IssueType   types.IssueType `json:"issue_type"`
	Department  string          `json:"department"`
	Location    string          `json:"location"`
	Reporter    string          `json:"reporter"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

func NewComplaintSubmitted(p ComplaintSubmittedPayload) DomainEvent {
	refs := []types.SourceRef{complaintRef(p.ComplaintID, "subject")}
	if p.Department != "" {
		refs = append(refs, departmentRef(p.Department))
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeComplaintSubmitted,
		OccurredAt:       p.SubmittedAt,
		AffectedEntities: refs,
		Summary:          fmt.Sprintf("%s reported at %s (complaint #%d)", p.IssueType, p.Location, p.ComplaintID),
		Category:         "complaint",
		Weight:           weightInfo,
		Payload:          mustJSON(p),
	}
}

// ComplaintTransitionedPayload carries event-specific data for ComplaintTransitioned.
type ComplaintTransitionedPayload struct {
	ComplaintID int64        `json:"complaint_id"`
	From        types.Status `json:"from"`
	To          types.Status `json:"to"`
	Department  string       `json:"department"`
	ChangedAt   time.Time    `json:"changed_at"`
}

func NewComplaintTransitioned(p ComplaintTransitionedPayload) DomainEvent {
	refs := []types.SourceRef{complaintRef(p.ComplaintID, "subject")}
	if p.Department != "" {
		refs = append(refs, departmentRef(p.Department))
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeComplaintTransitioned,
		OccurredAt:       p.ChangedAt,
		AffectedEntities: refs,
		Summary:          fmt.Sprintf("Complaint #%d moved from %s to %s", p.ComplaintID, p.From.Label(), p.To.Label()),
		Category:         "complaint",
		Weight:           weightInfo,
		Payload:          mustJSON(p),
	}
}

// ── Alert events ─────────────────────────────────────────────────────────────

// AlertRaisedPayload carries event-specific data for AlertRaised.
type AlertRaisedPayload struct {
	AlertID     int64           `json:"alert_id"`
	Area        string          `json:"area"`
	IssueType   types.IssueType `json:"issue_type"`
	Department  string          `json:"department"`
	Severity    types.Severity  `json:"severity"`
	RuleID      string          `json:"rule_id,omitempty"`
	ComplaintID *int64          `json:"complaint_id,omitempty"`
	ReportedAt  time.Time       `json:"reported_at"`
}

func NewAlertRaised(p AlertRaisedPayload) DomainEvent {
	refs := []types.SourceRef{alertRef(p.AlertID, "subject"), departmentRef(p.Department)}
	if p.ComplaintID != nil {
		refs = append(refs, complaintRef(*p.ComplaintID, "related"))
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeAlertRaised,
		OccurredAt:       p.ReportedAt,
		AffectedEntities: refs,
		Summary:          fmt.Sprintf("%s alert: %s in %s", p.Severity, p.IssueType, p.Area),
		Category:         "alert",
		Weight:           string(p.Severity),
		Payload:          mustJSON(p),
	}
}

// AlertAcknowledgedPayload carries event-specific data for AlertAcknowledged.
type AlertAcknowledgedPayload struct {
	AlertID         int64          `json:"alert_id"`
	Department      string         `json:"department"`
	Severity        types.Severity `json:"severity"`
	AcknowledgedAt  time.Time      `json:"acknowledged_at"`
	ResponseMinutes float64        `json:"response_minutes"`
}

func NewAlertAcknowledged(p AlertAcknowledgedPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeAlertAcknowledged,
		OccurredAt:       p.AcknowledgedAt,
		AffectedEntities: []types.SourceRef{alertRef(p.AlertID, "subject"), departmentRef(p.Department)},
		Summary:          fmt.Sprintf("%s acknowledged alert #%d after %.0f min", p.Department, p.AlertID, p.ResponseMinutes),
		Category:         "alert",
		Weight:           string(p.Severity),
		Payload:          mustJSON(p),
	}
}

// AlertSLABreachedPayload carries event-specific data for AlertSLABreached.
type AlertSLABreachedPayload struct {
	AlertID      int64          `json:"alert_id"`
	Department   string         `json:"department"`
	Severity     types.Severity `json:"severity"`
	AgeMinutes   float64        `json:"age_minutes"`
	LimitMinutes float64        `json:"limit_minutes"`
	DetectedAt   time.Time      `json:"detected_at"`
}

func NewAlertSLABreached(p AlertSLABreachedPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeAlertSLABreached,
		OccurredAt:       p.DetectedAt,
		AffectedEntities: []types.SourceRef{alertRef(p.AlertID, "subject"), departmentRef(p.Department)},
		Summary:          fmt.Sprintf("Alert #%d unacknowledged for %.0f min (limit %.0f)", p.AlertID, p.AgeMinutes, p.LimitMinutes),
		Category:         "alert",
		Weight:           string(p.Severity),
		Payload:          mustJSON(p),
	}
}
