// Package types holds the entity model shared by every civicpulse component:
// complaints, alerts, departments, their enumerations, the derived metrics
// snapshot, and the error taxonomy returned by the core operations.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a complaint.
type Status string

const (
	StatusPending   Status = "pending"
	StatusEscalated Status = "escalated"
	StatusResolved  Status = "resolved"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusEscalated, StatusResolved}

// ParseStatus accepts any casing ("Resolved", "resolved").
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Label is the display form used by dashboards ("Pending").
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Severity is assigned to an alert once, at creation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
)

// SeverityOrder maps severities to rank (lower = more severe).
var SeverityOrder = map[Severity]int{
	SeverityCritical: 1,
	SeverityModerate: 2,
	SeverityLow:      3,
}

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityModerate, SeverityLow}

// ParseSeverity accepts any casing.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := SeverityOrder[sev]; ok {
		return sev, true
	}
	return "", false
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := SeverityOrder[s]
	return ok
}

// AtLeast reports whether s is as severe as min or more.
func (s Severity) AtLeast(min Severity) bool {
	r, ok := SeverityOrder[s]
	if !ok {
		return false
	}
	m, ok := SeverityOrder[min]
	if !ok {
		return true
	}
	return r <= m
}

// IssueType names a category of civic issue. The known set comes from the
// department catalog; the constants below are the ones shipped by default.
type IssueType string

const (
	IssuePothole       IssueType = "Pothole"
	IssueStreetlight   IssueType = "Streetlight"
	IssueGarbage       IssueType = "Garbage"
	IssueElectricity   IssueType = "Electricity"
	IssuePowerOutage   IssueType = "PowerOutage"
	IssueWaterPipeline IssueType = "WaterPipeline"
)

// Reporter identifies the citizen who filed a complaint.
type Reporter struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Coordinates is an opaque lat/lng pair carried for map displays.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Complaint is a citizen-submitted civic issue. Complaints are never deleted;
// only Status (and the matching timestamp) ever changes after submission.
type Complaint struct {
	ID          int64      `json:"id"`
	IssueType   IssueType  `json:"issue_type"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Reporter    Reporter   `json:"reporter"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ImageRef    string     `json:"image_ref,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Impact describes how far a fault reaches. Severity rules match against it.
type Impact struct {
	AffectedHouseholds int    `json:"affected_households"`
	Scope              string `json:"scope"` // "area", "single_point", "cosmetic"
	Hazard             bool   `json:"hazard"`
}

// Fields exposes the descriptor as a flat map for rule conditions. Numbers
// are float64, matching what encoding/json produces for payloads.
func (i Impact) Fields() map[string]interface{} {
	return map[string]interface{}{
		"affected_households": float64(i.AffectedHouseholds),
		"scope":               i.Scope,
		"hazard":              i.Hazard,
	}
}

// Alert is a department-facing escalation. Severity never changes and
// Acknowledged only ever flips from false to true.
type Alert struct {
	ID             int64       `json:"id"`
	Area           string      `json:"area"`
	IssueType      IssueType   `json:"issue_type"`
	Department     string      `json:"department"`
	Description    string      `json:"description"`
	Severity       Severity    `json:"severity"`
	ReportedAt     time.Time   `json:"reported_at"`
	Acknowledged   bool        `json:"acknowledged"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	Coordinates    Coordinates `json:"coordinates"`
	Impact         Impact      `json:"impact"`
	ComplaintID    *int64      `json:"complaint_id,omitempty"`
	RuleID         string      `json:"rule_id,omitempty"`
}

// Department is static reference data: a name and the issue types it owns.
type Department struct {
	Name       string      `json:"name"`
	IssueTypes []IssueType `json:"issue_types"`
}

// Handles reports whether the department owns the given issue type.
func (d Department) Handles(it IssueType) bool {
	for _, t := range d.IssueTypes {
		if t == it {
			return true
		}
	}
	return false
}

// ─── Activity journal ────────────────────────────────────────────────────────

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"` // "complaint", "alert", "department"
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "related", "context"
}

// ActivityEntry is one row of the activity journal, keyed by a referenced
// entity. One domain event produces one entry per affected entity.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"` // "complaint", "alert"
	Weight            string          `json:"weight"`   // severity for alerts, "info" otherwise
	Actor             string          `json:"actor,omitempty"`
	Payload           json.RawMessage `json:"payload"`
}
