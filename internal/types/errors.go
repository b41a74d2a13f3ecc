package types

import (
	"fmt"
	"sort"
	"strings"
)

// Error codes are stable identifiers used by the HTTP adapter and logs.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeDuplicateAlert      = "DUPLICATE_ALERT"
	CodeAlreadyAcknowledged = "ALREADY_ACKNOWLEDGED"
	CodeInvalidInput        = "INVALID_INPUT"
)

// Coded is implemented by every error in the taxonomy.
type Coded interface {
	error
	Code() string
}

// FieldError names one offending input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed or missing submission fields. The caller
// must correct the input; nothing was stored.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Code() string { return CodeValidation }

// Add appends a field failure.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// Has reports whether field is among the failures.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// FieldNames returns the sorted, de-duplicated offending field names.
func (e *ValidationError) FieldNames() []string {
	seen := make(map[string]bool, len(e.Fields))
	var names []string
	for _, f := range e.Fields {
		if !seen[f.Field] {
			seen[f.Field] = true
			names = append(names, f.Field)
		}
	}
	sort.Strings(names)
	return names
}

// OrNil returns e when it carries failures, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NotFoundError means the referenced id does not exist, usually because the
// client holds stale state.
type NotFoundError struct {
	Entity string // "complaint", "alert"
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }

// InvalidTransitionError is an illegal complaint status change.
type InvalidTransitionError struct {
	ComplaintID int64
	From        Status
	To          Status
	Reason      string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("complaint %d: transition from %q to %q is not allowed", e.ComplaintID, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Code() string { return CodeInvalidTransition }

// DuplicateAlertError suppresses an alert storm: an open alert already covers
// the same fault. Callers should treat it as "already handled".
type DuplicateAlertError struct {
	Area        string
	IssueType   IssueType
	ExistingID  int64
	ComplaintID *int64
}

func (e *DuplicateAlertError) Error() string {
	if e.ComplaintID != nil {
		return fmt.Sprintf("complaint %d already has unacknowledged alert %d", *e.ComplaintID, e.ExistingID)
	}
	return fmt.Sprintf("unacknowledged alert %d already open for %s in %q", e.ExistingID, e.IssueType, e.Area)
}

func (e *DuplicateAlertError) Code() string { return CodeDuplicateAlert }

// AlreadyAcknowledgedError is returned by a second acknowledge of the same
// alert. The alert stays acknowledged.
type AlreadyAcknowledgedError struct {
	ID int64
}

func (e *AlreadyAcknowledgedError) Error() string {
	return fmt.Sprintf("alert %d is already acknowledged", e.ID)
}

func (e *AlreadyAcknowledgedError) Code() string { return CodeAlreadyAcknowledged }

// InvalidInputError means the aggregator was handed an inconsistent snapshot.
type InvalidInputError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Entity == "" {
		return "invalid snapshot: " + e.Reason
	}
	return fmt.Sprintf("invalid snapshot: %s %d: %s", e.Entity, e.ID, e.Reason)
}

func (e *InvalidInputError) Code() string { return CodeInvalidInput }
