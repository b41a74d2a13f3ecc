// Package filter is the shared query layer behind every list operation: a
// set of optional criteria compiles into a single pure predicate. Unset
// criteria match everything and set criteria combine with AND.
package filter

import (
	"strings"
	"time"

	"github.com/matthewbaird/civicpulse/internal/types"
)

// Predicate reports whether an item should be kept.
type Predicate[T any] func(T) bool

// All combines predicates with logical AND. With no arguments it is the
// identity filter.
func All[T any](preds ...Predicate[T]) Predicate[T] {
	return func(v T) bool {
		for _, p := range preds {
			if p != nil && !p(v) {
				return false
			}
		}
		return true
	}
}

// Apply returns the items kept by p, preserving order. A nil predicate keeps
// everything.
func Apply[T any](items []T, p Predicate[T]) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if p == nil || p(it) {
			out = append(out, it)
		}
	}
	return out
}

// DepartmentLookup resolves the owning department of an issue type.
type DepartmentLookup interface {
	DepartmentFor(it types.IssueType) (string, bool)
}

// ComplaintCriteria filters complaints. Department is derived from the
// complaint's issue type. Since and Until are inclusive bounds on CreatedAt.
type ComplaintCriteria struct {
	Department string
	Status     types.Status
	IssueType  types.IssueType
	Since      *time.Time
	Until      *time.Time
}

// Predicate compiles the criteria. lookup may be nil when Department is unset.
func (c ComplaintCriteria) Predicate(lookup DepartmentLookup) Predicate[types.Complaint] {
	var preds []Predicate[types.Complaint]
	if c.Department != "" {
		want := c.Department
		preds = append(preds, func(cm types.Complaint) bool {
			if lookup == nil {
				return false
			}
			dept, ok := lookup.DepartmentFor(cm.IssueType)
			return ok && strings.EqualFold(dept, want)
		})
	}
	if c.Status != "" {
		want := c.Status
		preds = append(preds, func(cm types.Complaint) bool { return cm.Status == want })
	}
	if c.IssueType != "" {
		want := c.IssueType
		preds = append(preds, func(cm types.Complaint) bool { return strings.EqualFold(string(cm.IssueType), string(want)) })
	}
	if c.Since != nil {
		since := *c.Since
		preds = append(preds, func(cm types.Complaint) bool { return !cm.CreatedAt.Before(since) })
	}
	if c.Until != nil {
		until := *c.Until
		preds = append(preds, func(cm types.Complaint) bool { return !cm.CreatedAt.After(until) })
	}
	return All(preds...)
}

// AlertCriteria filters alerts.
type AlertCriteria struct {
	Department   string
	Severity     types.Severity
	Acknowledged *bool
	Area         string
}

// Predicate compiles the criteria.
func (c AlertCriteria) Predicate() Predicate[types.Alert] {
	var preds []Predicate[types.Alert]
	if c.Department != "" {
		want := c.Department
		preds = append(preds, func(a types.Alert) bool { return strings.EqualFold(a.Department, want) })
	}
	if c.Severity != "" {
		want := c.Severity
		preds = append(preds, func(a types.Alert) bool { return a.Severity == want })
	}
	if c.Acknowledged != nil {
		want := *c.Acknowledged
		preds = append(preds, func(a types.Alert) bool { return a.Acknowledged == want })
	}
	if c.Area != "" {
		want := c.Area
		preds = append(preds, func(a types.Alert) bool { return strings.EqualFold(strings.TrimSpace(a.Area), strings.TrimSpace(want)) })
	}
	return All(preds...)
}

// Bool is a convenience for building optional boolean criteria.
func Bool(b bool) *bool { return &b }
