// Package alert raises department alerts, assigns their severity from the
// catalog's rule table, and tracks acknowledgement.
package alert

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/catalog"
	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// Catalog is the reference data the escalator needs.
type Catalog interface {
	Canonical(name string) (types.IssueType, bool)
	DepartmentFor(it types.IssueType) (string, bool)
	Department(name string) (types.Department, bool)
	Rules() []catalog.SeverityRule
	DefaultSeverity() types.Severity
}

// Source describes a fault to escalate. Department may be left empty, in
// which case it is derived from IssueType.
type Source struct {
	Area        string            `json:"area"`
	IssueType   string            `json:"issue_type"`
	Department  string            `json:"department,omitempty"`
	Description string            `json:"description,omitempty"`
	Coordinates types.Coordinates `json:"coordinates"`
	Impact      types.Impact      `json:"impact"`
	ComplaintID *int64            `json:"complaint_id,omitempty"`
}

// Escalator owns every alert. Ids start at 1 so alert N lives at items[N-1].
type Escalator struct {
	mu          sync.RWMutex
	items       []types.Alert
	openByKey   map[string]int64
	openByCompl map[int64]int64

	catalog Catalog
	rules   *ruleTable
	clock   func() time.Time
	logger  *zap.Logger
}

// Option configures an Escalator.
type Option func(*Escalator)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Escalator) { e.clock = clock }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Escalator) { e.logger = l }
}

// NewEscalator compiles the catalog's rule table. A malformed rule condition
// is reported here rather than on first use.
func NewEscalator(cat Catalog, opts ...Option) (*Escalator, error) {
	rules, err := newRuleTable(cat.Rules(), cat.DefaultSeverity())
	if err != nil {
		return nil, fmt.Errorf("compiling severity rules: %w", err)
	}
	e := &Escalator{
		openByKey:   make(map[string]int64),
		openByCompl: make(map[int64]int64),
		catalog:     cat,
		rules:       rules,
		clock:       time.Now,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Raise validates src, assigns severity, and appends a new unacknowledged
// alert. At most one open alert exists per (area, issue type) and per backing
// complaint; a second raise returns *types.DuplicateAlertError.
func (e *Escalator) Raise(src Source) (types.Alert, error) {
	area := strings.TrimSpace(src.Area)
	verr := &types.ValidationError{}
	if area == "" {
		verr.Add("area", "is required")
	}

	var issueType types.IssueType
	switch name := strings.TrimSpace(src.IssueType); {
	case name == "":
		verr.Add("issue_type", "is required")
	default:
		it, ok := e.catalog.Canonical(name)
		if !ok {
			verr.Add("issue_type", fmt.Sprintf("unknown issue type %q", name))
		}
		issueType = it
	}

	var department string
	if name := strings.TrimSpace(src.Department); name != "" {
		d, ok := e.catalog.Department(name)
		switch {
		case !ok:
			verr.Add("department", fmt.Sprintf("unknown department %q", name))
		case issueType != "" && !d.Handles(issueType):
			verr.Add("department", fmt.Sprintf("%s does not handle %s", d.Name, issueType))
		default:
			department = d.Name
		}
	} else if issueType != "" {
		department, _ = e.catalog.DepartmentFor(issueType)
	}
	if src.ComplaintID != nil && *src.ComplaintID < 1 {
		verr.Add("complaint_id", "must be positive")
	}
	if err := verr.OrNil(); err != nil {
		return types.Alert{}, err
	}

	severity, ruleID := e.rules.severity(issueType, src.Impact)
	description := strings.TrimSpace(src.Description)
	if description == "" {
		description = fmt.Sprintf("%s reported in %s", issueType, area)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := openKey(area, issueType)
	if id, ok := e.openByKey[key]; ok {
		return types.Alert{}, &types.DuplicateAlertError{Area: area, IssueType: issueType, ExistingID: id, ComplaintID: copyID(src.ComplaintID)}
	}
	if src.ComplaintID != nil {
		if id, ok := e.openByCompl[*src.ComplaintID]; ok {
			return types.Alert{}, &types.DuplicateAlertError{Area: area, IssueType: issueType, ExistingID: id, ComplaintID: copyID(src.ComplaintID)}
		}
	}

	a := types.Alert{
		ID:          int64(len(e.items)) + 1,
		Area:        area,
		IssueType:   issueType,
		Department:  department,
		Description: description,
		Severity:    severity,
		ReportedAt:  e.clock(),
		Coordinates: src.Coordinates,
		Impact:      src.Impact,
		ComplaintID: copyID(src.ComplaintID),
		RuleID:      ruleID,
	}
	e.items = append(e.items, a)
	e.index(a)

	e.logger.Info("alert raised",
		zap.Int64("id", a.ID),
		zap.String("area", a.Area),
		zap.String("issue_type", string(a.IssueType)),
		zap.String("department", a.Department),
		zap.String("severity", string(a.Severity)),
		zap.String("rule", a.RuleID))
	return clone(a), nil
}

// Acknowledge marks an alert as seen by its department. It can happen once.
func (e *Escalator) Acknowledge(id int64) (types.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.lookup(id)
	if !ok {
		return types.Alert{}, &types.NotFoundError{Entity: "alert", ID: id}
	}
	if a.Acknowledged {
		return types.Alert{}, &types.AlreadyAcknowledgedError{ID: id}
	}
	now := e.clock()
	a.Acknowledged = true
	a.AcknowledgedAt = &now
	e.unindex(*a)

	e.logger.Info("alert acknowledged",
		zap.Int64("id", id),
		zap.String("department", a.Department),
		zap.Duration("response", AgeOf(*a, now)))
	return clone(*a), nil
}

// Get returns a copy of one alert.
func (e *Escalator) Get(id int64) (types.Alert, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.lookup(id)
	if !ok {
		return types.Alert{}, &types.NotFoundError{Entity: "alert", ID: id}
	}
	return clone(*a), nil
}

// List returns matching alerts in creation order.
func (e *Escalator) List(criteria filter.AlertCriteria) []types.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := filter.Apply(e.items, criteria.Predicate())
	for i := range out {
		out[i] = clone(out[i])
	}
	return out
}

// Snapshot returns every alert in creation order.
func (e *Escalator) Snapshot() []types.Alert {
	return e.List(filter.AlertCriteria{})
}

// OpenFor returns the unacknowledged alert backed by a complaint, if any.
func (e *Escalator) OpenFor(complaintID int64) (types.Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.openByCompl[complaintID]
	if !ok {
		return types.Alert{}, false
	}
	a, _ := e.lookup(id)
	return clone(*a), true
}

// Restore loads historical alerts into an empty escalator. Records must
// carry ids 1..n in order; open alerts must not collide.
func (e *Escalator) Restore(history []types.Alert) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.items) > 0 {
		return fmt.Errorf("restore into non-empty escalator (%d alerts)", len(e.items))
	}
	openByKey := make(map[string]int64)
	openByCompl := make(map[int64]int64)
	for i, a := range history {
		if a.ID != int64(i)+1 {
			return fmt.Errorf("alert at position %d has id %d, want %d", i, a.ID, i+1)
		}
		if !a.Severity.Valid() {
			return fmt.Errorf("alert %d: unknown severity %q", a.ID, a.Severity)
		}
		if a.Acknowledged != (a.AcknowledgedAt != nil) {
			return fmt.Errorf("alert %d: acknowledged_at must be set exactly when acknowledged", a.ID)
		}
		if a.Acknowledged {
			continue
		}
		key := openKey(a.Area, a.IssueType)
		if prev, dup := openByKey[key]; dup {
			return fmt.Errorf("alert %d duplicates open alert %d", a.ID, prev)
		}
		openByKey[key] = a.ID
		if a.ComplaintID != nil {
			if prev, dup := openByCompl[*a.ComplaintID]; dup {
				return fmt.Errorf("alert %d duplicates open alert %d for complaint %d", a.ID, prev, *a.ComplaintID)
			}
			openByCompl[*a.ComplaintID] = a.ID
		}
	}
	e.items = make([]types.Alert, len(history))
	for i, a := range history {
		e.items[i] = clone(a)
	}
	e.openByKey = openByKey
	e.openByCompl = openByCompl
	return nil
}

// Now reads the escalator's clock.
func (e *Escalator) Now() time.Time { return e.clock() }

func (e *Escalator) lookup(id int64) (*types.Alert, bool) {
	if id < 1 || id > int64(len(e.items)) {
		return nil, false
	}
	return &e.items[id-1], true
}

func (e *Escalator) index(a types.Alert) {
	e.openByKey[openKey(a.Area, a.IssueType)] = a.ID
	if a.ComplaintID != nil {
		e.openByCompl[*a.ComplaintID] = a.ID
	}
}

func (e *Escalator) unindex(a types.Alert) {
	key := openKey(a.Area, a.IssueType)
	if e.openByKey[key] == a.ID {
		delete(e.openByKey, key)
	}
	if a.ComplaintID != nil && e.openByCompl[*a.ComplaintID] == a.ID {
		delete(e.openByCompl, *a.ComplaintID)
	}
}

// openKey normalizes area spelling so "Old City" and " old city" collide.
func openKey(area string, it types.IssueType) string {
	return strings.ToLower(strings.Join(strings.Fields(area), " ")) + "|" + strings.ToLower(string(it))
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func clone(a types.Alert) types.Alert {
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		a.AcknowledgedAt = &t
	}
	a.ComplaintID = copyID(a.ComplaintID)
	return a
}
