// Package complaint owns the authoritative, append-only set of complaints.
// Every mutation goes through Submit or Transition; readers only ever receive
// copies.
package complaint

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// IssueCatalog resolves issue types and their departments.
type IssueCatalog interface {
	Canonical(name string) (types.IssueType, bool)
	DepartmentFor(it types.IssueType) (string, bool)
}

// SubmitInput is the citizen-facing complaint form.
type SubmitInput struct {
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	IssueType   string `json:"issue_type" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Description string `json:"description" validate:"required"`
	ImageRef    string `json:"image_ref,omitempty"`
}

// Order controls List ordering.
type Order int

const (
	// OldestFirst is insertion order.
	OldestFirst Order = iota
	// NewestFirst is the display order used by dashboards.
	NewestFirst
)

// Registry is an arena of complaints indexed by id. Ids start at 1 and are
// never reused, so complaint N lives at items[N-1].
type Registry struct {
	mu       sync.RWMutex
	items    []types.Complaint
	catalog  IssueCatalog
	clock    func() time.Time
	validate *validator.Validate
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry backed by the given catalog.
func NewRegistry(catalog IssueCatalog, opts ...Option) *Registry {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	r := &Registry{
		catalog:  catalog,
		clock:    time.Now,
		validate: v,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Submit validates the form and appends a new pending complaint.
func (r *Registry) Submit(in SubmitInput) (types.Complaint, error) {
	in = normalize(in)

	verr := &types.ValidationError{}
	if err := r.validate.Struct(in); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return types.Complaint{}, fmt.Errorf("validating complaint: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), reason(fe))
		}
	}
	var issueType types.IssueType
	if in.IssueType != "" {
		it, ok := r.catalog.Canonical(in.IssueType)
		if !ok {
			verr.Add("issue_type", fmt.Sprintf("unknown issue type %q", in.IssueType))
		}
		issueType = it
	}
	if err := verr.OrNil(); err != nil {
		return types.Complaint{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := types.Complaint{
		ID:          int64(len(r.items)) + 1,
		IssueType:   issueType,
		Description: in.Description,
		Location:    in.Location,
		Reporter:    types.Reporter{Name: in.FullName, Email: in.Email},
		Status:      types.StatusPending,
		CreatedAt:   r.clock(),
		ImageRef:    in.ImageRef,
	}
	r.items = append(r.items, c)

	r.logger.Debug("complaint submitted",
		zap.Int64("id", c.ID),
		zap.String("issue_type", string(c.IssueType)),
		zap.String("location", c.Location))
	return clone(c), nil
}

// Transition moves a complaint along the state machine. The record keeps its
// id and CreatedAt; EscalatedAt or ResolvedAt is stamped on arrival.
func (r *Registry) Transition(id int64, target types.Status) (types.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.lookup(id)
	if !ok {
		return types.Complaint{}, &types.NotFoundError{Entity: "complaint", ID: id}
	}
	if err := types.ValidateTransition(id, c.Status, target); err != nil {
		return types.Complaint{}, err
	}

	from := c.Status
	now := r.clock()
	c.Status = target
	switch target {
	case types.StatusEscalated:
		c.EscalatedAt = &now
	case types.StatusResolved:
		c.ResolvedAt = &now
	}

	r.logger.Debug("complaint transitioned",
		zap.Int64("id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)))
	return clone(*c), nil
}

// Get returns a copy of one complaint.
func (r *Registry) Get(id int64) (types.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.lookup(id)
	if !ok {
		return types.Complaint{}, &types.NotFoundError{Entity: "complaint", ID: id}
	}
	return clone(*c), nil
}

// List returns the complaints matching criteria.
func (r *Registry) List(criteria filter.ComplaintCriteria, order Order) []types.Complaint {
	r.mu.RLock()
	out := filter.Apply(r.items, criteria.Predicate(r.catalog))
	for i := range out {
		out[i] = clone(out[i])
	}
	r.mu.RUnlock()

	if order == NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Snapshot returns every complaint in insertion order.
func (r *Registry) Snapshot() []types.Complaint {
	return r.List(filter.ComplaintCriteria{}, OldestFirst)
}

// Len returns the number of complaints ever submitted.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Overdue returns pending complaints older than threshold at now.
func (r *Registry) Overdue(now time.Time, threshold time.Duration) []types.Complaint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Complaint
	for i := range r.items {
		c := &r.items[i]
		if c.Status == types.StatusPending && now.Sub(c.CreatedAt) > threshold {
			out = append(out, clone(*c))
		}
	}
	return out
}

// Restore loads historical complaints into an empty registry, e.g. demo
// data. Records must carry ids 1..n in order and consistent timestamps.
func (r *Registry) Restore(history []types.Complaint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) > 0 {
		return fmt.Errorf("restore into non-empty registry (%d complaints)", len(r.items))
	}
	for i, c := range history {
		if c.ID != int64(i)+1 {
			return fmt.Errorf("complaint at position %d has id %d, want %d", i, c.ID, i+1)
		}
		if !c.Status.Valid() {
			return fmt.Errorf("complaint %d: unknown status %q", c.ID, c.Status)
		}
		if _, ok := r.catalog.DepartmentFor(c.IssueType); !ok {
			return fmt.Errorf("complaint %d: unknown issue type %q", c.ID, c.IssueType)
		}
		if (c.Status == types.StatusResolved) != (c.ResolvedAt != nil) {
			return fmt.Errorf("complaint %d: resolved_at must be set exactly when resolved", c.ID)
		}
		if c.ResolvedAt != nil && c.ResolvedAt.Before(c.CreatedAt) {
			return fmt.Errorf("complaint %d: resolved before it was created", c.ID)
		}
	}
	r.items = make([]types.Complaint, len(history))
	for i, c := range history {
		r.items[i] = clone(c)
	}
	return nil
}

func (r *Registry) lookup(id int64) (*types.Complaint, bool) {
	if id < 1 || id > int64(len(r.items)) {
		return nil, false
	}
	return &r.items[id-1], true
}

func normalize(in SubmitInput) SubmitInput {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.IssueType = strings.TrimSpace(in.IssueType)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageRef = strings.TrimSpace(in.ImageRef)
	return in
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func clone(c types.Complaint) types.Complaint {
	if c.EscalatedAt != nil {
		t := *c.EscalatedAt
		c.EscalatedAt = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}
