// Package desk is the command surface over the complaint registry and the
// alert escalator. It runs mutations through the command dispatcher, couples
// escalation to alert raising, journals domain events, and runs the overdue
// and SLA sweeps.
package desk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/alert"
	"github.com/matthewbaird/civicpulse/internal/analytics"
	"github.com/matthewbaird/civicpulse/internal/catalog"
	"github.com/matthewbaird/civicpulse/internal/command"
	"github.com/matthewbaird/civicpulse/internal/complaint"
	"github.com/matthewbaird/civicpulse/internal/event"
	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// Observer receives operational measurements. The metrics package
// implements it.
type Observer interface {
	CommandCompleted(op string, elapsed time.Duration, err error)
	AlertSuppressed(issueType types.IssueType)
}

type nopObserver struct{}

func (nopObserver) CommandCompleted(string, time.Duration, error) {}
func (nopObserver) AlertSuppressed(types.IssueType)               {}

// TransitionResult is the outcome of a status change. Alert is set when an
// escalation raised a new alert or found one already open (Suppressed).
type TransitionResult struct {
	Complaint  types.Complaint `json:"complaint"`
	Alert      *types.Alert    `json:"alert,omitempty"`
	Suppressed bool            `json:"suppressed,omitempty"`
}

// Desk wires the core components together.
type Desk struct {
	registry   *complaint.Registry
	escalator  *alert.Escalator
	catalog    *catalog.Catalog
	dispatcher *command.Dispatcher
	recorder   event.Recorder
	observer   Observer
	logger     *zap.Logger
	clock      func() time.Time

	overdueAfter time.Duration

	mu       sync.Mutex
	breached map[int64]bool
}

// Option configures a Desk.
type Option func(*Desk)

// WithRecorder journals domain events.
func WithRecorder(r event.Recorder) Option { return func(d *Desk) { d.recorder = r } }

// WithObserver attaches operational metrics.
func WithObserver(o Observer) Option { return func(d *Desk) { d.observer = o } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(d *Desk) { d.logger = l } }

// WithClock overrides time.Now for sweeps and metrics.
func WithClock(clock func() time.Time) Option { return func(d *Desk) { d.clock = clock } }

// WithOverdueAfter sets how long a complaint may stay pending before the
// overdue sweep escalates it. Zero disables the sweep.
func WithOverdueAfter(after time.Duration) Option {
	return func(d *Desk) { d.overdueAfter = after }
}

// New assembles a desk.
func New(reg *complaint.Registry, esc *alert.Escalator, cat *catalog.Catalog, disp *command.Dispatcher, opts ...Option) *Desk {
	d := &Desk{
		registry:   reg,
		escalator:  esc,
		catalog:    cat,
		dispatcher: disp,
		observer:   nopObserver{},
		logger:     zap.NewNop(),
		clock:      time.Now,
		breached:   make(map[int64]bool),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ─── Commands ────────────────────────────────────────────────────────────────

// SubmitAsync files a complaint after the simulated round-trip.
func (d *Desk) SubmitAsync(ctx context.Context, in complaint.SubmitInput) *command.Task[types.Complaint] {
	return command.Go(d.dispatcher, "", instrumented(d, "submit", func() (types.Complaint, error) {
		c, err := d.registry.Submit(in)
		if err != nil {
			return c, err
		}
		dept, _ := d.catalog.DepartmentFor(c.IssueType)
		d.record(ctx, event.NewComplaintSubmitted(event.ComplaintSubmittedPayload{
			ComplaintID: c.ID,
			IssueType:   c.IssueType,
			Department:  dept,
			Location:    c.Location,
			Reporter:    c.Reporter.Name,
			SubmittedAt: c.CreatedAt,
		}))
		return c, nil
	}))
}

// Submit is SubmitAsync followed by Wait.
func (d *Desk) Submit(ctx context.Context, in complaint.SubmitInput) (types.Complaint, error) {
	return d.SubmitAsync(ctx, in).Wait(ctx)
}

// TransitionAsync changes a complaint's status. Moving to escalated also
// raises an alert for the complaint; an alert already open for the same
// fault is reported as Suppressed rather than an error.
func (d *Desk) TransitionAsync(ctx context.Context, id int64, target types.Status) *command.Task[TransitionResult] {
	return d.transitionAsync(ctx, id, target, types.Impact{})
}

// Transition is TransitionAsync followed by Wait.
func (d *Desk) Transition(ctx context.Context, id int64, target types.Status) (TransitionResult, error) {
	return d.TransitionAsync(ctx, id, target).Wait(ctx)
}

// Escalate moves a complaint to escalated and raises its alert with the
// given impact, which drives severity.
func (d *Desk) Escalate(ctx context.Context, id int64, impact types.Impact) (TransitionResult, error) {
	return d.transitionAsync(ctx, id, types.StatusEscalated, impact).Wait(ctx)
}

func (d *Desk) transitionAsync(ctx context.Context, id int64, target types.Status, impact types.Impact) *command.Task[TransitionResult] {
	return command.Go(d.dispatcher, complaintKey(id), instrumented(d, "transition", func() (TransitionResult, error) {
		return d.applyTransition(ctx, id, target, impact)
	}))
}

// applyTransition runs inside the complaint's lane.
func (d *Desk) applyTransition(ctx context.Context, id int64, target types.Status, impact types.Impact) (TransitionResult, error) {
	before, err := d.registry.Get(id)
	if err != nil {
		return TransitionResult{}, err
	}
	c, err := d.registry.Transition(id, target)
	if err != nil {
		return TransitionResult{}, err
	}
	dept, _ := d.catalog.DepartmentFor(c.IssueType)
	changedAt := c.CreatedAt
	switch {
	case c.ResolvedAt != nil && target == types.StatusResolved:
		changedAt = *c.ResolvedAt
	case c.EscalatedAt != nil && target == types.StatusEscalated:
		changedAt = *c.EscalatedAt
	}
	d.record(ctx, event.NewComplaintTransitioned(event.ComplaintTransitionedPayload{
		ComplaintID: c.ID,
		From:        before.Status,
		To:          c.Status,
		Department:  dept,
		ChangedAt:   changedAt,
	}))

	res := TransitionResult{Complaint: c}
	if target != types.StatusEscalated {
		return res, nil
	}

	src := alert.Source{
		Area:        c.Location,
		IssueType:   string(c.IssueType),
		Description: c.Description,
		Impact:      impact,
		ComplaintID: &c.ID,
	}
	a, err := d.raise(ctx, src)
	var dup *types.DuplicateAlertError
	switch {
	case errors.As(err, &dup):
		d.logger.Info("escalation already covered by open alert",
			zap.Int64("complaint_id", c.ID),
			zap.Int64("alert_id", dup.ExistingID))
		d.observer.AlertSuppressed(c.IssueType)
		if existing, gerr := d.escalator.Get(dup.ExistingID); gerr == nil {
			res.Alert = &existing
		}
		res.Suppressed = true
	case err != nil:
		// The status change is committed; a failed raise is reported, not rolled back.
		d.logger.Error("raising alert for escalated complaint", zap.Int64("complaint_id", c.ID), zap.Error(err))
	default:
		res.Alert = &a
	}
	return res, nil
}

// RaiseAsync raises an alert that is not backed by a complaint, e.g. from
// field crews or sensors.
func (d *Desk) RaiseAsync(ctx context.Context, src alert.Source) *command.Task[types.Alert] {
	return command.Go(d.dispatcher, "", instrumented(d, "raise", func() (types.Alert, error) {
		return d.raise(ctx, src)
	}))
}

// Raise is RaiseAsync followed by Wait.
func (d *Desk) Raise(ctx context.Context, src alert.Source) (types.Alert, error) {
	return d.RaiseAsync(ctx, src).Wait(ctx)
}

func (d *Desk) raise(ctx context.Context, src alert.Source) (types.Alert, error) {
	a, err := d.escalator.Raise(src)
	if err != nil {
		return a, err
	}
	d.record(ctx, event.NewAlertRaised(event.AlertRaisedPayload{
		AlertID:     a.ID,
		Area:        a.Area,
		IssueType:   a.IssueType,
		Department:  a.Department,
		Severity:    a.Severity,
		RuleID:      a.RuleID,
		ComplaintID: a.ComplaintID,
		ReportedAt:  a.ReportedAt,
	}))
	return a, nil
}

// AcknowledgeAsync marks an alert as seen by its department.
func (d *Desk) AcknowledgeAsync(ctx context.Context, id int64) *command.Task[types.Alert] {
	return command.Go(d.dispatcher, alertKey(id), instrumented(d, "acknowledge", func() (types.Alert, error) {
		a, err := d.escalator.Acknowledge(id)
		if err != nil {
			return a, err
		}
		d.record(ctx, event.NewAlertAcknowledged(event.AlertAcknowledgedPayload{
			AlertID:         a.ID,
			Department:      a.Department,
			Severity:        a.Severity,
			AcknowledgedAt:  *a.AcknowledgedAt,
			ResponseMinutes: a.AcknowledgedAt.Sub(a.ReportedAt).Minutes(),
		}))
		return a, nil
	}))
}

// Acknowledge is AcknowledgeAsync followed by Wait.
func (d *Desk) Acknowledge(ctx context.Context, id int64) (types.Alert, error) {
	return d.AcknowledgeAsync(ctx, id).Wait(ctx)
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Complaints lists complaints; queries never wait on command lanes.
func (d *Desk) Complaints(criteria filter.ComplaintCriteria, order complaint.Order) []types.Complaint {
	return d.registry.List(criteria, order)
}

// Complaint returns one complaint.
func (d *Desk) Complaint(id int64) (types.Complaint, error) { return d.registry.Get(id) }

// Alerts lists alerts.
func (d *Desk) Alerts(criteria filter.AlertCriteria) []types.Alert { return d.escalator.List(criteria) }

// Alert returns one alert.
func (d *Desk) Alert(id int64) (types.Alert, error) { return d.escalator.Get(id) }

// Departments returns the catalog's departments.
func (d *Desk) Departments() []types.Department { return d.catalog.Departments() }

// SLAPolicy returns the acknowledgement deadline per severity.
func (d *Desk) SLAPolicy() map[types.Severity]time.Duration { return d.catalog.SLAPolicy() }

// Now reads the desk clock.
func (d *Desk) Now() time.Time { return d.clock() }

// Metrics computes a fresh snapshot. year 0 selects the year of the latest
// complaint.
func (d *Desk) Metrics(year int) (types.MetricsSnapshot, error) {
	snap, err := analytics.Compute(d.registry.Snapshot(), d.escalator.Snapshot(), analytics.Options{
		Departments: d.catalog.Departments(),
		Year:        year,
		AsOf:        d.clock(),
		SLA:         d.catalog.SLAPolicy(),
	})
	if err != nil {
		return types.MetricsSnapshot{}, fmt.Errorf("computing metrics: %w", err)
	}
	return snap, nil
}

// ─── Sweeps ──────────────────────────────────────────────────────────────────

// EscalateOverdue escalates every complaint that has been pending longer
// than the configured threshold. Complaints that moved on in the meantime
// are skipped.
func (d *Desk) EscalateOverdue(ctx context.Context) ([]TransitionResult, error) {
	if d.overdueAfter <= 0 {
		return nil, nil
	}
	overdue := d.registry.Overdue(d.clock(), d.overdueAfter)
	tasks := make([]*command.Task[TransitionResult], len(overdue))
	for i, c := range overdue {
		tasks[i] = d.TransitionAsync(ctx, c.ID, types.StatusEscalated)
	}

	var out []TransitionResult
	for i, t := range tasks {
		res, err := t.Wait(ctx)
		var stale *types.InvalidTransitionError
		switch {
		case errors.As(err, &stale):
			continue
		case err != nil:
			return out, fmt.Errorf("escalating complaint %d: %w", overdue[i].ID, err)
		}
		out = append(out, res)
	}
	if len(out) > 0 {
		d.logger.Info("escalated overdue complaints", zap.Int("count", len(out)), zap.Duration("threshold", d.overdueAfter))
	}
	return out, nil
}

// SweepSLA journals each unacknowledged alert past its acknowledgement
// deadline. Every breach is reported once.
func (d *Desk) SweepSLA(ctx context.Context) []types.Alert {
	now := d.clock()
	policy := d.catalog.SLAPolicy()

	var fresh []types.Alert
	for _, a := range d.escalator.List(filter.AlertCriteria{Acknowledged: filter.Bool(false)}) {
		if !alert.Breached(a, now, policy) {
			continue
		}
		d.mu.Lock()
		seen := d.breached[a.ID]
		d.breached[a.ID] = true
		d.mu.Unlock()
		if seen {
			continue
		}
		fresh = append(fresh, a)
		d.record(ctx, event.NewAlertSLABreached(event.AlertSLABreachedPayload{
			AlertID:      a.ID,
			Department:   a.Department,
			Severity:     a.Severity,
			AgeMinutes:   alert.AgeOf(a, now).Minutes(),
			LimitMinutes: policy[a.Severity].Minutes(),
			DetectedAt:   now,
		}))
	}
	if len(fresh) > 0 {
		d.logger.Warn("alerts past acknowledgement deadline", zap.Int("count", len(fresh)))
	}
	return fresh
}

// Drain waits for in-flight commands.
func (d *Desk) Drain(ctx context.Context) error { return d.dispatcher.Drain(ctx) }

func (d *Desk) record(ctx context.Context, evt event.DomainEvent) {
	if d.recorder == nil {
		return
	}
	// Journaling is best-effort and never fails a committed command. The
	// caller may have stopped waiting, but the command still completed.
	if err := d.recorder.Record(context.WithoutCancel(ctx), evt); err != nil {
		d.logger.Warn("event recording failed", zap.String("event_type", evt.EventType), zap.Error(err))
	}
}

func instrumented[T any](d *Desk, op string, fn func() (T, error)) func() (T, error) {
	return func() (T, error) {
		start := time.Now()
		v, err := fn()
		d.observer.CommandCompleted(op, time.Since(start), err)
		return v, err
	}
}

func complaintKey(id int64) string { return "complaint:" + strconv.FormatInt(id, 10) }
func alertKey(id int64) string     { return "alert:" + strconv.FormatInt(id, 10) }
