package desk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/civicpulse/internal/activity"
	"github.com/matthewbaird/civicpulse/internal/alert"
	"github.com/matthewbaird/civicpulse/internal/catalog"
	"github.com/matthewbaird/civicpulse/internal/command"
	"github.com/matthewbaird/civicpulse/internal/complaint"
	"github.com/matthewbaird/civicpulse/internal/event"
	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingObserver struct {
	mu         sync.Mutex
	commands   map[string]int
	suppressed int
}

func (o *countingObserver) CommandCompleted(op string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands[op]++
}

func (o *countingObserver) AlertSuppressed(types.IssueType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suppressed++
}

type fixture struct {
	desk     *Desk
	clock    *testClock
	store    *activity.MemoryStore
	observer *countingObserver
}

func newFixture(t *testing.T, latency time.Duration) fixture {
	t.Helper()
	clk := &testClock{now: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
	cat := catalog.Default()
	reg := complaint.NewRegistry(cat, complaint.WithClock(clk.Now))
	esc, err := alert.NewEscalator(cat, alert.WithClock(clk.Now))
	require.NoError(t, err)
	store := activity.NewMemoryStore()
	obs := &countingObserver{commands: map[string]int{}}
	d := New(reg, esc, cat, command.NewDispatcher(latency),
		WithRecorder(event.NewActivityRecorder(store)),
		WithObserver(obs),
		WithClock(clk.Now),
		WithOverdueAfter(48*time.Hour))
	return fixture{desk: d, clock: clk, store: store, observer: obs}
}

func input(issue, location string) complaint.SubmitInput {
	return complaint.SubmitInput{
		FullName:    "Ravi Kumar",
		Email:       "ravi@example.com",
		IssueType:   issue,
		Location:    location,
		Description: issue + " at " + location,
	}
}

func journal(t *testing.T, f fixture, entityType, id string) []types.ActivityEntry {
	t.Helper()
	opts := activity.QueryOptions{Limit: 500}
	entries, _, _, err := f.store.QueryByEntity(context.Background(), entityType, id, opts)
	require.NoError(t, err)
	return entries
}

func TestSubmitThenEscalateRaisesAlert(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	c, err := f.desk.Submit(ctx, input("PowerOutage", "Mehdipatnam"))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.desk.Escalate(ctx, c.ID, types.Impact{AffectedHouseholds: 800, Scope: "area"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusEscalated, res.Complaint.Status)
	require.NotNil(t, res.Alert)
	assert.False(t, res.Suppressed)
	assert.Equal(t, types.SeverityCritical, res.Alert.Severity)
	assert.Equal(t, "Electricity", res.Alert.Department)
	require.NotNil(t, res.Alert.ComplaintID)
	assert.Equal(t, c.ID, *res.Alert.ComplaintID)

	entries := journal(t, f, "complaint", "1")
	require.Len(t, entries, 3)
	// transition and raise share a timestamp and keep write order
	assert.Equal(t, event.TypeComplaintTransitioned, entries[0].EventType)
	assert.Equal(t, event.TypeAlertRaised, entries[1].EventType)
	assert.Equal(t, event.TypeComplaintSubmitted, entries[2].EventType)

	assert.Equal(t, 1, f.observer.commands["submit"])
	assert.Equal(t, 1, f.observer.commands["transition"])
}

func TestEscalationDuplicateIsHandled(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	first, err := f.desk.Submit(ctx, input("Pothole", "Old City"))
	require.NoError(t, err)
	second, err := f.desk.Submit(ctx, input("pothole", " old city "))
	require.NoError(t, err)

	r1, err := f.desk.Transition(ctx, first.ID, types.StatusEscalated)
	require.NoError(t, err)
	require.NotNil(t, r1.Alert)

	r2, err := f.desk.Transition(ctx, second.ID, types.StatusEscalated)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEscalated, r2.Complaint.Status)
	assert.True(t, r2.Suppressed)
	require.NotNil(t, r2.Alert)
	assert.Equal(t, r1.Alert.ID, r2.Alert.ID)

	assert.Len(t, f.desk.Alerts(filter.AlertCriteria{}), 1)
	assert.Equal(t, 1, f.observer.suppressed)
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.desk.Transition(ctx, 99, types.StatusResolved)
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))

	c, err := f.desk.Submit(ctx, input("Garbage", "Banjara Hills"))
	require.NoError(t, err)
	_, err = f.desk.Transition(ctx, c.ID, types.StatusResolved)
	require.NoError(t, err)
	_, err = f.desk.Transition(ctx, c.ID, types.StatusResolved)
	var bad *types.InvalidTransitionError
	assert.True(t, errors.As(err, &bad))
}

func TestAcknowledge(t *testing.T) {
	f := newFixture(t, 0)
	ctx := event.WithActor(context.Background(), "water-desk")

	a, err := f.desk.Raise(ctx, alert.Source{Area: "Gachibowli", IssueType: "WaterPipeline", Impact: types.Impact{Scope: "area"}})
	require.NoError(t, err)
	assert.Equal(t, types.SeverityCritical, a.Severity)

	f.clock.Advance(28 * time.Minute)
	acked, err := f.desk.Acknowledge(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)

	_, err = f.desk.Acknowledge(ctx, a.ID)
	var already *types.AlreadyAcknowledgedError
	assert.True(t, errors.As(err, &already))

	entries := journal(t, f, "alert", "1")
	require.Len(t, entries, 2)
	assert.Equal(t, event.TypeAlertAcknowledged, entries[0].EventType)
	assert.Equal(t, "water-desk", entries[0].Actor)
	assert.Contains(t, entries[0].Summary, "after 28 min")
}

func TestEscalateOverdue(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	old, err := f.desk.Submit(ctx, input("Streetlight", "Secunderabad"))
	require.NoError(t, err)
	resolved, err := f.desk.Submit(ctx, input("Garbage", "Banjara Hills"))
	require.NoError(t, err)
	_, err = f.desk.Transition(ctx, resolved.ID, types.StatusResolved)
	require.NoError(t, err)

	f.clock.Advance(72 * time.Hour)
	fresh, err := f.desk.Submit(ctx, input("Pothole", "Old City"))
	require.NoError(t, err)

	out, err := f.desk.EscalateOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, old.ID, out[0].Complaint.ID)
	require.NotNil(t, out[0].Alert)

	got, err := f.desk.Complaint(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)

	again, err := f.desk.EscalateOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSweepSLAReportsOnce(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	critical, err := f.desk.Raise(ctx, alert.Source{Area: "Old City", IssueType: "Pothole", Impact: types.Impact{Hazard: true}})
	require.NoError(t, err)
	_, err = f.desk.Raise(ctx, alert.Source{Area: "Secunderabad", IssueType: "Streetlight"})
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	assert.Empty(t, f.desk.SweepSLA(ctx))

	f.clock.Advance(20 * time.Minute)
	breached := f.desk.SweepSLA(ctx)
	require.Len(t, breached, 1)
	assert.Equal(t, critical.ID, breached[0].ID)

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.desk.SweepSLA(ctx))

	entries := journal(t, f, "alert", "1")
	require.NotEmpty(t, entries)
	assert.Equal(t, event.TypeAlertSLABreached, entries[0].EventType)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	for _, in := range []complaint.SubmitInput{
		input("Pothole", "Old City"),
		input("Pothole", "Old City"),
		input("Garbage", "Banjara Hills"),
	} {
		_, err := f.desk.Submit(ctx, in)
		require.NoError(t, err)
	}
	f.clock.Advance(24 * time.Hour)
	_, err := f.desk.Transition(ctx, 1, types.StatusResolved)
	require.NoError(t, err)

	snap, err := f.desk.Metrics(0)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Totals.Total)
	assert.Equal(t, 67, snap.IssueTypes[0].Percent)
	require.NotNil(t, snap.AvgResolutionDays)
	assert.Equal(t, 1.0, *snap.AvgResolutionDays)
	assert.Equal(t, 2024, snap.TrendYear)
	assert.Equal(t, 3, snap.MonthlyTrend[5].Count)
}

func TestCallerGivesUpButCommandCompletes(t *testing.T) {
	f := newFixture(t, 40*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := f.desk.Submit(ctx, input("Electricity", "Charminar"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, f.desk.Drain(context.Background()))
	all := f.desk.Complaints(filter.ComplaintCriteria{}, complaint.OldestFirst)
	require.Len(t, all, 1)
	assert.Len(t, journal(t, f, "complaint", "1"), 1)
}

func TestConcurrentAcknowledgeSingleWinner(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	a, err := f.desk.Raise(ctx, alert.Source{Area: "Old City", IssueType: "Pothole"})
	require.NoError(t, err)

	tasks := make([]*command.Task[types.Alert], 5)
	for i := range tasks {
		tasks[i] = f.desk.AcknowledgeAsync(ctx, a.ID)
	}
	wins := 0
	for _, task := range tasks {
		if _, err := task.Wait(ctx); err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
