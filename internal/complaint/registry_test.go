package complaint

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/civicpulse/internal/catalog"
	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry() (*Registry, *stepClock) {
	clk := &stepClock{now: time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)}
	return NewRegistry(catalog.Default(), WithClock(clk.Now)), clk
}

func validInput() SubmitInput {
	return SubmitInput{
		FullName:    "Asha Rao",
		Email:       "asha@example.com",
		IssueType:   "Pothole",
		Location:    "Old City",
		Description: "Deep pothole near the bus stop",
	}
}

func TestSubmit(t *testing.T) {
	r, clk := newTestRegistry()

	c, err := r.Submit(validInput())
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, types.StatusPending, c.Status)
	assert.Equal(t, clk.Now(), c.CreatedAt)
	assert.Equal(t, types.IssuePothole, c.IssueType)
	assert.Equal(t, "Asha Rao", c.Reporter.Name)

	in := validInput()
	in.IssueType = "  waterpipeline "
	in.Location = "  Gachibowli "
	c2, err := r.Submit(in)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c2.ID)
	assert.Equal(t, types.IssueWaterPipeline, c2.IssueType)
	assert.Equal(t, "Gachibowli", c2.Location)
	assert.Equal(t, 2, r.Len())
}

func TestSubmit_ValidationListsEveryField(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Submit(SubmitInput{FullName: "  ", Email: "not-an-email", IssueType: "Graffiti"})
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"description", "email", "full_name", "issue_type", "location"}, verr.FieldNames())
	assert.Equal(t, 0, r.Len())
}

func TestSubmit_EmptyInput(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.Submit(SubmitInput{})
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.FieldNames(), 5)
	assert.Empty(t, r.Snapshot())
}

func TestTransition(t *testing.T) {
	r, clk := newTestRegistry()
	c, err := r.Submit(validInput())
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	esc, err := r.Transition(c.ID, types.StatusEscalated)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEscalated, esc.Status)
	require.NotNil(t, esc.EscalatedAt)
	assert.Equal(t, c.CreatedAt, esc.CreatedAt)

	clk.Advance(24 * time.Hour)
	res, err := r.Transition(c.ID, types.StatusResolved)
	require.NoError(t, err)
	require.NotNil(t, res.ResolvedAt)
	assert.Equal(t, 26*time.Hour, res.ResolvedAt.Sub(res.CreatedAt))

	_, err = r.Transition(c.ID, types.StatusPending)
	var bad *types.InvalidTransitionError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, types.StatusResolved, bad.From)

	got, err := r.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusResolved, got.Status)
}

func TestTransition_SameStateIsInvalid(t *testing.T) {
	r, _ := newTestRegistry()
	c, err := r.Submit(validInput())
	require.NoError(t, err)

	_, err = r.Transition(c.ID, types.StatusPending)
	var bad *types.InvalidTransitionError
	assert.True(t, errors.As(err, &bad))
}

func TestTransition_NotFound(t *testing.T) {
	r, _ := newTestRegistry()
	for _, id := range []int64{0, -1, 1, 99} {
		_, err := r.Transition(id, types.StatusResolved)
		var nf *types.NotFoundError
		assert.True(t, errors.As(err, &nf), "id %d", id)
	}
}

func TestList(t *testing.T) {
	r, clk := newTestRegistry()
	issues := []string{"Pothole", "Streetlight", "PowerOutage", "Garbage"}
	for _, it := range issues {
		in := validInput()
		in.IssueType = it
		_, err := r.Submit(in)
		require.NoError(t, err)
		clk.Advance(24 * time.Hour)
	}
	_, err := r.Transition(2, types.StatusResolved)
	require.NoError(t, err)

	all := r.List(filter.ComplaintCriteria{}, OldestFirst)
	require.Len(t, all, 4)
	assert.Equal(t, int64(1), all[0].ID)

	newest := r.List(filter.ComplaintCriteria{}, NewestFirst)
	assert.Equal(t, int64(4), newest[0].ID)

	elec := r.List(filter.ComplaintCriteria{Department: "Electricity"}, OldestFirst)
	require.Len(t, elec, 2)
	assert.Equal(t, []int64{2, 3}, []int64{elec[0].ID, elec[1].ID})

	pending := r.List(filter.ComplaintCriteria{Department: "Electricity", Status: types.StatusPending}, OldestFirst)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].ID)

	since := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 12, 8, 0, 0, 0, time.UTC)
	window := r.List(filter.ComplaintCriteria{Since: &since, Until: &until}, OldestFirst)
	assert.Len(t, window, 2)
}

func TestOverdue(t *testing.T) {
	r, clk := newTestRegistry()
	for i := 0; i < 3; i++ {
		_, err := r.Submit(validInput())
		require.NoError(t, err)
		clk.Advance(time.Hour)
	}
	_, err := r.Transition(1, types.StatusEscalated)
	require.NoError(t, err)

	// now = start+3h: complaint 1 is escalated, 2 is 2h old, 3 is 1h old
	overdue := r.Overdue(clk.Now(), 90*time.Minute)
	require.Len(t, overdue, 1)
	assert.Equal(t, int64(2), overdue[0].ID)
}

func TestSnapshotIsolation(t *testing.T) {
	r, _ := newTestRegistry()
	c, err := r.Submit(validInput())
	require.NoError(t, err)
	_, err = r.Transition(c.ID, types.StatusResolved)
	require.NoError(t, err)

	snap := r.Snapshot()
	snap[0].Status = types.StatusPending
	*snap[0].ResolvedAt = time.Time{}

	got, err := r.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusResolved, got.Status)
	assert.False(t, got.ResolvedAt.IsZero())
}

func TestConcurrentSubmitsGetDistinctIDs(t *testing.T) {
	r, _ := newTestRegistry()
	var wg sync.WaitGroup
	ids := make(chan int64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Submit(validInput())
			if err == nil {
				ids <- c.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, 50)
	for id := int64(1); id <= 50; id++ {
		assert.True(t, seen[id])
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	r, _ := newTestRegistry()
	c, err := r.Submit(validInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Transition(c.ID, types.StatusEscalated); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRestore(t *testing.T) {
	r, _ := newTestRegistry()
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	resolved := created.Add(48 * time.Hour)

	err := r.Restore([]types.Complaint{
		{ID: 1, IssueType: types.IssuePothole, Status: types.StatusResolved, CreatedAt: created, ResolvedAt: &resolved},
		{ID: 2, IssueType: types.IssueGarbage, Status: types.StatusPending, CreatedAt: created},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	c, err := r.Submit(validInput())
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.ID)

	assert.Error(t, r.Restore(nil))

	fresh, _ := newTestRegistry()
	assert.Error(t, fresh.Restore([]types.Complaint{{ID: 2, IssueType: types.IssuePothole, Status: types.StatusPending}}))
	assert.Error(t, fresh.Restore([]types.Complaint{{ID: 1, IssueType: types.IssuePothole, Status: types.StatusResolved}}))
	assert.Error(t, fresh.Restore([]types.Complaint{{ID: 1, IssueType: "Graffiti", Status: types.StatusPending}}))
}
