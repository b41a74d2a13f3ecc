package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/civicpulse/internal/desk"
	"github.com/matthewbaird/civicpulse/internal/types"
)

type fakeSweeper struct {
	overdue atomic.Int64
	sla     atomic.Int64
	err     error
}

func (f *fakeSweeper) EscalateOverdue(context.Context) ([]desk.TransitionResult, error) {
	f.overdue.Add(1)
	return []desk.TransitionResult{{Complaint: types.Complaint{ID: 1}}}, f.err
}

func (f *fakeSweeper) SweepSLA(context.Context) []types.Alert {
	f.sla.Add(1)
	return []types.Alert{{ID: 7, Department: "Roads", Severity: types.SeverityCritical}}
}

func TestScheduler_AddValidation(t *testing.T) {
	s := New(zap.NewNop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "a", Schedule: "*/5 * * * *", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Schedule: "@every 1m", Run: noop}), "duplicate name")
	assert.Error(t, s.Add(Job{Name: "b", Schedule: "not a schedule", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "off", Run: noop}), "empty schedule disables the job")

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].Name)
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(zap.New(core))
	sw := &fakeSweeper{err: errors.New("registry busy")}

	require.NoError(t, s.Add(OverdueEscalation(sw, "@every 1h", zap.New(core))))
	require.NoError(t, s.Add(SLASweep(sw, "@every 1h", zap.New(core))))

	assert.Error(t, s.RunNow(context.Background(), JobOverdueEscalation))
	require.NoError(t, s.RunNow(context.Background(), JobSLASweep))
	assert.Error(t, s.RunNow(context.Background(), "missing"))

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, JobOverdueEscalation, tasks[0].Name)
	assert.Equal(t, int64(1), tasks[0].RunCount)
	assert.Equal(t, int64(1), tasks[0].ErrorCount)
	assert.Equal(t, "registry busy", tasks[0].LastError)
	assert.Equal(t, JobSLASweep, tasks[1].Name)
	assert.Equal(t, int64(0), tasks[1].ErrorCount)

	assert.Equal(t, 1, logs.FilterMessage("escalated overdue complaints").Len())
	assert.Equal(t, 1, logs.FilterMessage("alert breached acknowledgement deadline").Len())
	assert.Equal(t, 1, logs.FilterMessage("job failed").Len())
}

func TestScheduler_RunFiresOnSchedule(t *testing.T) {
	s := New(nil)
	sw := &fakeSweeper{}
	require.NoError(t, s.Add(SLASweep(sw, "@every 1s", zap.NewNop())))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return sw.sla.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
