package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/desk"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// Job names.
const (
	JobOverdueEscalation = "overdue_escalation"
	JobSLASweep          = "sla_sweep"
)

// Sweeper is the slice of the desk the jobs drive.
type Sweeper interface {
	EscalateOverdue(ctx context.Context) ([]desk.TransitionResult, error)
	SweepSLA(ctx context.Context) []types.Alert
}

// OverdueEscalation escalates complaints left pending too long.
func OverdueEscalation(d Sweeper, schedule string, logger *zap.Logger) Job {
	return Job{
		Name:     JobOverdueEscalation,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			results, err := d.EscalateOverdue(ctx)
			if len(results) > 0 {
				logger.Info("escalated overdue complaints", zap.Int("count", len(results)))
			}
			return err
		},
	}
}

// SLASweep reports alerts that have gone unacknowledged past their limit.
func SLASweep(d Sweeper, schedule string, logger *zap.Logger) Job {
	return Job{
		Name:     JobSLASweep,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			for _, a := range d.SweepSLA(ctx) {
				logger.Warn("alert breached acknowledgement deadline",
					zap.Int64("alert_id", a.ID),
					zap.String("department", a.Department),
					zap.String("severity", string(a.Severity)),
				)
			}
			return nil
		},
	}
}
