package alert

import (
	"fmt"
	"time"

	"github.com/matthewbaird/civicpulse/internal/types"
)

// AgeOf is the time elapsed since the alert was reported. It never goes
// negative, even with clock skew.
func AgeOf(a types.Alert, now time.Time) time.Duration {
	d := now.Sub(a.ReportedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Breached reports whether an unacknowledged alert has outlived the
// acknowledgement deadline for its severity. Severities without a deadline
// never breach.
func Breached(a types.Alert, now time.Time, policy map[types.Severity]time.Duration) bool {
	if a.Acknowledged {
		return false
	}
	limit, ok := policy[a.Severity]
	if !ok || limit <= 0 {
		return false
	}
	return AgeOf(a, now) > limit
}

// TimeSince renders the alert age for dashboards.
func TimeSince(a types.Alert, now time.Time) string {
	minutes := int(AgeOf(a, now) / time.Minute)
	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return fmt.Sprintf("%d min ago", minutes)
	}
	hours := minutes / 60
	if hours > 1 {
		return fmt.Sprintf("%d hours ago", hours)
	}
	return "1 hour ago"
}
