// Package analytics derives dashboard metrics from complaint and alert
// snapshots. Compute is a pure function: it keeps no state, reads no clock,
// and returns the same snapshot for the same inputs.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/matthewbaird/civicpulse/internal/alert"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// Options carries the reference data Compute needs.
type Options struct {
	// Departments, in display order. Empty disables the department table
	// and the issue type check.
	Departments []types.Department
	// Year selects the trend year. Zero means the UTC year of the most
	// recent complaint.
	Year int
	// AsOf is the instant SLA breaches are evaluated at. Zero skips them.
	AsOf time.Time
	SLA  map[types.Severity]time.Duration
}

const (
	ratingGood    = "good"
	ratingAverage = "average"
	ratingPoor    = "poor"
)

// Compute builds a fresh MetricsSnapshot. An inconsistent snapshot fails with
// *types.InvalidInputError and no partial result.
func Compute(complaints []types.Complaint, alerts []types.Alert, opts Options) (types.MetricsSnapshot, error) {
	deptOf, err := departmentIndex(opts.Departments)
	if err != nil {
		return types.MetricsSnapshot{}, err
	}
	if err := validateComplaints(complaints, deptOf); err != nil {
		return types.MetricsSnapshot{}, err
	}
	if err := validateAlerts(alerts); err != nil {
		return types.MetricsSnapshot{}, err
	}

	snap := types.MetricsSnapshot{
		Totals:            totals(complaints),
		AvgResolutionDays: avgResolutionDays(complaints),
		Departments:       departments(complaints, opts.Departments, deptOf),
		IssueTypes:        issueTypes(complaints),
		Regions:           regions(complaints),
		Alerts:            summarizeAlerts(alerts, opts),
	}
	snap.TrendYear, snap.MonthlyTrend = monthlyTrend(complaints, opts.Year)
	if len(snap.IssueTypes) > 0 {
		snap.MostReportedIssue = snap.IssueTypes[0].IssueType
	}
	snap.MostAffectedArea = mostAffected(snap.Regions)
	return snap, nil
}

func departmentIndex(depts []types.Department) (map[types.IssueType]int, error) {
	idx := make(map[types.IssueType]int)
	for i, d := range depts {
		for _, it := range d.IssueTypes {
			if prev, dup := idx[it]; dup && prev != i {
				return nil, &types.InvalidInputError{Reason: fmt.Sprintf("issue type %s belongs to both %s and %s", it, depts[prev].Name, d.Name)}
			}
			idx[it] = i
		}
	}
	return idx, nil
}

func validateComplaints(complaints []types.Complaint, deptOf map[types.IssueType]int) error {
	seen := make(map[int64]bool, len(complaints))
	for _, c := range complaints {
		bad := func(reason string) error {
			return &types.InvalidInputError{Entity: "complaint", ID: c.ID, Reason: reason}
		}
		switch {
		case c.ID <= 0:
			return bad("id must be positive")
		case seen[c.ID]:
			return bad("duplicate id")
		case !c.Status.Valid():
			return bad(fmt.Sprintf("unknown status %q", c.Status))
		case c.CreatedAt.IsZero():
			return bad("missing created_at")
		case c.Status == types.StatusResolved && c.ResolvedAt == nil:
			return bad("resolved without resolved_at")
		case c.ResolvedAt != nil && c.ResolvedAt.Before(c.CreatedAt):
			return bad("resolved_at precedes created_at")
		}
		if len(deptOf) > 0 {
			if _, ok := deptOf[c.IssueType]; !ok {
				return bad(fmt.Sprintf("unknown issue type %q", c.IssueType))
			}
		}
		seen[c.ID] = true
	}
	return nil
}

func validateAlerts(alerts []types.Alert) error {
	seen := make(map[int64]bool, len(alerts))
	for _, a := range alerts {
		bad := func(reason string) error {
			return &types.InvalidInputError{Entity: "alert", ID: a.ID, Reason: reason}
		}
		switch {
		case a.ID <= 0:
			return bad("id must be positive")
		case seen[a.ID]:
			return bad("duplicate id")
		case !a.Severity.Valid():
			return bad(fmt.Sprintf("unknown severity %q", a.Severity))
		case a.ReportedAt.IsZero():
			return bad("missing reported_at")
		case a.AcknowledgedAt != nil && a.AcknowledgedAt.Before(a.ReportedAt):
			return bad("acknowledged_at precedes reported_at")
		}
		seen[a.ID] = true
	}
	return nil
}

func totals(complaints []types.Complaint) types.StatusTotals {
	t := types.StatusTotals{Total: len(complaints)}
	for _, c := range complaints {
		switch c.Status {
		case types.StatusPending:
			t.Pending++
		case types.StatusEscalated:
			t.Escalated++
		case types.StatusResolved:
			t.Resolved++
		}
	}
	t.PendingPercent = percentOf(t.Pending, t.Total)
	t.EscalatedPercent = percentOf(t.Escalated, t.Total)
	t.ResolvedPercent = percentOf(t.Resolved, t.Total)
	return t
}

// avgResolutionDays averages over resolved complaints only; open ones are
// excluded rather than counted as zero.
func avgResolutionDays(complaints []types.Complaint) *float64 {
	var sum float64
	n := 0
	for _, c := range complaints {
		if c.Status != types.StatusResolved || c.ResolvedAt == nil {
			continue
		}
		// Summed per item in days; a Duration total overflows past ~292 years.
		sum += c.ResolvedAt.Sub(c.CreatedAt).Hours() / 24
		n++
	}
	if n == 0 {
		return nil
	}
	days := round2(sum / float64(n))
	return &days
}

func departments(complaints []types.Complaint, depts []types.Department, deptOf map[types.IssueType]int) []types.DepartmentMetrics {
	if len(depts) == 0 {
		return nil
	}
	rows := make([]types.DepartmentMetrics, len(depts))
	grouped := make([][]types.Complaint, len(depts))
	for i, d := range depts {
		rows[i].Department = d.Name
	}
	for _, c := range complaints {
		i := deptOf[c.IssueType]
		grouped[i] = append(grouped[i], c)
	}
	for i := range rows {
		row := &rows[i]
		for _, c := range grouped[i] {
			row.Total++
			switch c.Status {
			case types.StatusResolved:
				row.Resolved++
			case types.StatusPending:
				row.Pending++
			case types.StatusEscalated:
				row.Escalated++
			}
		}
		row.AvgResolutionDays = avgResolutionDays(grouped[i])
		if denom := row.Resolved + row.Pending; denom > 0 {
			eff := int(math.Round(float64(row.Resolved) / float64(denom) * 100))
			row.Efficiency = &eff
			row.Rating = efficiencyRating(eff)
		}
	}
	return rows
}

func efficiencyRating(eff int) string {
	switch {
	case eff >= 90:
		return ratingGood
	case eff >= 80:
		return ratingAverage
	default:
		return ratingPoor
	}
}

// monthlyTrend returns twelve buckets, January first, for the chosen year.
func monthlyTrend(complaints []types.Complaint, year int) (int, []types.TrendBucket) {
	if year == 0 {
		var latest time.Time
		for _, c := range complaints {
			if c.CreatedAt.After(latest) {
				latest = c.CreatedAt
			}
		}
		if !latest.IsZero() {
			year = latest.UTC().Year()
		}
	}
	buckets := make([]types.TrendBucket, 12)
	for i := range buckets {
		m := time.Month(i + 1)
		buckets[i] = types.TrendBucket{Month: m, Label: m.String()[:3]}
	}
	for _, c := range complaints {
		created := c.CreatedAt.UTC()
		if created.Year() == year {
			buckets[created.Month()-1].Count++
		}
	}
	return year, buckets
}

// issueTypes orders by count descending, then name. Percent is apportioned
// by largest remainder so the column sums to exactly 100.
func issueTypes(complaints []types.Complaint) []types.IssueTypeShare {
	if len(complaints) == 0 {
		return nil
	}
	byType := make(map[types.IssueType]*types.IssueTypeShare)
	for _, c := range complaints {
		s, ok := byType[c.IssueType]
		if !ok {
			s = &types.IssueTypeShare{IssueType: c.IssueType}
			byType[c.IssueType] = s
		}
		s.Count++
		if c.Status == types.StatusResolved {
			s.Resolved++
		}
	}

	out := make([]types.IssueTypeShare, 0, len(byType))
	for _, s := range byType {
		s.Share = float64(s.Count) / float64(len(complaints)) * 100
		s.CompletionPercent = int(math.Round(float64(s.Resolved) / float64(s.Count) * 100))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IssueType < out[j].IssueType
	})

	counts := make([]int, len(out))
	for i, s := range out {
		counts[i] = s.Count
	}
	for i, p := range apportion(counts, 100) {
		out[i].Percent = p
	}
	return out
}

// apportion splits total across counts proportionally using the largest
// remainder method. Ties in remainder go to the earlier index.
func apportion(counts []int, total int) []int {
	sum := 0
	for _, c := range counts {
		sum += c
	}
	out := make([]int, len(counts))
	if sum == 0 {
		return out
	}
	type rem struct {
		idx  int
		frac int
	}
	rems := make([]rem, len(counts))
	given := 0
	for i, c := range counts {
		out[i] = c * total / sum
		given += out[i]
		rems[i] = rem{idx: i, frac: c * total % sum}
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for k := 0; given < total; k++ {
		out[rems[k].idx]++
		given++
	}
	return out
}

// regions groups by location, case- and whitespace-insensitively. The first
// spelling seen names the region.
func regions(complaints []types.Complaint) []types.RegionMetrics {
	type acc struct {
		row   types.RegionMetrics
		items []types.Complaint
	}
	byKey := make(map[string]*acc)
	var order []string
	for _, c := range complaints {
		key := normalizeArea(c.Location)
		if key == "" {
			continue
		}
		a, ok := byKey[key]
		if !ok {
			a = &acc{row: types.RegionMetrics{Region: strings.Join(strings.Fields(c.Location), " ")}}
			byKey[key] = a
			order = append(order, key)
		}
		a.row.Complaints++
		if c.Status == types.StatusResolved {
			a.row.Resolved++
		} else {
			a.row.Active++
		}
		a.items = append(a.items, c)
	}

	out := make([]types.RegionMetrics, 0, len(order))
	for _, key := range order {
		a := byKey[key]
		a.row.AvgResolutionDays = avgResolutionDays(a.items)
		if a.row.AvgResolutionDays != nil {
			a.row.Rating = resolutionRating(*a.row.AvgResolutionDays)
		}
		out = append(out, a.row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Complaints != out[j].Complaints {
			return out[i].Complaints > out[j].Complaints
		}
		return out[i].Region < out[j].Region
	})
	return out
}

func resolutionRating(days float64) string {
	switch {
	case days <= 3:
		return ratingGood
	case days <= 4:
		return ratingAverage
	default:
		return ratingPoor
	}
}

func mostAffected(regions []types.RegionMetrics) string {
	best := -1
	for i, r := range regions {
		if r.Active == 0 {
			continue
		}
		if best < 0 || r.Active > regions[best].Active ||
			(r.Active == regions[best].Active && r.Region < regions[best].Region) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return regions[best].Region
}

func summarizeAlerts(alerts []types.Alert, opts Options) types.AlertSummary {
	s := types.AlertSummary{
		Total:      len(alerts),
		BySeverity: make(map[types.Severity]int, len(types.Severities)),
	}
	for _, sev := range types.Severities {
		s.BySeverity[sev] = 0
	}
	engaged := make(map[string]bool)
	var responseMins float64
	acked := 0
	for _, a := range alerts {
		s.BySeverity[a.Severity]++
		if !a.Acknowledged {
			s.Active++
			if a.Severity == types.SeverityCritical {
				s.ActiveCritical++
			}
			if a.Department != "" {
				engaged[strings.ToLower(a.Department)] = true
			}
			if !opts.AsOf.IsZero() && alert.Breached(a, opts.AsOf, opts.SLA) {
				s.SLABreaches++
			}
			continue
		}
		if a.AcknowledgedAt != nil {
			responseMins += a.AcknowledgedAt.Sub(a.ReportedAt).Minutes()
			acked++
		}
	}
	s.DepartmentsEngaged = len(engaged)
	if acked > 0 {
		mins := round2(responseMins / float64(acked))
		s.AvgResponseMinutes = &mins
	}
	return s
}

func normalizeArea(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
