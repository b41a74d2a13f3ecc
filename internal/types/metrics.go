package types

import "time"

// MetricsSnapshot is derived from a complaint/alert snapshot on every query.
// It is never stored or mutated after construction.
type MetricsSnapshot struct {
	Totals            StatusTotals        `json:"totals"`
	AvgResolutionDays *float64            `json:"avg_resolution_days"`
	Departments       []DepartmentMetrics `json:"departments"`
	TrendYear         int                 `json:"trend_year"`
	MonthlyTrend      []TrendBucket       `json:"monthly_trend"`
	IssueTypes        []IssueTypeShare    `json:"issue_types"`
	Regions           []RegionMetrics     `json:"regions"`
	MostReportedIssue IssueType           `json:"most_reported_issue,omitempty"`
	MostAffectedArea  string              `json:"most_affected_area,omitempty"`
	Alerts            AlertSummary        `json:"alerts"`
}

// StatusTotals counts complaints per status. Percentages are of Total.
type StatusTotals struct {
	Total            int     `json:"total"`
	Pending          int     `json:"pending"`
	Escalated        int     `json:"escalated"`
	Resolved         int     `json:"resolved"`
	PendingPercent   float64 `json:"pending_percent"`
	EscalatedPercent float64 `json:"escalated_percent"`
	ResolvedPercent  float64 `json:"resolved_percent"`
}

// DepartmentMetrics is one row of the department performance table.
// Efficiency is nil when the department has no resolved or pending work.
type DepartmentMetrics struct {
	Department        string   `json:"department"`
	Total             int      `json:"total"`
	Resolved          int      `json:"resolved"`
	Pending           int      `json:"pending"`
	Escalated         int      `json:"escalated"`
	AvgResolutionDays *float64 `json:"avg_resolution_days"`
	Efficiency        *int     `json:"efficiency"`
	Rating            string   `json:"rating,omitempty"` // "good", "average", "poor"
}

// TrendBucket is one calendar month of the trend series.
type TrendBucket struct {
	Month time.Month `json:"-"`
	Label string     `json:"month"`
	Count int        `json:"count"`
}

// IssueTypeShare is an issue type's slice of the complaint total. Percent is
// an integer apportioned so the column sums to exactly 100.
type IssueTypeShare struct {
	IssueType         IssueType `json:"issue_type"`
	Count             int       `json:"count"`
	Share             float64   `json:"share"`
	Percent           int       `json:"percent"`
	Resolved          int       `json:"resolved"`
	CompletionPercent int       `json:"completion_percent"`
}

// RegionMetrics groups complaints by reported location.
type RegionMetrics struct {
	Region            string   `json:"region"`
	Complaints        int      `json:"complaints"`
	Resolved          int      `json:"resolved"`
	Active            int      `json:"active"`
	AvgResolutionDays *float64 `json:"avg_resolution_days"`
	Rating            string   `json:"rating,omitempty"`
}

// AlertSummary backs the alert dashboard header cards.
type AlertSummary struct {
	Total              int              `json:"total"`
	Active             int              `json:"active"`
	ActiveCritical     int              `json:"active_critical"`
	BySeverity         map[Severity]int `json:"by_severity"`
	DepartmentsEngaged int              `json:"departments_engaged"`
	AvgResponseMinutes *float64         `json:"avg_response_minutes"`
	SLABreaches        int              `json:"sla_breaches"`
}
