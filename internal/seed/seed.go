// Package seed loads the demo complaints and alerts shown on a fresh
// dashboard. Timestamps are relative to the supplied clock so ages and SLA
// state look the same whenever the service starts.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/matthewbaird/civicpulse/internal/alert"
	"github.com/matthewbaird/civicpulse/internal/complaint"
	"github.com/matthewbaird/civicpulse/internal/event"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// DepartmentLookup resolves an issue type's owning department.
type DepartmentLookup interface {
	DepartmentFor(it types.IssueType) (string, bool)
}

type complaintSeed struct {
	issue       types.IssueType
	description string
	location    string
	name        string
	status      types.Status
	age         time.Duration // since submission
	handled     time.Duration // submission to escalation or resolution
}

const day = 24 * time.Hour

var complaintSeeds = []complaintSeed{
	{types.IssuePothole, "Large pothole near main road causing traffic issues", "Downtown Main Street", "John Doe", types.StatusPending, 2 * day, 0},
	{types.IssueStreetlight, "Streetlight not working for past 3 days", "North District Park", "Sarah Wilson", types.StatusResolved, 3 * day, 2 * day},
	{types.IssueGarbage, "Garbage overflow from public bin", "Central Market Area", "Mike Johnson", types.StatusEscalated, 1 * day, 6 * time.Hour},
	{types.IssueElectricity, "Power outage in residential area", "East Residential Zone", "Emily Chen", types.StatusPending, 1 * day, 0},
	{types.IssuePothole, "Multiple small potholes on service road", "West Industrial Area", "Robert Brown", types.StatusResolved, 4 * day, 3 * day},
	{types.IssueWaterPipeline, "Low water pressure since morning", "Gachibowli", "Priya Reddy", types.StatusResolved, 40 * day, 4 * day},
	{types.IssueGarbage, "Bins not cleared for a week", "Old City", "Arjun Rao", types.StatusResolved, 70 * day, 2 * day},
	{types.IssuePothole, "Road caved in after heavy rain", "Old City", "Fatima Begum", types.StatusResolved, 95 * day, 5 * day},
	{types.IssuePowerOutage, "Transformer failure, whole lane dark", "Mehdipatnam", "Kiran Kumar", types.StatusResolved, 120 * day, 1 * day},
	{types.IssueStreetlight, "Streetlights flickering near bus stop", "Secunderabad", "Lakshmi Devi", types.StatusPending, 6 * day, 0},
	{types.IssueWaterPipeline, "Pipeline leak flooding the footpath", "Banjara Hills", "Sameer Khan", types.StatusEscalated, 8 * day, 1 * day},
	{types.IssueGarbage, "Construction debris dumped on the roadside", "Banjara Hills", "Anita Sharma", types.StatusResolved, 150 * day, 3 * day},
}

type alertSeed struct {
	area        string
	issue       types.IssueType
	department  string
	description string
	age         time.Duration
	severity    types.Severity
	ruleID      string
	impact      types.Impact
	ackAfter    time.Duration // zero: unacknowledged
	coordinates types.Coordinates
}

var alertSeeds = []alertSeed{
	{"Old City", types.IssuePothole, "Roads", "Large pothole causing traffic congestion and vehicle damage",
		10 * time.Minute, types.SeverityCritical, "pothole_hazard", types.Impact{Hazard: true, Scope: "area"}, 0, types.Coordinates{Lat: 17.3850, Lng: 78.4867}},
	{"Mehdipatnam", types.IssuePowerOutage, "Electricity", "Complete power outage affecting 500+ households",
		25 * time.Minute, types.SeverityCritical, "power_outage_mass", types.Impact{AffectedHouseholds: 500, Scope: "area"}, 0, types.Coordinates{Lat: 17.4000, Lng: 78.4500}},
	{"Banjara Hills", types.IssueGarbage, "Sanitation", "Garbage accumulation due to truck breakdown",
		45 * time.Minute, types.SeverityModerate, "garbage_overflow_area", types.Impact{Scope: "area"}, 0, types.Coordinates{Lat: 17.4250, Lng: 78.4400}},
	{"Gachibowli", types.IssueWaterPipeline, "Water", "Major water pipeline burst near tech park",
		15 * time.Minute, types.SeverityCritical, "water_main_burst", types.Impact{Scope: "area"}, 0, types.Coordinates{Lat: 17.4400, Lng: 78.3500}},
	{"Secunderabad", types.IssueStreetlight, "Electricity", "Multiple streetlights not working on main road",
		60 * time.Minute, types.SeverityLow, "streetlight_single", types.Impact{AffectedHouseholds: 6}, 28 * time.Minute, types.Coordinates{Lat: 17.4500, Lng: 78.5000}},
}

// Complaints builds the demo complaints as of now.
func Complaints(now time.Time) []types.Complaint {
	out := make([]types.Complaint, len(complaintSeeds))
	for i, s := range complaintSeeds {
		created := now.Add(-s.age)
		c := types.Complaint{
			ID:          int64(i) + 1,
			IssueType:   s.issue,
			Description: s.description,
			Location:    s.location,
			Reporter:    types.Reporter{Name: s.name, Email: emailFor(s.name)},
			Status:      s.status,
			CreatedAt:   created,
		}
		handled := created.Add(s.handled)
		switch s.status {
		case types.StatusEscalated:
			c.EscalatedAt = &handled
		case types.StatusResolved:
			c.ResolvedAt = &handled
		}
		out[i] = c
	}
	return out
}

// Alerts builds the demo alerts as of now.
func Alerts(now time.Time) []types.Alert {
	out := make([]types.Alert, len(alertSeeds))
	for i, s := range alertSeeds {
		a := types.Alert{
			ID:          int64(i) + 1,
			Area:        s.area,
			IssueType:   s.issue,
			Department:  s.department,
			Description: s.description,
			Severity:    s.severity,
			ReportedAt:  now.Add(-s.age),
			Coordinates: s.coordinates,
			Impact:      s.impact,
			RuleID:      s.ruleID,
		}
		if s.ackAfter > 0 {
			at := a.ReportedAt.Add(s.ackAfter)
			a.Acknowledged = true
			a.AcknowledgedAt = &at
		}
		out[i] = a
	}
	return out
}

// Load restores the demo data into an empty registry and escalator and, when
// rec is non-nil, journals the matching domain events.
func Load(ctx context.Context, reg *complaint.Registry, esc *alert.Escalator, depts DepartmentLookup, rec event.Recorder, now time.Time) error {
	complaints := Complaints(now)
	alerts := Alerts(now)
	if err := reg.Restore(complaints); err != nil {
		return fmt.Errorf("seeding complaints: %w", err)
	}
	if err := esc.Restore(alerts); err != nil {
		return fmt.Errorf("seeding alerts: %w", err)
	}
	if rec == nil {
		return nil
	}

	ctx = event.WithActor(ctx, "seed")
	for _, evt := range journal(complaints, alerts, depts) {
		if err := rec.Record(ctx, evt); err != nil {
			return fmt.Errorf("journaling seed event %s: %w", evt.EventType, err)
		}
	}
	return nil
}

func journal(complaints []types.Complaint, alerts []types.Alert, depts DepartmentLookup) []event.DomainEvent {
	var events []event.DomainEvent
	for _, c := range complaints {
		dept, _ := depts.DepartmentFor(c.IssueType)
		events = append(events, event.NewComplaintSubmitted(event.ComplaintSubmittedPayload{
			ComplaintID: c.ID,
			IssueType:   c.IssueType,
			Department:  dept,
			Location:    c.Location,
			Reporter:    c.Reporter.Name,
			SubmittedAt: c.CreatedAt,
		}))
		var changed *time.Time
		switch c.Status {
		case types.StatusEscalated:
			changed = c.EscalatedAt
		case types.StatusResolved:
			changed = c.ResolvedAt
		}
		if changed != nil {
			events = append(events, event.NewComplaintTransitioned(event.ComplaintTransitionedPayload{
				ComplaintID: c.ID,
				From:        types.StatusPending,
				To:          c.Status,
				Department:  dept,
				ChangedAt:   *changed,
			}))
		}
	}
	for _, a := range alerts {
		events = append(events, event.NewAlertRaised(event.AlertRaisedPayload{
			AlertID:     a.ID,
			Area:        a.Area,
			IssueType:   a.IssueType,
			Department:  a.Department,
			Severity:    a.Severity,
			RuleID:      a.RuleID,
			ComplaintID: a.ComplaintID,
			ReportedAt:  a.ReportedAt,
		}))
		if a.AcknowledgedAt != nil {
			events = append(events, event.NewAlertAcknowledged(event.AlertAcknowledgedPayload{
				AlertID:         a.ID,
				Department:      a.Department,
				Severity:        a.Severity,
				AcknowledgedAt:  *a.AcknowledgedAt,
				ResponseMinutes: a.AcknowledgedAt.Sub(a.ReportedAt).Minutes(),
			}))
		}
	}
	return events
}

func emailFor(name string) string {
	local := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r == ' ':
			local = append(local, '.')
		case r >= 'A' && r <= 'Z':
			local = append(local, r+('a'-'A'))
		default:
			local = append(local, r)
		}
	}
	return string(local) + "@example.com"
}
