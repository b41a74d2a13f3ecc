package activity

import (
	"time"

	"github.com/matthewbaird/civicpulse/internal/types"
)

// CategorySummary aggregates one category of an entity's journal.
type CategorySummary struct {
	Category    string         `json:"category"`
	Count       int            `json:"count"`
	ByWeight    map[string]int `json:"by_weight"`
	ByEventType map[string]int `json:"by_event_type"`
	Trend       string         `json:"trend"` // "rising", "falling", "stable"
}

// Summary is a pre-aggregated view of an entity's activity over a window.
type Summary struct {
	EntityType    string                     `json:"entity_type"`
	EntityID      string                     `json:"entity_id"`
	Since         time.Time                  `json:"since"`
	Until         time.Time                  `json:"until"`
	TotalEntries  int                        `json:"total_entries"`
	Categories    map[string]CategorySummary `json:"categories"`
	FirstOccurred *time.Time                 `json:"first_occurred,omitempty"`
	LastOccurred  *time.Time                 `json:"last_occurred,omitempty"`
	HighestWeight string                     `json:"highest_weight,omitempty"`
}

// Summarize produces a Summary from a set of activity entries within a time window.
func Summarize(entries []types.ActivityEntry, entityType, entityID string, since, until time.Time) Summary {
	categories := make(map[string]*CategorySummary)
	var first, last time.Time
	highest := ""

	for _, entry := range entries {
		cs, exists := categories[entry.Category]
		if !exists {
			cs = &CategorySummary{
				Category:    entry.Category,
				ByWeight:    make(map[string]int),
				ByEventType: make(map[string]int),
			}
			categories[entry.Category] = cs
		}
		cs.Count++
		cs.ByWeight[entry.Weight]++
		cs.ByEventType[entry.EventType]++

		if first.IsZero() || entry.OccurredAt.Before(first) {
			first = entry.OccurredAt
		}
		if entry.OccurredAt.After(last) {
			last = entry.OccurredAt
		}
		if highest == "" || WeightSeverity(entry.Weight) < WeightSeverity(highest) {
			highest = entry.Weight
		}
	}

	result := make(map[string]CategorySummary, len(categories))
	for cat, cs := range categories {
		cs.Trend = computeTrend(entries, cat, since, until)
		result[cat] = *cs
	}

	s := Summary{
		EntityType:    entityType,
		EntityID:      entityID,
		Since:         since,
		Until:         until,
		TotalEntries:  len(entries),
		Categories:    result,
		HighestWeight: highest,
	}
	if !first.IsZero() {
		s.FirstOccurred = &first
		s.LastOccurred = &last
	}
	return s
}

// computeTrend compares entry volume in the first vs second half of the window.
func computeTrend(entries []types.ActivityEntry, category string, since, until time.Time) string {
	mid := since.Add(until.Sub(since) / 2)
	var firstHalf, secondHalf int
	for _, e := range entries {
		if e.Category != category {
			continue
		}
		if e.OccurredAt.Before(mid) {
			firstHalf++
		} else {
			secondHalf++
		}
	}
	if secondHalf > firstHalf+1 {
		return "rising"
	}
	if firstHalf > secondHalf+1 {
		return "falling"
	}
	return "stable"
}
