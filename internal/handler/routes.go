package handler

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/activity"
	"github.com/matthewbaird/civicpulse/internal/desk"
)

// RegisterRoutes mounts the /v1 API on r.
func RegisterRoutes(r chi.Router, d *desk.Desk, store activity.Store, logger *zap.Logger) {
	ch := NewComplaintHandler(d, logger)
	ah := NewAlertHandler(d, logger)
	dh := NewDashboardHandler(d, logger)
	acth := NewActivityHandler(store, d.Now, logger)

	r.Route("/v1", func(r chi.Router) {
		r.Use(Actor)

		r.Post("/complaints", ch.CreateComplaint)
		r.Get("/complaints", ch.ListComplaints)
		r.Get("/complaints/{id}", ch.GetComplaint)
		r.Post("/complaints/{id}/transition", ch.TransitionComplaint)

		r.Post("/alerts", ah.RaiseAlert)
		r.Get("/alerts", ah.ListAlerts)
		r.Get("/alerts/{id}", ah.GetAlert)
		r.Post("/alerts/{id}/acknowledge", ah.AcknowledgeAlert)

		r.Get("/metrics", dh.GetMetrics)
		r.Get("/departments", dh.ListDepartments)

		r.Get("/activity/summary/{entity_type}/{entity_id}", acth.HandleGetActivitySummary)
		r.Post("/activity/search", acth.HandleSearchActivity)
		r.Get("/activity/{entity_type}/{entity_id}", acth.HandleGetEntityActivity)
	})
}
