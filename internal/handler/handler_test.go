package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/activity"
	"github.com/matthewbaird/civicpulse/internal/alert"
	"github.com/matthewbaird/civicpulse/internal/catalog"
	"github.com/matthewbaird/civicpulse/internal/command"
	"github.com/matthewbaird/civicpulse/internal/complaint"
	"github.com/matthewbaird/civicpulse/internal/desk"
	"github.com/matthewbaird/civicpulse/internal/event"
	"github.com/matthewbaird/civicpulse/internal/types"
)

var testNow = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterAt(t, func() time.Time { return testNow })
}

func newTestRouterAt(t *testing.T, clock func() time.Time) http.Handler {
	t.Helper()
	cat := catalog.Default()
	reg := complaint.NewRegistry(cat, complaint.WithClock(clock))
	esc, err := alert.NewEscalator(cat, alert.WithClock(clock))
	require.NoError(t, err)
	store := activity.NewMemoryStore()
	d := desk.New(reg, esc, cat, command.NewDispatcher(0),
		desk.WithRecorder(event.NewActivityRecorder(store)),
		desk.WithClock(clock))

	r := chi.NewRouter()
	r.Use(Recovery(zap.NewNop()))
	RegisterRoutes(r, d, store, zap.NewNop())
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func submitBody(issue, location string) map[string]string {
	return map[string]string{
		"full_name":   "Ravi Kumar",
		"email":       "ravi@example.com",
		"issue_type":  issue,
		"location":    location,
		"description": issue + " near " + location,
	}
}

func TestComplaints_CreateGetList(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/complaints", submitBody("Pothole", "Old City"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[types.Complaint](t, rec)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, types.StatusPending, created.Status)

	do(t, h, http.MethodPost, "/v1/complaints", submitBody("Garbage", "Gachibowli"))

	rec = do(t, h, http.MethodGet, "/v1/complaints/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Old City", decode[types.Complaint](t, rec).Location)

	rec = do(t, h, http.MethodGet, "/v1/complaints?department=sanitation&order=newest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Complaints []types.Complaint `json:"complaints"`
		TotalCount int               `json:"total_count"`
	}](t, rec)
	require.Equal(t, 1, list.TotalCount)
	assert.Equal(t, types.IssueGarbage, list.Complaints[0].IssueType)

	rec = do(t, h, http.MethodGet, "/v1/complaints?status=closed&since=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode[errorResponse](t, rec)
	assert.Equal(t, types.CodeValidation, errBody.Code)
	assert.Len(t, errBody.Fields, 2)
}

func TestComplaints_Errors(t *testing.T) {
	h := newTestRouter(t)

	body := submitBody("Pothole", "Old City")
	body["email"] = "not-an-email"
	rec := do(t, h, http.MethodPost, "/v1/complaints", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode[errorResponse](t, rec)
	require.Len(t, errBody.Fields, 1)
	assert.Equal(t, "email", errBody.Fields[0].Field)

	rec = do(t, h, http.MethodPost, "/v1/complaints", map[string]string{"nickname": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/v1/complaints/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.CodeNotFound, decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/v1/complaints/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ID", decode[errorResponse](t, rec).Code)
}

func TestComplaints_TransitionRaisesAlert(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/v1/complaints", submitBody("Pothole", "Old City"))

	rec := do(t, h, http.MethodPost, "/v1/complaints/1/transition", map[string]any{
		"status": "Escalated",
		"impact": map[string]any{"hazard": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[desk.TransitionResult](t, rec)
	assert.Equal(t, types.StatusEscalated, res.Complaint.Status)
	require.NotNil(t, res.Alert)
	assert.Equal(t, types.SeverityCritical, res.Alert.Severity)
	assert.Equal(t, "pothole_hazard", res.Alert.RuleID)

	rec = do(t, h, http.MethodPost, "/v1/complaints/1/transition", map[string]any{"status": "escalated"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.CodeInvalidTransition, decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/v1/complaints/1/transition", map[string]any{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/complaints/1/transition", map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[desk.TransitionResult](t, rec)
	require.NotNil(t, resolved.Complaint.ResolvedAt)
	assert.Nil(t, resolved.Alert)
}

func TestAlerts_RaiseListAcknowledge(t *testing.T) {
	h := newTestRouter(t)
	source := map[string]any{"area": "Banjara Hills", "issue_type": "PowerOutage", "impact": map[string]any{"affected_households": 800}}

	rec := do(t, h, http.MethodPost, "/v1/alerts", source)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[types.Alert](t, rec)
	assert.Equal(t, "Electricity", a.Department)
	assert.Equal(t, types.SeverityCritical, a.Severity)

	rec = do(t, h, http.MethodPost, "/v1/alerts", source)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.CodeDuplicateAlert, decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/v1/alerts?acknowledged=false&severity=critical", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Alerts []types.Alert `json:"alerts"`
	}](t, rec)
	assert.Len(t, list.Alerts, 1)

	rec = do(t, h, http.MethodPost, "/v1/alerts/1/acknowledge", nil, "X-Actor", "electricity-desk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[types.Alert](t, rec).Acknowledged)

	rec = do(t, h, http.MethodPost, "/v1/alerts/1/acknowledge", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.CodeAlreadyAcknowledged, decode[errorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/v1/alerts/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/alerts?severity=urgent&acknowledged=maybe", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[errorResponse](t, rec).Fields, 2)

	rec = do(t, h, http.MethodPost, "/v1/alerts", map[string]any{"area": "", "issue_type": "Pothole"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlerts_TimeSinceAndBreach(t *testing.T) {
	now := testNow
	h := newTestRouterAt(t, func() time.Time { return now })

	source := map[string]any{"area": "Kukatpally", "issue_type": "WaterPipeline", "impact": map[string]any{"scope": "area"}}
	rec := do(t, h, http.MethodPost, "/v1/alerts", source)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	type view struct {
		types.Alert
		TimeSince   string `json:"time_since"`
		SLABreached bool   `json:"sla_breached"`
	}
	created := decode[view](t, rec)
	assert.Equal(t, "Just now", created.TimeSince)
	assert.False(t, created.SLABreached)

	now = testNow.Add(45 * time.Minute)
	rec = do(t, h, http.MethodGet, "/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Alerts []view `json:"alerts"`
	}](t, rec)
	require.Len(t, list.Alerts, 1)
	assert.Equal(t, "45 min ago", list.Alerts[0].TimeSince)
	assert.True(t, list.Alerts[0].SLABreached, "critical past its 30m deadline")

	rec = do(t, h, http.MethodPost, "/v1/alerts/1/acknowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acked := decode[view](t, rec)
	assert.True(t, acked.Acknowledged)
	assert.False(t, acked.SLABreached)
}

func TestDashboard_MetricsAndDepartments(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/v1/complaints", submitBody("Pothole", "Old City"))
	do(t, h, http.MethodPost, "/v1/complaints", submitBody("Pothole", "Old City"))
	do(t, h, http.MethodPost, "/v1/complaints/1/transition", map[string]any{"status": "resolved"})

	rec := do(t, h, http.MethodGet, "/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[types.MetricsSnapshot](t, rec)
	assert.Equal(t, 2, snap.Totals.Total)
	assert.Equal(t, 50.0, snap.Totals.ResolvedPercent)
	assert.Equal(t, 2024, snap.TrendYear)
	assert.Equal(t, types.IssuePothole, snap.MostReportedIssue)

	rec = do(t, h, http.MethodGet, "/v1/metrics?year=2023", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2023, decode[types.MetricsSnapshot](t, rec).TrendYear)

	rec = do(t, h, http.MethodGet, "/v1/metrics?year=last", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/departments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	depts := decode[struct {
		Departments []types.Department `json:"departments"`
	}](t, rec)
	require.Len(t, depts.Departments, 4)
	assert.Equal(t, "Roads", depts.Departments[0].Name)
}

func TestActivity_JournalSummaryAndSearch(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/v1/complaints", submitBody("WaterPipeline", "Mehdipatnam"), "X-Actor", "citizen-portal")
	do(t, h, http.MethodPost, "/v1/complaints/1/transition", map[string]any{"status": "escalated"}, "X-Actor", "ops")

	rec := do(t, h, http.MethodGet, "/v1/activity/complaint/1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	feed := decode[struct {
		Activities []types.ActivityEntry `json:"activities"`
		TotalCount int                   `json:"total_count"`
	}](t, rec)
	require.Equal(t, 3, feed.TotalCount, "submitted, transitioned, alert raised")
	actors := map[string]bool{}
	for _, e := range feed.Activities {
		actors[e.Actor] = true
	}
	assert.True(t, actors["citizen-portal"])
	assert.True(t, actors["ops"])

	rec = do(t, h, http.MethodGet, "/v1/activity/complaint/1?min_weight=extreme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/activity/summary/department/Water", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[activity.Summary](t, rec)
	assert.Positive(t, summary.TotalEntries)

	rec = do(t, h, http.MethodPost, "/v1/activity/search", map[string]any{"query": "mehdipatnam"})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[struct {
		TotalCount int `json:"total_count"`
	}](t, rec)
	assert.Positive(t, results.TotalCount)

	rec = do(t, h, http.MethodPost, "/v1/activity/search", map[string]any{"query": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
	status []int
}

func (o *recordingObserver) ObserveHTTP(_ string, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, route)
	o.status = append(o.status, status)
}

func TestMiddleware_LoggingAndRecovery(t *testing.T) {
	obs := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(Logging(zap.NewNop(), obs), Recovery(zap.NewNop()))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec := do(t, r, http.MethodGet, "/items/7", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode[errorResponse](t, rec).Code)

	assert.Equal(t, []string{"/items/{id}", "/boom"}, obs.routes)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusInternalServerError}, obs.status)
}
