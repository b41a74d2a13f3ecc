package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewbaird/civicpulse/internal/types"
)

// SnapshotFunc produces the current domain metrics.
type SnapshotFunc func() (types.MetricsSnapshot, error)

// SnapshotCollector turns a fresh MetricsSnapshot into gauges on every
// scrape, so Prometheus sees exactly what the dashboard sees.
type SnapshotCollector struct {
	source SnapshotFunc

	complaints     *prometheus.Desc
	deptEfficiency *prometheus.Desc
	deptComplaints *prometheus.Desc
	alertsActive   *prometheus.Desc
	slaBreaches    *prometheus.Desc
	scrapeErrors   prometheus.Counter
}

// NewSnapshotCollector wraps source.
func NewSnapshotCollector(source SnapshotFunc) *SnapshotCollector {
	return &SnapshotCollector{
		source: source,
		complaints: prometheus.NewDesc(namespace+"_complaints",
			"Complaints by status", []string{"status"}, nil),
		deptEfficiency: prometheus.NewDesc(namespace+"_department_efficiency_percent",
			"Resolved share of resolved+pending complaints per department", []string{"department"}, nil),
		deptComplaints: prometheus.NewDesc(namespace+"_department_complaints",
			"Complaints per department and status", []string{"department", "status"}, nil),
		alertsActive: prometheus.NewDesc(namespace+"_alerts_active",
			"Unacknowledged alerts", nil, nil),
		slaBreaches: prometheus.NewDesc(namespace+"_alerts_sla_breached",
			"Unacknowledged alerts past their acknowledgement deadline", nil, nil),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_errors_total",
			Help:      "Failed metric snapshot computations",
		}),
	}
}

// Describe implements prometheus.Collector.
func (s *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.complaints
	ch <- s.deptEfficiency
	ch <- s.deptComplaints
	ch <- s.alertsActive
	ch <- s.slaBreaches
	s.scrapeErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (s *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	defer s.scrapeErrors.Collect(ch)

	snap, err := s.source()
	if err != nil {
		s.scrapeErrors.Inc()
		return
	}

	ch <- prometheus.MustNewConstMetric(s.complaints, prometheus.GaugeValue, float64(snap.Totals.Pending), string(types.StatusPending))
	ch <- prometheus.MustNewConstMetric(s.complaints, prometheus.GaugeValue, float64(snap.Totals.Escalated), string(types.StatusEscalated))
	ch <- prometheus.MustNewConstMetric(s.complaints, prometheus.GaugeValue, float64(snap.Totals.Resolved), string(types.StatusResolved))

	for _, d := range snap.Departments {
		if d.Efficiency != nil {
			ch <- prometheus.MustNewConstMetric(s.deptEfficiency, prometheus.GaugeValue, float64(*d.Efficiency), d.Department)
		}
		ch <- prometheus.MustNewConstMetric(s.deptComplaints, prometheus.GaugeValue, float64(d.Pending), d.Department, string(types.StatusPending))
		ch <- prometheus.MustNewConstMetric(s.deptComplaints, prometheus.GaugeValue, float64(d.Escalated), d.Department, string(types.StatusEscalated))
		ch <- prometheus.MustNewConstMetric(s.deptComplaints, prometheus.GaugeValue, float64(d.Resolved), d.Department, string(types.StatusResolved))
	}

	ch <- prometheus.MustNewConstMetric(s.alertsActive, prometheus.GaugeValue, float64(snap.Alerts.Active))
	ch <- prometheus.MustNewConstMetric(s.slaBreaches, prometheus.GaugeValue, float64(snap.Alerts.SLABreaches))
}
