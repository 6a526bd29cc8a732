package nodelock

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Session load results.
const (
	LoadValid   = "valid"
	LoadInvalid = "invalid"
	LoadAbsent  = "absent"
	LoadError   = "error"
)

// Metrics holds the licensing collectors. A nil *Metrics records nothing.
type Metrics struct {
	sessionLoads  *prometheus.CounterVec
	featureChecks *prometheus.CounterVec
	issued        prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cnw_nodelock",
			Name:      "session_loads_total",
			Help:      "License loads performed by sessions, by result.",
		}, []string{"result"}),
		featureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cnw_nodelock",
			Name:      "feature_checks_total",
			Help:      "Feature availability checks, by feature id and outcome.",
		}, []string{"feature", "available"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cnw_nodelock",
			Name:      "licenses_issued_total",
			Help:      "Licenses signed by the issuer.",
		}),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.sessionLoads, m.featureChecks, m.issued}
}

func (m *Metrics) sessionLoaded(result string) {
	if m == nil {
		return
	}
	m.sessionLoads.WithLabelValues(result).Inc()
}

func (m *Metrics) featureChecked(id int, available bool) {
	if m == nil {
		return
	}
	m.featureChecks.WithLabelValues(strconv.Itoa(id), strconv.FormatBool(available)).Inc()
}

func (m *Metrics) licenseIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}
