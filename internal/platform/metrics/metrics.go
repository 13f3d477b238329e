// Package metrics registers the application's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	IdentificationsTotal prometheus.Counter
	EnrollmentsTotal     prometheus.Counter
	DisclosuresTotal     prometheus.Counter
	AccessDenialsTotal   prometheus.Counter
	QualityRejections    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		IdentificationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medid_identifications_total",
			Help: "Total number of identification attempts",
		}),
		EnrollmentsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medid_enrollments_total",
			Help: "Total number of enrollment attempts",
		}),
		DisclosuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medid_disclosures_total",
			Help: "Total number of granted disclosures",
		}),
		AccessDenialsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medid_access_denials_total",
			Help: "Total number of denied disclosure attempts",
		}),
		QualityRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medid_quality_rejections_total",
			Help: "Total number of samples rejected by the quality gate",
		}),
	}
}
