package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resultados de un reporte de acceso denegado.
const (
	ReportSent    = "enviado"
	ReportFailed  = "fallido"
	ReportDropped = "descartado"
)

// Metrics agrupa los colectores del portal en un registry propio.
type Metrics struct {
	registry *prometheus.Registry

	guardDecisions  *prometheus.CounterVec
	securityReports *prometheus.CounterVec
	httpRequests    *prometheus.HistogramVec
}

// New crea y registra los colectores.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planchoque",
			Name:      "guard_decisions_total",
			Help:      "Decisiones del guard por estado final.",
		}, []string{"state"}),
		securityReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planchoque",
			Name:      "security_reports_total",
			Help:      "Envíos al registro de accesos no autorizados por resultado.",
		}, []string{"result"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "planchoque",
			Name:      "http_request_duration_seconds",
			Help:      "Duración de requests HTTP.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.guardDecisions,
		m.securityReports,
		m.httpRequests,
	)
	return m
}

// GuardDecision cuenta una decisión del guard.
func (m *Metrics) GuardDecision(state string) {
	m.guardDecisions.WithLabelValues(state).Inc()
}

// SecurityReport cuenta el resultado de un envío remoto.
func (m *Metrics) SecurityReport(result string) {
	m.securityReports.WithLabelValues(result).Inc()
}

// ObserveRequest registra la duración de un request.
func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}

// Handler expone el registry en formato Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
