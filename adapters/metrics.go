package adapters

import (
	"errors"
	"strings"
	"time"

	"mobilus-to-mqtt/application"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetrics struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	devices         prometheus.Gauge
	commandsTotal   *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobilus_refresh_total",
				Help: "Gateway state refresh cycles by result.",
			},
			[]string{"result"},
		),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mobilus_refresh_duration_seconds",
			Help:    "Duration of gateway state refresh cycles.",
			Buckets: prometheus.DefBuckets,
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mobilus_devices",
			Help: "Devices in the last successful snapshot.",
		}),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobilus_commands_total",
				Help: "Commands sent to the gateway by command and result.",
			},
			[]string{"command", "result"},
		),
	}
	reg.MustRegister(m.refreshTotal, m.refreshDuration, m.devices, m.commandsTotal)
	return m
}

func (m *PrometheusMetrics) ObserveRefresh(duration time.Duration, devices int, err error) {
	m.refreshDuration.Observe(duration.Seconds())
	switch {
	case err == nil:
		m.refreshTotal.WithLabelValues("success").Inc()
		m.devices.Set(float64(devices))
	case errors.Is(err, application.ErrEmptyResponse):
		m.refreshTotal.WithLabelValues("empty").Inc()
	default:
		m.refreshTotal.WithLabelValues("error").Inc()
	}
}

func (m *PrometheusMetrics) ObserveCommand(value string, err error) {
	command := value
	if strings.HasSuffix(value, "%") {
		command = "POSITION"
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.commandsTotal.WithLabelValues(command, result).Inc()
}

var (
	_ application.CoordinatorMetrics = &PrometheusMetrics{}
	_ application.ControllerMetrics  = &PrometheusMetrics{}
)
