// Package observability wires the hub's Prometheus metrics and
// OpenTelemetry tracing.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/metro-datahub/model"
)

// HubCollector bundles the hub's Prometheus metrics. It satisfies the
// hub package's Metrics interface so the dispatcher, interlock, and
// workers can drive the values directly.
type HubCollector struct {
	gatherer prometheus.Gatherer

	Requests         *prometheus.CounterVec
	RequestDurations *prometheus.HistogramVec

	InterlockTransitions *prometheus.CounterVec

	LineBusVoltage   *prometheus.GaugeVec
	LineTotalCurrent *prometheus.GaugeVec
	LineTrainCount   *prometheus.GaugeVec

	ChannelOnline *prometheus.GaugeVec
}

// NewHubCollector registers the hub metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewHubCollector(reg prometheus.Registerer) (*HubCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_requests_total",
		Help: "Total number of dispatched requests, labeled by wire type and result.",
	}, []string{"type", "result"})
	requests, err := registerCounterVec(reg, requests, "datahub_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datahub_request_duration_seconds",
		Help:    "Request handling latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"type"})
	durations, err = registerHistogramVec(reg, durations, "datahub_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_powerlink_transitions_total",
		Help: "Applied power-link interlock transitions, labeled by ingestion path and action.",
	}, []string{"path", "action"})
	transitions, err = registerCounterVec(reg, transitions, "datahub_powerlink_transitions_total")
	if err != nil {
		return nil, err
	}

	busVoltage, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datahub_line_bus_voltage",
		Help: "Mean bus voltage of the trains on a line.",
	}, []string{"line"}), "datahub_line_bus_voltage")
	if err != nil {
		return nil, err
	}
	totalCurrent, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datahub_line_total_current",
		Help: "Summed current draw of the trains on a line.",
	}, []string{"line"}), "datahub_line_total_current")
	if err != nil {
		return nil, err
	}
	trainCount, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datahub_line_train_count",
		Help: "Number of trains on a line.",
	}, []string{"line"}), "datahub_line_train_count")
	if err != nil {
		return nil, err
	}

	online, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datahub_channel_online",
		Help: "Whether a snapshot channel's last fetch is within the liveness timeout (1) or not (0).",
	}, []string{"channel"}), "datahub_channel_online")
	if err != nil {
		return nil, err
	}

	return &HubCollector{
		gatherer:             gatherer,
		Requests:             requests,
		RequestDurations:     durations,
		InterlockTransitions: transitions,
		LineBusVoltage:       busVoltage,
		LineTotalCurrent:     totalCurrent,
		LineTrainCount:       trainCount,
		ChannelOnline:        online,
	}, nil
}

// ObserveRequest records one dispatched request.
func (c *HubCollector) ObserveRequest(reqType, result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.Requests != nil {
		c.Requests.WithLabelValues(reqType, result).Inc()
	}
	if c.RequestDurations != nil {
		c.RequestDurations.WithLabelValues(reqType).Observe(elapsed.Seconds())
	}
}

// InterlockTransition records one applied power-link transition.
func (c *HubCollector) InterlockTransition(path, action string) {
	if c == nil || c.InterlockTransitions == nil {
		return
	}
	c.InterlockTransitions.WithLabelValues(path, action).Inc()
}

// SetLineTotals publishes the latest per-line aggregate.
func (c *HubCollector) SetLineTotals(t model.LineTotals) {
	if c == nil {
		return
	}
	line := string(t.Line)
	if c.LineBusVoltage != nil {
		c.LineBusVoltage.WithLabelValues(line).Set(t.BusVoltage)
	}
	if c.LineTotalCurrent != nil {
		c.LineTotalCurrent.WithLabelValues(line).Set(t.TotalCurrent)
	}
	if c.LineTrainCount != nil {
		c.LineTrainCount.WithLabelValues(line).Set(float64(t.TrainCount))
	}
}

// SetChannelOnline publishes a channel's liveness flag.
func (c *HubCollector) SetChannelOnline(channel string, online bool) {
	if c == nil || c.ChannelOnline == nil {
		return
	}
	v := 0.0
	if online {
		v = 1.0
	}
	c.ChannelOnline.WithLabelValues(channel).Set(v)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *HubCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
