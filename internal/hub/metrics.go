package hub

import (
	"time"

	"github.com/signalsfoundry/metro-datahub/model"
)

// Metrics receives hub events for export. The observability package
// provides the Prometheus-backed implementation; a no-op stands in when
// none is configured.
type Metrics interface {
	// ObserveRequest records one dispatched request with its wire type,
	// outcome (success, failed, deny), and handling duration.
	ObserveRequest(reqType, result string, elapsed time.Duration)

	// InterlockTransition records one applied power-link transition,
	// labeled by ingestion path (push, poll) and action (stop, release).
	InterlockTransition(path, action string)

	// SetLineTotals publishes the latest per-line electrical aggregate.
	SetLineTotals(t model.LineTotals)

	// SetChannelOnline publishes a channel's liveness flag.
	SetChannelOnline(channel string, online bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string, time.Duration) {}
func (noopMetrics) InterlockTransition(string, string)           {}
func (noopMetrics) SetLineTotals(model.LineTotals)               {}
func (noopMetrics) SetChannelOnline(string, bool)                {}
