// Package hub implements the data-plane hub of the metro digital twin:
// a UDP request dispatcher over a shared snapshot cache, a power-link
// safety interlock, and the periodic totals/watcher workers.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/metro-datahub/internal/config"
	"github.com/signalsfoundry/metro-datahub/internal/engine"
	"github.com/signalsfoundry/metro-datahub/internal/logging"
	"github.com/signalsfoundry/metro-datahub/internal/udp"
	"github.com/signalsfoundry/metro-datahub/internal/wire"
)

// powerLinkQuery is the poll-path round-trip request body.
const powerLinkQuery = `{"railway": null}`

// engineRef holds the simulation-engine reference shared by the cache,
// interlock, and aggregator. The engine may be attached after the hub
// starts; until then all consumers see nil and no-op.
type engineRef struct {
	mu  sync.RWMutex
	eng engine.Engine
}

func newEngineRef(eng engine.Engine) *engineRef {
	return &engineRef{eng: eng}
}

func (r *engineRef) get() engine.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eng
}

func (r *engineRef) set(eng engine.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eng = eng
}

// peerClient is the slice of the UDP client the workers need.
type peerClient interface {
	Send(msg []byte) error
	RoundTrip(ctx context.Context, msg []byte) ([]byte, error)
}

// Hub owns the dispatcher, the shared state, and the periodic workers.
type Hub struct {
	cfg     *config.Config
	log     logging.Logger
	metrics Metrics

	engine     *engineRef
	cache      *SnapshotStore
	interlock  *Interlock
	aggregator *Aggregator
	dispatcher *Dispatcher

	peer peerClient
}

// Option tweaks hub construction.
type Option func(*Hub)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithPeer overrides the peer client the workers talk to. Without it,
// Run dials cfg.PeerAddr when a worker needs the peer.
func WithPeer(pc peerClient) Option {
	return func(h *Hub) { h.peer = pc }
}

// New wires a hub over the given engine (which may be nil until the
// emulator constructs it; see SetEngine).
func New(cfg *config.Config, eng engine.Engine, log logging.Logger, opts ...Option) *Hub {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Noop()
	}

	h := &Hub{
		cfg:     cfg,
		log:     log,
		metrics: noopMetrics{},
		engine:  newEngineRef(eng),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.cache = NewSnapshotStore(h.engine, cfg.PLCTimeout, cfg.TestMode)
	h.interlock = NewInterlock(h.engine, log, h.metrics)
	h.aggregator = NewAggregator(h.engine)
	h.dispatcher = NewDispatcher(h.cache, h.interlock, h.engine, cfg.JunctionAvoid, log, h.metrics)
	return h
}

// SetEngine attaches (or replaces) the simulation engine.
func (h *Hub) SetEngine(eng engine.Engine) {
	h.engine.set(eng)
}

// Interlock exposes the safety interlock, e.g. for embedding processes
// that receive the linkage signal out of band.
func (h *Hub) Interlock() *Interlock { return h.interlock }

// LivenessReport returns the per-channel connection report and mirrors
// it onto the liveness gauges.
func (h *Hub) LivenessReport() map[Channel]ChannelLiveness {
	report := h.cache.LivenessReport()
	for ch, lv := range report {
		h.metrics.SetChannelOnline(string(ch), lv.Online)
	}
	return report
}

// Run binds the UDP socket, starts the enabled workers, and serves
// requests until ctx is cancelled. Workers exit on cancellation; the
// dispatcher's blocking read is unblocked by the shutdown sentinel.
func (h *Hub) Run(ctx context.Context) error {
	if h.peer == nil && (h.cfg.TotalsPush || h.cfg.PowerLinkWatch) {
		client, err := udp.Dial(h.cfg.PeerAddr)
		if err != nil {
			return fmt.Errorf("hub: dial peer: %w", err)
		}
		defer client.Close()
		h.peer = client
	}

	server, err := udp.Listen(h.cfg.ListenAddr, h.dispatcher.Handle, h.log)
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	h.log.Info(ctx, "datahub listening",
		logging.String("addr", server.Addr().String()),
		logging.Bool("totals_push", h.cfg.TotalsPush),
		logging.Bool("totals_log", h.cfg.TotalsLog),
		logging.Bool("powerlink_watch", h.cfg.PowerLinkWatch),
	)

	var wg sync.WaitGroup
	if h.cfg.TotalsPush {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runEvery(ctx, h.cfg.TotalsPushInterval, h.pushTotals)
		}()
	}
	if h.cfg.TotalsLog {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.runTotalsLogger(ctx)
		}()
	}
	if h.cfg.PowerLinkWatch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runEvery(ctx, h.cfg.PowerLinkPollInterval, h.pollPowerLink)
		}()
	}

	go func() {
		<-ctx.Done()
		server.Stop()
	}()

	server.Serve(ctx)
	wg.Wait()
	h.log.Info(ctx, "datahub stopped")
	return nil
}

// pushTotals sends each per-line aggregate to the peer fire-and-forget
// and mirrors it onto the totals gauges.
func (h *Hub) pushTotals(ctx context.Context) time.Duration {
	for _, rec := range h.aggregator.Aggregate() {
		payload, err := json.Marshal(rec)
		if err != nil {
			h.log.Error(ctx, "totals marshal failed", logging.Err(err))
			continue
		}
		if err := h.peer.Send(wire.Encode(wire.KeyPost, wire.TypeMetroTotals, string(payload))); err != nil {
			h.log.Warn(ctx, "totals push failed", logging.Err(err))
			continue
		}
		h.metrics.SetLineTotals(rec)
	}
	return 0
}

// runTotalsLogger logs the aggregates locally. While the engine is not
// ready it warns once and retries every second instead of the
// configured cadence.
func (h *Hub) runTotalsLogger(ctx context.Context) {
	warned := false
	runEvery(ctx, h.cfg.TotalsLogInterval, func(ctx context.Context) time.Duration {
		recs := h.aggregator.Aggregate()
		if len(recs) == 0 {
			if !warned {
				h.log.Warn(ctx, "metro totals unavailable, engine not ready yet")
				warned = true
			}
			return time.Second
		}
		warned = false
		for _, rec := range recs {
			h.log.Info(ctx, "metro totals",
				logging.String("line", string(rec.Line)),
				logging.Any("bus_v", rec.BusVoltage),
				logging.Any("total_i", rec.TotalCurrent),
				logging.Int("trains", rec.TrainCount),
			)
			h.metrics.SetLineTotals(rec)
		}
		return 0
	})
}

// pollPowerLink runs one poll-path round trip and feeds the reading to
// the interlock's debounce. Transport failures are logged and the next
// tick retries; a missed poll is never treated as a power-down reading.
func (h *Hub) pollPowerLink(ctx context.Context) time.Duration {
	rtCtx, cancel := context.WithTimeout(ctx, h.cfg.PowerLinkPollInterval)
	defer cancel()

	resp, err := h.peer.RoundTrip(rtCtx, wire.Encode(wire.KeyGet, wire.TypePowerLink, powerLinkQuery))
	if err != nil {
		h.log.Warn(ctx, "power-link poll failed", logging.Err(err))
		return 0
	}

	msg, err := wire.Decode(resp)
	if err != nil || msg.Key != wire.KeyRep || msg.Type != wire.TypePowerLink {
		h.log.Warn(ctx, "unexpected power-link reply", logging.String("raw", string(resp)))
		return 0
	}

	body := map[string]any{}
	if err := json.Unmarshal([]byte(msg.Body), &body); err != nil {
		h.log.Warn(ctx, "power-link reply body is not valid JSON", logging.Err(err))
		return 0
	}

	h.interlock.Observe(ctx, railwayFlag(body))
	return 0
}
