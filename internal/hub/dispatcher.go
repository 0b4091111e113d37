package hub

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/metro-datahub/internal/logging"
	"github.com/signalsfoundry/metro-datahub/internal/wire"
	"github.com/signalsfoundry/metro-datahub/model"
)

const (
	failedBody  = `{"result":"failed"}`
	successBody = `{"result":"success"}`
	readyBody   = `{"state":"ready"}`
)

// Dispatcher routes decoded requests to their handlers and produces the
// wire reply. The UDP server invokes Handle strictly sequentially.
type Dispatcher struct {
	cache         *SnapshotStore
	interlock     *Interlock
	engine        *engineRef
	junctionAvoid bool

	log     logging.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// NewDispatcher wires a dispatcher over the shared cache, interlock,
// and engine reference.
func NewDispatcher(cache *SnapshotStore, interlock *Interlock, eng *engineRef, junctionAvoid bool, log logging.Logger, metrics Metrics) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		cache:         cache,
		interlock:     interlock,
		engine:        eng,
		junctionAvoid: junctionAvoid,
		log:           log,
		metrics:       metrics,
		tracer:        otel.Tracer("github.com/signalsfoundry/metro-datahub/internal/hub"),
	}
}

// Handle processes one inbound datagram and returns the reply, or nil
// for the empty shutdown sentinel. Handler failures never propagate:
// the worst outcome is a deny or failed-result reply plus a log entry.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	start := time.Now()

	ctx, reqLog := logging.WithRequestLogger(ctx, d.log)
	msg, err := wire.Decode(raw)
	if err != nil {
		reqLog.Error(ctx, "malformed request", logging.String("raw", string(raw)))
	}

	ctx, span := d.tracer.Start(ctx, "hub.dispatch", trace.WithAttributes(
		attribute.String("wire.key", string(msg.Key)),
		attribute.String("wire.type", string(msg.Type)),
	))
	defer span.End()

	reply, result := d.route(ctx, reqLog, msg)

	span.SetAttributes(attribute.String("wire.result", result))
	reqType := string(msg.Type)
	if reqType == "" {
		reqType = "unknown"
	}
	d.metrics.ObserveRequest(reqType, result, time.Since(start))
	return reply
}

func (d *Dispatcher) route(ctx context.Context, log logging.Logger, msg wire.Message) ([]byte, string) {
	switch msg.Key {
	case wire.KeyGet:
		switch msg.Type {
		case wire.TypeLogin:
			return wire.Encode(wire.KeyRep, wire.TypeLogin, readyBody), "success"
		case wire.TypeSensors, wire.TypeStations, wire.TypeTrainsPLC, wire.TypeTrainsRTU:
			return d.handleFetch(ctx, log, msg.Type, msg.Body)
		}
	case wire.KeyPost:
		switch msg.Type {
		case wire.TypeSignals:
			return d.handleSet(ctx, log, msg.Type, msg.Body, d.junctionAvoid)
		case wire.TypeStations, wire.TypeTrainsPLC:
			return d.handleSet(ctx, log, msg.Type, msg.Body, false)
		case wire.TypePowerLink:
			return d.handlePowerLink(ctx, log, msg.Body)
		}
	}
	return wire.DenyReply(), "deny"
}

// handleFetch echoes the request body back with every recognized line
// key populated from a fresh cache fetch. Unknown keys pass through
// untouched.
func (d *Dispatcher) handleFetch(ctx context.Context, log logging.Logger, typ wire.ReqType, body string) ([]byte, string) {
	req := map[string]any{}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		log.Error(ctx, "fetch request body is not valid JSON",
			logging.String("type", string(typ)), logging.Err(err))
		return wire.Encode(wire.KeyRep, typ, failedBody), "failed"
	}

	keys := requestedLines(req)
	switch typ {
	case wire.TypeSensors:
		for line, v := range d.cache.FetchSensors(keys) {
			req[string(line)] = v
		}
	case wire.TypeStations:
		for line, v := range d.cache.FetchStations(keys) {
			req[string(line)] = v
		}
	case wire.TypeTrainsPLC:
		for line, v := range d.cache.FetchTrainPower(keys) {
			req[string(line)] = v
		}
	case wire.TypeTrainsRTU:
		for line, v := range d.cache.FetchTrainTelemetry(keys) {
			req[string(line)] = v
		}
	}

	out, err := json.Marshal(req)
	if err != nil {
		log.Error(ctx, "fetch reply marshal failed",
			logging.String("type", string(typ)), logging.Err(err))
		return wire.Encode(wire.KeyRep, typ, failedBody), "failed"
	}
	return wire.Encode(wire.KeyRep, typ, string(out)), "success"
}

// handleSet forwards each key/value pair of the body to the engine
// setter matching typ. With skipWrites set (junction-avoidance mode for
// track signals) the writes are silently dropped but success is still
// reported, so the sending PLC keeps its view of a healthy hub.
func (d *Dispatcher) handleSet(ctx context.Context, log logging.Logger, typ wire.ReqType, body string, skipWrites bool) ([]byte, string) {
	req := map[string]any{}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		log.Error(ctx, "set request body is not valid JSON",
			logging.String("type", string(typ)), logging.Err(err))
		return wire.Encode(wire.KeyRep, typ, failedBody), "failed"
	}

	eng := d.engine.get()
	if eng == nil {
		return wire.Encode(wire.KeyRep, typ, failedBody), "failed"
	}

	if !skipWrites {
		setter := eng.SetSignal
		switch typ {
		case wire.TypeStations:
			setter = eng.SetStationSignal
		case wire.TypeTrainsPLC:
			setter = eng.SetTrainPower
		}
		for key, val := range req {
			if err := setter(key, val); err != nil {
				log.Error(ctx, "engine setter failed",
					logging.String("type", string(typ)),
					logging.String("key", key),
					logging.Err(err))
				return wire.Encode(wire.KeyRep, typ, failedBody), "failed"
			}
		}
	}
	return wire.Encode(wire.KeyRep, typ, successBody), "success"
}

// handlePowerLink feeds the interlock's push path with the linkage flag
// carried in the body. A missing railway field defaults to powered.
func (d *Dispatcher) handlePowerLink(ctx context.Context, log logging.Logger, body string) ([]byte, string) {
	req := map[string]any{}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		log.Error(ctx, "power-link body is not valid JSON", logging.Err(err))
		return wire.Encode(wire.KeyRep, wire.TypePowerLink, failedBody), "failed"
	}

	d.interlock.Push(ctx, railwayFlag(req))
	return wire.Encode(wire.KeyRep, wire.TypePowerLink, successBody), "success"
}

// requestedLines extracts the valid line keys named by a request body.
func requestedLines(req map[string]any) []model.LineID {
	keys := make([]model.LineID, 0, len(req))
	for k := range req {
		if line := model.LineID(k); model.ValidLine(line) {
			keys = append(keys, line)
		}
	}
	return keys
}

// railwayFlag reads the linkage boolean. Absent means powered; an
// explicit null means down; numbers and strings follow truthiness so
// peers may send 0/1 as well as booleans.
func railwayFlag(req map[string]any) bool {
	val, ok := req["railway"]
	if !ok {
		return true
	}
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != "" && v != "0" && v != "false"
	default:
		return true
	}
}
