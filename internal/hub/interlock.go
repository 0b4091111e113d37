package hub

import (
	"context"
	"sync"

	"github.com/signalsfoundry/metro-datahub/internal/logging"
	"github.com/signalsfoundry/metro-datahub/model"
)

// pollTripThreshold is how many consecutive offline readings the poll
// path requires before it forces the stop.
const pollTripThreshold = 3

// Interlock converts the upstream power-grid linkage signal into an
// emergency-stop or release command fanned out to every train of every
// line.
//
// Two ingestion paths feed it and deliberately keep distinct debounce
// policies: Push is edge-triggered with zero debounce, Observe (the
// poll path) needs three consecutive offline readings after power has
// been seen on at least once, and trips one-shot.
type Interlock struct {
	engine  *engineRef
	log     logging.Logger
	metrics Metrics

	mu sync.Mutex

	// Push path: the last linkage value a push actually applied.
	lastPush *bool

	// Poll path debounce state.
	seenTrue   bool
	falseCount int
	tripped    bool
}

// NewInterlock builds an interlock fanning out through eng.
func NewInterlock(eng *engineRef, log logging.Logger, metrics Metrics) *Interlock {
	if log == nil {
		log = logging.Noop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Interlock{engine: eng, log: log, metrics: metrics}
}

// Push handles a linkage value delivered by the peer's POST. It applies
// the transition only when the value differs from the last applied push
// value; repeating the same value is a no-op.
func (il *Interlock) Push(ctx context.Context, railwayOn bool) {
	il.mu.Lock()
	if il.lastPush != nil && *il.lastPush == railwayOn {
		il.mu.Unlock()
		return
	}
	il.lastPush = &railwayOn
	il.mu.Unlock()

	il.apply(ctx, railwayOn, "push")
}

// Observe handles one polled linkage reading. Offline readings are
// ignored until power has ever been seen on, then three consecutive
// offline readings force the stop exactly once. An online reading
// resets the count and re-arms the trip.
func (il *Interlock) Observe(ctx context.Context, railwayOn bool) {
	il.mu.Lock()
	if railwayOn {
		il.seenTrue = true
		il.falseCount = 0
		il.tripped = false
		il.mu.Unlock()
		return
	}
	if !il.seenTrue {
		il.mu.Unlock()
		return
	}
	il.falseCount++
	trip := il.falseCount >= pollTripThreshold && !il.tripped
	if trip {
		il.tripped = true
	}
	il.mu.Unlock()

	if trip {
		il.apply(ctx, false, "poll")
	}
}

// apply fans the transition out to all trains. A train that cannot be
// reached is skipped so the rest of the fleet still gets the command.
func (il *Interlock) apply(ctx context.Context, railwayOn bool, path string) {
	eng := il.engine.get()
	if eng == nil {
		return
	}

	stop := !railwayOn
	failed := 0
	for _, line := range model.Lines() {
		for _, train := range eng.Trains(line) {
			if err := train.SetEmergencyStop(stop); err != nil {
				failed++
				il.log.Warn(ctx, "emergency-stop command failed for one train",
					logging.String("line", string(line)),
					logging.Err(err),
				)
			}
		}
	}

	action := "release"
	if stop {
		action = "stop"
	}
	il.metrics.InterlockTransition(path, action)

	fields := []logging.Field{
		logging.Bool("railway_on", railwayOn),
		logging.Bool("emg_stop", stop),
		logging.String("path", path),
		logging.Int("failed_trains", failed),
	}
	if stop {
		il.log.Warn(ctx, "power link applied", fields...)
	} else {
		il.log.Info(ctx, "power link applied", fields...)
	}
}
