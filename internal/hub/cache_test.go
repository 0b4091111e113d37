package hub

import (
	"testing"
	"time"

	"github.com/signalsfoundry/metro-datahub/internal/engine"
	"github.com/signalsfoundry/metro-datahub/model"
)

func demoEngine() *engine.Static {
	eng := engine.NewStatic()
	for i, line := range model.Lines() {
		states := make([]int, 16)
		states[i] = 1
		eng.SetSensorStates(line, states)
		eng.SetStationDocks(line, []bool{true, false})
		eng.AddTrain(line, engine.NewStaticTrain(1, model.TrainInfo{Speed: 30}))
	}
	return eng
}

func TestFetchRefreshesAllFourLines(t *testing.T) {
	store := NewSnapshotStore(newEngineRef(demoEngine()), time.Second, true)

	got := store.FetchSensors([]model.LineID{model.WELine})
	if len(got) != 1 {
		t.Fatalf("requested one line, got %d", len(got))
	}
	if got[model.WELine][0] != 1 {
		t.Fatalf("weline sensors = %v", got[model.WELine])
	}

	// The refresh covers all four lines even though only one was requested.
	for _, line := range model.Lines() {
		if store.sensors[line] == nil {
			t.Fatalf("line %s not refreshed", line)
		}
	}
}

func TestTablesAlwaysHoldExactlyFourKeys(t *testing.T) {
	store := NewSnapshotStore(newEngineRef(demoEngine()), time.Second, true)

	store.FetchSensors(model.Lines())
	store.FetchStations(model.Lines())
	store.FetchTrainPower(model.Lines())
	store.FetchTrainTelemetry(model.Lines())

	if len(store.sensors) != 4 || len(store.stations) != 4 ||
		len(store.power) != 4 || len(store.telemetry) != 4 {
		t.Fatalf("table key counts = %d/%d/%d/%d, want 4 each",
			len(store.sensors), len(store.stations), len(store.power), len(store.telemetry))
	}
	for _, line := range model.Lines() {
		if _, ok := store.sensors[line]; !ok {
			t.Fatalf("sensors table missing %s", line)
		}
	}
}

func TestFetchWithoutEngineIsANoOp(t *testing.T) {
	ref := newEngineRef(nil)
	store := NewSnapshotStore(ref, time.Second, true)

	got := store.FetchSensors([]model.LineID{model.CCLine})
	if got[model.CCLine] != nil {
		t.Fatalf("expected nil snapshot before any engine attach, got %v", got[model.CCLine])
	}

	// Attaching the engine makes the next fetch return fresh state.
	ref.set(demoEngine())
	got = store.FetchSensors([]model.LineID{model.CCLine})
	if got[model.CCLine] == nil {
		t.Fatalf("expected fresh snapshot after engine attach")
	}
}

func TestFetchReturnsCopies(t *testing.T) {
	store := NewSnapshotStore(newEngineRef(demoEngine()), time.Second, true)

	got := store.FetchSensors([]model.LineID{model.WELine})
	got[model.WELine][0] = 99
	if store.sensors[model.WELine][0] == 99 {
		t.Fatalf("caller mutation leaked into the cache")
	}
}

func TestSensorFetchAppliesPriorityOverride(t *testing.T) {
	eng := engine.NewStatic()
	cc := make([]int, 16)
	cc[6] = 1
	ns := make([]int, 16)
	ns[2] = 1
	eng.SetSensorStates(model.CCLine, cc)
	eng.SetSensorStates(model.NSLine, ns)

	store := NewSnapshotStore(newEngineRef(eng), time.Second, false)
	got := store.FetchSensors([]model.LineID{model.CCLine})
	if got[model.CCLine][6] != 0 {
		t.Fatalf("cc index 6 = %d, want suppressed to 0", got[model.CCLine][6])
	}

	// Test mode skips the override.
	store = NewSnapshotStore(newEngineRef(eng), time.Second, true)
	got = store.FetchSensors([]model.LineID{model.CCLine})
	if got[model.CCLine][6] != 1 {
		t.Fatalf("cc index 6 = %d in test mode, want untouched", got[model.CCLine][6])
	}
}

func TestLivenessStrictBoundary(t *testing.T) {
	store := NewSnapshotStore(newEngineRef(nil), time.Second, true)
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	store.FetchSensors(nil)

	// Just inside the timeout: online.
	store.now = func() time.Time { return base.Add(time.Second - time.Nanosecond) }
	if lv := store.LivenessReport()[ChannelSensors]; !lv.Online {
		t.Fatalf("channel offline just inside the timeout")
	}

	// Exactly at the timeout: already offline (strict inequality).
	store.now = func() time.Time { return base.Add(time.Second) }
	if lv := store.LivenessReport()[ChannelSensors]; lv.Online {
		t.Fatalf("channel online exactly at the timeout")
	}

	// A channel never fetched reports offline.
	if lv := store.LivenessReport()[ChannelStations]; lv.Online {
		t.Fatalf("never-fetched channel reports online")
	}
}
