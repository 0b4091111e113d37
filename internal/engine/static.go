package engine

import (
	"fmt"
	"sync"

	"github.com/signalsfoundry/metro-datahub/model"
)

// Static is a fixture engine with canned per-line state. It implements
// no physics: sensor, station, and train readings stay at whatever the
// fixtures (or setters) put there. It backs the standalone datahub mode
// and the package tests.
type Static struct {
	mu       sync.Mutex
	sensors  map[model.LineID][]int
	stations map[model.LineID][]bool
	trains   map[model.LineID][]*StaticTrain
	signals  map[string]any
}

// StaticTrain is one fixture train. Fields are read under the owning
// Static engine's lock.
type StaticTrain struct {
	mu      sync.Mutex
	power   int
	info    model.TrainInfo
	stopped bool

	// FailStop, when set, makes SetEmergencyStop return an error. Used
	// to exercise the interlock's per-train failure handling.
	FailStop bool
}

// NewStaticTrain builds a fixture train with the given reading.
func NewStaticTrain(power int, info model.TrainInfo) *StaticTrain {
	return &StaticTrain{power: power, info: info}
}

func (t *StaticTrain) PowerState() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.power
}

func (t *StaticTrain) Telemetry() model.TrainInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

func (t *StaticTrain) SetEmergencyStop(stop bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailStop {
		return fmt.Errorf("train unreachable")
	}
	t.stopped = stop
	return nil
}

// Stopped reports the last applied emergency-stop flag.
func (t *StaticTrain) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// NewStatic builds an empty fixture engine. Lines without fixtures
// report nil sensors and no stations or trains.
func NewStatic() *Static {
	return &Static{
		sensors:  make(map[model.LineID][]int),
		stations: make(map[model.LineID][]bool),
		trains:   make(map[model.LineID][]*StaticTrain),
		signals:  make(map[string]any),
	}
}

// NewStaticDemo builds a fixture engine with a small plausible network
// on all four lines, for running the datahub without the emulator.
func NewStaticDemo() *Static {
	e := NewStatic()
	volts := func(v float64) *float64 { return &v }
	for i, line := range model.Lines() {
		e.SetSensorStates(line, make([]int, 16))
		e.SetStationDocks(line, make([]bool, 6))
		for j := 0; j < 2+i%2; j++ {
			e.AddTrain(line, NewStaticTrain(1, model.TrainInfo{
				Speed:   40,
				Voltage: volts(750),
				Current: volts(120),
			}))
		}
	}
	return e
}

// SetSensorStates replaces a line's sensor fixture.
func (e *Static) SetSensorStates(line model.LineID, states []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sensors[line] = append([]int(nil), states...)
}

// SetStationDocks replaces a line's station dock fixture.
func (e *Static) SetStationDocks(line model.LineID, docked []bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stations[line] = append([]bool(nil), docked...)
}

// AddTrain appends a train to a line.
func (e *Static) AddTrain(line model.LineID, t *StaticTrain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trains[line] = append(e.trains[line], t)
}

// Signal returns the last value applied for a signal key, if any.
func (e *Static) Signal(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.signals[key]
	return v, ok
}

func (e *Static) Sensors(line model.LineID) SensorBank {
	e.mu.Lock()
	defer e.mu.Unlock()
	states, ok := e.sensors[line]
	if !ok {
		return nil
	}
	return staticSensors(append([]int(nil), states...))
}

func (e *Static) Stations(line model.LineID) []Station {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Station, len(e.stations[line]))
	for i, docked := range e.stations[line] {
		out[i] = staticStation(docked)
	}
	return out
}

func (e *Static) Trains(line model.LineID) []Train {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Train, len(e.trains[line]))
	for i, t := range e.trains[line] {
		out[i] = t
	}
	return out
}

func (e *Static) SetSignal(key string, val any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals[key] = val
	return nil
}

func (e *Static) SetStationSignal(key string, val any) error {
	return e.SetSignal("station/"+key, val)
}

func (e *Static) SetTrainPower(key string, val any) error {
	return e.SetSignal("train/"+key, val)
}

type staticSensors []int

func (s staticSensors) States() []int { return s }

type staticStation bool

func (s staticStation) Docked() bool { return bool(s) }
