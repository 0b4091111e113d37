// Package engine defines the simulation-engine collaborator contract
// consumed by the hub. The physical simulation (train motion, track
// topology, signal logic) lives outside this module; the hub only reads
// live state and forwards commands through these interfaces.
package engine

import "github.com/signalsfoundry/metro-datahub/model"

// Engine is the simulation engine as seen by the hub. Implementations
// must tolerate concurrent calls from the dispatcher and the periodic
// workers.
type Engine interface {
	// Sensors returns the sensor bank for a line, or nil if the line
	// has none.
	Sensors(line model.LineID) SensorBank

	// Stations returns the station agents of a line in track order.
	Stations(line model.LineID) []Station

	// Trains returns the train agents of a line. Enumeration order is
	// stable for a given topology.
	Trains(line model.LineID) []Train

	// SetSignal applies a track-signal command keyed by signal ID.
	SetSignal(key string, val any) error

	// SetStationSignal applies a station-signal command.
	SetStationSignal(key string, val any) error

	// SetTrainPower applies a train power command.
	SetTrainPower(key string, val any) error
}

// SensorBank exposes one line's occupancy sensor array.
type SensorBank interface {
	States() []int
}

// Station exposes one station's dock state.
type Station interface {
	Docked() bool
}

// Train exposes one train's power, telemetry, and emergency stop.
type Train interface {
	PowerState() int
	Telemetry() model.TrainInfo
	SetEmergencyStop(stop bool) error
}
