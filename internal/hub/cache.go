package hub

import (
	"sync"
	"time"

	"github.com/signalsfoundry/metro-datahub/model"
)

// Channel names one of the four snapshot tables the hub serves.
type Channel string

const (
	ChannelSensors        Channel = "sensors"
	ChannelStations       Channel = "stations"
	ChannelTrainPower     Channel = "trainsPlc"
	ChannelTrainTelemetry Channel = "trainsRtu"
)

// Channels returns all snapshot channels in a fixed order.
func Channels() []Channel {
	return []Channel{ChannelSensors, ChannelStations, ChannelTrainPower, ChannelTrainTelemetry}
}

// ChannelLiveness tells when a channel was last fetched and whether
// that is recent enough to count as connected.
type ChannelLiveness struct {
	LastUpdate string
	Online     bool
}

// SnapshotStore caches the most recently fetched full state per line
// and channel. One mutex guards all four tables and their timestamps;
// the dispatcher goroutine and the periodic workers share the store.
//
// Each fetch refreshes all four lines of its channel wholesale from the
// engine, stamps the channel timestamp, and returns copies of just the
// requested lines. With no engine attached the refresh is a no-op and
// the previous (possibly nil) values are returned.
type SnapshotStore struct {
	engine   *engineRef
	timeout  time.Duration
	testMode bool
	now      func() time.Time

	mu        sync.Mutex
	sensors   map[model.LineID]model.SensorStates
	stations  map[model.LineID]model.StationStates
	power     map[model.LineID]model.TrainPowerStates
	telemetry map[model.LineID][]model.TrainTelemetry
	updated   map[Channel]time.Time
}

// NewSnapshotStore builds an empty store. Tables start with all four
// line keys mapped to nil and are only ever overwritten, never shrunk
// or grown.
func NewSnapshotStore(eng *engineRef, timeout time.Duration, testMode bool) *SnapshotStore {
	s := &SnapshotStore{
		engine:    eng,
		timeout:   timeout,
		testMode:  testMode,
		now:       time.Now,
		sensors:   make(map[model.LineID]model.SensorStates, 4),
		stations:  make(map[model.LineID]model.StationStates, 4),
		power:     make(map[model.LineID]model.TrainPowerStates, 4),
		telemetry: make(map[model.LineID][]model.TrainTelemetry, 4),
		updated:   make(map[Channel]time.Time, 4),
	}
	for _, line := range model.Lines() {
		s.sensors[line] = nil
		s.stations[line] = nil
		s.power[line] = nil
		s.telemetry[line] = nil
	}
	return s
}

// FetchSensors refreshes the sensor tables and returns the requested
// lines. The cc-line priority override runs after the refresh unless
// the store is in test mode.
func (s *SnapshotStore) FetchSensors(keys []model.LineID) map[model.LineID]model.SensorStates {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updated[ChannelSensors] = s.now()
	if eng := s.engine.get(); eng != nil {
		for _, line := range model.Lines() {
			bank := eng.Sensors(line)
			if bank == nil {
				s.sensors[line] = nil
				continue
			}
			s.sensors[line] = append(model.SensorStates(nil), bank.States()...)
		}
		if !s.testMode {
			applySensorPriority(s.sensors)
		}
	}

	out := make(map[model.LineID]model.SensorStates, len(keys))
	for _, line := range keys {
		out[line] = append(model.SensorStates(nil), s.sensors[line]...)
	}
	return out
}

// FetchStations refreshes the station dock tables and returns the
// requested lines.
func (s *SnapshotStore) FetchStations(keys []model.LineID) map[model.LineID]model.StationStates {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updated[ChannelStations] = s.now()
	if eng := s.engine.get(); eng != nil {
		for _, line := range model.Lines() {
			stations := eng.Stations(line)
			fresh := make(model.StationStates, len(stations))
			for i, st := range stations {
				if st.Docked() {
					fresh[i] = 1
				}
			}
			s.stations[line] = fresh
		}
	}

	out := make(map[model.LineID]model.StationStates, len(keys))
	for _, line := range keys {
		out[line] = append(model.StationStates(nil), s.stations[line]...)
	}
	return out
}

// FetchTrainPower refreshes the train power tables and returns the
// requested lines.
func (s *SnapshotStore) FetchTrainPower(keys []model.LineID) map[model.LineID]model.TrainPowerStates {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updated[ChannelTrainPower] = s.now()
	if eng := s.engine.get(); eng != nil {
		for _, line := range model.Lines() {
			trains := eng.Trains(line)
			fresh := make(model.TrainPowerStates, len(trains))
			for i, tr := range trains {
				if tr.PowerState() != 0 {
					fresh[i] = 1
				}
			}
			s.power[line] = fresh
		}
	}

	out := make(map[model.LineID]model.TrainPowerStates, len(keys))
	for _, line := range keys {
		out[line] = append(model.TrainPowerStates(nil), s.power[line]...)
	}
	return out
}

// FetchTrainTelemetry refreshes the per-train telemetry tables and
// returns the requested lines.
func (s *SnapshotStore) FetchTrainTelemetry(keys []model.LineID) map[model.LineID][]model.TrainTelemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updated[ChannelTrainTelemetry] = s.now()
	if eng := s.engine.get(); eng != nil {
		for _, line := range model.Lines() {
			trains := eng.Trains(line)
			fresh := make([]model.TrainTelemetry, len(trains))
			for i, tr := range trains {
				fresh[i] = model.TrainTelemetry(tr.Telemetry())
			}
			s.telemetry[line] = fresh
		}
	}

	out := make(map[model.LineID][]model.TrainTelemetry, len(keys))
	for _, line := range keys {
		out[line] = append([]model.TrainTelemetry(nil), s.telemetry[line]...)
	}
	return out
}

// LivenessReport returns, per channel, the wall-clock of the last fetch
// and whether the channel counts as online. A channel is online while
// now - lastUpdate is strictly below the timeout; a gap equal to the
// timeout already reports offline.
func (s *SnapshotStore) LivenessReport() map[Channel]ChannelLiveness {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make(map[Channel]ChannelLiveness, len(s.updated))
	for _, ch := range Channels() {
		last := s.updated[ch]
		out[ch] = ChannelLiveness{
			LastUpdate: last.Format("15:04:05"),
			Online:     !last.IsZero() && now.Sub(last) < s.timeout,
		}
	}
	return out
}
