package model

import (
	"encoding/json"
	"fmt"
)

// TrainInfo is one train's live electrical reading as reported by the
// simulation engine. Voltage and Current are nil when the train has no
// reading for that field.
type TrainInfo struct {
	FaultSensor int
	Speed       float64
	Voltage     *float64
	Current     *float64
}

// TrainTelemetry is the wire form of a TrainInfo. It marshals to the
// fixed 4-element JSON array [faultSensor, speed, voltage, current],
// with null for missing voltage/current readings.
type TrainTelemetry TrainInfo

func (t TrainTelemetry) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{t.FaultSensor, t.Speed, t.Voltage, t.Current})
}

func (t *TrainTelemetry) UnmarshalJSON(data []byte) error {
	var raw [4]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("train telemetry must be a 4-element array: %w", err)
	}
	*t = TrainTelemetry{}
	if raw[0] != nil {
		t.FaultSensor = int(*raw[0])
	}
	if raw[1] != nil {
		t.Speed = *raw[1]
	}
	t.Voltage = raw[2]
	t.Current = raw[3]
	return nil
}

// LineTotals is one per-line electrical aggregate record. The JSON
// field names match the totals consumer on the power-grid side.
type LineTotals struct {
	TimestampMS  int64   `json:"ts_ms"`
	Line         LineID  `json:"line_id"`
	BusVoltage   float64 `json:"bus_v"`
	TotalCurrent float64 `json:"total_i"`
	TrainCount   int     `json:"train_count"`
}
