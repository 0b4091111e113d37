package model

// LineID identifies one of the four fixed rail lines in the emulated
// metro network. Every per-line table in the hub is keyed by exactly
// these four values; no table ever gains or loses a key at runtime.
type LineID string

const (
	WELine LineID = "weline"
	NSLine LineID = "nsline"
	CCLine LineID = "ccline"
	MTLine LineID = "mtline"
)

// Lines returns the four line IDs in canonical order. Callers iterate
// this slice whenever a command or refresh fans out across the network.
func Lines() []LineID {
	return []LineID{WELine, NSLine, CCLine, MTLine}
}

// ValidLine reports whether id names one of the four fixed lines.
func ValidLine(id LineID) bool {
	switch id {
	case WELine, NSLine, CCLine, MTLine:
		return true
	}
	return false
}

// SensorStates is a full sensor snapshot for one line, overwritten
// wholesale on every refresh (never partially updated).
type SensorStates []int

// StationStates holds one dock flag (0/1) per station on a line.
type StationStates []int

// TrainPowerStates holds one power-on flag (0/1) per train on a line,
// in the engine's train enumeration order.
type TrainPowerStates []int
