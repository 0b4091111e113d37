package hub

import (
	"time"

	"github.com/signalsfoundry/metro-datahub/model"
)

// Aggregator computes per-line electrical totals from live train
// telemetry.
type Aggregator struct {
	engine *engineRef
	now    func() time.Time
}

// NewAggregator builds an aggregator reading through eng.
func NewAggregator(eng *engineRef) *Aggregator {
	return &Aggregator{engine: eng, now: time.Now}
}

// Aggregate returns one record per line: total current is the sum of
// the trains' current readings (missing readings count as zero), bus
// voltage is the mean of the available voltage readings (zero when none
// are available). The result is empty while no engine is attached.
func (a *Aggregator) Aggregate() []model.LineTotals {
	eng := a.engine.get()
	if eng == nil {
		return nil
	}

	tsMS := a.now().UnixMilli()
	out := make([]model.LineTotals, 0, 4)
	for _, line := range model.Lines() {
		trains := eng.Trains(line)

		var totalCurrent float64
		var voltageSum float64
		voltageCount := 0
		for _, tr := range trains {
			info := tr.Telemetry()
			if info.Current != nil {
				totalCurrent += *info.Current
			}
			if info.Voltage != nil {
				voltageSum += *info.Voltage
				voltageCount++
			}
		}

		busVoltage := 0.0
		if voltageCount > 0 {
			busVoltage = voltageSum / float64(voltageCount)
		}

		out = append(out, model.LineTotals{
			TimestampMS:  tsMS,
			Line:         line,
			BusVoltage:   busVoltage,
			TotalCurrent: totalCurrent,
			TrainCount:   len(trains),
		})
	}
	return out
}
