package hub

import "github.com/signalsfoundry/metro-datahub/model"

// priorityRule suppresses one cc-line sensor index when any of the
// listed indices on a higher-priority line reads occupied. The rules
// encode the physical right-of-way at track junctions the cc line
// shares with the we and ns lines.
type priorityRule struct {
	line    model.LineID
	indices []int
}

// ccPriorityTable has one slot per cc-line sensor index, 16 slots,
// alternating rule/nil. The cc line has the lowest priority. The table
// is fixed at build time and never mutated.
var ccPriorityTable = [16]*priorityRule{
	{line: model.NSLine, indices: []int{0}}, nil,
	{line: model.NSLine, indices: []int{4}}, nil,
	{line: model.NSLine, indices: []int{2}}, nil,
	{line: model.NSLine, indices: []int{2}}, nil,
	{line: model.WELine, indices: []int{7, 9}}, nil,
	{line: model.WELine, indices: []int{5, 11}}, nil,
	{line: model.WELine, indices: []int{3, 13}}, nil,
	{line: model.WELine, indices: []int{1, 15}}, nil,
}

// applySensorPriority clears cc-line sensor bits whose governing rule
// fires. It walks indices in increasing order, only ever clears bits,
// and must run after the cc-line snapshot is refreshed and before any
// caller sees it. tables is the full freshly-refreshed sensor map.
func applySensorPriority(tables map[model.LineID]model.SensorStates) {
	cc := tables[model.CCLine]
	for i, val := range cc {
		if i >= len(ccPriorityTable) {
			break
		}
		rule := ccPriorityTable[i]
		if rule == nil || val == 0 {
			continue
		}
		other := tables[rule.line]
		for _, j := range rule.indices {
			if j < len(other) && other[j] != 0 {
				cc[i] = 0
				break
			}
		}
	}
}
