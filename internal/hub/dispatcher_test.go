package hub

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/metro-datahub/internal/engine"
	"github.com/signalsfoundry/metro-datahub/model"
)

func newTestDispatcher(t *testing.T, eng engine.Engine, junctionAvoid bool) *Dispatcher {
	t.Helper()
	ref := newEngineRef(eng)
	cache := NewSnapshotStore(ref, time.Second, true)
	interlock := NewInterlock(ref, nil, nil)
	return NewDispatcher(cache, interlock, ref, junctionAvoid, nil, nil)
}

// splitReply decodes a reply into its three fields.
func splitReply(t *testing.T, raw []byte) (string, string, string) {
	t.Helper()
	parts := strings.SplitN(string(raw), ";", 3)
	if len(parts) != 3 {
		t.Fatalf("reply %q is not a 3-field wire message", raw)
	}
	return parts[0], parts[1], parts[2]
}

func TestHandleLogin(t *testing.T) {
	d := newTestDispatcher(t, nil, false)
	reply := d.Handle(context.Background(), []byte("GET;login;{}"))
	if string(reply) != `REP;login;{"state":"ready"}` {
		t.Fatalf("login reply = %q", reply)
	}
}

func TestHandleEmptyDatagramIsSentinel(t *testing.T) {
	d := newTestDispatcher(t, nil, false)
	if reply := d.Handle(context.Background(), nil); reply != nil {
		t.Fatalf("empty datagram reply = %q, want none", reply)
	}
}

func TestHandleUnknownTypeDenies(t *testing.T) {
	d := newTestDispatcher(t, nil, false)
	reply := d.Handle(context.Background(), []byte("GET;bogus;{}"))
	if string(reply) != "REP;deny;{}" {
		t.Fatalf("reply = %q, want deny", reply)
	}
}

func TestHandleMalformedDatagramDenies(t *testing.T) {
	d := newTestDispatcher(t, nil, false)
	reply := d.Handle(context.Background(), []byte("garbage with no separators"))
	if string(reply) != "REP;deny;{}" {
		t.Fatalf("reply = %q, want deny", reply)
	}
}

func TestHandleFetchSensorsEchoesRequestedKeys(t *testing.T) {
	eng := engine.NewStatic()
	eng.SetSensorStates(model.WELine, []int{1, 0, 1})
	d := newTestDispatcher(t, eng, false)

	reply := d.Handle(context.Background(), []byte(`GET;sensors;{"weline":null,"extra":5}`))
	key, typ, body := splitReply(t, reply)
	if key != "REP" || typ != "sensors" {
		t.Fatalf("reply header = %s;%s", key, typ)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("reply body unmarshal: %v", err)
	}
	we, ok := got["weline"].([]any)
	if !ok || len(we) != 3 || we[0] != float64(1) {
		t.Fatalf("weline = %v", got["weline"])
	}
	if got["extra"] != float64(5) {
		t.Fatalf("extra key not echoed: %v", got["extra"])
	}
	if _, present := got["nsline"]; present {
		t.Fatalf("unrequested line present in reply")
	}
}

func TestHandleFetchTrainTelemetry(t *testing.T) {
	eng := engine.NewStatic()
	eng.AddTrain(model.MTLine, engine.NewStaticTrain(1, model.TrainInfo{
		FaultSensor: 1,
		Speed:       42,
		Voltage:     fv(750),
	}))
	d := newTestDispatcher(t, eng, false)

	reply := d.Handle(context.Background(), []byte(`GET;trainsRtu;{"mtline":null}`))
	_, _, body := splitReply(t, reply)
	var got map[string][][]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("reply body unmarshal: %v", err)
	}
	rec := got["mtline"][0]
	if rec[0] != float64(1) || rec[1] != float64(42) || rec[2] != float64(750) || rec[3] != nil {
		t.Fatalf("telemetry record = %v", rec)
	}
}

func TestHandleFetchBadJSONFails(t *testing.T) {
	d := newTestDispatcher(t, engine.NewStatic(), false)
	reply := d.Handle(context.Background(), []byte(`GET;sensors;{not-json`))
	if string(reply) != `REP;sensors;{"result":"failed"}` {
		t.Fatalf("reply = %q", reply)
	}
}

func TestHandlePostSignals(t *testing.T) {
	eng := engine.NewStatic()
	d := newTestDispatcher(t, eng, false)

	reply := d.Handle(context.Background(), []byte(`POST;signals;{"weline-0":1}`))
	if string(reply) != `REP;signals;{"result":"success"}` {
		t.Fatalf("reply = %q", reply)
	}
	if v, ok := eng.Signal("weline-0"); !ok || v != float64(1) {
		t.Fatalf("signal not applied: %v %v", v, ok)
	}
}

func TestHandlePostSignalsJunctionAvoidSkipsWrite(t *testing.T) {
	eng := engine.NewStatic()
	d := newTestDispatcher(t, eng, true)

	reply := d.Handle(context.Background(), []byte(`POST;signals;{"weline-0":1}`))
	if string(reply) != `REP;signals;{"result":"success"}` {
		t.Fatalf("reply = %q, junction avoidance must still report success", reply)
	}
	if _, ok := eng.Signal("weline-0"); ok {
		t.Fatalf("signal write must be skipped in junction-avoidance mode")
	}
}

func TestHandlePostWithoutEngineFails(t *testing.T) {
	d := newTestDispatcher(t, nil, false)
	reply := d.Handle(context.Background(), []byte(`POST;stations;{"st-1":1}`))
	if string(reply) != `REP;stations;{"result":"failed"}` {
		t.Fatalf("reply = %q", reply)
	}
}

func TestHandlePostStationsAndTrainPower(t *testing.T) {
	eng := engine.NewStatic()
	d := newTestDispatcher(t, eng, false)

	d.Handle(context.Background(), []byte(`POST;stations;{"st-1":1}`))
	if _, ok := eng.Signal("station/st-1"); !ok {
		t.Fatalf("station signal not applied")
	}

	d.Handle(context.Background(), []byte(`POST;trainsPlc;{"we-0":0}`))
	if _, ok := eng.Signal("train/we-0"); !ok {
		t.Fatalf("train power not applied")
	}
}

func TestHandlePowerLinkPushStopsTrains(t *testing.T) {
	eng := engine.NewStatic()
	tr := engine.NewStaticTrain(1, model.TrainInfo{})
	eng.AddTrain(model.WELine, tr)
	d := newTestDispatcher(t, eng, false)

	reply := d.Handle(context.Background(), []byte(`POST;powerLink;{"railway": 0}`))
	if string(reply) != `REP;powerLink;{"result":"success"}` {
		t.Fatalf("reply = %q", reply)
	}
	if !tr.Stopped() {
		t.Fatalf("train not emergency-stopped on railway=0")
	}

	d.Handle(context.Background(), []byte(`POST;powerLink;{"railway": 1}`))
	if tr.Stopped() {
		t.Fatalf("train not released on railway=1")
	}
}

func TestHandlePowerLinkBadJSONFails(t *testing.T) {
	d := newTestDispatcher(t, engine.NewStatic(), false)
	reply := d.Handle(context.Background(), []byte(`POST;powerLink;oops`))
	if string(reply) != `REP;powerLink;{"result":"failed"}` {
		t.Fatalf("reply = %q", reply)
	}
}

func TestRailwayFlagSemantics(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{`{}`, true},              // absent defaults to powered
		{`{"railway": null}`, false},
		{`{"railway": true}`, true},
		{`{"railway": false}`, false},
		{`{"railway": 1}`, true},
		{`{"railway": 0}`, false},
		{`{"railway": "1"}`, true},
		{`{"railway": ""}`, false},
	}
	for _, tc := range cases {
		req := map[string]any{}
		if err := json.Unmarshal([]byte(tc.body), &req); err != nil {
			t.Fatalf("unmarshal %q: %v", tc.body, err)
		}
		if got := railwayFlag(req); got != tc.want {
			t.Fatalf("railwayFlag(%s) = %v, want %v", tc.body, got, tc.want)
		}
	}
}
