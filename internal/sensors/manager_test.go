package sensors

import (
	"testing"

	"simkernel/internal/pathkey"
	"simkernel/internal/strategy"
)

type fakeHandle struct{ name string }

func (f fakeHandle) Name() string                  { return f.name }
func (f fakeHandle) Position() strategy.Position    { return strategy.Position{} }
func (f fakeHandle) Publish(pathkey.Key, map[string]any, float32) error { return nil }
func (f fakeHandle) Subscribe(pathkey.Key, bool)                       {}
func (f fakeHandle) Inbox(pathkey.Key) []map[string]any                { return nil }
func (f fakeHandle) Call(string, string, map[string]any, float32, float32, int) (map[string]any, error) {
	return nil, nil
}
func (f fakeHandle) LogError(string, map[string]any)   {}
func (f fakeHandle) LogWarning(string, map[string]any) {}
func (f fakeHandle) LogInfo(string, map[string]any)    {}
func (f fakeHandle) LogDebug(string, map[string]any)   {}

type constantSensor struct {
	name  string
	value float64
	calls int
}

func (s *constantSensor) Name() string { return s.name }
func (s *constantSensor) GetObservations(node strategy.NodeHandle, now float32) []strategy.Observation {
	s.calls++
	return []strategy.Observation{{Kind: s.name, Fields: map[string]any{"value": s.value}}}
}

type dropBelowFilter struct{ threshold float64 }

func (d dropBelowFilter) Apply(obs strategy.Observation) (strategy.Observation, bool) {
	if v, ok := obs.Fields["value"].(float64); ok && v < d.threshold {
		return obs, false
	}
	return obs, true
}

type duplicateFault struct{}

func (duplicateFault) AddFaults(now float32, seed uint64, period float64, obs []strategy.Observation, tag string, env map[string]any) []strategy.Observation {
	if len(obs) == 0 {
		return obs
	}
	return append(obs, obs[0])
}

func TestManagerFiresOnSchedule(t *testing.T) {
	m := New(1, nil)
	sensor := &constantSensor{name: "lidar", value: 5}
	m.AddSensor(sensor, NewPeriodicity(1.0, 0), nil, nil)

	if n := m.MakeObservations(fakeHandle{"robot-a"}, 0); n != 1 {
		t.Fatalf("MakeObservations(0) = %d, want 1", n)
	}
	if n := m.MakeObservations(fakeHandle{"robot-a"}, 0.5); n != 0 {
		t.Fatalf("MakeObservations(0.5) = %d, want 0 (not yet due)", n)
	}
	if n := m.MakeObservations(fakeHandle{"robot-a"}, 1.0); n != 1 {
		t.Fatalf("MakeObservations(1.0) = %d, want 1", n)
	}
	if sensor.calls != 2 {
		t.Fatalf("expected sensor to fire exactly twice, got %d", sensor.calls)
	}
}

func TestFilterDropsObservation(t *testing.T) {
	m := New(1, nil)
	m.AddSensor(&constantSensor{name: "lidar", value: 1}, NewPeriodicity(1.0, 0), []Filter{dropBelowFilter{threshold: 5}}, nil)

	if n := m.MakeObservations(fakeHandle{"robot-a"}, 0); n != 0 {
		t.Fatalf("expected the filter to drop the low-value observation, got %d survivors", n)
	}
	if got := m.GetObservations(); len(got) != 0 {
		t.Fatalf("expected no pending observations, got %d", len(got))
	}
}

func TestFaultModelCanDuplicate(t *testing.T) {
	m := New(1, nil)
	m.AddSensor(&constantSensor{name: "lidar", value: 9}, NewPeriodicity(1.0, 0), nil, []FaultModel{duplicateFault{}})

	if n := m.MakeObservations(fakeHandle{"robot-a"}, 0); n != 2 {
		t.Fatalf("expected duplicateFault to double the observation, got %d", n)
	}
	got := m.GetObservations()
	if len(got) != 2 {
		t.Fatalf("GetObservations() returned %d, want 2", len(got))
	}
	for _, o := range got {
		if o.Sensor != "lidar" || o.Observer != "robot-a" {
			t.Fatalf("observation not tagged correctly: %+v", o)
		}
	}
	if len(m.GetObservations()) != 0 {
		t.Fatalf("expected GetObservations to empty the pending list")
	}
}

func TestManualTriggerForcesOffScheduleFiring(t *testing.T) {
	m := New(1, nil)
	sensor := &constantSensor{name: "button", value: 1}
	m.AddSensor(sensor, NewPeriodicity(100.0, 50.0), nil, nil)

	if n := m.MakeObservations(fakeHandle{"robot-a"}, 0); n != 0 {
		t.Fatalf("sensor should not fire before its offset, got %d", n)
	}
	m.Trigger("button")
	if drained := m.HandleMessages(0); drained != 1 {
		t.Fatalf("HandleMessages() = %d, want 1", drained)
	}
	if n := m.MakeObservations(fakeHandle{"robot-a"}, 0); n != 1 {
		t.Fatalf("expected manual trigger to force firing at now=0, got %d", n)
	}
}

func TestNextTimeStepReportsSoonestSensor(t *testing.T) {
	m := New(1, nil)
	if _, ok := m.NextTimeStep(); ok {
		t.Fatalf("expected no schedule on an empty manager")
	}
	m.AddSensor(&constantSensor{name: "slow"}, NewPeriodicity(5.0, 5.0), nil, nil)
	m.AddSensor(&constantSensor{name: "fast"}, NewPeriodicity(1.0, 0.2), nil, nil)

	ts, ok := m.NextTimeStep()
	if !ok || ts != 0.2 {
		t.Fatalf("NextTimeStep() = %v, %v; want 0.2, true", ts, ok)
	}
}
