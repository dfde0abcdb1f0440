package builtins

import (
	"testing"

	"simkernel/internal/config"
	"simkernel/internal/rv"
	"simkernel/internal/strategy"
)

func TestPoseSensorReportsOwnPositionWithoutNoise(t *testing.T) {
	sensor, err := NewPoseSensor(config.SensorConfig{Name: "pose"}, nil)
	if err != nil {
		t.Fatalf("NewPoseSensor() returned error: %v", err)
	}
	handle := fakeHandle{name: "object-a", pos: strategy.Position{X: 1, Y: 2, Theta: 0.5}}
	obs := sensor.GetObservations(handle, 0)
	if len(obs) != 1 || obs[0].Kind != "pose" {
		t.Fatalf("expected a single pose observation, got %+v", obs)
	}
	if obs[0].Fields["x"] != 1.0 || obs[0].Fields["y"] != 2.0 {
		t.Fatalf("expected noiseless pose fields to mirror the node pose, got %+v", obs[0].Fields)
	}
}

func TestFieldRangeFilterDropsOutOfBoundsObservations(t *testing.T) {
	filter, err := NewFieldRangeFilter(map[string]any{"field": "x", "min": 0.0, "max": 10.0})
	if err != nil {
		t.Fatalf("NewFieldRangeFilter() returned error: %v", err)
	}
	if _, ok := filter.Apply(strategy.Observation{Fields: map[string]any{"x": 5.0}}); !ok {
		t.Fatalf("expected an in-bounds observation to survive")
	}
	if _, ok := filter.Apply(strategy.Observation{Fields: map[string]any{"x": 50.0}}); ok {
		t.Fatalf("expected an out-of-bounds observation to be dropped")
	}
}

func TestDropoutFaultModelIsDeterministicForAGivenSeed(t *testing.T) {
	fault, err := NewDropoutFaultModel(map[string]any{"probability": 0.5})
	if err != nil {
		t.Fatalf("NewDropoutFaultModel() returned error: %v", err)
	}
	obs := []strategy.Observation{{Kind: "pose"}, {Kind: "pose"}, {Kind: "pose"}, {Kind: "pose"}}
	seed := rv.DeriveStepSeed(7, 1.0, 0)
	first := fault.AddFaults(1.0, seed, 0.1, append([]strategy.Observation(nil), obs...), "pose", nil)
	second := fault.AddFaults(1.0, seed, 0.1, append([]strategy.Observation(nil), obs...), "pose", nil)
	if len(first) != len(second) {
		t.Fatalf("expected identical seeds to drop the same count, got %d vs %d", len(first), len(second))
	}
}

func TestBiasFaultModelOffsetsNamedField(t *testing.T) {
	fault, err := NewBiasFaultModel(map[string]any{"field": "x", "bias": 1.5})
	if err != nil {
		t.Fatalf("NewBiasFaultModel() returned error: %v", err)
	}
	obs := []strategy.Observation{{Fields: map[string]any{"x": 2.0}}}
	out := fault.AddFaults(0, 1, 0, obs, "pose", nil)
	if out[0].Fields["x"] != 3.5 {
		t.Fatalf("expected biased field to be offset by 1.5, got %v", out[0].Fields["x"])
	}
}
