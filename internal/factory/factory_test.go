package factory

import (
	"testing"

	"simkernel/internal/broker"
	"simkernel/internal/config"
	"simkernel/internal/node"
	"simkernel/internal/rv"
	"simkernel/internal/sensors"
	"simkernel/internal/servicebus"
	"simkernel/internal/strategy"
)

type stubPhysics struct{}

func (stubPhysics) PostInit(strategy.NodeHandle) error            { return nil }
func (stubPhysics) ApplyCommand(strategy.Command, float32) error { return nil }
func (stubPhysics) UpdateState(float32) error                    { return nil }
func (stubPhysics) State(float32) strategy.State                 { return strategy.State{} }
func (stubPhysics) NextTimeStep() (float32, bool)                 { return 0, false }
func (stubPhysics) Record() strategy.Record                      { return strategy.NewRecord("stub", nil) }

type stubSensor struct{ name string }

func (s stubSensor) Name() string { return s.name }
func (s stubSensor) GetObservations(strategy.NodeHandle, float32) []strategy.Observation {
	return nil
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.RegisterPhysics("stub", func(map[string]any, *rv.Stream) (strategy.Physics, error) {
		return stubPhysics{}, nil
	})
	r.RegisterSensor("stub-sensor", func(cfg config.SensorConfig, rng *rv.Stream) (sensors.Sensor, error) {
		return stubSensor{name: cfg.Name}, nil
	})
	return r
}

func TestBuildConstructsAndAutospawnsNodes(t *testing.T) {
	r := newTestRegistry()
	b := broker.New()
	bus := servicebus.New()
	registry := node.NewRegistry()

	scenario := &config.Scenario{
		DurationSeconds: 10,
		Seed:            42,
		Nodes: []config.NodeConfig{
			{
				Name:      "object-a",
				Kind:      config.KindObject,
				Physics:   &config.StrategyConfig{Variant: "stub"},
				AutoSpawn: true,
			},
		},
	}

	nodes, err := r.Build(scenario, b, bus, registry)
	if err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	if nodes[0].State() != node.Running {
		t.Fatalf("expected autospawned node to be Running, got %s", nodes[0].State())
	}
}

func TestBuildRejectsUnknownVariant(t *testing.T) {
	r := newTestRegistry()
	b := broker.New()
	bus := servicebus.New()
	registry := node.NewRegistry()

	scenario := &config.Scenario{
		DurationSeconds: 10,
		Nodes: []config.NodeConfig{
			{Name: "object-a", Kind: config.KindObject, Physics: &config.StrategyConfig{Variant: "missing"}},
		},
	}

	if _, err := r.Build(scenario, b, bus, registry); err == nil {
		t.Fatalf("expected Build() to reject an unregistered physics variant")
	}
}

func TestBuildWiresSensors(t *testing.T) {
	r := newTestRegistry()
	b := broker.New()
	bus := servicebus.New()
	registry := node.NewRegistry()

	scenario := &config.Scenario{
		DurationSeconds: 10,
		Seed:            7,
		Nodes: []config.NodeConfig{
			{
				Name:    "robot-a",
				Kind:    config.KindSensor,
				Sensors: []config.SensorConfig{{Name: "lidar", Variant: "stub-sensor", Period: 1}},
			},
		},
	}
	nodes, err := r.Build(scenario, b, bus, registry)
	if err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
}
