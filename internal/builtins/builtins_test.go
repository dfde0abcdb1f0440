package builtins

import (
	"math"
	"testing"

	"simkernel/internal/pathkey"
	"simkernel/internal/strategy"
)

type fakeHandle struct {
	name string
	pos  strategy.Position
}

func (f fakeHandle) Name() string                                      { return f.name }
func (f fakeHandle) Position() strategy.Position                       { return f.pos }
func (f fakeHandle) Publish(pathkey.Key, map[string]any, float32) error { return nil }
func (f fakeHandle) Subscribe(pathkey.Key, bool)                        {}
func (f fakeHandle) Call(string, string, map[string]any, float32, float32, int) (map[string]any, error) {
	return nil, nil
}
func (f fakeHandle) Inbox(pathkey.Key) []map[string]any { return nil }
func (f fakeHandle) LogError(string, map[string]any)    {}
func (f fakeHandle) LogWarning(string, map[string]any)  {}
func (f fakeHandle) LogInfo(string, map[string]any)     {}
func (f fakeHandle) LogDebug(string, map[string]any)    {}

func TestDefaultGainsLoadsEmbeddedPayload(t *testing.T) {
	gains := DefaultGains()
	if gains.Proportional <= 0 {
		t.Fatalf("expected a positive default proportional gain, got %v", gains.Proportional)
	}
}

func TestUnicyclePhysicsDrivesForwardOnSymmetricCommand(t *testing.T) {
	physics, err := NewUnicyclePhysics(map[string]any{"period": 1.0}, nil)
	if err != nil {
		t.Fatalf("NewUnicyclePhysics() returned error: %v", err)
	}
	if err := physics.PostInit(fakeHandle{name: "object-a"}); err != nil {
		t.Fatalf("PostInit() returned error: %v", err)
	}
	if err := physics.ApplyCommand(strategy.NewUnicycleCommand(1, 1), 0); err != nil {
		t.Fatalf("ApplyCommand() returned error: %v", err)
	}
	if err := physics.UpdateState(0); err != nil {
		t.Fatalf("UpdateState() returned error: %v", err)
	}
	state := physics.State(0)
	if state.Position.X <= 0 || math.Abs(state.Position.Y) > 1e-9 {
		t.Fatalf("expected the robot to move straight forward along X, got %+v", state.Position)
	}
}

func TestWaypointNavigatorPointsTowardTarget(t *testing.T) {
	nav, err := NewWaypointNavigator(map[string]any{"target_x": 10.0, "target_y": 0.0}, nil)
	if err != nil {
		t.Fatalf("NewWaypointNavigator() returned error: %v", err)
	}
	world := strategy.WorldState{Ego: &strategy.State{Position: strategy.Position{X: 0, Y: 0, Theta: 0}}}
	cerr, err := nav.ComputeError(fakeHandle{}, world)
	if err != nil {
		t.Fatalf("ComputeError() returned error: %v", err)
	}
	if cerr.Longitudinal <= 0 {
		t.Fatalf("expected positive longitudinal error toward a target ahead, got %v", cerr.Longitudinal)
	}
	if math.Abs(cerr.Theta) > 1e-9 {
		t.Fatalf("expected near-zero heading error when already facing the target, got %v", cerr.Theta)
	}
}

func TestWaypointNavigatorRejectsMissingEgoEstimate(t *testing.T) {
	nav, err := NewWaypointNavigator(nil, nil)
	if err != nil {
		t.Fatalf("NewWaypointNavigator() returned error: %v", err)
	}
	if _, err := nav.ComputeError(fakeHandle{}, strategy.WorldState{}); err == nil {
		t.Fatalf("expected an error when WorldState has no Ego estimate")
	}
}

func TestPIDControllerProducesSymmetricCommandForZeroHeadingError(t *testing.T) {
	ctrl, err := NewPIDController(nil, nil)
	if err != nil {
		t.Fatalf("NewPIDController() returned error: %v", err)
	}
	cmd, err := ctrl.MakeCommand(fakeHandle{}, strategy.ControllerError{Longitudinal: 1, Theta: 0}, 0)
	if err != nil {
		t.Fatalf("MakeCommand() returned error: %v", err)
	}
	if cmd.Kind != strategy.CommandUnicycle || cmd.Unicycle == nil {
		t.Fatalf("expected a unicycle command, got %+v", cmd)
	}
	if cmd.Unicycle.LeftWheel != cmd.Unicycle.RightWheel {
		t.Fatalf("expected symmetric wheel speeds for zero heading error, got %+v", cmd.Unicycle)
	}
}

func TestDeadReckoningEstimatorTracksEgoAndObjects(t *testing.T) {
	est, err := NewDeadReckoningEstimator(nil, nil)
	if err != nil {
		t.Fatalf("NewDeadReckoningEstimator() returned error: %v", err)
	}
	handle := fakeHandle{name: "object-a", pos: strategy.Position{X: 3, Y: 4}}
	if err := est.PredictionStep(handle, 1); err != nil {
		t.Fatalf("PredictionStep() returned error: %v", err)
	}
	world := est.WorldState()
	if world.Ego == nil || world.Ego.Position.X != 3 {
		t.Fatalf("expected ego position to mirror the node's own pose, got %+v", world.Ego)
	}

	obs := []strategy.Observation{{Observer: "object-b", Kind: "object", Fields: map[string]any{"x": 5.0, "y": 6.0}}}
	if err := est.CorrectionStep(handle, obs, 1); err != nil {
		t.Fatalf("CorrectionStep() returned error: %v", err)
	}
	world = est.WorldState()
	if _, ok := world.Objects["object-b"]; !ok {
		t.Fatalf("expected object-b to be tracked after correction, got %+v", world.Objects)
	}
}
