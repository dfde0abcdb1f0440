package builtins

import (
	"math"

	"simkernel/internal/rv"
	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// WaypointNavigator drives toward a single fixed (x, y) target, reporting
// the longitudinal/lateral/heading error in the robot's own frame the way
// a Controller expects.
type WaypointNavigator struct {
	targetX, targetY float64
}

// NewWaypointNavigator builds a WaypointNavigator from its target_x/target_y
// params.
func NewWaypointNavigator(params map[string]any, _ *rv.Stream) (strategy.Navigator, error) {
	return &WaypointNavigator{
		targetX: floatParam(params, "target_x", 0),
		targetY: floatParam(params, "target_y", 0),
	}, nil
}

func (n *WaypointNavigator) PreLoopHook(node strategy.NodeHandle, now float32) error { return nil }

func (n *WaypointNavigator) ComputeError(node strategy.NodeHandle, world strategy.WorldState) (strategy.ControllerError, error) {
	if world.Ego == nil {
		return strategy.ControllerError{}, simerr.Implementation("waypoint navigator: world state has no ego estimate")
	}
	dx := n.targetX - world.Ego.Position.X
	dy := n.targetY - world.Ego.Position.Y
	theta := world.Ego.Position.Theta

	cos, sin := math.Cos(theta), math.Sin(theta)
	longitudinal := dx*cos + dy*sin
	lateral := -dx*sin + dy*cos
	headingToTarget := math.Atan2(dy, dx)
	headingError := strategy.NormalizeTheta(headingToTarget - theta)

	return strategy.ControllerError{
		Longitudinal: longitudinal,
		Lateral:      lateral,
		Theta:        headingError,
		Velocity:     math.Hypot(dx, dy),
	}, nil
}

// NextTimeStep reports no schedule of its own: a waypoint navigator only
// ever reacts when the estimator's own prediction schedule drives the
// control loop (spec §4.6 step viii/xiii sets doControlLoop), rather than
// independently forcing a run on every node step.
func (n *WaypointNavigator) NextTimeStep() (float32, bool) { return 0, false }

func (n *WaypointNavigator) Record() strategy.Record {
	return strategy.NewRecord("waypoint", map[string]any{"target_x": n.targetX, "target_y": n.targetY})
}
