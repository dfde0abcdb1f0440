package builtins

import (
	"simkernel/internal/rv"
	"simkernel/internal/strategy"
)

// DeadReckoningEstimator is the simplest strategy.StateEstimator that
// still respects the trait's contract: PredictionStep trusts the node's
// own reported pose as ego ground truth (no filtering), and
// CorrectionStep folds each observation tagged "object" into the
// WorldState's Objects map keyed by the observation's source, so a
// navigator has something to react to even with no real sensor fusion.
type DeadReckoningEstimator struct {
	period   float64
	world    strategy.WorldState
	nextFire float64
}

// NewDeadReckoningEstimator builds a DeadReckoningEstimator. period is how
// often PredictionStep wants to run.
func NewDeadReckoningEstimator(params map[string]any, _ *rv.Stream) (strategy.StateEstimator, error) {
	period := floatParam(params, "period", 0.05)
	return &DeadReckoningEstimator{period: period, world: strategy.WorldState{Objects: make(map[string]strategy.State)}}, nil
}

func (e *DeadReckoningEstimator) PreLoopHook(node strategy.NodeHandle, now float32) error { return nil }

func (e *DeadReckoningEstimator) PredictionStep(node strategy.NodeHandle, now float32) error {
	ego := strategy.State{Position: node.Position()}
	e.world.Ego = &ego
	e.nextFire = float64(now) + e.period
	return nil
}

func (e *DeadReckoningEstimator) CorrectionStep(node strategy.NodeHandle, observations []strategy.Observation, now float32) error {
	for _, obs := range observations {
		if obs.Kind != "object" {
			continue
		}
		x, _ := obs.Fields["x"].(float64)
		y, _ := obs.Fields["y"].(float64)
		theta, _ := obs.Fields["theta"].(float64)
		e.world.Objects[obs.Observer] = strategy.State{Position: strategy.Position{X: x, Y: y, Theta: theta}}
	}
	return nil
}

func (e *DeadReckoningEstimator) WorldState() strategy.WorldState { return e.world }

func (e *DeadReckoningEstimator) NextTimeStep() float32 { return float32(e.nextFire) }

func (e *DeadReckoningEstimator) Record() strategy.Record {
	fields := map[string]any{"tracked_objects": len(e.world.Objects)}
	if e.world.Ego != nil {
		fields["ego_position"] = e.world.Ego.Position
	}
	return strategy.NewRecord("dead-reckoning", fields)
}
