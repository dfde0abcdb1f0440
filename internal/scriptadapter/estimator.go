package scriptadapter

import (
	"context"
	"encoding/json"
	"net/http"

	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// Estimator adapts a scripted StateEstimator. It caches the last decoded
// WorldState and NextTimeStep locally since strategy.StateEstimator.
// WorldState/NextTimeStep take no context and must return synchronously.
type Estimator struct {
	*Adapter
	world    strategy.WorldState
	nextTime float32
}

// NewEstimator builds a scripted StateEstimator adapter.
func NewEstimator(endpoint, node string, client *http.Client) (*Estimator, error) {
	a, err := New(endpoint, node, "estimator", client)
	if err != nil {
		return nil, err
	}
	return &Estimator{Adapter: a}, nil
}

func (e *Estimator) PreLoopHook(node strategy.NodeHandle, now float32) error {
	_, err := e.call(context.Background(), "pre_loop_hook", now, handleToParams(node))
	return err
}

func (e *Estimator) PredictionStep(node strategy.NodeHandle, now float32) error {
	result, err := e.call(context.Background(), "prediction_step", now, handleToParams(node))
	if err != nil {
		return err
	}
	return e.absorbPredictionResult(result)
}

func (e *Estimator) absorbPredictionResult(result map[string]any) error {
	if err := decodeInto(result["world_state"], &e.world); err != nil {
		return simerr.ExternalAPI("scriptadapter: estimator prediction_step: decode world_state: %v", err)
	}
	if t, ok := result["next_time_step"].(float64); ok {
		e.nextTime = float32(t)
	}
	return nil
}

func (e *Estimator) CorrectionStep(node strategy.NodeHandle, observations []strategy.Observation, now float32) error {
	params := handleToParams(node)
	params["observations"] = observations
	result, err := e.call(context.Background(), "correction_step", now, params)
	if err != nil {
		return err
	}
	if result["world_state"] != nil {
		if err := decodeInto(result["world_state"], &e.world); err != nil {
			return simerr.ExternalAPI("scriptadapter: estimator correction_step: decode world_state: %v", err)
		}
	}
	return nil
}

func (e *Estimator) WorldState() strategy.WorldState { return e.world }

func (e *Estimator) NextTimeStep() float32 { return e.nextTime }

func (e *Estimator) Record() strategy.Record {
	result, err := e.call(context.Background(), "record", 0, nil)
	if err != nil {
		return strategy.NewRecord("scripted-estimator", map[string]any{"error": err.Error()})
	}
	return strategy.NewRecord("scripted-estimator", result)
}

func decodeInto(src any, dst any) error {
	if src == nil {
		return nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
