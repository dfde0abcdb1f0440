package scriptadapter

import (
	"context"
	"net/http"

	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// Navigator adapts a scripted Navigator.
type Navigator struct {
	*Adapter
}

// NewNavigator builds a scripted Navigator adapter.
func NewNavigator(endpoint, node string, client *http.Client) (*Navigator, error) {
	a, err := New(endpoint, node, "navigator", client)
	if err != nil {
		return nil, err
	}
	return &Navigator{Adapter: a}, nil
}

func (n *Navigator) PreLoopHook(node strategy.NodeHandle, now float32) error {
	_, err := n.call(context.Background(), "pre_loop_hook", now, handleToParams(node))
	return err
}

func (n *Navigator) ComputeError(node strategy.NodeHandle, world strategy.WorldState) (strategy.ControllerError, error) {
	params := handleToParams(node)
	params["world_state"] = world
	result, err := n.call(context.Background(), "compute_error", 0, params)
	if err != nil {
		return strategy.ControllerError{}, err
	}
	var cerr strategy.ControllerError
	if err := decodeInto(result["controller_error"], &cerr); err != nil {
		return strategy.ControllerError{}, simerr.ExternalAPI("scriptadapter: navigator compute_error: decode controller_error: %v", err)
	}
	return cerr, nil
}

func (n *Navigator) NextTimeStep() (float32, bool) {
	result, err := n.call(context.Background(), "next_time_step", 0, nil)
	if err != nil {
		return 0, false
	}
	t, ok := result["next_time_step"].(float64)
	if !ok {
		return 0, false
	}
	return float32(t), true
}

func (n *Navigator) Record() strategy.Record {
	result, err := n.call(context.Background(), "record", 0, nil)
	if err != nil {
		return strategy.NewRecord("scripted-navigator", map[string]any{"error": err.Error()})
	}
	return strategy.NewRecord("scripted-navigator", result)
}
