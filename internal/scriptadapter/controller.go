package scriptadapter

import (
	"context"
	"net/http"

	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// Controller adapts a scripted Controller.
type Controller struct {
	*Adapter
}

// NewController builds a scripted Controller adapter.
func NewController(endpoint, node string, client *http.Client) (*Controller, error) {
	a, err := New(endpoint, node, "controller", client)
	if err != nil {
		return nil, err
	}
	return &Controller{Adapter: a}, nil
}

func (c *Controller) PreLoopHook(node strategy.NodeHandle, now float32) error {
	_, err := c.call(context.Background(), "pre_loop_hook", now, handleToParams(node))
	return err
}

func (c *Controller) MakeCommand(node strategy.NodeHandle, cerr strategy.ControllerError, now float32) (strategy.Command, error) {
	params := handleToParams(node)
	params["controller_error"] = cerr
	result, err := c.call(context.Background(), "make_command", now, params)
	if err != nil {
		return strategy.Command{}, err
	}
	var cmd strategy.Command
	if err := decodeInto(result["command"], &cmd); err != nil {
		return strategy.Command{}, simerr.ExternalAPI("scriptadapter: controller make_command: decode command: %v", err)
	}
	return cmd, nil
}

func (c *Controller) NextTimeStep() (float32, bool) {
	result, err := c.call(context.Background(), "next_time_step", 0, nil)
	if err != nil {
		return 0, false
	}
	t, ok := result["next_time_step"].(float64)
	if !ok {
		return 0, false
	}
	return float32(t), true
}

func (c *Controller) Record() strategy.Record {
	result, err := c.call(context.Background(), "record", 0, nil)
	if err != nil {
		return strategy.NewRecord("scripted-controller", map[string]any{"error": err.Error()})
	}
	return strategy.NewRecord("scripted-controller", result)
}
