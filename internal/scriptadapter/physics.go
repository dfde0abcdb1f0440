package scriptadapter

import (
	"context"
	"net/http"

	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// Physics adapts a scripted Physics implementation. State is cached
// locally since strategy.Physics.State takes no context and must return
// synchronously.
type Physics struct {
	*Adapter
	state strategy.State
}

// NewPhysics builds a scripted Physics adapter.
func NewPhysics(endpoint, node string, client *http.Client) (*Physics, error) {
	a, err := New(endpoint, node, "physics", client)
	if err != nil {
		return nil, err
	}
	return &Physics{Adapter: a}, nil
}

func (p *Physics) PostInit(node strategy.NodeHandle) error {
	result, err := p.call(context.Background(), "post_init", 0, handleToParams(node))
	if err != nil {
		return err
	}
	if result["state"] != nil {
		if err := decodeInto(result["state"], &p.state); err != nil {
			return simerr.ExternalAPI("scriptadapter: physics post_init: decode state: %v", err)
		}
	}
	return nil
}

func (p *Physics) ApplyCommand(cmd strategy.Command, now float32) error {
	_, err := p.call(context.Background(), "apply_command", now, map[string]any{"command": cmd})
	return err
}

func (p *Physics) UpdateState(now float32) error {
	result, err := p.call(context.Background(), "update_state", now, nil)
	if err != nil {
		return err
	}
	if err := decodeInto(result["state"], &p.state); err != nil {
		return simerr.ExternalAPI("scriptadapter: physics update_state: decode state: %v", err)
	}
	return nil
}

func (p *Physics) State(now float32) strategy.State { return p.state }

func (p *Physics) NextTimeStep() (float32, bool) {
	result, err := p.call(context.Background(), "next_time_step", 0, nil)
	if err != nil {
		return 0, false
	}
	t, ok := result["next_time_step"].(float64)
	if !ok {
		return 0, false
	}
	return float32(t), true
}

func (p *Physics) Record() strategy.Record {
	result, err := p.call(context.Background(), "record", 0, nil)
	if err != nil {
		return strategy.NewRecord("scripted-physics", map[string]any{"error": err.Error()})
	}
	return strategy.NewRecord("scripted-physics", result)
}
