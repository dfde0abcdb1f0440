package scriptadapter

import (
	"net/http"

	"simkernel/internal/factory"
	"simkernel/internal/rv"
	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// Each of the four variant names below resolves to a scripted strategy
// reached over HTTP, so a scenario can mix native internal/builtins
// strategies with out-of-process ones on a per-node, per-trait basis.
// params must carry "endpoint" (the script's URL); "node" is an optional
// label threaded through every request for the script's own logging (it
// need not match the node's actual name, since the adapter never uses it
// for anything but the outgoing request envelope).
const Variant = "scripted"

func endpointFrom(params map[string]any) (string, string, error) {
	endpoint, _ := params["endpoint"].(string)
	if endpoint == "" {
		return "", "", simerr.Config("scriptadapter: params.endpoint is required")
	}
	node, _ := params["node"].(string)
	return endpoint, node, nil
}

// RegisterDefaults wires the "scripted" variant into every one of the
// registry's four trait kinds, so a scenario author opts a node's physics,
// navigator, controller, or estimator into the plugin boundary just by
// naming the variant, the same way internal/builtins' native variants are
// selected.
func RegisterDefaults(registry *factory.Registry, client *http.Client) {
	registry.RegisterPhysics(Variant, func(params map[string]any, _ *rv.Stream) (strategy.Physics, error) {
		endpoint, node, err := endpointFrom(params)
		if err != nil {
			return nil, err
		}
		return NewPhysics(endpoint, node, client)
	})
	registry.RegisterNavigator(Variant, func(params map[string]any, _ *rv.Stream) (strategy.Navigator, error) {
		endpoint, node, err := endpointFrom(params)
		if err != nil {
			return nil, err
		}
		return NewNavigator(endpoint, node, client)
	})
	registry.RegisterController(Variant, func(params map[string]any, _ *rv.Stream) (strategy.Controller, error) {
		endpoint, node, err := endpointFrom(params)
		if err != nil {
			return nil, err
		}
		return NewController(endpoint, node, client)
	})
	registry.RegisterEstimator(Variant, func(params map[string]any, _ *rv.Stream) (strategy.StateEstimator, error) {
		endpoint, node, err := endpointFrom(params)
		if err != nil {
			return nil, err
		}
		return NewEstimator(endpoint, node, client)
	})
}
