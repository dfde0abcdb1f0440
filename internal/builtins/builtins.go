// Package builtins supplies reference implementations of the four
// pluggable strategy traits (internal/strategy) so a scenario can be run
// without an external or scripted collaborator: a unicycle physics model, a
// waypoint navigator, a PID controller, and a pass-through state estimator.
// Spec.md §1 treats concrete strategy bodies as external collaborators; these
// are the "comes with the kernel" defaults every example repo's domain
// needs something to exercise the factory and simulator end to end.
//
// Default tuning is loaded from an embedded JSON payload, grounded on the
// teacher's internal/gameplay/config.go `//go:embed` pattern for
// `VehicleStats`/`SkiffStats`, reused here for default PID/controller gains.
package builtins

import (
	"encoding/json"
	"sync"

	_ "embed"
)

// Gains bundles the default tuning for the builtin controller and
// navigator; a scenario may override any subset via its strategy params.
type Gains struct {
	Proportional float64 `json:"proportional"`
	Integral     float64 `json:"integral"`
	Derivative   float64 `json:"derivative"`
	MaxWheelSpeed float64 `json:"maxWheelSpeed"`
}

//go:embed default_gains.json
var defaultGainsPayload []byte

var (
	defaultGainsOnce sync.Once
	defaultGains     Gains
	defaultGainsErr  error
)

// DefaultGains exposes the cached default tuning, decoded exactly once.
func DefaultGains() Gains {
	defaultGainsOnce.Do(func() {
		//1.- Parse the embedded JSON payload exactly once in a threadsafe manner.
		defaultGainsErr = json.Unmarshal(defaultGainsPayload, &defaultGains)
	})
	//2.- Panic immediately on a malformed embedded payload: this is a build-time
	// asset, not user input, so silent divergence would be worse than a panic.
	if defaultGainsErr != nil {
		panic(defaultGainsErr)
	}
	//3.- Return a copy so callers cannot mutate the cached defaults.
	return defaultGains
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}
