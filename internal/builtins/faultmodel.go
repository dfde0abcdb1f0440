package builtins

import (
	"simkernel/internal/rv"
	"simkernel/internal/sensors"
	"simkernel/internal/strategy"
)

// DropoutFaultModel independently discards each observation with the
// configured probability, the baseline fault shape named in spec §4.4
// ("may ... delete ... observations"). Its draw is seeded from the seed the
// manager derives per (now, counter), per rv.DeriveStepSeed's contract, so
// identical seeds reproduce identical drops regardless of goroutine order.
type DropoutFaultModel struct {
	probability float64
}

// NewDropoutFaultModel builds a DropoutFaultModel from fault-stage params.
func NewDropoutFaultModel(params map[string]any) (sensors.FaultModel, error) {
	return &DropoutFaultModel{probability: floatParam(params, "probability", 0)}, nil
}

// AddFaults implements sensors.FaultModel.
func (d *DropoutFaultModel) AddFaults(now float32, seed uint64, period float64, observations []strategy.Observation, obsTypeTag string, environment map[string]any) []strategy.Observation {
	if d.probability <= 0 || len(observations) == 0 {
		return observations
	}
	stream := rv.NewSeededStream(seed)
	kept := make([]strategy.Observation, 0, len(observations))
	for _, obs := range observations {
		if stream.Bernoulli(d.probability) {
			continue
		}
		kept = append(kept, obs)
	}
	return kept
}

// BiasFaultModel adds a fixed offset to a named numeric field of every
// surviving observation, modelling a miscalibrated sensor (spec §4.4's
// "may mutate ... observations").
type BiasFaultModel struct {
	field string
	bias  float64
}

// NewBiasFaultModel builds a BiasFaultModel from fault-stage params.
func NewBiasFaultModel(params map[string]any) (sensors.FaultModel, error) {
	field, _ := params["field"].(string)
	if field == "" {
		field = "x"
	}
	return &BiasFaultModel{field: field, bias: floatParam(params, "bias", 0)}, nil
}

// AddFaults implements sensors.FaultModel.
func (b *BiasFaultModel) AddFaults(now float32, seed uint64, period float64, observations []strategy.Observation, obsTypeTag string, environment map[string]any) []strategy.Observation {
	if b.bias == 0 {
		return observations
	}
	for i := range observations {
		raw, ok := observations[i].Fields[b.field]
		if !ok {
			continue
		}
		v := floatParam(map[string]any{b.field: raw}, b.field, 0)
		observations[i].Fields[b.field] = v + b.bias
	}
	return observations
}
