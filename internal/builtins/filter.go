package builtins

import (
	"simkernel/internal/sensors"
	"simkernel/internal/strategy"
)

// FieldRangeFilter drops an observation whose named numeric field falls
// outside [min, max]. Observations missing the field pass through
// unfiltered, since the gate only judges what it can read.
type FieldRangeFilter struct {
	field    string
	min, max float64
}

// NewFieldRangeFilter builds a FieldRangeFilter from filter-stage params.
func NewFieldRangeFilter(params map[string]any) (sensors.Filter, error) {
	field, _ := params["field"].(string)
	if field == "" {
		field = "x"
	}
	return &FieldRangeFilter{
		field: field,
		min:   floatParam(params, "min", -1e18),
		max:   floatParam(params, "max", 1e18),
	}, nil
}

// Apply implements sensors.Filter.
func (f *FieldRangeFilter) Apply(obs strategy.Observation) (strategy.Observation, bool) {
	raw, ok := obs.Fields[f.field]
	if !ok {
		return obs, true
	}
	v := floatParam(map[string]any{f.field: raw}, f.field, 0)
	if v < f.min || v > f.max {
		return obs, false
	}
	return obs, true
}
