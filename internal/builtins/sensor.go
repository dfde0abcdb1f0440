package builtins

import (
	"simkernel/internal/config"
	"simkernel/internal/rv"
	"simkernel/internal/sensors"
	"simkernel/internal/strategy"
)

// PoseSensor reports the node's own pose, perturbed by Gaussian noise, the
// simplest possible grounding of a GPS/odometry-style sensor. NodeHandle
// exposes only the owning node's own position (spec §1's handle contract
// has no fleet roster), so a self-pose sensor is the sensor this contract
// can build without inventing new plumbing; cross-node sensors (radar,
// proximity) are left for an external plugin to implement against the same
// Sensor interface.
type PoseSensor struct {
	name       string
	noiseXY    float64
	noiseTheta float64
	rng        *rv.Stream
}

// NewPoseSensor builds a PoseSensor from its scenario config entry.
func NewPoseSensor(cfg config.SensorConfig, rng *rv.Stream) (sensors.Sensor, error) {
	noiseXY := floatParam(cfg.Params, "noise_xy", 0.0)
	noiseTheta := floatParam(cfg.Params, "noise_theta", 0.0)
	name := cfg.Name
	if name == "" {
		name = "pose"
	}
	return &PoseSensor{name: name, noiseXY: noiseXY, noiseTheta: noiseTheta, rng: rng}, nil
}

// Name implements sensors.Sensor.
func (s *PoseSensor) Name() string { return s.name }

// GetObservations implements sensors.Sensor.
func (s *PoseSensor) GetObservations(node strategy.NodeHandle, now float32) []strategy.Observation {
	if node == nil {
		return nil
	}
	pos := node.Position()
	x, y, theta := pos.X, pos.Y, pos.Theta
	if s.noiseXY > 0 {
		x += s.rng.Normal(0, s.noiseXY)
		y += s.rng.Normal(0, s.noiseXY)
	}
	if s.noiseTheta > 0 {
		theta = strategy.NormalizeTheta(theta + s.rng.Normal(0, s.noiseTheta))
	}
	return []strategy.Observation{{
		Kind:   "pose",
		Fields: map[string]any{"x": x, "y": y, "theta": theta},
	}}
}
