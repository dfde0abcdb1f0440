package builtins

import (
	"simkernel/internal/rv"
	"simkernel/internal/strategy"
)

// PIDController turns a ControllerError into unicycle wheel speeds using
// independent PID loops on the longitudinal and heading error terms,
// default-tuned from DefaultGains (spec.md's embedded-defaults pattern).
type PIDController struct {
	gains Gains

	longIntegral, longPrevError   float64
	thetaIntegral, thetaPrevError float64
	havePrev                      bool
}

// NewPIDController builds a PIDController, overriding any of the default
// gains present in params ("proportional", "integral", "derivative",
// "max_wheel_speed").
func NewPIDController(params map[string]any, _ *rv.Stream) (strategy.Controller, error) {
	gains := DefaultGains()
	gains.Proportional = floatParam(params, "proportional", gains.Proportional)
	gains.Integral = floatParam(params, "integral", gains.Integral)
	gains.Derivative = floatParam(params, "derivative", gains.Derivative)
	gains.MaxWheelSpeed = floatParam(params, "max_wheel_speed", gains.MaxWheelSpeed)
	return &PIDController{gains: gains}, nil
}

func (c *PIDController) PreLoopHook(node strategy.NodeHandle, now float32) error { return nil }

func (c *PIDController) MakeCommand(node strategy.NodeHandle, cerr strategy.ControllerError, now float32) (strategy.Command, error) {
	longDelta := cerr.Longitudinal - c.longPrevError
	thetaDelta := cerr.Theta - c.thetaPrevError
	if !c.havePrev {
		longDelta, thetaDelta = 0, 0
	}
	c.longIntegral += cerr.Longitudinal
	c.thetaIntegral += cerr.Theta

	linear := c.gains.Proportional*cerr.Longitudinal + c.gains.Integral*c.longIntegral + c.gains.Derivative*longDelta
	angular := c.gains.Proportional*cerr.Theta + c.gains.Integral*c.thetaIntegral + c.gains.Derivative*thetaDelta

	c.longPrevError, c.thetaPrevError = cerr.Longitudinal, cerr.Theta
	c.havePrev = true

	left := linear - angular
	right := linear + angular
	left = clamp(left, -c.gains.MaxWheelSpeed, c.gains.MaxWheelSpeed)
	right = clamp(right, -c.gains.MaxWheelSpeed, c.gains.MaxWheelSpeed)

	return strategy.NewUnicycleCommand(left, right), nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// NextTimeStep reports no schedule of its own: a PID controller only reacts
// when doControlLoop or the navigator's own schedule says the control loop
// is due (spec §4.6 step xiii).
func (c *PIDController) NextTimeStep() (float32, bool) { return 0, false }

func (c *PIDController) Record() strategy.Record {
	return strategy.NewRecord("pid", map[string]any{
		"longitudinal_integral": c.longIntegral,
		"theta_integral":        c.thetaIntegral,
	})
}
