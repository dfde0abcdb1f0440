package builtins

import (
	"math"

	"simkernel/internal/rv"
	"simkernel/internal/strategy"
)

// UnicyclePhysics integrates a differential-drive robot's pose from wheel
// speeds using forward Euler integration, grounded on the teacher's
// internal/physics/integrator.go IntegrateVehicleWithStats shape (clamp,
// then integrate each axis by velocity * step), adapted from a 3D
// vehicle's linear/angular velocity pair to a 2D unicycle's left/right
// wheel speeds and axle track.
type UnicyclePhysics struct {
	track  float64 // distance between the two wheels
	period float64 // fixed update period; 0 disables autonomous scheduling

	state    strategy.State
	lastCmd  strategy.Command
	haveCmd  bool
	nextFire float64
}

// NewUnicyclePhysics builds a UnicyclePhysics model. track is the axle
// width in meters; period is how often UpdateState wants to be called (0
// means it never volunteers a step on its own and relies entirely on
// ApplyCommand-driven ticks from a controller).
func NewUnicyclePhysics(params map[string]any, _ *rv.Stream) (strategy.Physics, error) {
	track := floatParam(params, "track", 0.5)
	period := floatParam(params, "period", 0.05)
	return &UnicyclePhysics{track: track, period: period}, nil
}

func (p *UnicyclePhysics) PostInit(node strategy.NodeHandle) error {
	p.state.Position = node.Position()
	p.nextFire = 0
	return nil
}

func (p *UnicyclePhysics) ApplyCommand(cmd strategy.Command, now float32) error {
	p.lastCmd = cmd
	p.haveCmd = true
	return nil
}

func (p *UnicyclePhysics) UpdateState(now float32) error {
	if p.haveCmd && p.lastCmd.Kind == strategy.CommandUnicycle && p.lastCmd.Unicycle != nil {
		p.integrate(p.lastCmd.Unicycle, float64(now))
	}
	if p.period > 0 {
		p.nextFire = float64(now) + p.period
	}
	return nil
}

// integrate applies one Euler step of unicycle kinematics: linear velocity
// is the mean wheel speed, angular velocity is the wheel-speed difference
// over the track width.
func (p *UnicyclePhysics) integrate(cmd *strategy.UnicycleCommand, now float64) {
	linear := (cmd.LeftWheel + cmd.RightWheel) / 2
	angular := (cmd.RightWheel - cmd.LeftWheel) / p.track

	dt := p.period
	if dt <= 0 {
		dt = 0.05
	}

	theta := p.state.Position.Theta
	p.state.Position.X += linear * math.Cos(theta) * dt
	p.state.Position.Y += linear * math.Sin(theta) * dt
	p.state.Position.Theta = strategy.NormalizeTheta(theta + angular*dt)
	p.state.Velocity = strategy.Vec3{X: linear * math.Cos(theta), Y: linear * math.Sin(theta), Z: angular}
}

func (p *UnicyclePhysics) State(now float32) strategy.State { return p.state }

func (p *UnicyclePhysics) NextTimeStep() (float32, bool) {
	if p.period <= 0 {
		return 0, false
	}
	return float32(p.nextFire), true
}

func (p *UnicyclePhysics) Record() strategy.Record {
	return strategy.NewRecord("unicycle", map[string]any{
		"position": p.state.Position,
		"velocity": p.state.Velocity,
	})
}
