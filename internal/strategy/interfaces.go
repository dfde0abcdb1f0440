package strategy

// StateEstimator fuses sensor observations into a WorldState (spec §4.5).
// PredictionStep must be idempotent if called twice with the same now;
// NextTimeStep after a prediction must be strictly greater than the
// previous call's value.
type StateEstimator interface {
	PreLoopHook(node NodeHandle, now float32) error
	PredictionStep(node NodeHandle, now float32) error
	CorrectionStep(node NodeHandle, observations []Observation, now float32) error
	WorldState() WorldState
	NextTimeStep() float32
	Record() Record
}

// Navigator turns a WorldState into a ControllerError relative to its plan.
type Navigator interface {
	PreLoopHook(node NodeHandle, now float32) error
	ComputeError(node NodeHandle, world WorldState) (ControllerError, error)
	// NextTimeStep reports when the navigator next wants to run, if ever.
	NextTimeStep() (float32, bool)
	Record() Record
}

// Controller turns a ControllerError into a Command for Physics. Controllers
// may subscribe to topics (spec §4.5) via the NodeHandle passed to
// PreLoopHook and MakeCommand.
type Controller interface {
	PreLoopHook(node NodeHandle, now float32) error
	MakeCommand(node NodeHandle, cerr ControllerError, now float32) (Command, error)
	NextTimeStep() (float32, bool)
	Record() Record
}

// Physics integrates a robot's pose and velocity. State is a pure getter
// returning the last computed state; calling it for a time before the last
// UpdateState call must still return the pre-update state (no
// interpolation required, but callers are guaranteed monotonic ordering).
type Physics interface {
	PostInit(node NodeHandle) error
	ApplyCommand(cmd Command, now float32) error
	UpdateState(now float32) error
	State(now float32) State
	NextTimeStep() (float32, bool)
	Record() Record
}
