package builtins

import "simkernel/internal/factory"

// RegisterDefaults wires every builtin strategy constructor into registry
// under its canonical variant name, so a scenario can reference
// "unicycle"/"waypoint"/"pid"/"dead_reckoning" without an external plugin.
func RegisterDefaults(registry *factory.Registry) {
	registry.RegisterPhysics("unicycle", NewUnicyclePhysics)
	registry.RegisterNavigator("waypoint", NewWaypointNavigator)
	registry.RegisterController("pid", NewPIDController)
	registry.RegisterEstimator("dead_reckoning", NewDeadReckoningEstimator)

	registry.RegisterSensor("pose", NewPoseSensor)
	registry.RegisterFilter("range_gate", NewFieldRangeFilter)
	registry.RegisterFaultModel("dropout", NewDropoutFaultModel)
	registry.RegisterFaultModel("bias", NewBiasFaultModel)
}
