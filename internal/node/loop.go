package node

import (
	"simkernel/internal/barrier"
	"simkernel/internal/simerr"
)

// NextTimeStep reports the earliest time this node wants to be stepped
// again: the soonest of its physics, navigator, controller, and estimator
// schedules, plus its sensor manager's schedule. A Running node with no
// strategy ever scheduled again reports (0, false), meaning it never
// volunteers another step (it may still be stepped by a service call or a
// publication waking it through the barrier).
func (n *Node) NextTimeStep() (float32, bool) {
	if n.State() != Running {
		return 0, false
	}
	found := false
	var earliest float32
	consider := func(t float32, ok bool) {
		if !ok {
			return
		}
		if !found || t < earliest {
			earliest = t
			found = true
		}
	}

	n.mu.RLock()
	physics, navigator, controller, estimator := n.physics, n.navigator, n.controller, n.estimator
	sensorManager := n.sensorManager
	n.mu.RUnlock()

	if physics != nil {
		consider(physics.NextTimeStep())
	}
	if navigator != nil {
		consider(navigator.NextTimeStep())
	}
	if controller != nil {
		consider(controller.NextTimeStep())
	}
	if estimator != nil {
		consider(estimator.NextTimeStep(), true)
	}
	if sensorManager != nil {
		consider(sensorManager.NextTimeStep())
	}
	return earliest, found
}

// RunNextTimeStep executes the fourteen-step update loop of spec §4.6 for
// one node at logical time t, synchronizing with every other running node
// at each sync_with_others boundary via the shared barrier.
func (n *Node) RunNextTimeStep(t float32, b *barrier.Barrier) error {
	syncWithOthers := func() {
		b.Enter(func() int { return n.processMessages(t) })
	}

	//1.- Drain one-way and two-way messages standalone, ahead of the
	// Running check: a Kill/pre_kill already queued for this node must
	// land before it runs one more physics update this step. A
	// cooperative pre_kill drained just now (or left over from a prior
	// step) flips the node to Zombie right here, before any further work
	// is done at this time step.
	n.processMessages(t)
	n.mu.Lock()
	if n.pendingPreKill && n.state == Running {
		n.state = Zombie
		n.pendingPreKill = false
	}
	n.mu.Unlock()

	//2.- Only Running nodes execute the remainder of the loop.
	if n.State() != Running {
		return simerr.Implementation("node %q: RunNextTimeStep called while %s", n.name, n.State())
	}

	n.mu.RLock()
	physics, navigator, controller, estimator := n.physics, n.navigator, n.controller, n.estimator
	benchEstimators := n.benchEstimators
	sensorManager := n.sensorManager
	n.mu.RUnlock()

	//3.- Physics integrates first, and the node's published pose reflects
	// the new state before any synchronization point.
	if physics != nil {
		if err := physics.UpdateState(t); err != nil {
			return simerr.ExternalAPI("node %q physics UpdateState: %v", n.name, err)
		}
		n.mu.Lock()
		n.position = physics.State(t).Position
		n.mu.Unlock()
	}

	//4.- First rendezvous: every peer has applied its own physics update
	// before anyone reads a pose.
	syncWithOthers()

	//5.- Pre-loop hooks run in estimator, bench estimators, controller,
	// navigator order.
	if estimator != nil {
		if err := estimator.PreLoopHook(n, t); err != nil {
			return simerr.ExternalAPI("node %q estimator PreLoopHook: %v", n.name, err)
		}
	}
	for name, bench := range benchEstimators {
		if err := bench.PreLoopHook(n, t); err != nil {
			return simerr.ExternalAPI("node %q bench estimator %q PreLoopHook: %v", n.name, name, err)
		}
	}
	if controller != nil {
		if err := controller.PreLoopHook(n, t); err != nil {
			return simerr.ExternalAPI("node %q controller PreLoopHook: %v", n.name, err)
		}
	}
	if navigator != nil {
		if err := navigator.PreLoopHook(n, t); err != nil {
			return simerr.ExternalAPI("node %q navigator PreLoopHook: %v", n.name, err)
		}
	}

	//6.- Manual sensor triggers queued since the last step take effect.
	if sensorManager != nil {
		sensorManager.HandleMessages(t)
	}

	//7.- Second rendezvous.
	syncWithOthers()

	//8.- Prediction runs once the estimator's own schedule is due; bench
	// estimators run on the same rule but never drive the control loop.
	doControlLoop := false
	if estimator != nil && t >= estimator.NextTimeStep() {
		if err := estimator.PredictionStep(n, t); err != nil {
			return simerr.ExternalAPI("node %q estimator PredictionStep: %v", n.name, err)
		}
		doControlLoop = true
	}
	for name, bench := range benchEstimators {
		if t >= bench.NextTimeStep() {
			if err := bench.PredictionStep(n, t); err != nil {
				return simerr.ExternalAPI("node %q bench estimator %q PredictionStep: %v", n.name, name, err)
			}
		}
	}

	//9.- Sensors may have been retriggered by the prediction step's own
	// publications; drain them before the third rendezvous.
	if sensorManager != nil {
		sensorManager.HandleMessages(t)
	}
	syncWithOthers()

	//10.- Sensors fire on schedule and the fourth rendezvous follows so
	// every peer has published its own readings first.
	if sensorManager != nil {
		sensorManager.MakeObservations(n, t)
	}
	syncWithOthers()

	//11.- Observations collected since the last correction feed the
	// estimator, then every bench estimator.
	if sensorManager != nil {
		obs := sensorManager.GetObservations()
		if len(obs) > 0 {
			if estimator != nil {
				if err := estimator.CorrectionStep(n, obs, t); err != nil {
					return simerr.ExternalAPI("node %q estimator CorrectionStep: %v", n.name, err)
				}
			}
			for name, bench := range benchEstimators {
				if err := bench.CorrectionStep(n, obs, t); err != nil {
					return simerr.ExternalAPI("node %q bench estimator %q CorrectionStep: %v", n.name, name, err)
				}
			}
		}
	}

	//12.- Fifth rendezvous.
	syncWithOthers()

	//13.- The control loop runs when the estimator just predicted, or when
	// the navigator or controller's own schedule says it is due.
	runControl := doControlLoop
	if !runControl && navigator != nil {
		if nt, ok := navigator.NextTimeStep(); ok && nt <= t {
			runControl = true
		}
	}
	if !runControl && controller != nil {
		if ct, ok := controller.NextTimeStep(); ok && ct <= t {
			runControl = true
		}
	}
	if runControl && navigator != nil && controller != nil && estimator != nil && physics != nil {
		world := estimator.WorldState()
		cerr, err := navigator.ComputeError(n, world)
		if err != nil {
			return simerr.ExternalAPI("node %q navigator ComputeError: %v", n.name, err)
		}
		cmd, err := controller.MakeCommand(n, cerr, t)
		if err != nil {
			return simerr.ExternalAPI("node %q controller MakeCommand: %v", n.name, err)
		}
		if err := physics.ApplyCommand(cmd, t); err != nil {
			return simerr.ExternalAPI("node %q physics ApplyCommand: %v", n.name, err)
		}
	}

	//14.- Final rendezvous: every node's publications for this time step
	// are visible to every other node before any of them begins the next.
	syncWithOthers()

	n.registry.Set(n.Metadata())
	return nil
}
