// Package factory builds a fleet of nodes from a validated config.Scenario
// (spec §4.8): one deterministic-RV stream per node per owned strategy,
// construction of each strategy from its configured variant, and wiring of
// the constructed strategies into a node.Node before the node is (optionally)
// spawned. Concrete strategy/sensor/filter/fault-model bodies are external
// collaborators per spec §1, so this package only fixes how a named variant
// is looked up and instantiated — grounded on the teacher's
// population-reconciliation shape (internal/bots/controller.go's
// mutex-guarded registry-and-reconcile pattern) adapted from "how many bots"
// to "which concrete strategy" lookup.
package factory

import (
	"hash/fnv"
	"math"
	"strconv"
	"sync"

	"simkernel/internal/broker"
	"simkernel/internal/config"
	"simkernel/internal/node"
	"simkernel/internal/rv"
	"simkernel/internal/sensors"
	"simkernel/internal/servicebus"
	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// PhysicsConstructor builds a Physics strategy from its configured params
// and a reproducible RNG stream scoped to this one node/strategy pair.
type PhysicsConstructor func(params map[string]any, rng *rv.Stream) (strategy.Physics, error)

// NavigatorConstructor builds a Navigator strategy.
type NavigatorConstructor func(params map[string]any, rng *rv.Stream) (strategy.Navigator, error)

// ControllerConstructor builds a Controller strategy.
type ControllerConstructor func(params map[string]any, rng *rv.Stream) (strategy.Controller, error)

// EstimatorConstructor builds a StateEstimator strategy.
type EstimatorConstructor func(params map[string]any, rng *rv.Stream) (strategy.StateEstimator, error)

// SensorConstructor builds a sensor instance from its config entry.
type SensorConstructor func(cfg config.SensorConfig, rng *rv.Stream) (sensors.Sensor, error)

// FilterConstructor builds a named, parameterless filter stage.
type FilterConstructor func(params map[string]any) (sensors.Filter, error)

// FaultModelConstructor builds a named fault model stage.
type FaultModelConstructor func(params map[string]any) (sensors.FaultModel, error)

// Registry is the variant-name -> constructor lookup table a scenario's
// strategy/sensor/filter/fault_model fields are resolved against.
type Registry struct {
	mu          sync.Mutex
	physics     map[string]PhysicsConstructor
	navigators  map[string]NavigatorConstructor
	controllers map[string]ControllerConstructor
	estimators  map[string]EstimatorConstructor
	sensorKinds map[string]SensorConstructor
	filters     map[string]FilterConstructor
	faultModels map[string]FaultModelConstructor
}

// NewRegistry constructs an empty variant registry.
func NewRegistry() *Registry {
	return &Registry{
		physics:     make(map[string]PhysicsConstructor),
		navigators:  make(map[string]NavigatorConstructor),
		controllers: make(map[string]ControllerConstructor),
		estimators:  make(map[string]EstimatorConstructor),
		sensorKinds: make(map[string]SensorConstructor),
		filters:     make(map[string]FilterConstructor),
		faultModels: make(map[string]FaultModelConstructor),
	}
}

// RegisterPhysics attaches a named physics variant constructor.
func (r *Registry) RegisterPhysics(variant string, ctor PhysicsConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.physics[variant] = ctor
}

// RegisterNavigator attaches a named navigator variant constructor.
func (r *Registry) RegisterNavigator(variant string, ctor NavigatorConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navigators[variant] = ctor
}

// RegisterController attaches a named controller variant constructor.
func (r *Registry) RegisterController(variant string, ctor ControllerConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[variant] = ctor
}

// RegisterEstimator attaches a named state-estimator variant constructor.
func (r *Registry) RegisterEstimator(variant string, ctor EstimatorConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.estimators[variant] = ctor
}

// RegisterSensor attaches a named sensor variant constructor.
func (r *Registry) RegisterSensor(variant string, ctor SensorConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensorKinds[variant] = ctor
}

// RegisterFilter attaches a named filter constructor.
func (r *Registry) RegisterFilter(name string, ctor FilterConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = ctor
}

// RegisterFaultModel attaches a named fault-model constructor.
func (r *Registry) RegisterFaultModel(name string, ctor FaultModelConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faultModels[name] = ctor
}

// Build constructs every node named in scenario, wiring each one's
// strategies and sensors from the registry, and spawning nodes flagged
// autospawn. It assumes scenario.Validate() has already passed; Build
// itself only surfaces variant-lookup and construction failures.
func (r *Registry) Build(scenario *config.Scenario, b *broker.Broker, bus *servicebus.Bus, metaRegistry *node.Registry) ([]*node.Node, error) {
	if scenario == nil {
		return nil, simerr.Config("scenario is nil")
	}
	rngFactory := rv.NewFactory(scenario.Seed)

	built := make([]*node.Node, 0, len(scenario.Nodes))
	for _, nc := range scenario.Nodes {
		n, err := r.buildOne(nc, rngFactory, b, bus, metaRegistry)
		if err != nil {
			return nil, err
		}
		built = append(built, n)
		if nc.AutoSpawn {
			if err := n.Spawn(0); err != nil {
				return nil, simerr.Config("node %q: autospawn: %v", nc.Name, err)
			}
		}
	}
	return built, nil
}

func (r *Registry) buildOne(nc config.NodeConfig, rngFactory *rv.Factory, b *broker.Broker, bus *servicebus.Bus, metaRegistry *node.Registry) (*node.Node, error) {
	opts := []node.Option{
		node.WithInitialPosition(strategy.Position{X: nc.InitialPosition.X, Y: nc.InitialPosition.Y, Theta: nc.InitialPosition.Theta}),
	}
	if nc.Model != "" {
		opts = append(opts, node.WithModel(nc.Model))
	}
	if len(nc.Labels) > 0 {
		opts = append(opts, node.WithLabels(nc.Labels))
	}

	if nc.Physics != nil {
		ctor, ok := r.physics[nc.Physics.Variant]
		if !ok {
			return nil, simerr.Config("node %q: unknown physics variant %q", nc.Name, nc.Physics.Variant)
		}
		p, err := ctor(nc.Physics.Params, rngFactory.Stream(nc.Name+"/physics"))
		if err != nil {
			return nil, simerr.Config("node %q: construct physics %q: %v", nc.Name, nc.Physics.Variant, err)
		}
		opts = append(opts, node.WithPhysics(p))
	}
	if nc.Navigator != nil {
		ctor, ok := r.navigators[nc.Navigator.Variant]
		if !ok {
			return nil, simerr.Config("node %q: unknown navigator variant %q", nc.Name, nc.Navigator.Variant)
		}
		nav, err := ctor(nc.Navigator.Params, rngFactory.Stream(nc.Name+"/navigator"))
		if err != nil {
			return nil, simerr.Config("node %q: construct navigator %q: %v", nc.Name, nc.Navigator.Variant, err)
		}
		opts = append(opts, node.WithNavigator(nav))
	}
	if nc.Controller != nil {
		ctor, ok := r.controllers[nc.Controller.Variant]
		if !ok {
			return nil, simerr.Config("node %q: unknown controller variant %q", nc.Name, nc.Controller.Variant)
		}
		ctrl, err := ctor(nc.Controller.Params, rngFactory.Stream(nc.Name+"/controller"))
		if err != nil {
			return nil, simerr.Config("node %q: construct controller %q: %v", nc.Name, nc.Controller.Variant, err)
		}
		opts = append(opts, node.WithController(ctrl))
	}
	if nc.Estimator != nil {
		ctor, ok := r.estimators[nc.Estimator.Variant]
		if !ok {
			return nil, simerr.Config("node %q: unknown estimator variant %q", nc.Name, nc.Estimator.Variant)
		}
		est, err := ctor(nc.Estimator.Params, rngFactory.Stream(nc.Name+"/estimator"))
		if err != nil {
			return nil, simerr.Config("node %q: construct estimator %q: %v", nc.Name, nc.Estimator.Variant, err)
		}
		opts = append(opts, node.WithEstimator(est))
	}
	for i, benchCfg := range nc.BenchEstimators {
		ctor, ok := r.estimators[benchCfg.Variant]
		if !ok {
			return nil, simerr.Config("node %q: unknown bench estimator variant %q", nc.Name, benchCfg.Variant)
		}
		bench, err := ctor(benchCfg.Params, rngFactory.Stream(nc.Name+"/bench_estimator/"+benchCfg.Variant))
		if err != nil {
			return nil, simerr.Config("node %q: construct bench estimator %q: %v", nc.Name, benchCfg.Variant, err)
		}
		opts = append(opts, node.WithBenchEstimator(variantKey(benchCfg.Variant, i), bench))
	}

	if len(nc.Sensors) > 0 {
		manager, err := r.buildSensorManager(nc, rngFactory)
		if err != nil {
			return nil, err
		}
		opts = append(opts, node.WithSensorManager(manager))
	}

	return node.New(nc.Name, nc.Kind, b, bus, metaRegistry, opts...), nil
}

func (r *Registry) buildSensorManager(nc config.NodeConfig, rngFactory *rv.Factory) (*sensors.Manager, error) {
	baseSeed := baseSeedForNode(rngFactory, nc.Name)
	manager := sensors.New(baseSeed, nil)
	for _, sc := range nc.Sensors {
		ctor, ok := r.sensorKinds[sc.Variant]
		if !ok {
			return nil, simerr.Config("node %q: unknown sensor variant %q", nc.Name, sc.Variant)
		}
		sensorStream := rngFactory.Stream(nc.Name + "/sensor/" + sc.Name)
		sensor, err := ctor(sc, sensorStream)
		if err != nil {
			return nil, simerr.Config("node %q: construct sensor %q: %v", nc.Name, sc.Name, err)
		}

		filters := make([]sensors.Filter, 0, len(sc.Filters))
		for _, name := range sc.Filters {
			ctor, ok := r.filters[name]
			if !ok {
				return nil, simerr.Config("node %q sensor %q: unknown filter %q", nc.Name, sc.Name, name)
			}
			filter, err := ctor(sc.Params)
			if err != nil {
				return nil, simerr.Config("node %q sensor %q: construct filter %q: %v", nc.Name, sc.Name, name, err)
			}
			filters = append(filters, filter)
		}

		faults := make([]sensors.FaultModel, 0, len(sc.FaultModels))
		for _, name := range sc.FaultModels {
			ctor, ok := r.faultModels[name]
			if !ok {
				return nil, simerr.Config("node %q sensor %q: unknown fault model %q", nc.Name, sc.Name, name)
			}
			fault, err := ctor(sc.Params)
			if err != nil {
				return nil, simerr.Config("node %q sensor %q: construct fault model %q: %v", nc.Name, sc.Name, name, err)
			}
			faults = append(faults, fault)
		}

		var periodicity *sensors.Periodicity
		if sc.PeriodJitter > 0 {
			jitterStream := sensorStream
			periodicity = sensors.NewJitteredPeriodicity(sc.Offset, func() float64 {
				return jitterStream.Uniform(sc.Period-sc.PeriodJitter, sc.Period+sc.PeriodJitter)
			})
		} else {
			periodicity = sensors.NewPeriodicity(sc.Period, sc.Offset)
		}
		manager.AddSensor(sensor, periodicity, filters, faults)
	}
	return manager, nil
}

// baseSeedForNode derives a per-node base seed for sensor fault-model
// seeding (spec §4.4). It is independent of rv.Factory.Stream's own
// derivation (which folds in a call-order-dependent draw counter) because
// the sensor manager needs a single stable uint64 to root
// rv.DeriveStepSeed, not a Stream.
func baseSeedForNode(rngFactory *rv.Factory, name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	seedStream := rngFactory.Stream(name + "/sensor-base-seed")
	return h.Sum64() ^ math.Float64bits(seedStream.Float64())
}

func variantKey(variant string, index int) string {
	if index == 0 {
		return variant
	}
	return variant + "#" + strconv.Itoa(index)
}
