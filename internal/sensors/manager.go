// Package sensors implements the sensor manager (spec §4.4): an ordered
// list of sensor instances, each with an optional Periodicity and chains of
// filters then fault models, feeding a pending-observation list an
// estimator drains once per step. Sensor, Filter, and FaultModel bodies are
// external collaborators per spec §1 — this package fixes their contracts
// and the scheduling/pipeline plumbing around them, grounded on the
// scan-then-process pipeline shape of the teacher's radar scanner and
// processor (rebuilt without the generated-protobuf dependency, see
// DESIGN.md).
package sensors

import (
	"simkernel/internal/rv"
	"simkernel/internal/strategy"
	"simkernel/internal/tsqueue"
)

// Sensor produces raw observations when it fires.
type Sensor interface {
	Name() string
	GetObservations(node strategy.NodeHandle, now float32) []strategy.Observation
}

// Filter inspects an observation and may drop it, returning ok=false.
type Filter interface {
	Apply(obs strategy.Observation) (strategy.Observation, bool)
}

// FaultModel has full write access to the pending observation vector for one
// sensor's firing: it may mutate, duplicate, delete, or inject observations.
// seed is derived per-step from (now, counter) by the manager so identical
// seeds reproduce identical fault traces regardless of thread scheduling.
type FaultModel interface {
	AddFaults(now float32, seed uint64, period float64, observations []strategy.Observation, obsTypeTag string, environment map[string]any) []strategy.Observation
}

type entry struct {
	sensor      Sensor
	periodicity *Periodicity
	filters     []Filter
	faults      []FaultModel
}

// Manager owns the fleet of sensors attached to one node.
type Manager struct {
	entries     []*entry
	triggers    map[string]bool
	pending     *tsqueue.Queue[strategy.Observation]
	baseSeed    uint64
	obsCounter  uint64
	environment map[string]any
}

// New constructs an empty sensor manager. baseSeed roots every fault model's
// per-step derived seed (spec §4.4); environment is passed through to fault
// models unmodified (e.g. weather, occlusion tags set by the scenario).
func New(baseSeed uint64, environment map[string]any) *Manager {
	return &Manager{
		triggers:    make(map[string]bool),
		pending:     tsqueue.New[strategy.Observation](),
		baseSeed:    baseSeed,
		environment: environment,
	}
}

// AddSensor registers a sensor with its scheduling and pipeline. periodicity
// may be nil, meaning the sensor only fires when manually triggered.
func (m *Manager) AddSensor(sensor Sensor, periodicity *Periodicity, filters []Filter, faults []FaultModel) {
	if m == nil || sensor == nil {
		return
	}
	m.entries = append(m.entries, &entry{sensor: sensor, periodicity: periodicity, filters: filters, faults: faults})
}

// Trigger queues a manual fire request for the named sensor, drained on the
// next HandleMessages call.
func (m *Manager) Trigger(sensorName string) {
	if m == nil {
		return
	}
	if m.triggers == nil {
		m.triggers = make(map[string]bool)
	}
	m.triggers[sensorName] = true
}

// HandleMessages drains queued manual triggers, pulling their schedule to
// fire on the next MakeObservations call. Returns the number drained.
func (m *Manager) HandleMessages(now float32) int {
	if m == nil || len(m.triggers) == 0 {
		return 0
	}
	drained := 0
	for name := range m.triggers {
		for _, e := range m.entries {
			if e.sensor.Name() == name && e.periodicity != nil {
				e.periodicity.Force(float64(now))
			}
		}
		delete(m.triggers, name)
		drained++
	}
	return drained
}

// NextTimeStep reports the soonest sensor activation across every scheduled
// sensor. Sensors with no Periodicity (manual-only) never contribute.
func (m *Manager) NextTimeStep() (float32, bool) {
	if m == nil {
		return 0, false
	}
	found := false
	var earliest float64
	for _, e := range m.entries {
		if e.periodicity == nil {
			continue
		}
		t := e.periodicity.NextTimeStep()
		if !found || t < earliest {
			earliest = t
			found = true
		}
	}
	return float32(earliest), found
}

// MakeObservations fires every sensor whose schedule is due, runs its raw
// observations through filters then fault models, and appends survivors to
// the pending list (spec §4.4 steps 2-4). Returns the number appended.
func (m *Manager) MakeObservations(node strategy.NodeHandle, now float32) int {
	if m == nil {
		return 0
	}
	added := 0
	for _, e := range m.entries {
		if e.periodicity != nil && e.periodicity.NextTimeStep() > now {
			continue
		}
		raw := e.sensor.GetObservations(node, now)
		if e.periodicity != nil {
			e.periodicity.Advance()
		}
		survivors := m.runPipeline(e, raw, now)
		for i := range survivors {
			survivors[i].Sensor = e.sensor.Name()
			if node != nil {
				survivors[i].Observer = node.Name()
			}
			survivors[i].Timestamp = now
		}
		for _, obs := range survivors {
			m.pending.Insert(now, obs)
		}
		added += len(survivors)
	}
	return added
}

func (m *Manager) runPipeline(e *entry, raw []strategy.Observation, now float32) []strategy.Observation {
	filtered := make([]strategy.Observation, 0, len(raw))
	for _, obs := range raw {
		kept := obs
		ok := true
		for _, f := range e.filters {
			kept, ok = f.Apply(kept)
			if !ok {
				break
			}
		}
		if ok {
			filtered = append(filtered, kept)
		}
	}

	period := 0.0
	if e.periodicity != nil {
		period = e.periodicity.NextTimeStep() - float64(now)
	}
	for _, fault := range e.faults {
		m.obsCounter++
		seed := rv.DeriveStepSeed(m.baseSeed, now, m.obsCounter)
		filtered = fault.AddFaults(now, seed, period, filtered, e.sensor.Name(), m.environment)
	}
	return filtered
}

// GetObservations empties the pending list into the caller (the estimator),
// per spec §4.4 step 5, in timestamp order (then firing order for ties) via
// tsqueue, the same time-ordered-drain contract internal/broker and
// internal/servicebus each need for their own queues.
func (m *Manager) GetObservations() []strategy.Observation {
	if m == nil || m.pending.Len() == 0 {
		return nil
	}
	return m.pending.Drain(maxFloat32)
}

const maxFloat32 = 3.4e38
