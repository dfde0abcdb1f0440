// Package sim implements the simulator orchestrator (spec §4.9): the
// outermost loop that advances the global logical clock, steps every
// Running node in parallel for each time step, and acts as the barrier's
// coordinator (spec §4.7) by flipping parity once every node has reported
// in and the broker confirms no message at or before the current time is
// still undelivered.
//
// Grounded on the teacher's internal/simulation/loop.go fixed-timestep
// accumulator loop, adapted from a wall-clock time.Ticker cadence to
// logical-time stepping driven by the minimum of every running node's own
// NextTimeStep.
package sim

import (
	"context"
	"sync"
	"time"

	"simkernel/internal/barrier"
	"simkernel/internal/broker"
	"simkernel/internal/logging"
	"simkernel/internal/node"
	"simkernel/internal/servicebus"
	"simkernel/internal/strategy"
)

// Recorder receives one NodeRecord per running node per time step plus,
// when it chooses to, periodic full-fleet snapshots. internal/recordlog's
// Writer satisfies this interface; it is deliberately minimal so the
// simulator does not import recordlog directly and a no-op/test double is
// trivial to supply.
type Recorder interface {
	WriteRecord(rec strategy.NodeRecord) error
	WriteSnapshot(now float32, records []strategy.NodeRecord) (bool, error)
}

// FanOutRecorder broadcasts to every attached Recorder (e.g. an
// internal/recordlog.Writer for on-disk persistence alongside an
// internal/liveview.Server for live observers), so Simulator.WithRecorder
// takes exactly one value regardless of how many sinks a deployment wants.
type FanOutRecorder []Recorder

func (f FanOutRecorder) WriteRecord(rec strategy.NodeRecord) error {
	for _, r := range f {
		if err := r.WriteRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

func (f FanOutRecorder) WriteSnapshot(now float32, records []strategy.NodeRecord) (bool, error) {
	wroteAny := false
	for _, r := range f {
		wrote, err := r.WriteSnapshot(now, records)
		if err != nil {
			return wroteAny, err
		}
		wroteAny = wroteAny || wrote
	}
	return wroteAny, nil
}

// NodeOutcome records how one node finished a single time step.
type NodeOutcome struct {
	Name string
	Err  error
}

// Result summarizes one run of the simulator.
type Result struct {
	StepsRun       int
	FinalTime      float32
	ZombieNodes    []string
	AbnormalErrors []NodeOutcome
}

// Simulator owns the fleet, the shared broker/service bus, and the barrier
// it coordinates.
type Simulator struct {
	nodes   []*node.Node
	broker  *broker.Broker
	bus     *servicebus.Bus
	barrier *barrier.Barrier
	logger  *logging.Logger

	coordinatorMu sync.Mutex
	coordinating  bool
	targetTime    float32

	recorder Recorder
}

// WithRecorder attaches a Recorder that receives a NodeRecord for every
// running node after each completed time step. Passing nil disables
// recording; the zero value already has none attached.
func (s *Simulator) WithRecorder(r Recorder) *Simulator {
	s.recorder = r
	return s
}

// New constructs a simulator over an already-built fleet (spec §4.8's
// factory output). The broker and service bus must be the same instances
// the fleet's nodes were constructed against.
func New(nodes []*node.Node, b *broker.Broker, bus *servicebus.Bus, logger *logging.Logger) *Simulator {
	if logger == nil {
		logger = logging.L()
	}
	return &Simulator{
		nodes:   nodes,
		broker:  b,
		bus:     bus,
		barrier: barrier.New(0),
		logger:  logger,
	}
}

// Run drives the simulation until either no running node ever wants another
// time step, or durationSeconds of logical time have elapsed, or ctx is
// canceled. A node whose RunNextTimeStep call returns an error is marked
// Zombie and the run continues (spec §4.9 failure semantics); ctx
// cancellation stops the run at the next time step boundary.
func (s *Simulator) Run(ctx context.Context, durationSeconds float64) (Result, error) {
	result := Result{}
	var now float32

	s.startCoordinator()
	defer s.stopCoordinator()

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		running := s.runningNodes()
		if len(running) == 0 {
			break
		}
		next, ok := s.minNextTimeStep(running, now)
		if !ok {
			break
		}
		if durationSeconds > 0 && float64(next) > durationSeconds {
			break
		}

		s.setCoordinatorTarget(next)
		s.barrier.SetNodeCount(len(running))

		var wg sync.WaitGroup
		outcomes := make([]error, len(running))
		for i, n := range running {
			wg.Add(1)
			go func(i int, n *node.Node) {
				defer wg.Done()
				outcomes[i] = n.RunNextTimeStep(next, s.barrier)
			}(i, n)
		}
		wg.Wait()

		// Every log line produced while settling this step shares the same
		// logical time, so derive that correlation once rather than
		// re-attaching it to each warning below.
		stepLogger := s.logger.WithLogicalTime(float64(next))
		for i, err := range outcomes {
			if err == nil {
				continue
			}
			n := running[i]
			n.Kill()
			result.ZombieNodes = append(result.ZombieNodes, n.Name())
			result.AbnormalErrors = append(result.AbnormalErrors, NodeOutcome{Name: n.Name(), Err: err})
			stepLogger.Warn("node zombified after update-loop error", logging.Node(n.Name()), logging.Error(err))
		}

		now = next
		s.bus.AdvanceTime(now)
		result.StepsRun++
		result.FinalTime = now

		if s.recorder != nil {
			s.recordStep(stepLogger, now, running)
		}
	}

	return result, nil
}

// recordStep snapshots every node that was running this step and hands the
// records to the recorder, logging (rather than aborting the run) on a
// write failure.
func (s *Simulator) recordStep(stepLogger *logging.Logger, now float32, running []*node.Node) {
	records := make([]strategy.NodeRecord, len(running))
	for i, n := range running {
		records[i] = n.Snapshot(now)
	}
	for _, rec := range records {
		if err := s.recorder.WriteRecord(rec); err != nil {
			stepLogger.Warn("failed to write node record", logging.Node(rec.Name), logging.Error(err))
		}
	}
	if _, err := s.recorder.WriteSnapshot(now, records); err != nil {
		stepLogger.Warn("failed to write fleet snapshot", logging.Error(err))
	}
}

func (s *Simulator) runningNodes() []*node.Node {
	running := make([]*node.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.State() == node.Running {
			running = append(running, n)
		}
	}
	return running
}

func (s *Simulator) minNextTimeStep(running []*node.Node, now float32) (float32, bool) {
	found := false
	var earliest float32
	for _, n := range running {
		t, ok := n.NextTimeStep()
		if !ok {
			continue
		}
		if t < now {
			t = now
		}
		if !found || t < earliest {
			earliest = t
			found = true
		}
	}
	if busT, ok := s.bus.NextTime(); ok && (!found || busT < earliest) {
		earliest = busT
		found = true
	}
	return earliest, found
}

// startCoordinator launches the background goroutine that flips the
// barrier's parity once every expected node has checked in and the broker
// confirms the current time step has nothing left undelivered.
func (s *Simulator) startCoordinator() {
	s.coordinatorMu.Lock()
	s.coordinating = true
	s.coordinatorMu.Unlock()

	go func() {
		for {
			s.coordinatorMu.Lock()
			active := s.coordinating
			target := s.targetTime
			s.coordinatorMu.Unlock()
			if !active {
				return
			}
			if s.barrier.AllWaiting() && !s.broker.AnyPendingAtOrBefore(target) {
				s.barrier.Flip()
			}
			time.Sleep(50 * time.Microsecond)
		}
	}()
}

func (s *Simulator) setCoordinatorTarget(t float32) {
	s.coordinatorMu.Lock()
	s.targetTime = t
	s.coordinatorMu.Unlock()
}

func (s *Simulator) stopCoordinator() {
	s.coordinatorMu.Lock()
	s.coordinating = false
	s.coordinatorMu.Unlock()
	s.barrier.Stop()
}

// Nodes exposes the fleet for the recorder and live-view server.
func (s *Simulator) Nodes() []*node.Node { return s.nodes }
