// Package servicebus implements the synchronous request/response service bus
// (spec §4.3): a per-node mailbox keyed by (peer name, method), with call()
// parking the caller on a condition variable until the responder posts a
// reply or the deadline elapses.
//
// Because the simulation advances logical time in lockstep across node
// goroutines (see internal/barrier), "parking" here means blocking on
// sync.Cond rather than a wall-clock timer: the bus's notion of "now" only
// moves forward when the simulator calls AdvanceTime, which broadcasts the
// condition so every parked caller re-checks its deadline.
package servicebus

import (
	"sync"

	"simkernel/internal/envelope"
	"simkernel/internal/simerr"
)

// Handler answers a request addressed to the peer that registered it.
type Handler func(method string, req *envelope.Envelope, now float32) (*envelope.Envelope, error)

type request struct {
	id           uint64
	from, peer   string
	method       string
	payload      *envelope.Envelope
	emissionTime float32
	deadline     float32
}

type outcome struct {
	reply *envelope.Envelope
	err   error
	ready bool
}

// Bus is the fleet-wide service bus. One Bus is shared by every node.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	now      float32
	nextID   uint64
	handlers map[string]Handler    // peer name -> responder handler
	inboxes  map[string][]*request // peer name -> requests awaiting processing
	outcomes map[uint64]*outcome   // request id -> result, once known
	closed   map[string]bool       // peers that moved to Zombie/Terminated
}

// New constructs an empty bus.
func New() *Bus {
	b := &Bus{
		handlers: make(map[string]Handler),
		inboxes:  make(map[string][]*request),
		outcomes: make(map[uint64]*outcome),
		closed:   make(map[string]bool),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Register attaches a responder handler for peer. Registering again replaces
// the previous handler and clears the closed mark (a respawned node under the
// same name is treated as newly available).
func (b *Bus) Register(peer string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[peer] = handler
	delete(b.closed, peer)
}

// Close marks peer unavailable: outstanding requests addressed to it fail
// with ServiceError::Closed and future calls to it are rejected the same way.
func (b *Bus) Close(peer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed[peer] = true
	delete(b.handlers, peer)
	for _, req := range b.inboxes[peer] {
		b.outcomes[req.id] = &outcome{err: simerr.ServiceClosed(peer), ready: true}
	}
	delete(b.inboxes, peer)
	b.cond.Broadcast()
}

// AdvanceTime moves the bus's logical clock forward and wakes every parked
// caller so it can re-evaluate its deadline. The simulator calls this once
// per barrier tick.
func (b *Bus) AdvanceTime(now float32) {
	b.mu.Lock()
	if now > b.now {
		b.now = now
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}

// ProcessRequests drains requests addressed to peer whose emission time is
// <= now, invokes peer's registered handler, and posts the reply. It returns
// the number of requests processed, feeding Node.process_messages()'s count.
func (b *Bus) ProcessRequests(peer string, now float32) int {
	b.mu.Lock()
	handler := b.handlers[peer]
	inbox := b.inboxes[peer]
	ready := inbox[:0:0]
	remaining := inbox[:0:0]
	for _, req := range inbox {
		if req.emissionTime <= now {
			ready = append(ready, req)
		} else {
			remaining = append(remaining, req)
		}
	}
	b.inboxes[peer] = remaining
	b.mu.Unlock()

	if len(ready) == 0 {
		return 0
	}
	for _, req := range ready {
		var result outcome
		if handler == nil {
			result = outcome{err: simerr.ServiceUnavailable(peer, req.method), ready: true}
		} else {
			reply, err := handler(req.method, req.payload, now)
			result = outcome{reply: reply, err: err, ready: true}
		}
		b.mu.Lock()
		b.outcomes[req.id] = &result
		b.mu.Unlock()
	}
	b.cond.Broadcast()
	return len(ready)
}

// Call posts a request to peer and blocks until the responder replies, the
// peer closes, or retries are exhausted past the deadline.
func (b *Bus) Call(from, peer, method string, payload *envelope.Envelope, now, timeout float32, retries int) (*envelope.Envelope, error) {
	for {
		b.mu.Lock()
		if b.closed[peer] {
			b.mu.Unlock()
			return nil, simerr.ServiceClosed(peer)
		}
		if _, ok := b.handlers[peer]; !ok {
			b.mu.Unlock()
			return nil, simerr.ServiceUnavailable(peer, method)
		}

		b.nextID++
		id := b.nextID
		deadline := now + timeout
		req := &request{id: id, from: from, peer: peer, method: method, payload: payload, emissionTime: now, deadline: deadline}
		b.inboxes[peer] = append(b.inboxes[peer], req)
		b.cond.Broadcast()

		for {
			if out, ok := b.outcomes[id]; ok && out.ready {
				delete(b.outcomes, id)
				b.mu.Unlock()
				return out.reply, out.err
			}
			if b.closed[peer] {
				b.mu.Unlock()
				return nil, simerr.ServiceClosed(peer)
			}
			if b.now >= deadline {
				break
			}
			b.cond.Wait()
		}
		// deadline elapsed with no reply: drop this attempt's pending entry and retry.
		b.removeInboxEntryLocked(peer, id)
		now = b.now
		b.mu.Unlock()

		if retries <= 0 {
			return nil, simerr.ServiceTimeout(peer, method)
		}
		retries--
	}
}

func (b *Bus) removeInboxEntryLocked(peer string, id uint64) {
	inbox := b.inboxes[peer]
	for i, req := range inbox {
		if req.id == id {
			b.inboxes[peer] = append(inbox[:i], inbox[i+1:]...)
			return
		}
	}
}

// NextTime reports the earliest pending deadline or scheduled request
// emission time across the whole bus, so the simulator knows how far it may
// safely advance the logical clock before a timeout or handler invocation
// becomes due.
func (b *Bus) NextTime() (float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	found := false
	var earliest float32
	consider := func(t float32) {
		if !found || t < earliest {
			earliest = t
			found = true
		}
	}
	for _, inbox := range b.inboxes {
		for _, req := range inbox {
			consider(req.emissionTime)
			consider(req.deadline)
		}
	}
	return earliest, found
}
