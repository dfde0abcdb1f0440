// Package barrier implements the parity-toggling rendezvous (spec §4.7,
// "TimeCv") that every running node passes through between update-loop
// stages so pub/sub messages and service replies emitted in one stage are
// visible to all peers before the next stage begins.
//
// The barrier itself only tracks {waiting count, parity, condition
// variable}; it has no notion of logical time or node identity. The
// simulator's coordinator goroutine decides when every running node has
// parked (waiting == node count) and no publication at or before the
// current time remains undelivered, then flips parity to release everyone.
package barrier

import "sync"

// Barrier is the TimeCv rendezvous shared by every node goroutine.
type Barrier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	parity    int
	waiting   int
	nodeCount int
	stopped   bool
}

// New constructs a barrier sized for nodeCount running nodes.
func New(nodeCount int) *Barrier {
	b := &Barrier{nodeCount: nodeCount}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetNodeCount updates the expected rendezvous size, called by the simulator
// whenever a node transitions to or out of Running.
func (b *Barrier) SetNodeCount(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeCount = n
	b.cond.Broadcast()
}

// Waiting reports how many nodes are currently parked at the barrier.
func (b *Barrier) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}

// AllWaiting reports whether every running node has entered the barrier.
func (b *Barrier) AllWaiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodeCount > 0 && b.waiting >= b.nodeCount
}

// Flip releases every node currently parked at this barrier by toggling
// parity and broadcasting. Called by the coordinator once it has confirmed
// quiescence; callers of Enter still parked will observe the parity change
// on their next wake and return.
func (b *Barrier) Flip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parity ^= 1
	b.cond.Broadcast()
}

// Stop sets the global shutdown flag and flips parity so every parked node
// observes it and returns immediately.
func (b *Barrier) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.parity ^= 1
	b.cond.Broadcast()
}

// Stopped reports whether the barrier has been shut down.
func (b *Barrier) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Enter runs the parity-toggling rendezvous protocol. processMessages is the
// node's own process_messages(): it drains ready service requests and counts
// publications pending at or before the current time, returning how many
// items it handled. Enter calls it repeatedly, never counting the caller as
// "waiting" while there is still work to do, so the coordinator never
// observes false quiescence. Enter returns true if the barrier was stopped
// out from under the caller (simulator shutdown), false on an ordinary
// parity-flip release.
func (b *Barrier) Enter(processMessages func() int) bool {
	b.mu.Lock()
	p := b.parity
	b.waiting++
	for {
		for {
			b.waiting--
			b.mu.Unlock()
			n := processMessages()
			b.mu.Lock()
			b.waiting++
			if n == 0 {
				break
			}
		}
		b.cond.Broadcast()
		if b.stopped || b.parity != p {
			break
		}
		b.cond.Wait()
	}
	stopped := b.stopped
	b.waiting--
	b.mu.Unlock()
	return stopped
}
