// Package broker implements the hierarchical publish/subscribe message hub
// (spec §4.2): topics live in a tree keyed by PathKey, each channel holds its
// subscriber list, and a MultiClient aggregates one node's subscriptions
// behind try_receive/send/next_message_time.
//
// Lock discipline follows spec §5: the broker's own mutex guards topic-tree
// mutation (the channel map and the last-published-timestamp table); each
// channel has its own mutex guarding only its subscriber list; a client's
// queue is guarded independently of both. No nested acquisition of a
// channel lock while holding the broker lock, or vice versa.
package broker

import (
	"container/heap"
	"sync"

	"simkernel/internal/envelope"
	"simkernel/internal/pathkey"
	"simkernel/internal/simerr"
)

type publishKey struct {
	publisher string
	key       pathkey.Key
}

type channel struct {
	mu   sync.Mutex
	subs map[string]bool // subscriber id -> standing
}

// Broker is the pub/sub hub shared fleet-wide.
type Broker struct {
	mu            sync.Mutex
	channels      map[pathkey.Key]*channel
	lastPublished map[publishKey]float32
	clients       map[string]*MultiClient
}

// New constructs an empty broker.
func New() *Broker {
	return &Broker{
		channels:      make(map[pathkey.Key]*channel),
		lastPublished: make(map[publishKey]float32),
		clients:       make(map[string]*MultiClient),
	}
}

// AddChannel inserts an empty channel node if one does not already exist.
func (b *Broker) AddChannel(key pathkey.Key) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureChannelLocked(key)
}

func (b *Broker) ensureChannelLocked(key pathkey.Key) *channel {
	ch, ok := b.channels[key]
	if !ok {
		ch = &channel{subs: make(map[string]bool)}
		b.channels[key] = ch
	}
	return ch
}

// Client returns the MultiClient for the given id, creating it on first use.
func (b *Broker) Client(id string) *MultiClient {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clientLocked(id)
}

func (b *Broker) clientLocked(id string) *MultiClient {
	c, ok := b.clients[id]
	if !ok {
		c = &MultiClient{id: id, broker: b, subscriptions: make(map[pathkey.Key]bool)}
		b.clients[id] = c
	}
	return c
}

// Subscribe attaches a client to a key. standing subscriptions survive every
// delivery; instantaneous subscriptions deliver only the next matching
// publication, after which they are automatically removed.
func (b *Broker) Subscribe(clientID string, key pathkey.Key, standing bool) *MultiClient {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	client := b.clientLocked(clientID)
	ch := b.ensureChannelLocked(key)
	b.mu.Unlock()

	ch.mu.Lock()
	ch.subs[clientID] = standing
	ch.mu.Unlock()

	client.mu.Lock()
	client.subscriptions[key] = standing
	client.mu.Unlock()
	return client
}

// Unsubscribe detaches a client from a key, destroying the channel if it was
// the last publisher or subscriber reference (created lazily, so an empty
// channel with zero subscribers is simply left to be garbage collected with
// the map entry removed).
func (b *Broker) Unsubscribe(clientID string, key pathkey.Key) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.channels[key]
	b.mu.Unlock()
	if !ok {
		return
	}
	ch.mu.Lock()
	delete(ch.subs, clientID)
	empty := len(ch.subs) == 0
	ch.mu.Unlock()

	if client := b.Client(clientID); client != nil {
		client.mu.Lock()
		delete(client.subscriptions, key)
		client.mu.Unlock()
	}
	if empty {
		b.mu.Lock()
		delete(b.channels, key)
		b.mu.Unlock()
	}
}

// RemoveClient discards all subscriptions and queued envelopes for a
// terminated node.
func (b *Broker) RemoveClient(clientID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	client, ok := b.clients[clientID]
	if ok {
		delete(b.clients, clientID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	client.mu.Lock()
	keys := make([]pathkey.Key, 0, len(client.subscriptions))
	for k := range client.subscriptions {
		keys = append(keys, k)
	}
	client.mu.Unlock()
	for _, k := range keys {
		b.Unsubscribe(clientID, k)
	}
}

// Publish delivers an envelope to every subscriber of key. A timestamp
// strictly lower than the previous publication on the same (publisher, key)
// pair is rejected with MessageError::OutOfOrder. Publishing to a key with no
// subscribers is a benign no-op, not an error.
func (b *Broker) Publish(from string, key pathkey.Key, env *envelope.Envelope) error {
	if b == nil || env == nil {
		return simerr.Message("nil broker or envelope")
	}
	pk := publishKey{publisher: from, key: key}

	b.mu.Lock()
	if prev, seen := b.lastPublished[pk]; seen && env.Timestamp < prev {
		b.mu.Unlock()
		return simerr.OutOfOrder(key.String(), prev, env.Timestamp)
	}
	b.lastPublished[pk] = env.Timestamp
	ch, ok := b.channels[key]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	ch.mu.Lock()
	targets := make([]string, 0, len(ch.subs))
	for id, standing := range ch.subs {
		targets = append(targets, id)
		if !standing {
			//1.- Instantaneous subscriptions are consumed by their one matching publication.
			delete(ch.subs, id)
		}
	}
	ch.mu.Unlock()

	for _, id := range targets {
		client := b.Client(id)
		client.enqueue(key, env.Clone())
		client.mu.Lock()
		if standing := client.subscriptions[key]; !standing {
			delete(client.subscriptions, key)
		}
		client.mu.Unlock()
	}
	return nil
}

// entryHeap orders queued deliveries by timestamp, then PathKey lexicographic
// order, then publisher-FIFO insertion order — the exact tie-break contract
// of try_receive (spec §4.2).
type queueEntry struct {
	timestamp float32
	key       pathkey.Key
	seq       uint64
	env       *envelope.Envelope
}

type entryHeap []queueEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp < h[j].timestamp
	}
	if h[i].key != h[j].key {
		return pathkey.Less(h[i].key, h[j].key)
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(queueEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	popped := old[n-1]
	*h = old[:n-1]
	return popped
}

// MultiClient aggregates one node's subscriptions behind the try_receive
// contract.
type MultiClient struct {
	id     string
	broker *Broker

	mu            sync.Mutex
	seq           uint64
	entries       entryHeap
	subscriptions map[pathkey.Key]bool
}

func (c *MultiClient) enqueue(key pathkey.Key, env *envelope.Envelope) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	heap.Push(&c.entries, queueEntry{timestamp: env.Timestamp, key: key, seq: c.seq, env: env})
	c.seq++
}

// TryReceive pops the envelope with the smallest timestamp across the
// client's queues, iff that timestamp is <= now.
func (c *MultiClient) TryReceive(now float32) (pathkey.Key, *envelope.Envelope, bool) {
	if c == nil {
		return "", nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 || c.entries[0].timestamp > now {
		return "", nil, false
	}
	popped := heap.Pop(&c.entries).(queueEntry)
	return popped.key, popped.env, true
}

// NextMessageTime returns the minimum head timestamp across this client's
// queues, used by the simulator to advance the global clock.
func (c *MultiClient) NextMessageTime() (float32, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return 0, false
	}
	return c.entries[0].timestamp, true
}

// Send publishes an envelope on behalf of this client.
func (c *MultiClient) Send(key pathkey.Key, env *envelope.Envelope) error {
	if c == nil || c.broker == nil {
		return simerr.Message("client not attached to a broker")
	}
	return c.broker.Publish(c.id, key, env)
}

// Pending reports how many envelopes are queued at or before now, without
// popping them. Used by process_messages() to report a count.
func (c *MultiClient) Pending(now float32) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.entries {
		if e.timestamp <= now {
			count++
		}
	}
	return count
}

// AnyPendingAtOrBefore reports whether any client anywhere on the broker
// still holds an undelivered envelope timestamped at or before now. The
// simulator's coordinator consults this before flipping barrier parity
// (spec §4.7): no node may proceed until every message at the current time
// has been observed.
func (b *Broker) AnyPendingAtOrBefore(now float32) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	clients := make([]*MultiClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		if c.Pending(now) > 0 {
			return true
		}
	}
	return false
}
