package node

import (
	"sync"

	"simkernel/internal/broker"
	"simkernel/internal/config"
	"simkernel/internal/envelope"
	"simkernel/internal/logging"
	"simkernel/internal/pathkey"
	"simkernel/internal/sensors"
	"simkernel/internal/servicebus"
	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// Option configures a Node at construction time, following the teacher's
// functional-options style (internal/match/session.go's SessionOption).
type Option func(*Node)

// WithModel sets the node's model string (spec §3 NodeMetaData.model).
func WithModel(model string) Option { return func(n *Node) { n.model = model } }

// WithLabels sets the node's free-form labels.
func WithLabels(labels []string) Option {
	return func(n *Node) { n.labels = append([]string(nil), labels...) }
}

// WithInitialPosition sets the pose a node reports before its physics
// strategy (if any) has run its first update.
func WithInitialPosition(p strategy.Position) Option {
	return func(n *Node) { n.position = p }
}

// WithPhysics attaches the node's physics strategy.
func WithPhysics(p strategy.Physics) Option { return func(n *Node) { n.physics = p } }

// WithNavigator attaches the node's navigator strategy.
func WithNavigator(nav strategy.Navigator) Option { return func(n *Node) { n.navigator = nav } }

// WithController attaches the node's controller strategy.
func WithController(c strategy.Controller) Option { return func(n *Node) { n.controller = c } }

// WithEstimator attaches the node's primary state estimator.
func WithEstimator(e strategy.StateEstimator) Option { return func(n *Node) { n.estimator = e } }

// WithBenchEstimator attaches an additional estimator run alongside the
// primary one purely for comparison (spec §4.5): it never sets the control
// loop flag and its corrections never feed the navigator.
func WithBenchEstimator(name string, e strategy.StateEstimator) Option {
	return func(n *Node) {
		if n.benchEstimators == nil {
			n.benchEstimators = make(map[string]strategy.StateEstimator)
		}
		n.benchEstimators[name] = e
	}
}

// WithSensorManager attaches the node's sensor manager.
func WithSensorManager(m *sensors.Manager) Option { return func(n *Node) { n.sensorManager = m } }

// WithLogger attaches a structured logger; defaults to the package-global
// logger returned by logging.L() if never set.
func WithLogger(l *logging.Logger) Option { return func(n *Node) { n.logger = l } }

// Node is one simulated entity: a lifecycle state machine, a set of
// pluggable strategies it owns under a reader/writer lock, and the
// broker/service-bus handles it injects into every strategy call via
// strategy.NodeHandle (spec §3, §4.6, §9).
type Node struct {
	name   string
	kind   config.Kind
	model  string
	labels []string

	broker     *broker.Broker
	client     *broker.MultiClient
	bus        *servicebus.Bus
	registry   *Registry
	logger     *logging.Logger
	commandKey pathkey.Key
	logKeys    map[logging.Level]pathkey.Key

	// mu guards every field a peer sensor or the recorder may read while
	// this node's own update-loop goroutine is writing it (spec §5: "Each
	// Node owns its strategies under a reader/writer lock: writers are the
	// node's own update loop; readers are peer sensors and the recorder").
	mu             sync.RWMutex
	state          State
	position       strategy.Position
	doControlLoop  bool
	pendingPreKill bool

	physics         strategy.Physics
	navigator       strategy.Navigator
	controller      strategy.Controller
	estimator       strategy.StateEstimator
	benchEstimators map[string]strategy.StateEstimator
	sensorManager   *sensors.Manager

	inboxMu sync.Mutex
	inbox   map[pathkey.Key][]map[string]any
}

// New constructs a node in the Created state. It does not subscribe to any
// topic or become visible to peers until Spawn is called.
func New(name string, kind config.Kind, b *broker.Broker, bus *servicebus.Bus, registry *Registry, opts ...Option) *Node {
	n := &Node{
		name:     name,
		kind:     kind,
		broker:   b,
		bus:      bus,
		registry: registry,
		state:    Created,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logging.L()
	}
	n.logger = n.logger.WithNode(name)
	n.commandKey = pathkey.New("command").Child(name)
	n.logKeys = map[logging.Level]pathkey.Key{
		logging.ErrorLevel: pathkey.New("log").Child(name).Child("error"),
		logging.WarnLevel:  pathkey.New("log").Child(name).Child("warning"),
		logging.InfoLevel:  pathkey.New("log").Child(name).Child("info"),
		logging.DebugLevel: pathkey.New("log").Child(name).Child("debug"),
	}
	return n
}

// Name returns the node's unique identity.
func (n *Node) Name() string { return n.name }

// Kind returns the node's configured kind.
func (n *Node) Kind() config.Kind { return n.kind }

// State reports the current lifecycle state.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Position implements strategy.NodeHandle.
func (n *Node) Position() strategy.Position {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position
}

// Metadata snapshots the node's identity and pose for the fleet registry.
func (n *Node) Metadata() MetaData {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return MetaData{
		Name:     n.name,
		Kind:     n.kind,
		Model:    n.model,
		Labels:   append([]string(nil), n.labels...),
		State:    n.state,
		Position: n.position,
	}
}

// Snapshot builds the record-stream entry for this node at the given
// logical time (spec §6 "Record stream (output)"), pulling each owned
// strategy's own Record() without holding the node's lock across those
// calls (a strategy's Record implementation may itself want to read node
// state through the handle it was given during the step).
func (n *Node) Snapshot(now float32) strategy.NodeRecord {
	n.mu.RLock()
	physics, navigator, controller, estimator := n.physics, n.navigator, n.controller, n.estimator
	benchEstimators := make(map[string]strategy.StateEstimator, len(n.benchEstimators))
	for k, v := range n.benchEstimators {
		benchEstimators[k] = v
	}
	rec := strategy.NodeRecord{
		Name:      n.name,
		Kind:      string(n.kind),
		Timestamp: now,
		Position:  n.position,
	}
	n.mu.RUnlock()

	if estimator != nil {
		r := estimator.Record()
		rec.Estimator = &r
	}
	if navigator != nil {
		r := navigator.Record()
		rec.Navigator = &r
	}
	if controller != nil {
		r := controller.Record()
		rec.Controller = &r
	}
	if physics != nil {
		r := physics.Record()
		rec.Physics = &r
	}
	if len(benchEstimators) > 0 {
		rec.BenchEstimators = make(map[string]strategy.Record, len(benchEstimators))
		for name, bench := range benchEstimators {
			rec.BenchEstimators[name] = bench.Record()
		}
	}
	return rec
}

// RegisterService attaches this node's responder handler to the service
// bus. A node that never calls this is simply unreachable via Call
// (ServiceError::Unavailable), which is the correct behavior for a node that
// exposes no services.
func (n *Node) RegisterService(handler servicebus.Handler) {
	if n == nil || n.bus == nil {
		return
	}
	n.bus.Register(n.name, handler)
}

// Spawn transitions a Created node to Running: it subscribes to its
// command topic, runs its physics strategy's PostInit hook, reads its
// initial pose, and publishes its metadata to the fleet registry (spec
// §4.8 factory steps ii-v, condensed onto the node itself since the
// factory's only remaining job is strategy construction).
func (n *Node) Spawn(now float32) error {
	n.mu.Lock()
	if n.state != Created {
		state := n.state
		n.mu.Unlock()
		return simerr.Implementation("node %q: Spawn called from state %s", n.name, state)
	}
	n.mu.Unlock()

	n.client = n.broker.Subscribe(n.name, n.commandKey, true)
	if n.physics != nil {
		if err := n.physics.PostInit(n); err != nil {
			return simerr.ExternalAPI("node %q physics PostInit: %v", n.name, err)
		}
	}

	n.mu.Lock()
	if n.physics != nil {
		n.position = n.physics.State(now).Position
	}
	n.state = Running
	n.mu.Unlock()

	n.registry.Set(n.Metadata())
	return nil
}

// PreKill requests a cooperative shutdown: the node keeps running until the
// top of its next update step, where it transitions to Zombie before doing
// any further work (spec §9 Open Question 2, resolved: pre_kill is
// cooperative, kill is immediate).
func (n *Node) PreKill() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingPreKill = true
}

// Kill transitions the node straight to Zombie, regardless of where its
// update loop currently stands.
func (n *Node) Kill() {
	n.transitionToZombie()
}

// Terminate releases every resource a Zombie node still holds: its service
// bus registration, its broker subscriptions and queued envelopes, and its
// fleet metadata entry. Call this once a Zombie node's service mailbox has
// finished draining.
func (n *Node) Terminate() {
	n.mu.Lock()
	if n.state != Zombie {
		n.mu.Unlock()
		return
	}
	n.state = Terminated
	n.mu.Unlock()

	n.bus.Close(n.name)
	n.broker.RemoveClient(n.name)
	n.registry.Remove(n.name)
}

func (n *Node) transitionToZombie() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == Running {
		n.state = Zombie
	}
}

// Publish implements strategy.NodeHandle.
func (n *Node) Publish(key pathkey.Key, payload map[string]any, now float32) error {
	env, err := envelope.New(n.name, payload, now)
	if err != nil {
		return err
	}
	return n.client.Send(key, env)
}

// Subscribe implements strategy.NodeHandle.
func (n *Node) Subscribe(key pathkey.Key, standing bool) {
	n.broker.Subscribe(n.name, key, standing)
}

// Inbox implements strategy.NodeHandle.
func (n *Node) Inbox(key pathkey.Key) []map[string]any {
	n.inboxMu.Lock()
	defer n.inboxMu.Unlock()
	msgs := n.inbox[key]
	delete(n.inbox, key)
	return msgs
}

// Call implements strategy.NodeHandle.
func (n *Node) Call(peer, method string, payload map[string]any, now, timeout float32, retries int) (map[string]any, error) {
	env, err := envelope.New(n.name, payload, now)
	if err != nil {
		return nil, err
	}
	reply, err := n.bus.Call(n.name, peer, method, env, now, timeout, retries)
	if err != nil {
		return nil, err
	}
	return reply.PayloadMap(), nil
}

func (n *Node) logAndPublish(level logging.Level, msg string, fields map[string]any) {
	// n.logger is already scoped to this node's name (see New), so only the
	// call-specific fields need to be attached here.
	logFields := make([]logging.Field, 0, len(fields))
	for k, v := range fields {
		logFields = append(logFields, logging.Field{Key: k, Value: v})
	}
	switch level {
	case logging.ErrorLevel:
		n.logger.Error(msg, logFields...)
	case logging.WarnLevel:
		n.logger.Warn(msg, logFields...)
	case logging.DebugLevel:
		n.logger.Debug(msg, logFields...)
	default:
		n.logger.Info(msg, logFields...)
	}

	if n.client == nil {
		return
	}
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["message"] = msg
	if env, err := envelope.New(n.name, payload, 0); err == nil {
		_ = n.client.Send(n.logKeys[level], env)
	}
}

// LogError implements strategy.NodeHandle.
func (n *Node) LogError(msg string, fields map[string]any) { n.logAndPublish(logging.ErrorLevel, msg, fields) }

// LogWarning implements strategy.NodeHandle.
func (n *Node) LogWarning(msg string, fields map[string]any) {
	n.logAndPublish(logging.WarnLevel, msg, fields)
}

// LogInfo implements strategy.NodeHandle.
func (n *Node) LogInfo(msg string, fields map[string]any) { n.logAndPublish(logging.InfoLevel, msg, fields) }

// LogDebug implements strategy.NodeHandle.
func (n *Node) LogDebug(msg string, fields map[string]any) {
	n.logAndPublish(logging.DebugLevel, msg, fields)
}

// processMessages drains the service bus mailbox and every ready envelope
// on this node's own subscriptions, returning the total count processed
// (spec §4.6 step 1). The command topic is handled inline (Kill flag ->
// immediate Zombie transition, "pre_kill" payload field -> cooperative
// PreKill); every other topic's payloads are staged into the per-key inbox
// a strategy later drains via NodeHandle.Inbox.
func (n *Node) processMessages(now float32) int {
	count := n.bus.ProcessRequests(n.name, now)
	for {
		key, env, ok := n.client.TryReceive(now)
		if !ok {
			break
		}
		count++
		if key == n.commandKey {
			n.handleCommand(env)
			continue
		}
		n.inboxMu.Lock()
		if n.inbox == nil {
			n.inbox = make(map[pathkey.Key][]map[string]any)
		}
		n.inbox[key] = append(n.inbox[key], env.PayloadMap())
		n.inboxMu.Unlock()
	}
	return count
}

func (n *Node) handleCommand(env *envelope.Envelope) {
	if env.HasFlag(envelope.FlagKill) {
		n.transitionToZombie()
		return
	}
	if payload := env.PayloadMap(); payload != nil {
		if preKill, _ := payload["pre_kill"].(bool); preKill {
			n.PreKill()
		}
	}
}
