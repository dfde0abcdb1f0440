package node

import (
	"testing"

	"simkernel/internal/broker"
	"simkernel/internal/config"
	"simkernel/internal/envelope"
	"simkernel/internal/pathkey"
	"simkernel/internal/servicebus"
)

func newTestNode(t *testing.T, name string) (*Node, *broker.Broker, *servicebus.Bus, *Registry) {
	t.Helper()
	b := broker.New()
	bus := servicebus.New()
	registry := NewRegistry()
	n := New(name, config.KindRobot, b, bus, registry)
	return n, b, bus, registry
}

func TestSpawnTransitionsCreatedToRunning(t *testing.T) {
	n, _, _, registry := newTestNode(t, "robot-a")
	if n.State() != Created {
		t.Fatalf("expected Created before Spawn, got %s", n.State())
	}
	if err := n.Spawn(0); err != nil {
		t.Fatalf("Spawn() returned error: %v", err)
	}
	if n.State() != Running {
		t.Fatalf("expected Running after Spawn, got %s", n.State())
	}
	if _, ok := registry.Get("robot-a"); !ok {
		t.Fatalf("expected Spawn to publish metadata to the registry")
	}
}

func TestSpawnTwiceFails(t *testing.T) {
	n, _, _, _ := newTestNode(t, "robot-a")
	if err := n.Spawn(0); err != nil {
		t.Fatalf("first Spawn() returned error: %v", err)
	}
	if err := n.Spawn(0); err == nil {
		t.Fatalf("expected second Spawn() to fail")
	}
}

func TestKillIsImmediate(t *testing.T) {
	n, _, _, _ := newTestNode(t, "robot-a")
	if err := n.Spawn(0); err != nil {
		t.Fatalf("Spawn() returned error: %v", err)
	}
	n.Kill()
	if n.State() != Zombie {
		t.Fatalf("expected Zombie immediately after Kill(), got %s", n.State())
	}
}

func TestPreKillIsCooperative(t *testing.T) {
	n, _, _, _ := newTestNode(t, "robot-a")
	if err := n.Spawn(0); err != nil {
		t.Fatalf("Spawn() returned error: %v", err)
	}
	n.PreKill()
	if n.State() != Running {
		t.Fatalf("expected PreKill to leave state Running until the next step, got %s", n.State())
	}
}

func TestKillFlagOnCommandTopicTransitionsToZombie(t *testing.T) {
	n, b, _, _ := newTestNode(t, "robot-a")
	if err := n.Spawn(0); err != nil {
		t.Fatalf("Spawn() returned error: %v", err)
	}
	env, err := envelope.New("operator", nil, 0, envelope.FlagKill)
	if err != nil {
		t.Fatalf("envelope.New() returned error: %v", err)
	}
	if err := b.Publish("operator", pathkey.New("command/robot-a"), env); err != nil {
		t.Fatalf("Publish() returned error: %v", err)
	}
	if n.processMessages(0) == 0 {
		t.Fatalf("expected processMessages to drain the command envelope")
	}
	if n.State() != Zombie {
		t.Fatalf("expected Kill flag to transition to Zombie, got %s", n.State())
	}
}

func TestTerminateReleasesBrokerAndServiceBus(t *testing.T) {
	n, _, bus, registry := newTestNode(t, "robot-a")
	if err := n.Spawn(0); err != nil {
		t.Fatalf("Spawn() returned error: %v", err)
	}
	n.RegisterService(func(string, *envelope.Envelope, float32) (*envelope.Envelope, error) { return nil, nil })
	n.Kill()
	n.Terminate()

	if n.State() != Terminated {
		t.Fatalf("expected Terminated, got %s", n.State())
	}
	if _, ok := registry.Get("robot-a"); ok {
		t.Fatalf("expected Terminate to remove the registry entry")
	}
	if _, err := bus.Call("peer", "robot-a", "ping", nil, 0, 1, 0); err == nil {
		t.Fatalf("expected a terminated node's service bus entry to be closed")
	}
}

func TestPublishAndInboxRoundTrip(t *testing.T) {
	n, b, _, _ := newTestNode(t, "robot-a")
	if err := n.Spawn(0); err != nil {
		t.Fatalf("Spawn() returned error: %v", err)
	}
	key := pathkey.New("telemetry/robot-a")
	b.Subscribe("robot-a", key, true)
	if err := n.Publish(key, map[string]any{"speed": 1.5}, 0); err != nil {
		t.Fatalf("Publish() returned error: %v", err)
	}
	if n.processMessages(0) == 0 {
		t.Fatalf("expected processMessages to drain the self-published envelope")
	}
	msgs := n.Inbox(key)
	if len(msgs) != 1 || msgs[0]["speed"] != 1.5 {
		t.Fatalf("unexpected inbox contents: %+v", msgs)
	}
	if len(n.Inbox(key)) != 0 {
		t.Fatalf("expected Inbox to drain on read")
	}
}
