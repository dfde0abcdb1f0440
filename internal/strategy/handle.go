package strategy

import "simkernel/internal/pathkey"

// NodeHandle is the facade a Node exposes to its own strategies and sensors.
// Strategies never hold a direct reference to *node.Node (that would make
// internal/node and internal/strategy import each other); instead the node
// injects itself as a NodeHandle on every trait call, per spec §9's
// resolution of the Node<->strategy cyclic reference ("inject a Node
// reference on every trait call and never let strategies own Node").
type NodeHandle interface {
	// Name returns the node's unique identity.
	Name() string
	// Position returns the node's last known pose.
	Position() Position
	// Publish sends an envelope on the node's behalf.
	Publish(key pathkey.Key, payload map[string]any, now float32) error
	// Subscribe attaches the node to a topic, standing or instantaneous.
	Subscribe(key pathkey.Key, standing bool)
	// Call issues a synchronous service request to a peer node.
	Call(peer, method string, payload map[string]any, now, timeout float32, retries int) (map[string]any, error)
	// Inbox drains and returns every payload the node has received on key
	// since the last drain. The command and log topics are handled by the
	// node itself; Inbox is how a strategy reads whatever else it asked to
	// be Subscribed to.
	Inbox(key pathkey.Key) []map[string]any
	// LogError, LogWarning, LogInfo, LogDebug publish to the node's own
	// log/<name>/{error,warning,info,debug} topic (spec §6).
	LogError(msg string, fields map[string]any)
	LogWarning(msg string, fields map[string]any)
	LogInfo(msg string, fields map[string]any)
	LogDebug(msg string, fields map[string]any)
}
