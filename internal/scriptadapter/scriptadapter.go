// Package scriptadapter implements the plugin boundary of spec.md §6: a
// transcoder that lets a scripted strategy class, running out-of-process
// behind an HTTP endpoint, stand in for a native implementation of one of
// the four trait interfaces (internal/strategy). The adapter's only
// responsibility is marshaling trait calls to opaque JSON and back; it adds
// no ordering guarantees beyond what the node's own update loop already
// provides.
//
// Grounded on the teacher's internal/bots/http_launcher.go: a thin
// *http.Client wrapper that POSTs a JSON request body, checks the status
// code, and decodes a JSON response, generalized from a single "scale bot
// population" call to one call per trait method.
package scriptadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"simkernel/internal/simerr"
	"simkernel/internal/strategy"
)

// Adapter dispatches trait calls to a scripted implementation over HTTP.
// One Adapter is created per (node, role) pair; Role distinguishes which
// trait method set the remote endpoint must answer for.
type Adapter struct {
	client   *http.Client
	endpoint string
	node     string
	role     string
}

// New wires an Adapter to a scripted strategy's HTTP endpoint. role is a
// free-form label (e.g. "estimator", "navigator") included in every
// request so one script process can multiplex several roles.
func New(endpoint, node, role string, client *http.Client) (*Adapter, error) {
	if endpoint == "" {
		return nil, simerr.Config("scriptadapter: endpoint must not be empty")
	}
	//1.- Reuse the provided client when available so callers can inject transport tweaks.
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{client: client, endpoint: endpoint, node: node, role: role}, nil
}

// request is the envelope every call to the scripted endpoint is wrapped
// in; Params carries the opaque, method-specific payload.
type request struct {
	Node   string         `json:"node"`
	Role   string         `json:"role"`
	Method string         `json:"method"`
	Now    float32        `json:"now,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// response is the envelope every scripted reply must conform to. A script
// that fails sets Error to an opaque message rather than returning a
// non-2xx status, mirroring spec.md §7's PythonError/ScriptError kind
// ("script-language failure; surfaced as opaque text").
type response struct {
	Error  string         `json:"error,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// call POSTs one trait invocation to the scripted endpoint and returns its
// decoded result payload.
func (a *Adapter) call(ctx context.Context, method string, now float32, params map[string]any) (map[string]any, error) {
	req := request{Node: a.node, Role: a.role, Method: method, Now: now, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, simerr.ExternalAPI("scriptadapter: marshal request for %s/%s: %v", a.role, method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, simerr.ExternalAPI("scriptadapter: build request for %s/%s: %v", a.role, method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, simerr.ExternalAPI("scriptadapter: %s/%s unreachable: %v", a.role, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, simerr.ExternalAPI("scriptadapter: %s/%s responded with status %s", a.role, method, resp.Status)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, simerr.ExternalAPI("scriptadapter: decode response for %s/%s: %v", a.role, method, err)
	}
	//2.- A script-level failure comes back as a 2xx response carrying an
	// opaque Error string, not as an HTTP error status.
	if decoded.Error != "" {
		return nil, simerr.Script(fmt.Sprintf("%s/%s: %s", a.role, method, decoded.Error))
	}
	return decoded.Result, nil
}

func handleToParams(node strategy.NodeHandle) map[string]any {
	return map[string]any{
		"name":     node.Name(),
		"position": node.Position(),
	}
}

var (
	_ strategy.StateEstimator = (*Estimator)(nil)
	_ strategy.Navigator      = (*Navigator)(nil)
	_ strategy.Controller     = (*Controller)(nil)
	_ strategy.Physics        = (*Physics)(nil)
)
