package scriptadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"simkernel/internal/pathkey"
	"simkernel/internal/strategy"
)

// fakeHandle is a minimal strategy.NodeHandle stub for adapter tests.
type fakeHandle struct {
	name string
	pos  strategy.Position
}

func (f fakeHandle) Name() string                        { return f.name }
func (f fakeHandle) Position() strategy.Position          { return f.pos }
func (f fakeHandle) Publish(pathkey.Key, map[string]any, float32) error { return nil }
func (f fakeHandle) Subscribe(pathkey.Key, bool)                        {}
func (f fakeHandle) Call(string, string, map[string]any, float32, float32, int) (map[string]any, error) {
	return nil, nil
}
func (f fakeHandle) Inbox(pathkey.Key) []map[string]any { return nil }
func (f fakeHandle) LogError(string, map[string]any)    {}
func (f fakeHandle) LogWarning(string, map[string]any)  {}
func (f fakeHandle) LogInfo(string, map[string]any)     {}
func (f fakeHandle) LogDebug(string, map[string]any)    {}

func TestPhysicsAdapterRoundTripsUpdateState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("server failed to decode request: %v", err)
		}
		if req.Role != "physics" || req.Method != "update_state" {
			t.Fatalf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response{
			Result: map[string]any{
				"state": strategy.State{Position: strategy.Position{X: 1, Y: 2, Theta: 0}},
			},
		})
	}))
	defer srv.Close()

	phys, err := NewPhysics(srv.URL, "object-a", srv.Client())
	if err != nil {
		t.Fatalf("NewPhysics() returned error: %v", err)
	}
	if err := phys.UpdateState(1.0); err != nil {
		t.Fatalf("UpdateState() returned error: %v", err)
	}
	got := phys.State(1.0)
	if got.Position.X != 1 || got.Position.Y != 2 {
		t.Fatalf("unexpected decoded state: %+v", got)
	}
}

func TestAdapterSurfacesScriptErrorAsOpaqueText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response{Error: "division by zero in plan"})
	}))
	defer srv.Close()

	nav, err := NewNavigator(srv.URL, "object-a", srv.Client())
	if err != nil {
		t.Fatalf("NewNavigator() returned error: %v", err)
	}
	handle := fakeHandle{name: "object-a"}
	_, err = nav.ComputeError(handle, strategy.WorldState{})
	if err == nil {
		t.Fatalf("expected an error from a scripted failure response")
	}
}

func TestAdapterSurfacesNonOKStatusAsExternalAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctrl, err := NewController(srv.URL, "object-a", srv.Client())
	if err != nil {
		t.Fatalf("NewController() returned error: %v", err)
	}
	handle := fakeHandle{name: "object-a"}
	_, err = ctrl.MakeCommand(handle, strategy.ControllerError{}, 0)
	if err == nil {
		t.Fatalf("expected an error from a non-2xx response")
	}
}

func TestNewRejectsEmptyEndpoint(t *testing.T) {
	if _, err := New("", "object-a", "physics", nil); err == nil {
		t.Fatalf("expected an error for an empty endpoint")
	}
}
