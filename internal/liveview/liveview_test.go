package liveview

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"simkernel/internal/strategy"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	u.Scheme = "ws"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("failed to dial liveview server: %v", err)
	}
	return conn
}

func TestBroadcastDeliversRecordsToConnectedClient(t *testing.T) {
	s := New(nil, nil)
	httpSrv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpSrv.Close()

	conn := dial(t, httpSrv)
	defer conn.Close()

	// Give the server a moment to finish registering the client.
	deadline := time.Now().Add(time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", s.ClientCount())
	}

	s.Broadcast(1.5, []strategy.NodeRecord{{Name: "object-a", Timestamp: 1.5}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast message: %v", err)
	}
	if len(msg) == 0 {
		t.Fatalf("expected a non-empty broadcast payload")
	}
}

func TestServeHTTPRejectsFailedAuthentication(t *testing.T) {
	denyAll := authFunc(func(*http.Request) (string, error) {
		return "", errDenied
	})
	s := New(denyAll, nil)
	httpSrv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpSrv.Close()

	resp, err := http.Get(httpSrv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestServeHTTPRejectsConnectionsOverTheRateLimit(t *testing.T) {
	s := New(nil, nil)
	httpSrv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpSrv.Close()

	var lastStatus int
	for i := 0; i < maxConnectsPerWindow+1; i++ {
		resp, err := http.Get(httpSrv.URL)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		lastStatus = resp.StatusCode
		resp.Body.Close()
	}
	if lastStatus != http.StatusTooManyRequests {
		t.Fatalf("expected the connect burst to eventually be rate limited, last status %d", lastStatus)
	}
}

type authFunc func(*http.Request) (string, error)

func (f authFunc) Authenticate(r *http.Request) (string, error) { return f(r) }

var errDenied = &authError{"denied"}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }
