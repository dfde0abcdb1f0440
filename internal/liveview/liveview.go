// Package liveview is the optional, peripheral live-view server spec.md §1
// names alongside telemetry export and trajectory file formats: an
// HTTP+WebSocket endpoint that fans out each step's NodeRecords to any
// number of observing clients, for a UI or external monitor to render.
//
// Grounded on the teacher's root main.go WebSocket broker: an upgrader,
// a per-client buffered send channel drained by a writer goroutine with
// periodic pings and a read-deadline/pong keepalive, and an optional
// pluggable authenticator (websocket_auth.go's websocketAuthenticator,
// folded into authenticator.go's hmacAuthenticator rather than kept as a
// separate generic JWT package), generalized from broadcasting arbitrary
// game-state JSON to broadcasting marshaled NodeRecords.
package liveview

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"simkernel/internal/logging"
	"simkernel/internal/strategy"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 20 * time.Second
	pongWait     = 2 * pingInterval

	// connectWindow/maxConnectsPerWindow bound new-connection churn so a
	// misbehaving or malicious observer can't reconnect fast enough to
	// starve the registration mutex or flood log output.
	connectWindow        = 10 * time.Second
	maxConnectsPerWindow = 20
)

// Authenticator validates an incoming WebSocket upgrade request and
// returns a logical client identifier (empty string if anonymous access is
// fine). allowAll satisfies this with no checks.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(*http.Request) (string, error) { return "", nil }

// client is one connected observer.
type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Server fans out NodeRecords to connected WebSocket observers.
type Server struct {
	upgrader       websocket.Upgrader
	auth           Authenticator
	logger         *logging.Logger
	connectLimiter *connectLimiter

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New builds a liveview server. auth may be nil (anonymous access).
func New(auth Authenticator, logger *logging.Logger) *Server {
	if auth == nil {
		auth = allowAllAuthenticator{}
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Server{
		auth:           auth,
		logger:         logger,
		clients:        make(map[*client]struct{}),
		connectLimiter: newConnectLimiter(connectWindow, maxConnectsPerWindow, nil),
		//1.- Origin checks belong to the deployment's reverse proxy in this
		// peripheral server; the core kernel makes no claim about browser
		// trust boundaries.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ServeHTTP upgrades the connection and registers the client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.connectLimiter.Allow() {
		s.logger.Warn("rejecting liveview connection: connect rate exceeded")
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	clientID, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Warn("rejecting liveview connection: authentication failed", logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if clientID == "" {
		clientID = r.RemoteAddr
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("liveview websocket upgrade failed", logging.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64), id: clientID}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.deregister(c)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readLoop(c)
	go s.writeLoop(c)
}

// readLoop only exists to drain control frames (pong) and notice the
// client going away; the live-view protocol is write-only from the server.
func (s *Server) readLoop(c *client) {
	defer s.deregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.logger.Debug("liveview client read deadline exceeded", logging.String("client", c.id))
			}
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.deregister(c)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.deregister(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				s.deregister(c)
				return
			}
		}
	}
}

func (s *Server) deregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// step is the wire envelope for one time step's worth of records.
type step struct {
	Type    string                 `json:"type"`
	Now     float32                `json:"now"`
	Records []strategy.NodeRecord `json:"records"`
}

// Broadcast marshals one step's NodeRecords and fans them out to every
// connected client, dropping slow clients rather than blocking the
// simulator (spec.md §1: the live view is peripheral, never a dependency
// of the core loop).
func (s *Server) Broadcast(now float32, records []strategy.NodeRecord) {
	payload, err := json.Marshal(step{Type: "records", Now: now, Records: records})
	if err != nil {
		s.logger.Warn("failed to marshal liveview step", logging.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			delete(s.clients, c)
			close(c.send)
		}
	}
}

// WriteRecord and WriteSnapshot let a Server be attached directly as an
// internal/sim.Simulator recorder alongside internal/recordlog.Writer:
// WriteRecord is a no-op (the live view only cares about whole-fleet
// steps), and WriteSnapshot is where the actual broadcast happens.
func (s *Server) WriteRecord(strategy.NodeRecord) error { return nil }

func (s *Server) WriteSnapshot(now float32, records []strategy.NodeRecord) (bool, error) {
	s.Broadcast(now, records)
	return true, nil
}

// ClientCount reports the number of currently connected observers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
