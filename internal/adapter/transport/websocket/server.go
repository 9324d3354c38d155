// Package websocket carries OCPP 1.6J over WebSocket, the transport
// chargers in the field actually speak. One connection per charge
// point; the identity rides in the URL path.
package websocket

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp"
	"github.com/voltgrid/csms/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{ocpp.Subprotocol},
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server accepts charger WebSocket connections and bridges them to the
// router. Implements transport.Transport.
type Server struct {
	addr    string
	handler transport.Handler
	log     *zap.Logger

	srv      *http.Server
	listener net.Listener

	mu      sync.RWMutex
	clients map[string]*client
}

func NewServer(addr string, handler transport.Handler, log *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		log:     log,
		clients: make(map[string]*client),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp/", s.handleWebSocket)
	mux.HandleFunc("/ocpp", s.handleWebSocket)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind OCPP listener on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.srv = &http.Server{Handler: mux}

	s.log.Info("OCPP WebSocket server listening", zap.String("addr", s.addr))

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("OCPP WebSocket server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Close shuts the listener and every charger connection.
func (s *Server) Close() error {
	s.mu.Lock()
	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if s.srv != nil {
		return s.srv.Close()
	}
	return nil
}

// Send implements transport.Sender.
func (s *Server) Send(chargePointID string, data []byte) error {
	s.mu.RLock()
	c, ok := s.clients[chargePointID]
	s.mu.RUnlock()

	if !ok {
		return domain.ErrChargerDisconnected
	}
	return c.write(data)
}

// chargePointIDFromRequest accepts both /ocpp/{id} and /ocpp?id={id}.
func chargePointIDFromRequest(r *http.Request) string {
	if id := strings.TrimPrefix(r.URL.Path, "/ocpp/"); id != "" && id != r.URL.Path && !strings.Contains(id, "/") {
		return id
	}
	return r.URL.Query().Get("id")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawID := chargePointIDFromRequest(r)
	chargePointID := domain.SanitizeChargePointID(rawID)
	if chargePointID == "" {
		http.Error(w, "missing charge point id", http.StatusBadRequest)
		return
	}

	// A charger that does not offer ocpp1.6 cannot be served; the
	// upgrader would otherwise complete the handshake with no
	// subprotocol and the charger would silently misbehave.
	if !offersSubprotocol(r, ocpp.Subprotocol) {
		s.log.Warn("Rejecting connection without ocpp1.6 subprotocol",
			zap.String("charge_point_id", chargePointID),
			zap.String("offered", r.Header.Get("Sec-WebSocket-Protocol")),
		)
		http.Error(w, "subprotocol ocpp1.6 required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed",
			zap.String("charge_point_id", chargePointID),
			zap.Error(err),
		)
		return
	}

	c := &client{conn: conn}

	// A reconnect supersedes the previous connection without a
	// disconnect signal: the session simply adopts the new channel.
	s.mu.Lock()
	if prev, ok := s.clients[chargePointID]; ok {
		prev.conn.Close()
	}
	s.clients[chargePointID] = c
	s.mu.Unlock()

	s.handler.OnConnected(s, chargePointID, "websocket")

	go s.readPump(chargePointID, c)
}

func (s *Server) readPump(chargePointID string, c *client) {
	reason := "connection closed"
	var failures transport.DecodeFailureTracker

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				reason = err.Error()
			}
			break
		}

		// The wire format is UTF-8 JSON text; a binary frame counts as
		// a decode failure like any other garbage.
		if msgType != websocket.TextMessage {
			if failures.Fail(time.Now()) {
				reason = "too many undecodable frames"
				break
			}
			continue
		}

		if err := s.handler.OnInbound(chargePointID, message, time.Now()); err != nil {
			if failures.Fail(time.Now()) {
				reason = "too many undecodable frames"
				break
			}
			continue
		}
		failures.Reset()
	}

	c.conn.Close()

	// Only the connection that still owns the registry slot reports the
	// disconnect; a superseded connection stays silent.
	s.mu.Lock()
	current := s.clients[chargePointID] == c
	if current {
		delete(s.clients, chargePointID)
	}
	s.mu.Unlock()

	if current {
		s.handler.OnDisconnected(chargePointID, reason)
	}
}

func offersSubprotocol(r *http.Request, want string) bool {
	for _, header := range r.Header["Sec-Websocket-Protocol"] {
		for _, proto := range strings.Split(header, ",") {
			if strings.TrimSpace(proto) == want {
				return true
			}
		}
	}
	return false
}
