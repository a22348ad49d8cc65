// Package gateway composes the runtime's HTTP front door: the REST
// surface from internal/http, the /ws event stream, and the shared
// inbound consumer pipeline.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/pkg/protocol"
)

// RouteRegistrar mounts a handler group on the shared mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// wsEvents is the set of bus events forwarded to WebSocket clients.
var wsEvents = map[string]bool{
	protocol.EventRunStarted:   true,
	protocol.EventRunCompleted: true,
	protocol.EventRunFailed:    true,
	protocol.EventToolCall:     true,
	protocol.EventToolResult:   true,
}

// Server owns the HTTP listener, the WebSocket hub, and route mounting.
type Server struct {
	cfg      config.HTTPConfig
	bus      *bus.MessageBus
	handlers []RouteRegistrar
	ready    func(ctx context.Context) error // nil = always ready

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]bool

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer builds a gateway. ready is the /health/ready probe (e.g. a
// database ping); nil means always ready.
func NewServer(cfg config.HTTPConfig, msgBus *bus.MessageBus, ready func(ctx context.Context) error, handlers ...RouteRegistrar) *Server {
	return &Server{
		cfg:      cfg,
		bus:      msgBus,
		handlers: handlers,
		ready:    ready,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Non-browser clients only; the event stream carries no
			// credentials beyond the bearer already checked per route.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
	}
}

// BuildMux creates and caches the mux with every route registered.
// Call before Start when the mux is needed for extra listeners.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/live", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.HandleFunc("/ws", s.handleWebSocket)

	for _, h := range s.handlers {
		h.RegisterRoutes(mux)
	}

	s.mux = mux
	return mux
}

// Start serves until ctx ends, then shuts down gracefully. Blocks.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.bus.Subscribe("gateway-ws", s.onEvent)
	defer s.bus.Unsubscribe("gateway-ws")

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		s.broadcast(protocol.NewEventFrame(protocol.EventShutdown, nil))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not_ready","error":%q}`, err.Error())
			return
		}
	}
	s.handleHealth(w, r)
}

// onEvent forwards run lifecycle events from the bus to every client.
func (s *Server) onEvent(event bus.Event) {
	if !wsEvents[event.Name] {
		return
	}
	s.broadcast(protocol.NewEventFrame(event.Name, event.Payload))
}

func (s *Server) broadcast(frame protocol.EventFrame) {
	data := frame.Marshal()
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Slow reader: drop it rather than stall the hub.
			delete(s.clients, client)
			client.close()
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		delete(s.clients, client)
		client.close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 64)}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()

	// Drain (and ignore) client frames; exit closes the connection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
	client.close()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}
