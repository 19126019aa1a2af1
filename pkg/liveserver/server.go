package liveserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SnapshotSource supplies the state pushed to every client on a timer.
type SnapshotSource func() interface{}

// Server serves the live dashboard WebSocket endpoint. Clients connect to
// /ws and receive engine snapshots on an interval plus event broadcasts
// (fills, halts) pushed through the hub.
type Server struct {
	hub      *Hub
	srv      *http.Server
	logger   Logger
	upgrader websocket.Upgrader

	snapshot SnapshotSource
	interval time.Duration
}

// NewServer creates a dashboard server on the given port.
func NewServer(hub *Hub, port int, snapshot SnapshotSource, interval time.Duration, logger Logger) *Server {
	s := &Server{
		hub:      hub,
		logger:   logger,
		snapshot: snapshot,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the hub, the snapshot ticker and the HTTP listener, and blocks
// until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	if s.snapshot != nil && s.interval > 0 {
		go s.pushSnapshots(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.logger != nil {
		s.logger.Info("Dashboard server started", "addr", s.srv.Addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) pushSnapshots(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.Broadcast(Message{Type: TypeSnapshot, Data: s.snapshot()})
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("WebSocket upgrade failed", "error", err.Error())
		}
		return
	}

	client := NewClient(uuid.New().String())
	s.hub.Register(client)

	go s.writePump(conn, client)
	go s.readPump(conn, client)
}

// writePump forwards hub messages to the socket until the client channel
// closes.
func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	defer conn.Close()

	for msg := range client.GetSendChan() {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			s.hub.Unregister(client)
			return
		}
	}
}

// readPump drains inbound frames so pings are answered; the dashboard is
// broadcast-only and inbound payloads are discarded.
func (s *Server) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		s.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
