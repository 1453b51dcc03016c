// Package ws exposes runtime statistics over HTTP: a plain JSON snapshot
// endpoint and a websocket stream that pushes the snapshot once per second.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxelmesh/internal/engine"
	"voxelmesh/internal/logging"
)

// Feed is the handoff between the coordinator and the stats server. The
// coordinator publishes a snapshot each tick; HTTP handlers read the last
// one published. Manager methods never run off the coordinator goroutine.
type Feed struct {
	mu   sync.RWMutex
	last engine.Stats
}

// Publish stores the latest snapshot. Coordinator goroutine only.
func (f *Feed) Publish(s engine.Stats) {
	f.mu.Lock()
	f.last = s
	f.mu.Unlock()
}

// Stats returns the last published snapshot.
func (f *Feed) Stats() engine.Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

type Server struct {
	feed *Feed
	log  logging.Logger
	http *http.Server

	upgrader websocket.Upgrader
}

func NewServer(addr string, feed *Feed, log logging.Logger) *Server {
	s := &Server{
		feed: feed,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/stats/ws", s.wsHandler)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("ws", "stats server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server, closing websocket streams.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) statsHandler(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(s.feed.Stats())
}

func (s *Server) wsHandler(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Discard inbound messages; their errors end the session.
	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-readErr:
			return
		case <-ticker.C:
			b, err := json.Marshal(s.feed.Stats())
			if err != nil {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
