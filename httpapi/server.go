// Package httpapi is a thin HTTP wrapper around the planner (spec.md
// §6 "HTTP surface"). Grounded on the teacher's scheduler.WebServer:
// a single *http.Server, a gorilla/websocket upgrader, a sync.Map of
// connected clients, and a broadcast channel drained by one goroutine
// — re-pointed at plan publications instead of miner/PV status.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"github.com/devskill-org/ems-core/fixture"
	"github.com/devskill-org/ems-core/planner"
	"github.com/devskill-org/ems-core/plant"
)

// Server serves the planner's HTTP and WebSocket surface.
type Server struct {
	planner *planner.Planner
	cfg     *plant.Config
	logger  *log.Logger

	server   *http.Server
	upgrader websocket.Upgrader

	clients   sync.Map // *websocket.Conn -> struct{}
	broadcast chan []byte
	done      chan struct{}
}

// New builds a Server listening on addr ("host:port"). A nil logger
// defaults to log.Default().
func New(p *planner.Planner, cfg *plant.Config, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		planner: p,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/plan/run", s.runHandler)
	mux.HandleFunc("/plan/latest", s.latestHandler)
	mux.HandleFunc("/plan/await", s.awaitHandler)
	mux.HandleFunc("/settings", s.settingsHandler)
	mux.HandleFunc("/ws/plan", s.wsHandler)

	return s
}

// Start launches the broadcast pump, the publish-watcher, and the
// listener in background goroutines and returns immediately.
func (s *Server) Start() {
	go s.handleBroadcasts()
	go s.watchPublications()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("httpapi: server error: %v", err)
		}
	}()
}

// Stop closes all WebSocket clients and shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)
	s.clients.Range(func(key, _ any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return s.server.Shutdown(ctx)
}

type runResponse struct {
	Run            planner.RunState `json:"run"`
	AlreadyRunning bool             `json:"already_running"`
}

func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	run, already := s.planner.TriggerRun()
	writeJSON(w, http.StatusAccepted, runResponse{Run: run, AlreadyRunning: already})
}

func (s *Server) latestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pub, ok := s.planner.Latest()
	if !ok {
		http.Error(w, "no plan published yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

func (s *Server) awaitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	since := parseSince(r.URL.Query().Get("since"))
	timeout := parseTimeoutSeconds(r.URL.Query().Get("timeout"))

	pub, ok := s.planner.AwaitLatest(r.Context(), since, timeout)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

func (s *Server) settingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		redacted := fixture.Redact(s.cfg)
		b, err := yaml.Marshal(redacted)
		if err != nil {
			http.Error(w, "failed to encode settings", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(b)
	case http.MethodPost:
		http.Error(w, "settings are read-only", http.StatusNotImplemented)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("httpapi: websocket upgrade error: %v", err)
		return
	}
	s.clients.Store(conn, struct{}{})

	if pub, ok := s.planner.Latest(); ok {
		if b, err := json.Marshal(pub); err == nil {
			conn.WriteMessage(websocket.TextMessage, b)
		}
	}

	defer func() {
		s.clients.Delete(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// watchPublications long-polls the planner forever and forwards every
// publication to the broadcast channel.
func (s *Server) watchPublications() {
	var lastSeen time.Time
	for {
		select {
		case <-s.done:
			return
		default:
		}
		pub, ok := s.planner.AwaitLatest(context.Background(), lastSeen, 0)
		if !ok {
			return
		}
		lastSeen = pub.Plan.Header.GeneratedAt
		b, err := json.Marshal(pub)
		if err != nil {
			s.logger.Printf("httpapi: marshal publication: %v", err)
			continue
		}
		select {
		case s.broadcast <- b:
		case <-s.done:
			return
		}
	}
}

func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, _ any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					s.logger.Printf("httpapi: websocket write error: %v", err)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

func parseSince(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(epoch, 0)
	}
	return time.Time{}
}

func parseTimeoutSeconds(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
