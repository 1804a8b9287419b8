package adminapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is one live-feed message pushed to a /machines/{id}/watch
// subscriber: the observational shape of a transition, never the
// persistence contract itself.
type Frame struct {
	MachineID string   `json:"machineId"`
	Value     []string `json:"value"`
}

// Hub fans transitions out to connected watchers, keyed by root event id.
// Observational only: a dropped or slow subscriber never blocks Send.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*websocket.Conn]bool)}
}

func (h *Hub) subscribe(rootEventID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[rootEventID] == nil {
		h.subs[rootEventID] = make(map[*websocket.Conn]bool)
	}
	h.subs[rootEventID][conn] = true
}

func (h *Hub) unsubscribe(rootEventID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[rootEventID], conn)
}

// Broadcast pushes value to every watcher of rootEventID. Write errors
// (a dead or backed-up connection) only unsubscribe that one connection.
func (h *Hub) Broadcast(rootEventID string, value []string) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[rootEventID]))
	for c := range h.subs[rootEventID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	frame := Frame{MachineID: rootEventID, Value: value}
	body, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			h.unsubscribe(rootEventID, conn)
			_ = conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Admin surface is meant for trusted operator tooling behind the JWT
	// middleware on the REST side; the websocket listener has no per-origin
	// policy of its own to enforce here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StartWatchServer runs a net/http server exposing
// GET /machines/{id}/watch, upgrading each connection to a WebSocket and
// streaming Frame messages from hub until the client disconnects.
func StartWatchServer(addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/machines/", func(w http.ResponseWriter, r *http.Request) {
		rootEventID, ok := parseWatchPath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.subscribe(rootEventID, conn)
		defer func() {
			hub.unsubscribe(rootEventID, conn)
			_ = conn.Close()
		}()

		// Drain and discard client frames; this feed is one-directional.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	log.Printf("statecraft adminapi: watch server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func parseWatchPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "machines" || parts[2] != "watch" {
		return "", false
	}
	return parts[1], true
}
