package adminapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func upgradeHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func TestParseWatchPathExtractsRootEventID(t *testing.T) {
	id, ok := parseWatchPath("/machines/instance-1/watch")
	if !ok || id != "instance-1" {
		t.Fatalf("expected instance-1, got %q ok=%v", id, ok)
	}
}

func TestParseWatchPathRejectsMalformedPaths(t *testing.T) {
	for _, p := range []string{"/machines/instance-1", "/instance-1/watch", "/machines/instance-1/watch/extra"} {
		if _, ok := parseWatchPath(p); ok {
			t.Fatalf("expected %q to be rejected", p)
		}
	}
}

func TestHubBroadcastDeliversFrameToSubscriber(t *testing.T) {
	hub := NewHub()

	srv := httptest.NewServer(upgradeHandler(hub))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/machines/instance-1/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// give the server goroutine a moment to register the subscription
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast("instance-1", []string{"door", "open"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, body, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(body), "instance-1") || !strings.Contains(string(body), "open") {
		t.Fatalf("unexpected frame body: %s", body)
	}
}

func TestHubBroadcastToUnknownRootIsANoop(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("nobody-subscribed", []string{"door", "open"})
}
