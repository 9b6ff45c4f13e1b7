package serve

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialReload(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + ReloadPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *ReloadHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReloadHub_Broadcast(t *testing.T) {
	hub := NewReloadHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == ReloadPath {
			hub.HandleWebSocket(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	conn := dialReload(t, srv)
	waitForClients(t, hub, 1)

	hub.NotifyReload()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg ReloadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != ReloadTypeFull {
		t.Errorf("type = %q, want reload", msg.Type)
	}

	hub.NotifyCSS("main.css")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != ReloadTypeCSS || msg.File != "main.css" {
		t.Errorf("css message = %+v", msg)
	}
}

func TestReloadHub_ClientLifecycle(t *testing.T) {
	hub := NewReloadHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	if hub.ClientCount() != 0 {
		t.Fatalf("fresh hub client count = %d", hub.ClientCount())
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("disconnected client was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReloadClientScript(t *testing.T) {
	if !strings.Contains(ReloadClientScript, ReloadPath) {
		t.Error("client script must connect to the reload endpoint")
	}
	for _, want := range []string{"reload", "css"} {
		if !strings.Contains(ReloadClientScript, want) {
			t.Errorf("client script should handle %q messages", want)
		}
	}
}
