package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"nhooyr.io/websocket"

	"github.com/fuomag9/beatkeeper/internal/models"
	ws "github.com/fuomag9/beatkeeper/internal/websocket"
)

const secret = "test-secret"

func startHub(t *testing.T) (*ws.Hub, *httptest.Server) {
	t.Helper()

	hub := ws.NewHub(secret, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID int) *websocket.Conn {
	t.Helper()

	token, err := ws.IssueToken(secret, userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %s", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForClients(t *testing.T, hub *ws.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func read(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read: %s", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %s", err)
	}
	return msg
}

func TestHub_PublishRoutesByOwner(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)
	waitForClients(t, hub, 2)

	hub.Publish(2, &models.Heartbeat{ID: 10, MonitorID: 5, Status: models.StatusDown})
	hub.Publish(1, &models.Heartbeat{ID: 11, MonitorID: 4, Status: models.StatusUp})

	for _, tc := range []struct {
		conn   *websocket.Conn
		wantID int
	}{{alice, 11}, {bob, 10}} {
		msg := read(t, tc.conn)
		if msg.Type != "heartbeat" {
			t.Errorf("expected heartbeat message, got %q", msg.Type)
		}
		var hb models.Heartbeat
		if err := json.Unmarshal(msg.Payload, &hb); err != nil {
			t.Fatalf("failed to decode heartbeat: %s", err)
		}
		if hb.ID != tc.wantID {
			t.Errorf("expected heartbeat %d but got %d", tc.wantID, hb.ID)
		}
	}
}

func TestHub_Ping(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping","payload":{}}`)); err != nil {
		t.Fatalf("failed to write: %s", err)
	}
	if msg := read(t, conn); msg.Type != "pong" {
		t.Errorf("expected pong but got %q", msg.Type)
	}
}

func TestHub_RejectsBadTokens(t *testing.T) {
	hub, srv := startHub(t)

	expired, _ := ws.IssueToken(secret, 1, -time.Minute)
	forged, _ := ws.IssueToken("other-secret", 1, time.Hour)

	for name, token := range map[string]string{"missing": "", "expired": expired, "forged": forged} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "?token=" + token)
			if err != nil {
				t.Fatalf("request failed: %s", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401 but got %d", resp.StatusCode)
			}
		})
	}

	if _, err := hub.ParseOwner(forged); err == nil {
		t.Error("forged token should not parse")
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, 1)
	waitForClients(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitForClients(t, hub, 0)
}
