package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ernie/heistwatch/internal/domain"
	"github.com/ernie/heistwatch/internal/tracker"
	"github.com/gorilla/websocket"
)

func TestWebSocketBroadcast(t *testing.T) {
	env := newTestEnv(t)
	env.router.StartWebSocketHub()

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Registration races the first broadcast; give the hub a moment
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/feeds/robbery/activate", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	env.transport(domain.FeedRobbery).msgs <- tracker.Message{Snapshot: true, Events: []domain.Event{
		{MarkerName: "Bank", Name: "Bank", Status: 1, JobID: "A", Timestamp: 10},
	}}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var update tracker.Update
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatal(err)
	}
	if update.Feed != domain.FeedRobbery || len(update.Events) != 1 {
		t.Fatalf("unexpected broadcast: %+v", update)
	}
}
