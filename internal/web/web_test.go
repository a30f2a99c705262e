package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"simdash/internal/logging"
)

func TestRenderDashboard(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, PageData{
		Title:    "simdash",
		Runs:     []string{"vla_c_a", "vla_c_<b>"},
		Selected: "vla_c_a",
		Panels:   []PanelLink{{Kind: "flat", Title: "Flat"}},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	page := buf.String()
	for _, want := range []string{
		`<option value="vla_c_a" selected>vla_c_a</option>`,
		`vla_c_&lt;b&gt;`,
		`id="card-flat"`,
		`Analysis of Flat-Image`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(logging.NewWriter(io.Discard, "error", "text"))
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(ctx) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	msg := RunsMessage{Type: "runs", Runs: []string{"vla_c_a"}, ScanID: "abc"}
	if err := hub.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got RunsMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "runs" || len(got.Runs) != 1 || got.ScanID != "abc" {
		t.Fatalf("unexpected message %+v", got)
	}
}
