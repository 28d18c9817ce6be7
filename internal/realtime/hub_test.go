package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msall/kaalis/internal/purchase"
)

func testHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return &event
}

func confirmedFixture() *purchase.ConfirmedPurchase {
	return &purchase.ConfirmedPurchase{
		RefCommand:    "m1-100",
		UserID:        "user-1",
		ItemID:        "m1",
		ItemName:      "Mangoes",
		Amount:        1500,
		Currency:      "XOF",
		Status:        purchase.StatusCompleted,
		PaymentMethod: "Wave",
	}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Stats()["connectedClients"].(int) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never reached %d connected clients", want)
}

func TestHub_BroadcastsConfirmations(t *testing.T) {
	hub, srv, cancel := testHub(t)
	defer cancel()

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	hub.PublishConfirmation(confirmedFixture())

	event := readEvent(t, conn)
	if event.Type != EventPaymentConfirmed {
		t.Fatalf("event type = %s", event.Type)
	}
	data := event.Data.(map[string]any)
	if data["refCommand"] != "m1-100" || data["amount"] != float64(1500) {
		t.Errorf("event data = %v", data)
	}
}

func TestHub_SubscriptionFilters(t *testing.T) {
	hub, srv, cancel := testHub(t)
	defer cancel()

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	// Only payments of 2000 XOF or more for user-2.
	sub := Subscription{UserIDs: []string{"user-2"}, MinAmount: 2000}
	payload, _ := json.Marshal(sub)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("send subscription: %v", err)
	}
	// Give the readPump a moment to apply the subscription.
	time.Sleep(50 * time.Millisecond)

	filtered := confirmedFixture() // user-1, 1500
	hub.PublishConfirmation(filtered)

	matching := confirmedFixture()
	matching.RefCommand = "m2-200"
	matching.UserID = "user-2"
	matching.Amount = 2500
	hub.PublishConfirmation(matching)

	event := readEvent(t, conn)
	data := event.Data.(map[string]any)
	if data["refCommand"] != "m2-200" {
		t.Fatalf("filtered event leaked through: %v", data)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, srv, cancel := testHub(t)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	cancel()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected connection to close on shutdown")
	}
}

func waitForDone(t *testing.T, hub *Hub) {
	t.Helper()
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestHub_RejectsUpgradeAfterShutdown(t *testing.T) {
	hub, srv, cancel := testHub(t)

	cancel()
	waitForDone(t, hub)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHub_AddAfterShutdownDoesNotBlock(t *testing.T) {
	hub, _, cancel := testHub(t)

	cancel()
	waitForDone(t, hub)

	result := make(chan bool, 1)
	go func() {
		result <- hub.add(&Client{hub: hub, send: make(chan []byte, 1)})
	}()

	select {
	case ok := <-result:
		if ok {
			t.Fatal("add accepted a client after shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("add blocked after shutdown")
	}
}

func TestHub_RemoveAfterShutdownDoesNotBlock(t *testing.T) {
	hub, srv, cancel := testHub(t)

	dial(t, srv)
	waitForClients(t, hub, 1)

	cancel()
	waitForDone(t, hub)

	done := make(chan struct{})
	go func() {
		hub.remove(&Client{hub: hub, send: make(chan []byte, 1)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("remove blocked after shutdown")
	}
}
