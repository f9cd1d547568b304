package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventRiskAlert, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventRiskAlert, EventBaseline},
	}}

	riskEvent := &Event{Type: EventRiskAlert}
	baselineEvent := &Event{Type: EventBaseline}
	patternEvent := &Event{Type: EventPatternAlert}

	if !h.shouldSend(client, riskEvent) {
		t.Error("Should receive risk_alert events")
	}
	if !h.shouldSend(client, baselineEvent) {
		t.Error("Should receive baseline events")
	}
	if h.shouldSend(client, patternEvent) {
		t.Error("Should NOT receive pattern_alert events")
	}
}

func TestShouldSend_AccountFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Accounts: []string{"A001"},
	}}

	matchingOrig := &Event{
		Type: EventRiskAlert,
		Data: RiskAlert{TransactionID: "T1", OrigID: "A001", DestID: "A002"},
	}
	notMatching := &Event{
		Type: EventRiskAlert,
		Data: RiskAlert{TransactionID: "T2", OrigID: "A003", DestID: "A004"},
	}
	matchingDest := &Event{
		Type: EventRiskAlert,
		Data: RiskAlert{TransactionID: "T3", OrigID: "A005", DestID: "A001"},
	}
	matchingLabel := &Event{
		Type: EventPatternAlert,
		Data: PatternAlert{Account: "A001", Category: "F1_Star_Fraud"},
	}

	if !h.shouldSend(client, matchingOrig) {
		t.Error("Should match on origin account")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated accounts")
	}
	if !h.shouldSend(client, matchingDest) {
		t.Error("Should match on destination account")
	}
	if !h.shouldSend(client, matchingLabel) {
		t.Error("Should match on labeled account")
	}
}

func TestShouldSend_MinRiskIndexFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinRiskIndex: 0.6,
	}}

	high := &Event{
		Type: EventRiskAlert,
		Data: RiskAlert{TransactionID: "T1", RiskIndex: 0.92},
	}
	low := &Event{
		Type: EventRiskAlert,
		Data: RiskAlert{TransactionID: "T2", RiskIndex: 0.2},
	}
	pattern := &Event{
		Type: EventPatternAlert,
		Data: PatternAlert{Account: "A001", Category: "F3_Cycle_Fraud"},
	}

	if !h.shouldSend(client, high) {
		t.Error("Should receive high-index alert")
	}
	if h.shouldSend(client, low) {
		t.Error("Should NOT receive low-index alert")
	}
	if !h.shouldSend(client, pattern) {
		t.Error("MinRiskIndex filter should only apply to risk alerts")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventRiskAlert}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_UntypedData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Accounts: []string{"A001"},
	}}

	// Event with untyped data should not crash
	event := &Event{
		Type: EventBaseline,
		Data: "baseline recomputed",
	}

	// Account filter cannot inspect untyped data, so the event passes through
	if !h.shouldSend(client, event) {
		t.Error("Untyped data should pass through the account filter")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventRiskAlert, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastRiskAlert(RiskAlert{
		TransactionID: "T1", OrigID: "A001", DestID: "A002",
		Amount: 5000, RiskIndex: 0.93, Level: "High",
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastPatternAlert(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Should not panic
	h.BroadcastPatternAlert(PatternAlert{Account: "A001", Category: "F1_Star_Fraud"})
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants pattern alerts
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventPatternAlert}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a risk alert (should be filtered out)
	h.Broadcast(&Event{Type: EventRiskAlert, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive risk alert")
	default:
		// Good - filtered out
	}

	// Send a pattern alert (should be received)
	h.Broadcast(&Event{Type: EventPatternAlert, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive pattern alert")
	}
}
