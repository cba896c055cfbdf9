package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/artbid/internal/model"
)

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	events   []model.Event
	calls    int
	closed   bool
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) snapshot() ([]model.Event, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...), p.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestDispatcher_RetriesUntilDelivered(t *testing.T) {
	pub := &recordingPublisher{failures: 2}
	d := NewDispatcher(pub, zap.NewNop(), WithRetry(5, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	ev := NewEvent(model.EventAuctionSettled, 42, nil, nil, time.Now())
	d.Notify(context.Background(), ev)

	waitFor(t, func() bool {
		events, _ := pub.snapshot()
		return len(events) == 1
	})

	cancel()
	<-done

	events, calls := pub.snapshot()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if events[0].ID != ev.ID {
		t.Fatalf("delivered event id = %q, want %q", events[0].ID, ev.ID)
	}
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pub := &recordingPublisher{failures: 10}
	d := NewDispatcher(pub, zap.New(core), WithRetry(3, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Notify(context.Background(), NewEvent(model.EventBidOutbid, 1, nil, nil, time.Now()))

	waitFor(t, func() bool { return logs.FilterMessage("event delivery failed").Len() == 1 })

	_, calls := pub.snapshot()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDispatcher_DrainsQueueOnShutdown(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, zap.NewNop(), WithQueueSize(4))

	for i := 0; i < 3; i++ {
		d.Notify(context.Background(), NewEvent(model.EventBidPlaced, int64(i+1), nil, nil, time.Now()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	events, _ := pub.snapshot()
	if len(events) != 3 {
		t.Fatalf("delivered %d events, want 3", len(events))
	}
}

func TestDispatcher_NotifyDropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, zap.New(core), WithQueueSize(1))

	d.Notify(context.Background(), NewEvent(model.EventBidPlaced, 1, nil, nil, time.Now()))

	returned := make(chan struct{})
	go func() {
		d.Notify(context.Background(), NewEvent(model.EventBidPlaced, 2, nil, nil, time.Now()))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("Notify blocked on a full queue")
	}

	if n := logs.FilterMessage("event dropped: queue is full").Len(); n != 1 {
		t.Fatalf("drop warnings = %d, want 1", n)
	}
}

func TestDispatcher_RetryInterruptedByShutdownIsDrained(t *testing.T) {
	pub := &recordingPublisher{failures: 1}
	d := NewDispatcher(pub, zap.NewNop(), WithRetry(5, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	ev := NewEvent(model.EventAuctionSettled, 7, nil, nil, time.Now())
	d.Notify(context.Background(), ev)

	waitFor(t, func() bool {
		_, calls := pub.snapshot()
		return calls == 1
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	events, calls := pub.snapshot()
	if calls != 2 || len(events) != 1 || events[0].ID != ev.ID {
		t.Fatalf("calls = %d, events = %v, want the interrupted event delivered on shutdown", calls, events)
	}
}

func TestMultiPublisher_JoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{failures: 1}
	m := MultiPublisher{bad, ok}

	err := m.Publish(context.Background(), NewEvent(model.EventBidPlaced, 1, nil, nil, time.Now()))
	if err == nil {
		t.Fatalf("expected error from failing publisher")
	}

	events, _ := ok.snapshot()
	if len(events) != 1 {
		t.Fatalf("healthy publisher got %d events, want 1", len(events))
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !ok.closed || !bad.closed {
		t.Fatalf("Close must reach every publisher")
	}
}

func TestLogPublisher_WritesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	uid, amount := int64(5), int64(300)
	if err := p.Publish(context.Background(), NewEvent(model.EventAuctionSettled, 9, &uid, &amount, time.Now())); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	entries := logs.FilterMessage("auction event").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["type"] != string(model.EventAuctionSettled) {
		t.Fatalf("type field = %v", fields["type"])
	}
	if fields["userID"] != int64(5) || fields["amount"] != int64(300) {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestChannel(t *testing.T) {
	if got := Channel(12); got != "auction_events:12" {
		t.Fatalf("Channel(12) = %q", got)
	}
}
