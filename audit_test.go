package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type countingSink struct {
	mu     sync.Mutex
	events []AuditEvent
	block  chan struct{}
}

func (s *countingSink) Emit(_ context.Context, event AuditEvent) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	}
	d.Close()

	if got := sink.count(); got != 5 {
		t.Fatalf("delivered %d events, want 5", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("dropped %d, want 0", d.Dropped())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &countingSink{block: block}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The worker is stuck on the first event; the buffer holds one more.
	// Everything past that is shed.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(block)
	d.Close()
}

func TestDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("disabled audit should produce a nil dispatcher")
	}
	// Nil dispatcher methods are safe.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)
	d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	if got := sink.count(); got != 0 {
		t.Fatalf("delivered %d events after close, want 0", got)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType:   "login_success",
		PrincipalID: "p001",
		Success:     true,
	})

	var decoded AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid NDJSON line: %v", err)
	}
	if decoded.EventType != "login_success" || decoded.PrincipalID != "p001" || !decoded.Success {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}
