package client

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-backend/dtos"
)

type fakePusher struct {
	mu        sync.Mutex
	calls     []pushRequest
	gate      chan struct{} // when set, each push waits for a receive
	entered   chan struct{} // when set, receives once per push before the gate
	err       error
	stale     bool  // every response is stale
	serverSeq int64 // highest seq applied, as the server tracks it
}

func (f *fakePusher) ReplaceCart(ctx context.Context, items []LineItem, seq int64) (dtos.CartView, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return dtos.CartView{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushRequest{items: items, seq: seq})
	if f.err != nil {
		return dtos.CartView{}, f.err
	}
	if f.stale {
		return dtos.CartView{Items: items, Seq: seq, Stale: true}, nil
	}
	if seq > 0 && seq <= f.serverSeq {
		return dtos.CartView{Seq: f.serverSeq, Stale: true}, nil
	}
	if seq > f.serverSeq {
		f.serverSeq = seq
	}
	return dtos.CartView{Items: items, Seq: seq}, nil
}

func (f *fakePusher) snapshot() []pushRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pushRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func startSyncer(t *testing.T, p CartPusher, log *slog.Logger) *CartSyncer {
	t.Helper()
	s := NewCartSyncer(p, log, time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func flush(t *testing.T, s *CartSyncer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
}

func TestSyncerPushesSnapshot(t *testing.T) {
	p := &fakePusher{}
	s := startSyncer(t, p, nil)

	seq := s.Enqueue([]LineItem{{SKU: "a", Qty: 2}})
	flush(t, s)

	calls := p.snapshot()
	if len(calls) != 1 || calls[0].seq != seq || calls[0].items[0].Qty != 2 {
		t.Fatalf("unexpected pushes: %#v", calls)
	}
	if s.AppliedSeq() != seq {
		t.Errorf("expected applied seq %d, got %d", seq, s.AppliedSeq())
	}
	if view, ok := s.LastServerCart(); !ok || view.Seq != seq {
		t.Errorf("expected last server cart at seq %d, got %#v", seq, view)
	}
}

func TestSyncerCoalescesWhileInFlight(t *testing.T) {
	p := &fakePusher{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	s := startSyncer(t, p, nil)

	s.Enqueue([]LineItem{{SKU: "a", Qty: 1}})
	<-p.entered
	s.Enqueue([]LineItem{{SKU: "a", Qty: 2}})
	s.Enqueue([]LineItem{{SKU: "a", Qty: 3}})
	last := s.Enqueue([]LineItem{{SKU: "a", Qty: 4}})

	p.gate <- struct{}{}
	p.gate <- struct{}{}
	flush(t, s)

	calls := p.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 pushes after coalescing, got %d", len(calls))
	}
	if calls[1].seq != last || calls[1].items[0].Qty != 4 {
		t.Errorf("expected newest snapshot to win, got %#v", calls[1])
	}
	if calls[0].seq >= calls[1].seq {
		t.Error("sequence numbers must increase")
	}
}

func TestSyncerFailureIsLoggedNotRetried(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	p := &fakePusher{err: errors.New("connection refused")}
	s := startSyncer(t, p, log)

	items := []LineItem{{SKU: "a", Qty: 1}}
	s.Enqueue(items)
	flush(t, s)

	if len(p.snapshot()) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(p.snapshot()))
	}
	if !strings.Contains(buf.String(), "cart sync failed") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
	if s.AppliedSeq() != 0 {
		t.Error("failed push must not advance the applied seq")
	}
	if items[0].Qty != 1 {
		t.Error("caller's items must not be touched")
	}
}

func TestSyncerDiscardsStaleResponse(t *testing.T) {
	p := &fakePusher{stale: true}
	s := startSyncer(t, p, nil)

	s.Enqueue([]LineItem{{SKU: "a", Qty: 1}})
	flush(t, s)

	if s.AppliedSeq() != 0 {
		t.Errorf("stale response must be discarded, applied seq %d", s.AppliedSeq())
	}
	if _, ok := s.LastServerCart(); ok {
		t.Error("stale response must not become the last server cart")
	}
}

func TestSyncerRebasesAfterStaleResponse(t *testing.T) {
	// Another session already pushed seq 500.
	p := &fakePusher{serverSeq: 500}
	var buf bytes.Buffer
	s := startSyncer(t, p, slog.New(slog.NewTextHandler(&buf, nil)))

	s.Enqueue([]LineItem{{SKU: "a", Qty: 2}})
	flush(t, s)

	calls := p.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected the stale push to be retried once, got %d calls", len(calls))
	}
	if calls[1].seq != 501 || len(calls[1].items) != 1 || calls[1].items[0].Qty != 2 {
		t.Errorf("expected local snapshot pushed again at seq 501, got %#v", calls[1])
	}
	if s.AppliedSeq() != 501 {
		t.Errorf("expected applied seq 501, got %d", s.AppliedSeq())
	}
	if view, ok := s.LastServerCart(); !ok || view.Items[0].SKU != "a" {
		t.Errorf("expected server cart to follow the local one, got %#v", view)
	}
	if !strings.Contains(buf.String(), "another session") {
		t.Errorf("expected conflict to be logged, got %q", buf.String())
	}
	if seq := s.Enqueue(nil); seq != 502 {
		t.Errorf("numbering should continue past the server, got %d", seq)
	}
}

func TestSyncerSeqBase(t *testing.T) {
	s := NewCartSyncer(&fakePusher{}, nil, 0, 1000)
	if seq := s.Enqueue(nil); seq != 1001 {
		t.Errorf("expected first seq 1001, got %d", seq)
	}
}

func TestFlushWhenIdle(t *testing.T) {
	s := NewCartSyncer(&fakePusher{}, nil, 0, 0)
	if err := s.Flush(context.Background()); err != nil {
		t.Errorf("idle flush should return at once, got %v", err)
	}
}

func TestFlushHonoursContext(t *testing.T) {
	// No worker is running, so the queue never drains.
	s := NewCartSyncer(&fakePusher{}, nil, 0, 0)
	s.Enqueue([]LineItem{{SKU: "a", Qty: 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
