package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront-backend/dtos"
)

// CartPusher replaces the server cart wholesale.
type CartPusher interface {
	ReplaceCart(ctx context.Context, items []LineItem, seq int64) (dtos.CartView, error)
}

type pushRequest struct {
	items   []LineItem
	seq     int64
	rebased bool // already renumbered after a stale response
}

// CartSyncer pushes whole-cart snapshots from a single worker. While a push
// is in flight only the newest pending snapshot is kept. Failures are
// logged and dropped; the next snapshot reconciles. A stale response means
// another session pushed a higher seq: numbering jumps past the server's
// and the local snapshot is pushed again, so local state wins.
type CartSyncer struct {
	pusher  CartPusher
	log     *slog.Logger
	timeout time.Duration

	wake chan struct{}

	mu         sync.Mutex
	pending    *pushRequest
	drained    chan struct{} // nil while idle
	nextSeq    int64
	appliedSeq int64
	lastView   *dtos.CartView
}

// NewCartSyncer numbers snapshots from seqBase+1. Sessions pass a
// time-derived base so a new session outranks the previous one.
func NewCartSyncer(pusher CartPusher, log *slog.Logger, timeout time.Duration, seqBase int64) *CartSyncer {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CartSyncer{
		pusher:  pusher,
		log:     log,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		nextSeq: seqBase,
	}
}

// Enqueue schedules a push of items and returns its sequence number. It
// never blocks on the network.
func (s *CartSyncer) Enqueue(items []LineItem) int64 {
	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	s.pending = &pushRequest{items: cloneItems(items), seq: seq}
	if s.drained == nil {
		s.drained = make(chan struct{})
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return seq
}

// Run processes pushes until ctx is done.
func (s *CartSyncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			req := s.pending
			s.pending = nil
			if req == nil {
				if s.drained != nil {
					close(s.drained)
					s.drained = nil
				}
				s.mu.Unlock()
				break
			}
			s.mu.Unlock()

			s.push(ctx, req)
		}
	}
}

func (s *CartSyncer) push(ctx context.Context, req *pushRequest) {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	view, err := s.pusher.ReplaceCart(pctx, req.items, req.seq)
	if err != nil {
		s.log.Warn("cart sync failed", "seq", req.seq, "items", len(req.items), "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if view.Stale {
		s.rebase(req, view.Seq)
		return
	}
	if req.seq <= s.appliedSeq {
		s.log.Debug("out-of-order cart sync response discarded", "seq", req.seq, "applied_seq", s.appliedSeq)
		return
	}
	s.appliedSeq = req.seq
	s.lastView = &view
}

// rebase moves numbering past serverSeq and schedules the newest local
// snapshot again. Each snapshot is renumbered at most once; after that the
// next local change carries a fresh seq. Callers hold s.mu.
func (s *CartSyncer) rebase(req *pushRequest, serverSeq int64) {
	if serverSeq > s.nextSeq {
		s.nextSeq = serverSeq
	}
	if req.rebased && s.pending == nil {
		s.log.Warn("cart sync still stale after rebase", "seq", req.seq, "server_seq", serverSeq)
		return
	}

	s.nextSeq++
	if s.pending == nil {
		s.pending = &pushRequest{items: req.items, seq: s.nextSeq, rebased: true}
	} else {
		s.pending.seq = s.nextSeq
		s.pending.rebased = true
	}
	s.log.Warn("cart changed by another session, pushing local cart again",
		"stale_seq", req.seq, "server_seq", serverSeq, "seq", s.nextSeq)
}

// Flush waits until no push is pending or in flight.
func (s *CartSyncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	ch := s.drained
	s.mu.Unlock()
	if ch == nil {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AppliedSeq is the sequence number of the newest push the server applied.
func (s *CartSyncer) AppliedSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliedSeq
}

// LastServerCart is the server's cart after the newest applied push.
func (s *CartSyncer) LastServerCart() (dtos.CartView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastView == nil {
		return dtos.CartView{}, false
	}
	return *s.lastView, true
}
