// Package auditpoll keeps a live snapshot of one audit run by polling the backend until
// the run reaches a terminal status.
package auditpoll

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
	"auditflow/internal/statemachine"
)

const DefaultInterval = 2 * time.Second

// Watcher polls at most one audit at a time. Changing the watched id stops the previous
// loop before a new one starts.
type Watcher struct {
	fetcher  ports.AuditFetcher
	clock    clockwork.Clock
	interval time.Duration
	onUpdate func(domain.Audit)

	switchMu sync.Mutex // serialises Watch/Close

	mu      sync.Mutex
	auditID string
	gen     uint64
	current *domain.Audit
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Watcher)

func WithClock(c clockwork.Clock) Option { return func(w *Watcher) { w.clock = c } }

func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// OnUpdate registers fn to receive every accepted snapshot. It runs on the poll goroutine
// and must not call Watch or Close.
func OnUpdate(fn func(domain.Audit)) Option { return func(w *Watcher) { w.onUpdate = fn } }

func New(fetcher ports.AuditFetcher, opts ...Option) *Watcher {
	w := &Watcher{fetcher: fetcher, clock: clockwork.NewRealClock(), interval: DefaultInterval}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch points the watcher at auditID; "" detaches. Watching the id already being watched
// is a no-op.
func (w *Watcher) Watch(auditID string) {
	w.switchMu.Lock()
	defer w.switchMu.Unlock()

	w.mu.Lock()
	if auditID == w.auditID && (auditID == "" || w.done != nil) {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.gen++
	w.auditID = auditID
	w.current = nil
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if auditID == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan struct{})
	w.mu.Lock()
	gen := w.gen
	w.cancel, w.done = cancel, done
	w.mu.Unlock()

	go w.run(ctx, gen, auditID, done)
}

// Close stops any running loop and waits for it to exit.
func (w *Watcher) Close() { w.Watch("") }

// Snapshot returns a copy of the latest audit, if one has been fetched.
func (w *Watcher) Snapshot() (domain.Audit, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return domain.Audit{}, false
	}
	return w.current.Clone(), true
}

// AuditID returns the id currently watched.
func (w *Watcher) AuditID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.auditID
}

// Polling reports whether a loop is still scheduling fetches.
func (w *Watcher) Polling() bool {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (w *Watcher) run(ctx context.Context, gen uint64, auditID string, done chan struct{}) {
	defer close(done)
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	if w.poll(ctx, gen, auditID) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if w.poll(ctx, gen, auditID) {
				return
			}
		}
	}
}

// poll fetches once and reports whether polling should stop.
func (w *Watcher) poll(ctx context.Context, gen uint64, auditID string) bool {
	a, err := w.fetcher.GetAudit(ctx, auditID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("auditpoll: audit %s not available yet", auditID)
		} else {
			log.Printf("auditpoll: fetch %s failed: %v", auditID, err)
		}
		return false
	}
	if !w.apply(gen, a) {
		return true
	}
	return statemachine.Audit.IsTerminal(a.Status)
}

// apply stores a if its loop is still current; it reports false for a superseded loop.
func (w *Watcher) apply(gen uint64, a domain.Audit) bool {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return false
	}
	if w.current != nil && statemachine.Audit.IsTerminal(w.current.Status) && !statemachine.Audit.IsTerminal(a.Status) {
		w.mu.Unlock()
		return true
	}
	snap := a.Clone()
	w.current = &snap
	fn := w.onUpdate
	w.mu.Unlock()

	if fn != nil {
		fn(a.Clone())
	}
	return true
}
