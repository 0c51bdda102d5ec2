package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"allocator/internal/models"
	"allocator/internal/portfolio"
)

// Store is the write side of the portfolio repository.
type Store interface {
	SavePortfolio(ctx context.Context, userID string, p models.Portfolio) error
	DeletePortfolio(ctx context.Context, userID string, id int64) error
	SaveWorkspace(ctx context.Context, userID string, activeID, nextID int64) error
}

type PersisterOption func(*Persister)

func WithRetries(n int) PersisterOption {
	return func(p *Persister) {
		if n > 0 {
			p.retries = n
		}
	}
}

func WithBackoff(d time.Duration) PersisterOption {
	return func(p *Persister) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// Persister writes portfolio changes to the store from a single worker goroutine.
// Enqueue never blocks: queued saves of the same portfolio collapse into the latest
// snapshot, and a purge drops any save still waiting for that portfolio. Failed writes
// are retried, then logged and counted; the in-memory state is never rolled back.
type Persister struct {
	store   Store
	log     *logrus.Logger
	retries int
	backoff time.Duration
	timeout time.Duration

	mu      sync.Mutex
	queue   []portfolio.Change
	busy    bool
	stopped bool

	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	failures atomic.Int64
}

func NewPersister(store Store, log *logrus.Logger, opts ...PersisterOption) *Persister {
	p := &Persister{
		store:   store,
		log:     log,
		retries: 3,
		backoff: 200 * time.Millisecond,
		timeout: 5 * time.Second,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	go p.run()
	return p
}

func (p *Persister) Enqueue(c portfolio.Change) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.log.WithFields(logrus.Fields{"user_id": c.UserID, "op": c.Op}).Warn("persister stopped; change dropped")
		return
	}
	p.queue = coalesce(p.queue, c)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func coalesce(queue []portfolio.Change, c portfolio.Change) []portfolio.Change {
	switch c.Op {
	case portfolio.OpSave:
		for i, q := range queue {
			if q.Op == portfolio.OpSave && q.UserID == c.UserID && q.PortfolioID == c.PortfolioID {
				queue[i] = c
				return queue
			}
		}
	case portfolio.OpPurge:
		kept := queue[:0]
		for _, q := range queue {
			if q.Op == portfolio.OpSave && q.UserID == c.UserID && q.PortfolioID == c.PortfolioID {
				continue
			}
			kept = append(kept, q)
		}
		queue = kept
	case portfolio.OpState:
		for i, q := range queue {
			if q.Op == portfolio.OpState && q.UserID == c.UserID {
				queue[i] = c
				return queue
			}
		}
	}
	return append(queue, c)
}

func (p *Persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.quit:
			p.drain()
			return
		}
	}
}

func (p *Persister) drain() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.busy = false
			p.mu.Unlock()
			return
		}
		c := p.queue[0]
		p.queue = p.queue[1:]
		p.busy = true
		p.mu.Unlock()

		p.apply(c)
	}
}

func (p *Persister) apply(c portfolio.Change) {
	entry := p.log.WithFields(logrus.Fields{"user_id": c.UserID, "op": c.Op, "portfolio_id": c.PortfolioID})
	var err error
	for attempt := 1; attempt <= p.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.write(ctx, c)
		cancel()
		if err == nil {
			entry.Debug("change persisted")
			return
		}
		entry.Warnf("persist attempt %d/%d failed: %v", attempt, p.retries, err)
		if attempt < p.retries {
			time.Sleep(p.backoff * time.Duration(attempt))
		}
	}
	p.failures.Add(1)
	entry.Errorf("giving up on change: %v", err)
}

func (p *Persister) write(ctx context.Context, c portfolio.Change) error {
	switch c.Op {
	case portfolio.OpSave:
		return p.store.SavePortfolio(ctx, c.UserID, c.Portfolio)
	case portfolio.OpPurge:
		return p.store.DeletePortfolio(ctx, c.UserID, c.PortfolioID)
	case portfolio.OpState:
		return p.store.SaveWorkspace(ctx, c.UserID, c.ActiveID, c.NextID)
	}
	return fmt.Errorf("unknown change op %q", c.Op)
}

// Failures is the number of changes dropped after exhausting retries.
func (p *Persister) Failures() int64 {
	return p.failures.Load()
}

// Flush waits until every queued change has been written or given up on.
func (p *Persister) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		idle := len(p.queue) == 0 && !p.busy
		p.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop drains the queue and stops the worker. Changes enqueued afterwards are dropped.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.quit)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
