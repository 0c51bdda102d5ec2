package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"allocator/internal/database"
	"allocator/internal/portfolio"
)

var ErrShuttingDown = errors.New("workspaces are shutting down")

// Loader is the read side of the portfolio repository.
type Loader interface {
	EnsureUserExists(ctx context.Context, userID, name string) error
	LoadWorkspace(ctx context.Context, userID string) (database.Workspace, error)
}

// Workspaces keeps one portfolio.Manager per user, loading it from the store on first use.
type Workspaces struct {
	loader Loader
	sink   portfolio.Sink
	log    *logrus.Logger
	opts   []portfolio.Option

	loadTimeout time.Duration

	mu       sync.RWMutex
	managers map[string]*portfolio.Manager
	closed   bool
	group    singleflight.Group
}

type discard struct{}

func (discard) Enqueue(portfolio.Change) {}

func NewWorkspaces(loader Loader, sink portfolio.Sink, log *logrus.Logger, opts ...portfolio.Option) *Workspaces {
	if sink == nil {
		sink = discard{}
	}
	return &Workspaces{
		loader:   loader,
		sink:     sink,
		log:      log,
		opts:     opts,
		managers: map[string]*portfolio.Manager{},

		loadTimeout: 10 * time.Second,
	}
}

// Get returns the user's manager. Concurrent first calls for the same user share one load,
// which keeps running when the caller that started it goes away.
func (w *Workspaces) Get(ctx context.Context, userID string) (*portfolio.Manager, error) {
	w.mu.RLock()
	m, ok := w.managers[userID]
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}
	if ok {
		return m, nil
	}

	ch := w.group.DoChan(userID, func() (interface{}, error) {
		w.mu.RLock()
		m, ok := w.managers[userID]
		w.mu.RUnlock()
		if ok {
			return m, nil
		}

		// shared by every waiter, so not bound to any one request
		loadCtx, cancel := context.WithTimeout(context.Background(), w.loadTimeout)
		defer cancel()
		m, err := w.load(loadCtx, userID)
		if err != nil {
			return nil, err
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			m.Close()
			return nil, ErrShuttingDown
		}
		w.managers[userID] = m
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*portfolio.Manager), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Workspaces) load(ctx context.Context, userID string) (*portfolio.Manager, error) {
	if err := w.loader.EnsureUserExists(ctx, userID, ""); err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", userID, err)
	}
	ws, err := w.loader.LoadWorkspace(ctx, userID)
	if err != nil {
		return nil, err
	}

	coll := portfolio.NewCollection(ws.Portfolios, ws.ActiveID, ws.NextID)
	if len(ws.Portfolios) == 0 {
		// fresh user: store the default portfolio right away
		for _, p := range coll.Portfolios() {
			w.sink.Enqueue(portfolio.Change{Op: portfolio.OpSave, UserID: userID, Portfolio: p, PortfolioID: p.ID})
		}
	}
	if len(ws.Portfolios) == 0 || coll.ActiveID() != ws.ActiveID || coll.NextID() != ws.NextID {
		w.sink.Enqueue(portfolio.Change{Op: portfolio.OpState, UserID: userID, ActiveID: coll.ActiveID(), NextID: coll.NextID()})
	}

	w.log.WithFields(logrus.Fields{"user_id": userID, "portfolios": coll.Len()}).Info("workspace loaded")
	return portfolio.NewManager(userID, coll, w.sink, w.log, w.opts...), nil
}

// CloseAll commits every pending deletion and refuses further loads.
func (w *Workspaces) CloseAll() {
	w.mu.Lock()
	w.closed = true
	ms := make([]*portfolio.Manager, 0, len(w.managers))
	for _, m := range w.managers {
		ms = append(ms, m)
	}
	w.mu.Unlock()

	for _, m := range ms {
		m.Close()
	}
}
