package portfolio

import (
	"context"
	"errors"
	"math"
	"time"

	"allocator/internal/models"
)

var (
	ErrNothingPending = errors.New("no deletion is pending")
	ErrUndoExpired    = errors.New("undo window has expired")
)

// DeletePortfolio hides portfolio id immediately and purges it once the grace period
// runs out unless Undo is called first. The last visible portfolio cannot be deleted.
func (m *Manager) DeletePortfolio(id int64) (PendingDelete, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return PendingDelete{}, ErrClosed
	}

	next, removed, err := m.coll.Remove(id)
	if err != nil {
		return PendingDelete{}, err
	}
	if m.pending != nil {
		m.finalizeLocked()
	}
	m.coll = next

	m.gen++
	gen := m.gen
	m.pending = &pendingDelete{
		portfolio: removed,
		deadline:  m.now().Add(m.grace),
		gen:       gen,
		done:      make(chan struct{}),
	}
	m.pending.timer = time.AfterFunc(m.grace, func() { m.expire(gen) })
	m.stateLocked()

	m.logger().WithField("portfolio_id", id).Infof("portfolio pending deletion for %s", m.grace)
	return m.pendingSnapshotLocked(), nil
}

// Undo restores the pending portfolio with its fields unchanged. It succeeds only
// strictly before the deadline; past it the purge is committed and ErrUndoExpired
// is returned.
func (m *Manager) Undo() (models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return models.Portfolio{}, ErrNothingPending
	}
	if !m.now().Before(m.pending.deadline) {
		m.finalizeLocked()
		return models.Portfolio{}, ErrUndoExpired
	}

	p := m.pending
	next, err := m.coll.Restore(p.portfolio)
	if err != nil {
		return models.Portfolio{}, err
	}
	p.timer.Stop()
	close(p.done)
	m.pending = nil
	m.coll = next
	m.stateLocked()

	m.logger().WithField("portfolio_id", p.portfolio.ID).Info("portfolio deletion undone")
	return p.portfolio.Clone(), nil
}

// expire is the timer callback. A callback from a deletion that was already undone or
// finalized carries a stale generation and does nothing.
func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil || m.pending.gen != gen {
		return
	}
	m.finalizeLocked()
}

func (m *Manager) finalizeLocked() {
	p := m.pending
	m.pending = nil
	p.timer.Stop()
	close(p.done)
	m.sink.Enqueue(Change{Op: OpPurge, UserID: m.userID, PortfolioID: p.portfolio.ID})
	m.logger().WithField("portfolio_id", p.portfolio.ID).Info("portfolio deleted")
}

func (m *Manager) secondsLeftLocked() int {
	if m.pending == nil {
		return 0
	}
	left := m.pending.deadline.Sub(m.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func (m *Manager) pendingSnapshotLocked() PendingDelete {
	return PendingDelete{
		Portfolio:   m.pending.portfolio.Clone(),
		Deadline:    m.pending.deadline,
		SecondsLeft: m.secondsLeftLocked(),
	}
}

// Pending reports the portfolio awaiting deletion, if any.
func (m *Manager) Pending() (PendingDelete, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return PendingDelete{}, false
	}
	return m.pendingSnapshotLocked(), true
}

// Countdown returns the whole seconds left before the pending deletion commits.
func (m *Manager) Countdown() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secondsLeftLocked()
}

// Watch streams the countdown of the current pending deletion, one value per tick.
// The channel closes when the deletion is undone or committed, or ctx ends. With nothing
// pending it is closed immediately.
func (m *Manager) Watch(ctx context.Context) <-chan int {
	out := make(chan int, 1)

	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		close(out)
		return out
	}
	done := m.pending.done
	m.mu.Unlock()

	go func() {
		defer close(out)
		ticker := time.NewTicker(m.tick)
		defer ticker.Stop()

		last := -1
		for {
			select {
			case <-done:
				return
			default:
			}
			if left := m.Countdown(); left != last {
				select {
				case out <- left:
					last = left
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// Close commits any pending deletion and rejects further mutations.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.pending != nil {
		m.finalizeLocked()
	}
}
