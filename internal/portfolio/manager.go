package portfolio

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"allocator/internal/models"
)

const DefaultGracePeriod = 10 * time.Second

var ErrClosed = errors.New("portfolio manager closed")

type ChangeOp string

const (
	OpSave  ChangeOp = "save"
	OpPurge ChangeOp = "purge"
	OpState ChangeOp = "state"
)

// Change is one persistence command produced by a successful mutation.
type Change struct {
	Op          ChangeOp
	UserID      string
	Portfolio   models.Portfolio
	PortfolioID int64
	ActiveID    int64
	NextID      int64
}

// Sink consumes changes. Enqueue must not block on I/O.
type Sink interface {
	Enqueue(Change)
}

type nopSink struct{}

func (nopSink) Enqueue(Change) {}

type Option func(*Manager)

func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

// WithClock replaces the wall clock used for deadlines and countdowns.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTick sets how often Watch publishes the countdown.
func WithTick(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tick = d
		}
	}
}

// Manager serializes every mutation of one user's collection and runs the soft-delete
// state machine. At most one portfolio is pending deletion; starting another delete
// commits the earlier one first.
type Manager struct {
	mu      sync.Mutex
	userID  string
	coll    *Collection
	sink    Sink
	log     *logrus.Logger
	grace   time.Duration
	tick    time.Duration
	now     func() time.Time
	pending *pendingDelete
	gen     uint64
	closed  bool
}

type pendingDelete struct {
	portfolio models.Portfolio
	deadline  time.Time
	timer     *time.Timer
	gen       uint64
	done      chan struct{}
}

// PendingDelete describes a portfolio waiting out its grace period.
type PendingDelete struct {
	Portfolio   models.Portfolio `json:"portfolio"`
	Deadline    time.Time        `json:"deadline"`
	SecondsLeft int              `json:"seconds_left"`
}

func NewManager(userID string, coll *Collection, sink Sink, log *logrus.Logger, opts ...Option) *Manager {
	if sink == nil {
		sink = nopSink{}
	}
	if coll == nil {
		coll = NewCollection(nil, 0, 0)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		userID: userID,
		coll:   coll,
		sink:   sink,
		log:    log,
		grace:  DefaultGracePeriod,
		tick:   time.Second,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) logger() *logrus.Entry {
	return m.log.WithField("user_id", m.userID)
}

// View is a consistent read of the collection.
type View struct {
	Portfolios []models.Portfolio `json:"portfolios"`
	ActiveID   int64              `json:"active_id"`
	Pending    *PendingDelete     `json:"pending_delete,omitempty"`
}

func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := View{Portfolios: m.coll.Portfolios(), ActiveID: m.coll.ActiveID()}
	if m.pending != nil {
		pd := m.pendingSnapshotLocked()
		v.Pending = &pd
	}
	return v
}

func (m *Manager) Active() models.Portfolio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Active()
}

func (m *Manager) Get(id int64) (models.Portfolio, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Get(id)
}

func (m *Manager) saveLocked(p models.Portfolio) {
	m.sink.Enqueue(Change{Op: OpSave, UserID: m.userID, Portfolio: p, PortfolioID: p.ID})
}

func (m *Manager) stateLocked() {
	m.sink.Enqueue(Change{Op: OpState, UserID: m.userID, ActiveID: m.coll.ActiveID(), NextID: m.coll.NextID()})
}

// apply runs fn against the current collection and commits the result. The returned
// portfolio, when it has a non-zero id, is queued for saving. An unchanged collection
// is not saved.
func (m *Manager) apply(fn func(c *Collection) (*Collection, models.Portfolio, error)) (models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.Portfolio{}, ErrClosed
	}
	next, p, err := fn(m.coll)
	if err != nil {
		return models.Portfolio{}, err
	}
	if next == m.coll {
		return p, nil
	}
	m.coll = next
	if p.ID != 0 {
		m.saveLocked(p)
	}
	return p, nil
}

// AddPortfolio creates a default portfolio and makes it active.
func (m *Manager) AddPortfolio() (models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.Portfolio{}, ErrClosed
	}
	next, p := m.coll.Add()
	m.coll = next
	m.saveLocked(p)
	m.stateLocked()
	m.logger().WithField("portfolio_id", p.ID).Info("portfolio created")
	return p, nil
}

// RenamePortfolio returns the unchanged portfolio when the new name is blank.
func (m *Manager) RenamePortfolio(id int64, name string) (models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.Portfolio{}, ErrClosed
	}
	next, p, changed, err := m.coll.Rename(id, name)
	if err != nil {
		return models.Portfolio{}, err
	}
	if !changed {
		p, _ = m.coll.Get(id)
		return p, nil
	}
	m.coll = next
	m.saveLocked(p)
	return p, nil
}

func (m *Manager) SelectPortfolio(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	next, err := m.coll.Select(id)
	if err != nil {
		return err
	}
	if next.ActiveID() != m.coll.ActiveID() {
		m.coll = next
		m.stateLocked()
	}
	return nil
}

func (m *Manager) UpdateField(field, value string) (models.Portfolio, error) {
	return m.apply(func(c *Collection) (*Collection, models.Portfolio, error) {
		return c.UpdateField(c.ActiveID(), field, value)
	})
}

func (m *Manager) UpdateRiskProfile(bucket models.Bucket, value string) (models.Portfolio, error) {
	return m.apply(func(c *Collection) (*Collection, models.Portfolio, error) {
		return c.UpdateRiskProfile(c.ActiveID(), bucket, value)
	})
}

func (m *Manager) AddAsset(category models.Category) (models.Asset, error) {
	var added models.Asset
	_, err := m.apply(func(c *Collection) (*Collection, models.Portfolio, error) {
		next, a, err := c.AddAsset(c.ActiveID(), category)
		if err != nil {
			return c, models.Portfolio{}, err
		}
		added = a
		p, _ := next.Get(next.ActiveID())
		return next, p, nil
	})
	return added, err
}

func (m *Manager) UpdateAsset(assetID int64, field, value string) (models.Portfolio, error) {
	return m.apply(func(c *Collection) (*Collection, models.Portfolio, error) {
		return c.UpdateAsset(c.ActiveID(), assetID, field, value)
	})
}

func (m *Manager) DeleteAsset(assetID int64) (models.Portfolio, error) {
	return m.apply(func(c *Collection) (*Collection, models.Portfolio, error) {
		return c.DeleteAsset(c.ActiveID(), assetID)
	})
}

// SetPrices writes quoted prices into portfolio id in one mutation.
func (m *Manager) SetPrices(id int64, prices map[int64]decimal.Decimal) (models.Portfolio, error) {
	return m.apply(func(c *Collection) (*Collection, models.Portfolio, error) {
		return c.SetPrices(id, prices)
	})
}
