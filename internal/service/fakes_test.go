package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"allocator/internal/database"
	"allocator/internal/models"
)

type memStore struct {
	mu         sync.Mutex
	users      map[string]bool
	portfolios map[string]map[int64]models.Portfolio
	active     map[string]int64
	next       map[string]int64
	prices     map[string][]cachedPrice

	failSaves int
	loads     int
	saves     int
}

type cachedPrice struct {
	price decimal.Decimal
	ts    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]bool{},
		portfolios: map[string]map[int64]models.Portfolio{},
		active:     map[string]int64{},
		next:       map[string]int64{},
		prices:     map[string][]cachedPrice{},
	}
}

func (s *memStore) EnsureUserExists(_ context.Context, userID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = true
	return nil
}

func (s *memStore) LoadWorkspace(_ context.Context, userID string) (database.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	ws := database.Workspace{Portfolios: []models.Portfolio{}, ActiveID: s.active[userID], NextID: s.next[userID]}
	for _, p := range s.portfolios[userID] {
		ws.Portfolios = append(ws.Portfolios, p.Clone())
	}
	return ws, nil
}

func (s *memStore) SavePortfolio(_ context.Context, userID string, p models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("connection refused")
	}
	s.saves++
	if s.portfolios[userID] == nil {
		s.portfolios[userID] = map[int64]models.Portfolio{}
	}
	s.portfolios[userID][p.ID] = p.Clone()
	return nil
}

func (s *memStore) DeletePortfolio(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.portfolios[userID], id)
	return nil
}

func (s *memStore) SaveWorkspace(_ context.Context, userID string, activeID, nextID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[userID] = activeID
	if nextID > s.next[userID] {
		s.next[userID] = nextID
	}
	return nil
}

func (s *memStore) stored(userID string, id int64) (models.Portfolio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID][id]
	return p, ok
}

func (s *memStore) GetLatestPrice(_ context.Context, ticker, currency string) (decimal.Decimal, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := s.prices[ticker+"/"+currency]
	if len(hist) == 0 {
		return decimal.Zero, time.Time{}, database.ErrNoPrice
	}
	last := hist[len(hist)-1]
	return last.price, last.ts, nil
}

func (s *memStore) UpsertPrice(_ context.Context, ticker, currency string, price decimal.Decimal, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ticker + "/" + currency
	s.prices[key] = append(s.prices[key], cachedPrice{price: price, ts: ts})
	return nil
}

func (s *memStore) GetAllTickers(_ context.Context) ([]database.TickerRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.TickerRef
	for key := range s.prices {
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				out = append(out, database.TickerRef{Ticker: key[:i], Currency: key[i+1:]})
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) history(ticker, currency string) []cachedPrice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cachedPrice(nil), s.prices[ticker+"/"+currency]...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}
