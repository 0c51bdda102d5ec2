package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"allocator/internal/database"
	"allocator/internal/models"
)

type PriceProvider interface {
	GetPrice(ctx context.Context, ticker string, currency models.Currency, category models.Category) (decimal.Decimal, time.Time, error)
}

// PriceCache is the price_history table.
type PriceCache interface {
	GetLatestPrice(ctx context.Context, ticker, currency string) (decimal.Decimal, time.Time, error)
	UpsertPrice(ctx context.Context, ticker, currency string, price decimal.Decimal, ts time.Time) error
	GetAllTickers(ctx context.Context) ([]database.TickerRef, error)
}

const priceTTL = 15 * time.Minute

var mockBases = map[string]int64{
	"VTI": 28979, "GXC": 6700, "MCHI": 4700,
	"EWG": 2300, "EWQ": 3200, "EWU": 2800,
	"GLD": 18500, "SLV": 2100, "IAU": 4500,
	"SCHH": 2400, "VNQ": 8900, "REM": 2800,
}

// MockPriceService quotes made-up prices. A quote younger than 15 minutes is served from
// the cache, anything older is replaced with a fresh random quote around a per-ticker base.
type MockPriceService struct {
	cache PriceCache
	log   *logrus.Logger
	now   func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMockPriceService(cache PriceCache, log *logrus.Logger) *MockPriceService {
	return &MockPriceService{
		cache: cache,
		log:   log,
		now:   time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *MockPriceService) GetPrice(ctx context.Context, ticker string, currency models.Currency, category models.Category) (decimal.Decimal, time.Time, error) {
	price, ts, err := p.cache.GetLatestPrice(ctx, ticker, string(currency))
	switch {
	case err == nil && p.now().Sub(ts) < priceTTL:
		return price, ts, nil
	case err != nil && !errors.Is(err, database.ErrNoPrice):
		p.log.Warnf("price cache lookup for %s failed: %v", ticker, err)
	}

	val := p.quote(ticker)
	ts = p.now().UTC()
	if err := p.cache.UpsertPrice(ctx, ticker, string(currency), val, ts); err != nil {
		p.log.Warnf("record price for %s failed: %v", ticker, err)
	}
	p.log.WithFields(logrus.Fields{"ticker": ticker, "category": category}).Debugf("mock quote %s", val)
	return val, ts, nil
}

func (p *MockPriceService) quote(ticker string) decimal.Decimal {
	base, ok := mockBases[ticker]
	if !ok {
		base = 100
	}
	p.mu.Lock()
	f := p.rnd.Float64()
	p.mu.Unlock()
	b := decimal.NewFromInt(base)
	variation := b.Mul(decimal.NewFromFloat((f - 0.5) * 0.05))
	return b.Add(variation).Round(4)
}

// Start re-quotes every cached ticker once per interval until ctx is cancelled.
func (p *MockPriceService) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.log.Info("price updater stopping")
				return
			case <-ticker.C:
				p.refreshAll(ctx)
			}
		}
	}()
}

func (p *MockPriceService) refreshAll(ctx context.Context) {
	refs, err := p.cache.GetAllTickers(ctx)
	if err != nil {
		p.log.Warnf("failed to fetch tickers: %v", err)
		return
	}
	for _, r := range refs {
		if err := p.cache.UpsertPrice(ctx, r.Ticker, r.Currency, p.quote(r.Ticker), p.now().UTC()); err != nil {
			p.log.Warnf("refresh %s failed: %v", r.Ticker, err)
		}
	}
}
