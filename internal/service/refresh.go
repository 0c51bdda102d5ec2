package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"allocator/internal/models"
	"allocator/internal/portfolio"
)

// RefreshResult summarizes one price refresh of a portfolio.
type RefreshResult struct {
	Portfolio models.Portfolio `json:"portfolio"`
	Updated   int              `json:"updated"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// RefreshPrices quotes every asset of the active portfolio one at a time and writes the
// new prices in a single mutation. Assets without a ticker are skipped; a failed or
// zero quote keeps the stored price.
func RefreshPrices(ctx context.Context, m *portfolio.Manager, prices PriceProvider, log *logrus.Logger) (RefreshResult, error) {
	p := m.Active()
	res := RefreshResult{}
	quoted := map[int64]decimal.Decimal{}

	for _, a := range p.Assets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ticker := strings.TrimSpace(a.Ticker)
		if ticker == "" {
			res.Skipped++
			continue
		}
		price, _, err := prices.GetPrice(ctx, ticker, a.Currency, a.Category)
		if err != nil {
			log.WithFields(logrus.Fields{"portfolio_id": p.ID, "ticker": ticker}).Warnf("price fetch failed: %v", err)
			res.Failed++
			continue
		}
		if !price.IsPositive() {
			res.Failed++
			continue
		}
		quoted[a.ID] = price
		res.Updated++
	}

	updated, err := m.SetPrices(p.ID, quoted)
	if err != nil {
		return res, err
	}
	res.Portfolio = updated
	res.UpdatedAt = time.Now().UTC()
	return res, nil
}
