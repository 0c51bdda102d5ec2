package allocation

import (
	"github.com/shopspring/decimal"

	"allocator/internal/models"
)

type AssetRow struct {
	models.Asset
	Valuation Valuation `json:"valuation"`
}

// Report is everything the presentation layer renders for one portfolio.
type Report struct {
	PortfolioID int64             `json:"portfolio_id"`
	Total       decimal.Decimal   `json:"total"`
	Assets      []AssetRow        `json:"assets"`
	Categories  CategoryBreakdown `json:"categories"`
	Risk        RiskAnalysis      `json:"risk"`
}

func BuildReport(p models.Portfolio) Report {
	total := p.Total()
	rows := make([]AssetRow, 0, len(p.Assets))
	for _, a := range p.Assets {
		rows = append(rows, AssetRow{Asset: a, Valuation: Valuate(a, total)})
	}
	return Report{
		PortfolioID: p.ID,
		Total:       total,
		Assets:      rows,
		Categories:  SummarizeCategories(p.Assets, total),
		Risk:        Analyze(p.RiskProfile, Aggregate(p.Assets, total), total),
	}
}
