package database

import (
	"fmt"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"

	"allocator/internal/models"
)

// Workspace is everything stored for one user.
type Workspace struct {
	Portfolios []models.Portfolio
	ActiveID   int64
	NextID     int64
}

type userRow struct {
	ActiveID int64 `db:"active_portfolio_id"`
	NextID   int64 `db:"next_portfolio_id"`
}

type portfolioRow struct {
	ID                   int64           `db:"id"`
	Name                 string          `db:"name"`
	Broker               string          `db:"broker"`
	AccountType          string          `db:"account_type"`
	PlannedContribution  decimal.Decimal `db:"planned_contribution"`
	ContributionPeriod   string          `db:"contribution_period"`
	Goal                 string          `db:"goal"`
	GoalYears            decimal.Decimal `db:"goal_years"`
	RiskProfile          types.JSONText  `db:"risk_profile"`
	CurrentValue         decimal.Decimal `db:"current_value"`
	AdditionalInvestment decimal.Decimal `db:"additional_investment"`
	Assets               types.JSONText  `db:"assets"`
	NextAssetID          int64           `db:"next_asset_id"`
}

func (r portfolioRow) toModel() (models.Portfolio, error) {
	p := models.Portfolio{
		ID:                   r.ID,
		Name:                 r.Name,
		Broker:               r.Broker,
		AccountType:          models.AccountType(r.AccountType),
		PlannedContribution:  r.PlannedContribution,
		ContributionPeriod:   models.ContributionPeriod(r.ContributionPeriod),
		Goal:                 r.Goal,
		GoalYears:            r.GoalYears,
		RiskProfile:          models.RiskProfile{},
		CurrentValue:         r.CurrentValue,
		AdditionalInvestment: r.AdditionalInvestment,
		Assets:               []models.Asset{},
		NextAssetID:          r.NextAssetID,
	}
	if len(r.RiskProfile) > 0 {
		if err := r.RiskProfile.Unmarshal(&p.RiskProfile); err != nil {
			return p, fmt.Errorf("decode risk profile of portfolio %d: %w", r.ID, err)
		}
	}
	if len(r.Assets) > 0 {
		if err := r.Assets.Unmarshal(&p.Assets); err != nil {
			return p, fmt.Errorf("decode assets of portfolio %d: %w", r.ID, err)
		}
	}
	if p.Assets == nil {
		p.Assets = []models.Asset{}
	}
	if p.RiskProfile == nil {
		p.RiskProfile = models.RiskProfile{}
	}
	return p, nil
}

// TickerRef identifies one quoted instrument in the price cache.
type TickerRef struct {
	Ticker   string `db:"ticker"`
	Currency string `db:"currency"`
}
