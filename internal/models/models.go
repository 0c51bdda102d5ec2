package models

import "github.com/shopspring/decimal"

type AccountType string

const (
	AccountBrokerage     AccountType = "brokerage"
	AccountTaxAdvantaged AccountType = "tax_advantaged"
)

type ContributionPeriod string

const (
	PeriodWeek     ContributionPeriod = "week"
	PeriodMonth    ContributionPeriod = "month"
	PeriodQuarter  ContributionPeriod = "quarter"
	PeriodHalfYear ContributionPeriod = "half_year"
	PeriodYear     ContributionPeriod = "year"
)

type Currency string

const (
	CurrencyRUB Currency = "RUB"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

func (a AccountType) Valid() bool {
	return a == AccountBrokerage || a == AccountTaxAdvantaged
}

func (p ContributionPeriod) Valid() bool {
	switch p {
	case PeriodWeek, PeriodMonth, PeriodQuarter, PeriodHalfYear, PeriodYear:
		return true
	}
	return false
}

func (c Currency) Valid() bool {
	return c == CurrencyRUB || c == CurrencyUSD || c == CurrencyEUR
}

// RiskProfile holds the declared target percentage per bucket. Missing buckets read as zero.
type RiskProfile map[Bucket]decimal.Decimal

func (rp RiskProfile) Get(b Bucket) decimal.Decimal {
	if rp == nil {
		return decimal.Zero
	}
	return rp[b]
}

func (rp RiskProfile) Clone() RiskProfile {
	out := make(RiskProfile, len(rp))
	for k, v := range rp {
		out[k] = v
	}
	return out
}

type Asset struct {
	ID          int64           `json:"id"`
	Category    Category        `json:"category"`
	Name        string          `json:"name"`
	Ticker      string          `json:"ticker"`
	Currency    Currency        `json:"currency"`
	LotSize     decimal.Decimal `json:"lot_size"`
	TargetShare decimal.Decimal `json:"target_share"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Lot returns the tradable increment, falling back to 1 for unset or non-positive sizes.
func (a Asset) Lot() decimal.Decimal {
	if !a.LotSize.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return a.LotSize
}

type Portfolio struct {
	ID                   int64              `json:"id"`
	Name                 string             `json:"name"`
	Broker               string             `json:"broker"`
	AccountType          AccountType        `json:"account_type"`
	PlannedContribution  decimal.Decimal    `json:"planned_contribution"`
	ContributionPeriod   ContributionPeriod `json:"contribution_period"`
	Goal                 string             `json:"goal"`
	GoalYears            decimal.Decimal    `json:"goal_years"`
	RiskProfile          RiskProfile        `json:"risk_profile"`
	CurrentValue         decimal.Decimal    `json:"current_value"`
	AdditionalInvestment decimal.Decimal    `json:"additional_investment"`
	Assets               []Asset            `json:"assets"`
	NextAssetID          int64              `json:"next_asset_id"`
}

// Total is the basis for all percentage math: assessed value plus the pending top-up.
func (p Portfolio) Total() decimal.Decimal {
	return p.CurrentValue.Add(p.AdditionalInvestment)
}

// Clone returns a copy that shares no mutable state with p.
func (p Portfolio) Clone() Portfolio {
	out := p
	out.RiskProfile = p.RiskProfile.Clone()
	out.Assets = make([]Asset, len(p.Assets))
	copy(out.Assets, p.Assets)
	return out
}

const DefaultPortfolioName = "Main portfolio"

// NewPortfolio returns a portfolio with the default field values.
func NewPortfolio(id int64, name string) Portfolio {
	return Portfolio{
		ID:                 id,
		Name:               name,
		AccountType:        AccountBrokerage,
		ContributionPeriod: PeriodMonth,
		RiskProfile:        RiskProfile{},
		Assets:             []Asset{},
		NextAssetID:        1,
	}
}

func NewAsset(id int64, category Category) Asset {
	return Asset{
		ID:       id,
		Category: category,
		Currency: CurrencyRUB,
		LotSize:  decimal.NewFromInt(1),
	}
}
