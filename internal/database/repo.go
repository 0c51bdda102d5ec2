package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"allocator/internal/models"
)

// ErrNoPrice is returned when the price cache holds nothing for a ticker.
var ErrNoPrice = errors.New("no cached price")

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

func (r *Repo) EnsureUserExists(ctx context.Context, userID, name string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, userID, name)
	return err
}

// LoadWorkspace reads a user's portfolios in id order together with the stored active
// portfolio and id counter. Rows that fail to decode are skipped with a warning.
func (r *Repo) LoadWorkspace(ctx context.Context, userID string) (Workspace, error) {
	ws := Workspace{Portfolios: []models.Portfolio{}}

	var u userRow
	err := r.db.GetContext(ctx, &u, `SELECT active_portfolio_id, next_portfolio_id FROM users WHERE id = $1`, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ws, fmt.Errorf("load user %s: %w", userID, err)
	}
	ws.ActiveID = u.ActiveID
	ws.NextID = u.NextID

	rows, err := r.db.QueryxContext(ctx, `SELECT id, name, broker, account_type, planned_contribution, contribution_period, goal, goal_years, risk_profile, current_value, additional_investment, assets, next_asset_id FROM portfolios WHERE user_id = $1 ORDER BY id ASC`, userID)
	if err != nil {
		return ws, fmt.Errorf("load portfolios of %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var row portfolioRow
		if err := rows.StructScan(&row); err != nil {
			r.log.Warnf("scan portfolio failed: %v", err)
			continue
		}
		p, err := row.toModel()
		if err != nil {
			r.log.Warnf("%v", err)
			continue
		}
		ws.Portfolios = append(ws.Portfolios, p)
	}
	return ws, rows.Err()
}

// SavePortfolio writes the full snapshot of p, inserting it on first save.
func (r *Repo) SavePortfolio(ctx context.Context, userID string, p models.Portfolio) error {
	rp := p.RiskProfile
	if rp == nil {
		rp = models.RiskProfile{}
	}
	riskJSON, err := json.Marshal(rp)
	if err != nil {
		return err
	}
	assets := p.Assets
	if assets == nil {
		assets = []models.Asset{}
	}
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return err
	}

	q := `INSERT INTO portfolios (user_id, id, name, broker, account_type, planned_contribution, contribution_period, goal, goal_years, risk_profile, current_value, additional_investment, assets, next_asset_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9::numeric, $10::jsonb, $11::numeric, $12::numeric, $13::jsonb, $14, now())
ON CONFLICT (user_id, id) DO UPDATE SET name = EXCLUDED.name, broker = EXCLUDED.broker, account_type = EXCLUDED.account_type, planned_contribution = EXCLUDED.planned_contribution, contribution_period = EXCLUDED.contribution_period, goal = EXCLUDED.goal, goal_years = EXCLUDED.goal_years, risk_profile = EXCLUDED.risk_profile, current_value = EXCLUDED.current_value, additional_investment = EXCLUDED.additional_investment, assets = EXCLUDED.assets, next_asset_id = EXCLUDED.next_asset_id, updated_at = now()`
	_, err = r.db.ExecContext(ctx, q, userID, p.ID, p.Name, p.Broker, string(p.AccountType), p.PlannedContribution.String(), string(p.ContributionPeriod), p.Goal, p.GoalYears.String(), string(riskJSON), p.CurrentValue.String(), p.AdditionalInvestment.String(), string(assetsJSON), p.NextAssetID)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
		return fmt.Errorf("save portfolio %d: unknown user %s: %w", p.ID, userID, err)
	}
	return err
}

func (r *Repo) DeletePortfolio(ctx context.Context, userID string, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM portfolios WHERE user_id = $1 AND id = $2`, userID, id)
	return err
}

// SaveWorkspace stores the active portfolio and id counter. The counter only moves forward.
func (r *Repo) SaveWorkspace(ctx context.Context, userID string, activeID, nextID int64) error {
	q := `INSERT INTO users (id, active_portfolio_id, next_portfolio_id, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET active_portfolio_id = EXCLUDED.active_portfolio_id, next_portfolio_id = GREATEST(users.next_portfolio_id, EXCLUDED.next_portfolio_id), updated_at = now()`
	_, err := r.db.ExecContext(ctx, q, userID, activeID, nextID)
	return err
}

func (r *Repo) GetLatestPrice(ctx context.Context, ticker, currency string) (decimal.Decimal, time.Time, error) {
	var priceStr string
	var ts time.Time
	err := r.db.QueryRowContext(ctx, `SELECT price, timestamp FROM price_history WHERE ticker = $1 AND currency = $2 ORDER BY timestamp DESC LIMIT 1`, ticker, currency).Scan(&priceStr, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, time.Time{}, ErrNoPrice
	}
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	p, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	return p, ts, nil
}

func (r *Repo) UpsertPrice(ctx context.Context, ticker, currency string, price decimal.Decimal, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO price_history (ticker, currency, price, timestamp) VALUES ($1, $2, $3::numeric, $4)`, ticker, currency, price.StringFixed(4), ts)
	return err
}

func (r *Repo) GetAllTickers(ctx context.Context) ([]TickerRef, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT DISTINCT ticker, currency FROM price_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []TickerRef{}
	for rows.Next() {
		var t TickerRef
		if err := rows.StructScan(&t); err != nil {
			r.log.Warnf("scan ticker failed: %v", err)
			continue
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
