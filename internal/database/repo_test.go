package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/internal/models"
)

func setupDB(t *testing.T) *sqlx.DB {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	files := []string{"../../migrations/0001_init.up.sql"}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read migration %s: %v", f, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			t.Logf("exec migration %s: %v", f, err)
		}
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWorkspaceRoundTrip(t *testing.T) {
	db := setupDB(t)
	r := New(db, logrus.New())
	ctx := context.Background()
	userID := "integration-roundtrip-user"

	_, _ = db.Exec(`DELETE FROM users WHERE id = $1`, userID)
	require.NoError(t, r.EnsureUserExists(ctx, userID, "Round Trip"))

	p := models.NewPortfolio(3, "Retirement")
	p.CurrentValue = decimal.RequireFromString("125000.50")
	p.RiskProfile[models.BucketStocks] = decimal.NewFromInt(70)
	p.RiskProfile[models.BucketBonds] = decimal.NewFromInt(30)
	a := models.NewAsset(1, models.Crypto)
	a.Ticker = "BTC"
	a.Quantity = decimal.RequireFromString("0.12345678")
	p.Assets = append(p.Assets, a)
	p.NextAssetID = 2

	require.NoError(t, r.SavePortfolio(ctx, userID, p))
	require.NoError(t, r.SaveWorkspace(ctx, userID, 3, 4))

	ws, err := r.LoadWorkspace(ctx, userID)
	require.NoError(t, err)
	require.Len(t, ws.Portfolios, 1)
	assert.Equal(t, int64(3), ws.ActiveID)
	assert.Equal(t, int64(4), ws.NextID)

	got := ws.Portfolios[0]
	assert.Equal(t, "Retirement", got.Name)
	assert.True(t, got.CurrentValue.Equal(p.CurrentValue))
	assert.True(t, got.RiskProfile.Get(models.BucketStocks).Equal(decimal.NewFromInt(70)))
	require.Len(t, got.Assets, 1)
	assert.True(t, got.Assets[0].Quantity.Equal(a.Quantity))

	// the id counter never moves backwards
	require.NoError(t, r.SaveWorkspace(ctx, userID, 3, 2))
	ws, err = r.LoadWorkspace(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ws.NextID)

	require.NoError(t, r.DeletePortfolio(ctx, userID, 3))
	ws, err = r.LoadWorkspace(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, ws.Portfolios)
}

func TestPriceHistory(t *testing.T) {
	db := setupDB(t)
	r := New(db, logrus.New())
	ctx := context.Background()

	_, _ = db.Exec(`DELETE FROM price_history WHERE ticker = 'ITEST'`)

	_, _, err := r.GetLatestPrice(ctx, "ITEST", "RUB")
	assert.ErrorIs(t, err, ErrNoPrice)

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, r.UpsertPrice(ctx, "ITEST", "RUB", decimal.NewFromInt(100), old))
	require.NoError(t, r.UpsertPrice(ctx, "ITEST", "RUB", decimal.NewFromInt(110), old.Add(30*time.Minute)))

	price, _, err := r.GetLatestPrice(ctx, "ITEST", "RUB")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(110)), "got %s", price)

	tickers, err := r.GetAllTickers(ctx)
	require.NoError(t, err)
	assert.Contains(t, tickers, TickerRef{Ticker: "ITEST", Currency: "RUB"})
}
