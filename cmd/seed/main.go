package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"allocator/internal/database"
	"allocator/internal/models"
)

func main() {
	godotenv.Load()
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	r := database.New(db, logrus.New())
	userID := "demo-user"
	if len(os.Args) > 1 {
		userID = os.Args[1]
	}

	fmt.Printf("Seeding demo workspace for %s...\n", userID)
	if err := r.EnsureUserExists(ctx, userID, "Demo"); err != nil {
		log.Fatalf("ensure user: %v", err)
	}

	// 1. Quotes, so the first refresh is served from the cache
	now := time.Now().UTC()
	prices := map[string]string{
		"SBER": "301.25",
		"VTI":  "28979",
		"GLD":  "18500",
		"BTC":  "6100000",
	}
	currencies := map[string]models.Currency{"SBER": models.CurrencyRUB, "VTI": models.CurrencyUSD, "GLD": models.CurrencyUSD, "BTC": models.CurrencyRUB}
	for ticker, p := range prices {
		if err := r.UpsertPrice(ctx, ticker, string(currencies[ticker]), decimal.RequireFromString(p), now); err != nil {
			fmt.Printf("Warning: could not insert price for %s: %v\n", ticker, err)
		}
	}

	// 2. One balanced portfolio with a risk profile that sums to 100
	p := models.NewPortfolio(1, models.DefaultPortfolioName)
	p.Broker = "Demo Broker"
	p.CurrentValue = decimal.NewFromInt(1000000)
	p.PlannedContribution = decimal.NewFromInt(50000)
	p.Goal = "retirement"
	p.GoalYears = decimal.NewFromInt(20)
	p.RiskProfile = models.RiskProfile{
		models.BucketStocks:      decimal.NewFromInt(55),
		models.BucketBonds:       decimal.NewFromInt(25),
		models.BucketCommodities: decimal.NewFromInt(10),
		models.BucketCrypto:      decimal.NewFromInt(5),
		models.BucketCash:        decimal.NewFromInt(5),
	}
	holdings := []struct {
		cat      models.Category
		ticker   string
		name     string
		lot      int64
		target   int64
		quantity string
	}{
		{models.DomesticEquities, "SBER", "Sberbank", 10, 30, "900"},
		{models.ForeignEquities, "VTI", "Vanguard Total Market", 1, 25, "8"},
		{models.Commodities, "GLD", "SPDR Gold", 1, 10, "5"},
		{models.Crypto, "BTC", "Bitcoin", 1, 5, "0.0075"},
	}
	for i, h := range holdings {
		a := models.NewAsset(int64(i+1), h.cat)
		a.Ticker = h.ticker
		a.Name = h.name
		a.Currency = currencies[h.ticker]
		a.LotSize = decimal.NewFromInt(h.lot)
		a.TargetShare = decimal.NewFromInt(h.target)
		a.Quantity = decimal.RequireFromString(h.quantity)
		a.Price = decimal.RequireFromString(prices[h.ticker])
		p.Assets = append(p.Assets, a)
	}
	p.NextAssetID = int64(len(holdings) + 1)

	if err := r.SavePortfolio(ctx, userID, p); err != nil {
		log.Fatalf("save portfolio: %v", err)
	}
	if err := r.SaveWorkspace(ctx, userID, p.ID, p.ID+1); err != nil {
		log.Fatalf("save workspace: %v", err)
	}

	fmt.Println("Successfully seeded the demo workspace!")
	fmt.Printf("Now open: http://localhost:8080/users/%s/portfolio/report\n", userID)
}
