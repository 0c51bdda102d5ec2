package allocation

import (
	"github.com/shopspring/decimal"

	"allocator/internal/models"
)

// BucketTotals maps each risk bucket to an absolute amount.
type BucketTotals map[models.Bucket]decimal.Decimal

func newBucketTotals() BucketTotals {
	t := make(BucketTotals, len(models.Buckets))
	for _, b := range models.Buckets {
		t[b] = decimal.Zero
	}
	return t
}

// Percentages converts absolute totals into shares of total.
func (t BucketTotals) Percentages(total decimal.Decimal) BucketTotals {
	out := newBucketTotals()
	for b, v := range t {
		out[b] = Percentage(v, total)
	}
	return out
}

type Aggregation struct {
	Actual  BucketTotals `json:"actual"`
	Planned BucketTotals `json:"planned"`
}

// Aggregate rolls asset-level actual and target amounts up into risk buckets.
// Assets whose category has no bucket are left out.
func Aggregate(assets []models.Asset, total decimal.Decimal) Aggregation {
	agg := Aggregation{Actual: newBucketTotals(), Planned: newBucketTotals()}
	for _, a := range assets {
		b, ok := a.Category.Bucket()
		if !ok {
			continue
		}
		v := Valuate(a, total)
		agg.Actual[b] = agg.Actual[b].Add(v.ActualAmount)
		agg.Planned[b] = agg.Planned[b].Add(v.TargetAmount)
	}
	return agg
}

// CategorySummary totals one asset category.
type CategorySummary struct {
	Category     models.Category `json:"category"`
	Assets       int             `json:"assets"`
	TargetShare  decimal.Decimal `json:"target_share"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	ActualAmount decimal.Decimal `json:"actual_amount"`
	ActualShare  decimal.Decimal `json:"actual_share"`
}

type CategoryBreakdown struct {
	Categories       []CategorySummary `json:"categories"`
	TargetShareTotal decimal.Decimal   `json:"target_share_total"`
	ActualAmount     decimal.Decimal   `json:"actual_amount"`
}

// SummarizeCategories groups assets by category in display order, including empty ones.
func SummarizeCategories(assets []models.Asset, total decimal.Decimal) CategoryBreakdown {
	idx := make(map[models.Category]int, len(models.Categories))
	out := CategoryBreakdown{
		Categories:       make([]CategorySummary, len(models.Categories)),
		TargetShareTotal: decimal.Zero,
		ActualAmount:     decimal.Zero,
	}
	for i, c := range models.Categories {
		idx[c] = i
		out.Categories[i] = CategorySummary{
			Category:     c,
			TargetShare:  decimal.Zero,
			TargetAmount: decimal.Zero,
			ActualAmount: decimal.Zero,
			ActualShare:  decimal.Zero,
		}
	}

	for _, a := range assets {
		i, ok := idx[a.Category]
		if !ok {
			continue
		}
		v := Valuate(a, total)
		s := &out.Categories[i]
		s.Assets++
		s.TargetShare = s.TargetShare.Add(a.TargetShare)
		s.TargetAmount = s.TargetAmount.Add(v.TargetAmount)
		s.ActualAmount = s.ActualAmount.Add(v.ActualAmount)
		out.TargetShareTotal = out.TargetShareTotal.Add(a.TargetShare)
		out.ActualAmount = out.ActualAmount.Add(v.ActualAmount)
	}
	for i := range out.Categories {
		out.Categories[i].ActualShare = Percentage(out.Categories[i].ActualAmount, total)
	}
	return out
}
