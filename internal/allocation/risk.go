package allocation

import (
	"github.com/shopspring/decimal"

	"allocator/internal/models"
)

var (
	// ValidityTolerance is how far the declared profile may sit from 100% and still count as valid.
	ValidityTolerance = decimal.RequireFromString("0.01")
	// DeviationThreshold is the percentage-point gap above which a bucket is flagged.
	DeviationThreshold = decimal.NewFromInt(2)
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
)

func deviationStatus(d decimal.Decimal) Status {
	if d.Abs().GreaterThan(DeviationThreshold) {
		return StatusWarning
	}
	return StatusOK
}

type BucketAnalysis struct {
	Bucket           models.Bucket   `json:"bucket"`
	Target           decimal.Decimal `json:"target"`
	Planned          decimal.Decimal `json:"planned"`
	Actual           decimal.Decimal `json:"actual"`
	PlannedDeviation decimal.Decimal `json:"planned_deviation"`
	ActualDeviation  decimal.Decimal `json:"actual_deviation"`
	PlannedStatus    Status          `json:"planned_status"`
	ActualStatus     Status          `json:"actual_status"`
}

type RiskAnalysis struct {
	TargetTotal decimal.Decimal  `json:"target_total"`
	IsValid     bool             `json:"is_valid"`
	Actual      BucketTotals     `json:"actual"`
	Planned     BucketTotals     `json:"planned"`
	Buckets     []BucketAnalysis `json:"buckets"`
}

// Analyze compares the declared profile with planned and actual bucket shares.
// Validity is advisory: an invalid profile still produces a full analysis.
func Analyze(profile models.RiskProfile, agg Aggregation, total decimal.Decimal) RiskAnalysis {
	actual := agg.Actual.Percentages(total)
	planned := agg.Planned.Percentages(total)

	ra := RiskAnalysis{
		TargetTotal: decimal.Zero,
		Actual:      actual,
		Planned:     planned,
		Buckets:     make([]BucketAnalysis, 0, len(models.Buckets)),
	}
	for _, b := range models.Buckets {
		target := profile.Get(b)
		ra.TargetTotal = ra.TargetTotal.Add(target)

		pd := planned[b].Sub(target)
		ad := actual[b].Sub(target)
		ra.Buckets = append(ra.Buckets, BucketAnalysis{
			Bucket:           b,
			Target:           target,
			Planned:          planned[b],
			Actual:           actual[b],
			PlannedDeviation: pd,
			ActualDeviation:  ad,
			PlannedStatus:    deviationStatus(pd),
			ActualStatus:     deviationStatus(ad),
		})
	}
	ra.IsValid = ra.TargetTotal.Sub(hundred).Abs().LessThan(ValidityTolerance)
	return ra
}
