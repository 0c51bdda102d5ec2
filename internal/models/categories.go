package models

// Category is one of the fixed asset categories a user files holdings under.
type Category string

const (
	DomesticEquities Category = "domestic_equities"
	ForeignEquities  Category = "foreign_equities"
	DomesticBonds    Category = "domestic_bonds"
	ForeignBonds     Category = "foreign_bonds"
	Commodities      Category = "commodities"
	MoneyMarket      Category = "money_market"
	RealEstate       Category = "real_estate"
	Crypto           Category = "crypto"
)

// Categories lists every category in display order.
var Categories = []Category{
	DomesticEquities,
	ForeignEquities,
	DomesticBonds,
	ForeignBonds,
	Commodities,
	MoneyMarket,
	RealEstate,
	Crypto,
}

// Bucket is a coarse risk class used to compare holdings against a risk profile.
type Bucket string

const (
	BucketStocks      Bucket = "stocks"
	BucketBonds       Bucket = "bonds"
	BucketCash        Bucket = "cash"
	BucketCommodities Bucket = "commodities"
	BucketCrypto      Bucket = "crypto"
	BucketRealEstate  Bucket = "realestate"
)

var Buckets = []Bucket{
	BucketStocks,
	BucketBonds,
	BucketCash,
	BucketCommodities,
	BucketCrypto,
	BucketRealEstate,
}

var categoryBuckets = map[Category]Bucket{
	DomesticEquities: BucketStocks,
	ForeignEquities:  BucketStocks,
	DomesticBonds:    BucketBonds,
	ForeignBonds:     BucketBonds,
	Commodities:      BucketCommodities,
	MoneyMarket:      BucketCash,
	RealEstate:       BucketRealEstate,
	Crypto:           BucketCrypto,
}

// Bucket reports the risk bucket c rolls into. ok is false for labels outside the fixed set.
func (c Category) Bucket() (Bucket, bool) {
	b, ok := categoryBuckets[c]
	return b, ok
}

func (c Category) Valid() bool {
	_, ok := categoryBuckets[c]
	return ok
}

// Fractional reports whether holdings in c trade in arbitrary fractions instead of whole lots.
func (c Category) Fractional() bool {
	return c == Crypto
}

func (b Bucket) Valid() bool {
	for _, x := range Buckets {
		if x == b {
			return true
		}
	}
	return false
}
