// Package portfolio owns a user's set of portfolios: the active selection, creation,
// field edits and the soft-delete workflow. Collection is an immutable value; every
// mutation returns a new Collection and leaves the receiver untouched.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"allocator/internal/models"
)

var (
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrLastPortfolio     = errors.New("the last portfolio cannot be deleted")
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidValue      = errors.New("invalid value")
)

type Collection struct {
	portfolios []models.Portfolio
	activeID   int64
	nextID     int64
}

// NewCollection builds a collection from stored portfolios. An empty input yields a single
// default portfolio. nextID is raised above every existing id so ids are never reused, and
// an activeID that is not a member falls back to the first portfolio.
func NewCollection(portfolios []models.Portfolio, activeID, nextID int64) *Collection {
	ps := make([]models.Portfolio, 0, len(portfolios))
	for _, p := range portfolios {
		ps = append(ps, p.Clone())
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })

	if nextID < 1 {
		nextID = 1
	}
	for _, p := range ps {
		if p.ID >= nextID {
			nextID = p.ID + 1
		}
	}
	if len(ps) == 0 {
		ps = append(ps, models.NewPortfolio(nextID, models.DefaultPortfolioName))
		nextID++
	}

	c := &Collection{portfolios: ps, activeID: activeID, nextID: nextID}
	if c.indexOf(activeID) < 0 {
		c.activeID = ps[0].ID
	}
	return c
}

func (c *Collection) indexOf(id int64) int {
	for i, p := range c.portfolios {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection) Len() int        { return len(c.portfolios) }
func (c *Collection) ActiveID() int64 { return c.activeID }
func (c *Collection) NextID() int64   { return c.nextID }

// Portfolios returns deep copies in list order.
func (c *Collection) Portfolios() []models.Portfolio {
	out := make([]models.Portfolio, len(c.portfolios))
	for i, p := range c.portfolios {
		out[i] = p.Clone()
	}
	return out
}

func (c *Collection) Get(id int64) (models.Portfolio, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return models.Portfolio{}, false
	}
	return c.portfolios[i].Clone(), true
}

func (c *Collection) Active() models.Portfolio {
	p, _ := c.Get(c.activeID)
	return p
}

func (c *Collection) with(portfolios []models.Portfolio, activeID, nextID int64) *Collection {
	return &Collection{portfolios: portfolios, activeID: activeID, nextID: nextID}
}

// Add appends a default portfolio under a fresh id and makes it active.
func (c *Collection) Add() (*Collection, models.Portfolio) {
	p := models.NewPortfolio(c.nextID, fmt.Sprintf("Portfolio %d", len(c.portfolios)+1))
	ps := make([]models.Portfolio, len(c.portfolios), len(c.portfolios)+1)
	copy(ps, c.portfolios)
	ps = append(ps, p)
	return c.with(ps, p.ID, c.nextID+1), p.Clone()
}

// Select switches the active portfolio.
func (c *Collection) Select(id int64) (*Collection, error) {
	if c.indexOf(id) < 0 {
		return c, ErrPortfolioNotFound
	}
	return c.with(c.portfolios, id, c.nextID), nil
}

// update replaces portfolio id with a modified copy. fn works on a clone, so an error
// leaves nothing half-applied.
func (c *Collection) update(id int64, fn func(p *models.Portfolio) error) (*Collection, models.Portfolio, error) {
	i := c.indexOf(id)
	if i < 0 {
		return c, models.Portfolio{}, ErrPortfolioNotFound
	}
	p := c.portfolios[i].Clone()
	if err := fn(&p); err != nil {
		return c, models.Portfolio{}, err
	}
	ps := make([]models.Portfolio, len(c.portfolios))
	copy(ps, c.portfolios)
	ps[i] = p
	return c.with(ps, c.activeID, c.nextID), p.Clone(), nil
}

// errNoChange marks a mutation that is valid but does nothing.
var errNoChange = errors.New("no change")

// Rename sets the name of portfolio id. A blank name is ignored and reports changed=false.
func (c *Collection) Rename(id int64, name string) (*Collection, models.Portfolio, bool, error) {
	name = strings.TrimSpace(name)
	next, p, err := c.update(id, func(p *models.Portfolio) error {
		if name == "" || name == p.Name {
			return errNoChange
		}
		p.Name = name
		return nil
	})
	if errors.Is(err, errNoChange) {
		return c, models.Portfolio{}, false, nil
	}
	if err != nil {
		return c, models.Portfolio{}, false, err
	}
	return next, p, true, nil
}

// UpdateField sets one scalar portfolio field from raw user input. Numeric fields are
// parsed leniently; enum fields must hold a known value. A blank name leaves the
// collection unchanged, as with Rename.
func (c *Collection) UpdateField(id int64, field, value string) (*Collection, models.Portfolio, error) {
	if field == "name" && strings.TrimSpace(value) == "" {
		p, ok := c.Get(id)
		if !ok {
			return c, models.Portfolio{}, ErrPortfolioNotFound
		}
		return c, p, nil
	}
	return c.update(id, func(p *models.Portfolio) error {
		return setPortfolioField(p, field, value)
	})
}

func setPortfolioField(p *models.Portfolio, field, value string) error {
	switch field {
	case "name":
		p.Name = strings.TrimSpace(value)
	case "broker":
		p.Broker = value
	case "account_type":
		at := models.AccountType(value)
		if !at.Valid() {
			return fmt.Errorf("%w: account_type %q", ErrInvalidValue, value)
		}
		p.AccountType = at
	case "planned_contribution":
		p.PlannedContribution = models.ParseDecimal(value)
	case "contribution_period":
		cp := models.ContributionPeriod(value)
		if !cp.Valid() {
			return fmt.Errorf("%w: contribution_period %q", ErrInvalidValue, value)
		}
		p.ContributionPeriod = cp
	case "goal":
		p.Goal = value
	case "goal_years":
		p.GoalYears = models.ParseDecimal(value)
	case "current_value":
		p.CurrentValue = models.ParseDecimal(value)
	case "additional_investment":
		p.AdditionalInvestment = models.ParseDecimal(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// UpdateRiskProfile sets the target percentage of one bucket.
func (c *Collection) UpdateRiskProfile(id int64, bucket models.Bucket, value string) (*Collection, models.Portfolio, error) {
	if !bucket.Valid() {
		return c, models.Portfolio{}, fmt.Errorf("%w: bucket %q", ErrUnknownField, bucket)
	}
	return c.update(id, func(p *models.Portfolio) error {
		if p.RiskProfile == nil {
			p.RiskProfile = models.RiskProfile{}
		}
		p.RiskProfile[bucket] = models.ParseDecimal(value)
		return nil
	})
}

// AddAsset appends an empty asset of the given category under the portfolio's next asset id.
func (c *Collection) AddAsset(id int64, category models.Category) (*Collection, models.Asset, error) {
	if !category.Valid() {
		return c, models.Asset{}, fmt.Errorf("%w: category %q", ErrInvalidValue, category)
	}
	var added models.Asset
	next, _, err := c.update(id, func(p *models.Portfolio) error {
		assetID := p.NextAssetID
		for _, a := range p.Assets {
			if a.ID >= assetID {
				assetID = a.ID + 1
			}
		}
		if assetID < 1 {
			assetID = 1
		}
		added = models.NewAsset(assetID, category)
		p.Assets = append(p.Assets, added)
		p.NextAssetID = assetID + 1
		return nil
	})
	return next, added, err
}

func assetIndex(p *models.Portfolio, assetID int64) int {
	for i, a := range p.Assets {
		if a.ID == assetID {
			return i
		}
	}
	return -1
}

// UpdateAsset sets one asset field from raw user input.
func (c *Collection) UpdateAsset(id, assetID int64, field, value string) (*Collection, models.Portfolio, error) {
	return c.update(id, func(p *models.Portfolio) error {
		i := assetIndex(p, assetID)
		if i < 0 {
			return ErrAssetNotFound
		}
		return setAssetField(&p.Assets[i], field, value)
	})
}

func setAssetField(a *models.Asset, field, value string) error {
	switch field {
	case "category":
		cat := models.Category(value)
		if !cat.Valid() {
			return fmt.Errorf("%w: category %q", ErrInvalidValue, value)
		}
		a.Category = cat
	case "name":
		a.Name = value
	case "ticker":
		a.Ticker = strings.TrimSpace(value)
	case "currency":
		cur := models.Currency(strings.ToUpper(strings.TrimSpace(value)))
		if !cur.Valid() {
			return fmt.Errorf("%w: currency %q", ErrInvalidValue, value)
		}
		a.Currency = cur
	case "lot_size":
		a.LotSize = models.ParseLotSize(value)
	case "target_share":
		a.TargetShare = models.ParseDecimal(value)
	case "quantity":
		a.Quantity = models.ParseDecimal(value)
	case "price":
		a.Price = models.ParseDecimal(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

func (c *Collection) DeleteAsset(id, assetID int64) (*Collection, models.Portfolio, error) {
	return c.update(id, func(p *models.Portfolio) error {
		i := assetIndex(p, assetID)
		if i < 0 {
			return ErrAssetNotFound
		}
		assets := make([]models.Asset, 0, len(p.Assets)-1)
		assets = append(assets, p.Assets[:i]...)
		p.Assets = append(assets, p.Assets[i+1:]...)
		return nil
	})
}

// SetPrices stores quoted prices keyed by asset id. Unknown asset ids are ignored.
func (c *Collection) SetPrices(id int64, prices map[int64]decimal.Decimal) (*Collection, models.Portfolio, error) {
	return c.update(id, func(p *models.Portfolio) error {
		for i := range p.Assets {
			if price, ok := prices[p.Assets[i].ID]; ok {
				p.Assets[i].Price = price
			}
		}
		return nil
	})
}

// Remove drops portfolio id and returns it with its former position. The last remaining
// portfolio cannot be removed. When the active portfolio goes, the first remaining one
// (the lowest id) becomes active.
func (c *Collection) Remove(id int64) (*Collection, models.Portfolio, error) {
	i := c.indexOf(id)
	if i < 0 {
		return c, models.Portfolio{}, ErrPortfolioNotFound
	}
	if len(c.portfolios) == 1 {
		return c, models.Portfolio{}, ErrLastPortfolio
	}
	removed := c.portfolios[i]
	ps := make([]models.Portfolio, 0, len(c.portfolios)-1)
	ps = append(ps, c.portfolios[:i]...)
	ps = append(ps, c.portfolios[i+1:]...)

	active := c.activeID
	if active == id {
		active = ps[0].ID
	}
	return c.with(ps, active, c.nextID), removed.Clone(), nil
}

// Restore puts a removed portfolio back at its id-ordered position.
func (c *Collection) Restore(p models.Portfolio) (*Collection, error) {
	if c.indexOf(p.ID) >= 0 {
		return c, fmt.Errorf("%w: portfolio %d already present", ErrInvalidValue, p.ID)
	}
	i := sort.Search(len(c.portfolios), func(i int) bool { return c.portfolios[i].ID > p.ID })
	ps := make([]models.Portfolio, 0, len(c.portfolios)+1)
	ps = append(ps, c.portfolios[:i]...)
	ps = append(ps, p.Clone())
	ps = append(ps, c.portfolios[i:]...)
	return c.with(ps, c.activeID, c.nextID), nil
}
