// Package price estimates item prices from the user's purchase history.
package price

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AnyRetailer is the retailer wildcard accepted by Suggest.
const AnyRetailer = "any"

const (
	recentWindow  = 30
	olderWindow   = 90
	fuzzyScan     = 20
	minTokenLen   = 3
	historyLimit  = 50
	popularLimit  = 20
	popularWindow = 90
)

// Confidence rates how closely a suggestion's precedent matches the query.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Suggestion is a price estimate anchored to a single historical record.
// Estimated is null when no record matched.
type Suggestion struct {
	Estimated    decimal.NullDecimal `json:"estimated"`
	Confidence   Confidence          `json:"confidence"`
	LastPaid     decimal.NullDecimal `json:"last_paid"`
	LastPaidDate *time.Time          `json:"last_paid_date,omitempty"`
	RetailerName string              `json:"retailer_name,omitempty"`
	Tier         int                 `json:"tier,omitempty"`
}

// Engine answers price questions by querying remote price history.
type Engine struct {
	prices remote.PriceHistoryService
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for date windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(prices remote.PriceHistoryService, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{prices: prices, logger: logger, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// since returns the start of the day n days before today.
func (e *Engine) since(days int) *time.Time {
	t := model.Day(e.now()).AddDate(0, 0, -days)
	return &t
}

type tier struct {
	confidence Confidence
	query      func(name, retailer string) model.PriceQuery
	needsShop  bool
}

// Suggest estimates the price of itemName at retailerID. Tiers are tried in
// order and the first hit wins; its price is returned verbatim. retailerID
// "any" or "" skips the retailer-bound tiers.
func (e *Engine) Suggest(ctx context.Context, itemName, retailerID string) (Suggestion, error) {
	name := model.NormalizeItemName(itemName)
	if name == "" {
		return Suggestion{}, &model.ValidationError{Fields: map[string]string{"item_name": "is required"}}
	}
	anyShop := retailerID == "" || strings.EqualFold(retailerID, AnyRetailer)

	tiers := []tier{
		{High, func(n, r string) model.PriceQuery {
			return model.PriceQuery{ItemName: n, RetailerID: r, Since: e.since(recentWindow), Limit: 1}
		}, true},
		{Medium, func(n, r string) model.PriceQuery {
			return model.PriceQuery{ItemName: n, RetailerID: r, Since: e.since(olderWindow), Limit: 1}
		}, true},
		{Medium, func(n, _ string) model.PriceQuery {
			return model.PriceQuery{ItemName: n, Since: e.since(recentWindow), Limit: 1}
		}, false},
	}
	for i, t := range tiers {
		if t.needsShop && anyShop {
			continue
		}
		recs, err := e.prices.QueryPrices(ctx, t.query(name, retailerID))
		if err != nil {
			return Suggestion{}, fmt.Errorf("price tier %d: %w", i+1, err)
		}
		if len(recs) > 0 {
			e.logger.Debug("price suggestion", zap.String("item", name), zap.Int("tier", i+1))
			return suggestionFrom(recs[0], t.confidence, i+1), nil
		}
	}

	if !anyShop {
		recs, err := e.prices.QueryPrices(ctx, model.PriceQuery{RetailerID: retailerID, Limit: fuzzyScan})
		if err != nil {
			return Suggestion{}, fmt.Errorf("price tier 4: %w", err)
		}
		if rec, ok := fuzzyMatch(name, recs); ok {
			e.logger.Debug("price suggestion", zap.String("item", name), zap.Int("tier", 4))
			return suggestionFrom(rec, Low, 4), nil
		}
	}

	return Suggestion{Confidence: Low}, nil
}

// fuzzyMatch returns the first record whose name contains any query token
// of at least minTokenLen characters.
func fuzzyMatch(name string, recs []model.PriceRecord) (model.PriceRecord, bool) {
	var tokens []string
	for _, tok := range strings.Fields(name) {
		if utf8.RuneCountInString(tok) >= minTokenLen {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return model.PriceRecord{}, false
	}
	for _, r := range recs {
		candidate := model.NormalizeItemName(r.ItemName)
		for _, tok := range tokens {
			if strings.Contains(candidate, tok) {
				return r, true
			}
		}
	}
	return model.PriceRecord{}, false
}

func suggestionFrom(r model.PriceRecord, c Confidence, tier int) Suggestion {
	date := r.Date
	return Suggestion{
		Estimated:    decimal.NewNullDecimal(r.Price),
		Confidence:   c,
		LastPaid:     decimal.NewNullDecimal(r.Price),
		LastPaidDate: &date,
		RetailerName: r.RetailerName,
		Tier:         tier,
	}
}

// History returns the most recent records for itemName, newest first.
// A non-positive limit means 50.
func (e *Engine) History(ctx context.Context, itemName string, limit int) ([]model.PriceRecord, error) {
	name := model.NormalizeItemName(itemName)
	if name == "" {
		return nil, &model.ValidationError{Fields: map[string]string{"item_name": "is required"}}
	}
	if limit <= 0 {
		limit = historyLimit
	}
	recs, err := e.prices.QueryPrices(ctx, model.PriceQuery{ItemName: name, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	return recs, nil
}

// Stats summarizes prices over a period. Avg is rounded to cents.
type Stats struct {
	Avg   decimal.Decimal `json:"avg"`
	Min   decimal.Decimal `json:"min"`
	Max   decimal.Decimal `json:"max"`
	Count int             `json:"count"`
}

// Trend reports Stats for the last 30 days, the last 90 days and all time.
type Trend struct {
	Last30Days Stats `json:"last_30_days"`
	Last90Days Stats `json:"last_90_days"`
	AllTime    Stats `json:"all_time"`
}

// Trends aggregates every record for itemName.
func (e *Engine) Trends(ctx context.Context, itemName string) (Trend, error) {
	name := model.NormalizeItemName(itemName)
	if name == "" {
		return Trend{}, &model.ValidationError{Fields: map[string]string{"item_name": "is required"}}
	}
	recs, err := e.prices.QueryPrices(ctx, model.PriceQuery{ItemName: name})
	if err != nil {
		return Trend{}, fmt.Errorf("price trends: %w", err)
	}

	d30, d90 := *e.since(recentWindow), *e.since(olderWindow)
	var last30, last90 []decimal.Decimal
	all := make([]decimal.Decimal, 0, len(recs))
	for _, r := range recs {
		all = append(all, r.Price)
		if !r.Date.Before(d90) {
			last90 = append(last90, r.Price)
		}
		if !r.Date.Before(d30) {
			last30 = append(last30, r.Price)
		}
	}
	return Trend{
		Last30Days: statsOf(last30),
		Last90Days: statsOf(last90),
		AllTime:    statsOf(all),
	}, nil
}

func statsOf(prices []decimal.Decimal) Stats {
	if len(prices) == 0 {
		return Stats{}
	}
	return Stats{
		Avg:   decimal.Avg(prices[0], prices[1:]...).Round(2),
		Min:   decimal.Min(prices[0], prices[1:]...),
		Max:   decimal.Max(prices[0], prices[1:]...),
		Count: len(prices),
	}
}

// Popular is an item bought often in the last 90 days.
type Popular struct {
	ItemName string          `json:"item_name"`
	Count    int             `json:"count"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// PopularItems groups the last 90 days of records by item name and returns
// the most frequent first. A non-positive limit means 20.
func (e *Engine) PopularItems(ctx context.Context, limit int) ([]Popular, error) {
	if limit <= 0 {
		limit = popularLimit
	}
	recs, err := e.prices.QueryPrices(ctx, model.PriceQuery{Since: e.since(popularWindow)})
	if err != nil {
		return nil, fmt.Errorf("popular items: %w", err)
	}

	groups := map[string][]decimal.Decimal{}
	for _, r := range recs {
		key := model.NormalizeItemName(r.ItemName)
		groups[key] = append(groups[key], r.Price)
	}
	out := make([]Popular, 0, len(groups))
	for name, prices := range groups {
		out = append(out, Popular{ItemName: name, Count: len(prices), AvgPrice: statsOf(prices).Avg})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ItemName < out[j].ItemName
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
