package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote/remotetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var today = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return today.AddDate(0, 0, -n) }

func newTestEngine(t *testing.T) (*Engine, *remotetest.Fake) {
	t.Helper()
	fake := remotetest.New()
	clock := func() time.Time { return today.Add(15 * time.Hour) }
	return NewEngine(fake, zap.NewNop(), WithClock(clock)), fake
}

func record(name, retailerID, retailerName, price string, date time.Time) model.PriceRecord {
	return model.PriceRecord{
		ItemName:     name,
		Price:        decimal.RequireFromString(price),
		RetailerID:   retailerID,
		RetailerName: retailerName,
		Date:         date,
	}
}

func TestSuggestSameRetailerRecent(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("bananas", "r-1", "Aldi", "1.50", daysAgo(5)))

	s, err := e.Suggest(context.Background(), "Bananas ", "r-1")
	require.NoError(t, err)

	assert.True(t, s.Estimated.Valid)
	assert.True(t, s.Estimated.Decimal.Equal(decimal.RequireFromString("1.50")))
	assert.Equal(t, High, s.Confidence)
	assert.Equal(t, "Aldi", s.RetailerName)
	assert.Equal(t, 1, s.Tier)
	require.NotNil(t, s.LastPaidDate)
	assert.Equal(t, daysAgo(5), *s.LastPaidDate)
}

func TestSuggestPrefersSameRetailerOverNewerElsewhere(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("milk", "r-1", "Aldi", "1.10", daysAgo(10)))
	fake.AddPrice(record("milk", "r-2", "Lidl", "0.95", daysAgo(5)))

	s, err := e.Suggest(context.Background(), "milk", "r-1")
	require.NoError(t, err)

	assert.Equal(t, High, s.Confidence)
	assert.True(t, s.Estimated.Decimal.Equal(decimal.RequireFromString("1.10")))
	assert.Equal(t, "Aldi", s.RetailerName)
}

func TestSuggestTiers(t *testing.T) {
	tests := []struct {
		name       string
		records    []model.PriceRecord
		item       string
		retailer   string
		want       string
		confidence Confidence
		tier       int
	}{
		{
			name:       "same retailer within 90 days",
			records:    []model.PriceRecord{record("eggs", "r-1", "Aldi", "2.99", daysAgo(60))},
			item:       "eggs",
			retailer:   "r-1",
			want:       "2.99",
			confidence: Medium,
			tier:       2,
		},
		{
			name:       "any retailer within 30 days",
			records:    []model.PriceRecord{record("eggs", "r-2", "Lidl", "2.49", daysAgo(3))},
			item:       "eggs",
			retailer:   "r-1",
			want:       "2.49",
			confidence: Medium,
			tier:       3,
		},
		{
			name:       "fuzzy token at same retailer",
			records:    []model.PriceRecord{record("organic whole milk", "r-1", "Aldi", "1.89", daysAgo(200))},
			item:       "milk 1l",
			retailer:   "r-1",
			want:       "1.89",
			confidence: Low,
			tier:       4,
		},
		{
			name: "most recent same retailer record wins",
			records: []model.PriceRecord{
				record("eggs", "r-1", "Aldi", "2.79", daysAgo(20)),
				record("eggs", "r-1", "Aldi", "2.89", daysAgo(2)),
			},
			item:       "eggs",
			retailer:   "r-1",
			want:       "2.89",
			confidence: High,
			tier:       1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, fake := newTestEngine(t)
			for _, r := range tt.records {
				fake.AddPrice(r)
			}
			s, err := e.Suggest(context.Background(), tt.item, tt.retailer)
			require.NoError(t, err)
			require.True(t, s.Estimated.Valid)
			assert.True(t, s.Estimated.Decimal.Equal(decimal.RequireFromString(tt.want)), s.Estimated.Decimal.String())
			assert.Equal(t, tt.confidence, s.Confidence)
			assert.Equal(t, tt.tier, s.Tier)
		})
	}
}

func TestSuggestNoMatch(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("bread", "r-1", "Aldi", "1.00", daysAgo(1)))

	s, err := e.Suggest(context.Background(), "caviar", "r-1")
	require.NoError(t, err)

	assert.False(t, s.Estimated.Valid)
	assert.Equal(t, Low, s.Confidence)
	assert.Nil(t, s.LastPaidDate)
	assert.Zero(t, s.Tier)
}

func TestSuggestFuzzyIgnoresShortTokens(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("oat milk", "r-1", "Aldi", "2.20", daysAgo(100)))

	s, err := e.Suggest(context.Background(), "oa mi", "r-1")
	require.NoError(t, err)
	assert.False(t, s.Estimated.Valid)
}

func TestSuggestFuzzyScansOnlyRecentRecords(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("cheddar cheese", "r-1", "Aldi", "3.50", daysAgo(400)))
	for i := range fuzzyScan {
		fake.AddPrice(record("filler", "r-1", "Aldi", "1.00", daysAgo(100+i)))
	}

	s, err := e.Suggest(context.Background(), "cheese", "r-1")
	require.NoError(t, err)
	assert.False(t, s.Estimated.Valid)
}

func TestSuggestAnyRetailerSkipsRetailerTiers(t *testing.T) {
	for _, wildcard := range []string{AnyRetailer, "ANY", ""} {
		t.Run("retailer="+wildcard, func(t *testing.T) {
			e, fake := newTestEngine(t)
			fake.AddPrice(record("apples", "r-1", "Aldi", "0.40", daysAgo(60)))
			fake.AddPrice(record("apples", "r-2", "Lidl", "0.35", daysAgo(10)))
			fake.AddPrice(record("green apples", "r-1", "Aldi", "0.50", daysAgo(1)))

			s, err := e.Suggest(context.Background(), "apples", wildcard)
			require.NoError(t, err)
			assert.Equal(t, Medium, s.Confidence)
			assert.Equal(t, 3, s.Tier)
			assert.Equal(t, "Lidl", s.RetailerName)

			for _, c := range fake.Calls() {
				assert.Equal(t, "QueryPrices", c)
			}
			assert.Len(t, fake.Calls(), 1)
		})
	}
}

func TestSuggestAnyRetailerNoFuzzy(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("whole milk", "r-1", "Aldi", "1.20", daysAgo(1)))

	s, err := e.Suggest(context.Background(), "milk", AnyRetailer)
	require.NoError(t, err)
	assert.False(t, s.Estimated.Valid)
}

func TestSuggestRequiresItemName(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Suggest(context.Background(), "   ", "r-1")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSuggestPropagatesRemoteErrors(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.SetError(model.ErrNotAuthenticated)

	_, err := e.Suggest(context.Background(), "milk", "r-1")
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestHistory(t *testing.T) {
	e, fake := newTestEngine(t)
	for i := range 60 {
		fake.AddPrice(record("milk", "r-1", "Aldi", "1.00", daysAgo(i)))
	}
	fake.AddPrice(record("bread", "r-1", "Aldi", "2.00", daysAgo(0)))

	got, err := e.History(context.Background(), "Milk", 0)
	require.NoError(t, err)
	assert.Len(t, got, historyLimit)
	assert.Equal(t, daysAgo(0), got[0].Date)
	for _, r := range got {
		assert.Equal(t, "milk", r.ItemName)
	}

	got, err = e.History(context.Background(), "milk", 5)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestTrends(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("coffee", "r-1", "Aldi", "5.00", daysAgo(2)))
	fake.AddPrice(record("coffee", "r-2", "Lidl", "4.00", daysAgo(20)))
	fake.AddPrice(record("coffee", "r-1", "Aldi", "6.00", daysAgo(60)))
	fake.AddPrice(record("coffee", "r-1", "Aldi", "3.00", daysAgo(300)))

	tr, err := e.Trends(context.Background(), "coffee")
	require.NoError(t, err)

	assert.Equal(t, 2, tr.Last30Days.Count)
	assert.Equal(t, "4.5", tr.Last30Days.Avg.String())
	assert.Equal(t, "4", tr.Last30Days.Min.String())
	assert.Equal(t, "5", tr.Last30Days.Max.String())

	assert.Equal(t, 3, tr.Last90Days.Count)
	assert.Equal(t, "5", tr.Last90Days.Avg.String())

	assert.Equal(t, 4, tr.AllTime.Count)
	assert.Equal(t, "4.5", tr.AllTime.Avg.String())
	assert.Equal(t, "3", tr.AllTime.Min.String())
	assert.Equal(t, "6", tr.AllTime.Max.String())
}

func TestTrendsRoundsAverage(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("tea", "r-1", "Aldi", "1.00", daysAgo(1)))
	fake.AddPrice(record("tea", "r-1", "Aldi", "1.00", daysAgo(2)))
	fake.AddPrice(record("tea", "r-1", "Aldi", "1.01", daysAgo(3)))

	tr, err := e.Trends(context.Background(), "tea")
	require.NoError(t, err)
	assert.Equal(t, "1", tr.AllTime.Avg.String())
}

func TestTrendsEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	tr, err := e.Trends(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, Trend{}, tr)
}

func TestPopularItems(t *testing.T) {
	e, fake := newTestEngine(t)
	fake.AddPrice(record("milk", "r-1", "Aldi", "1.00", daysAgo(1)))
	fake.AddPrice(record("Milk", "r-2", "Lidl", "1.50", daysAgo(5)))
	fake.AddPrice(record("milk", "r-1", "Aldi", "1.25", daysAgo(30)))
	fake.AddPrice(record("bread", "r-1", "Aldi", "2.00", daysAgo(3)))
	fake.AddPrice(record("bread", "r-1", "Aldi", "2.20", daysAgo(4)))
	fake.AddPrice(record("eggs", "r-1", "Aldi", "3.00", daysAgo(8)))
	fake.AddPrice(record("caviar", "r-1", "Aldi", "90.00", daysAgo(120)))

	got, err := e.PopularItems(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "milk", got[0].ItemName)
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, "1.25", got[0].AvgPrice.String())
	assert.Equal(t, "bread", got[1].ItemName)
	assert.Equal(t, "2.1", got[1].AvgPrice.String())
	assert.Equal(t, "eggs", got[2].ItemName)

	got, err = e.PopularItems(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPopularItemsRemoteError(t *testing.T) {
	e, fake := newTestEngine(t)
	boom := errors.New("backend unavailable")
	fake.FailOn("QueryPrices", boom)

	_, err := e.PopularItems(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
}
