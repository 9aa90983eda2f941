package model

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Retailer is a store the user shops at.
type Retailer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TripCount int       `json:"trip_count"`
}

// Trip is a planned, running or finished shopping trip.
type Trip struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	RetailerID     string          `json:"retailer_id"`
	Name           string          `json:"name"`
	Date           time.Time       `json:"date"`
	Status         TripStatus      `json:"status"`
	EstimatedTotal decimal.Decimal `json:"estimated_total"`
	ActualTotal    decimal.Decimal `json:"actual_total"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Retailer       *Retailer       `json:"retailer,omitempty"`
	Items          []TripItem      `json:"items,omitempty"`
}

// TripItem is a single line on a trip's shopping list.
type TripItem struct {
	ID             string              `json:"id"`
	TripID         string              `json:"trip_id"`
	ItemName       string              `json:"item_name"`
	Quantity       float64             `json:"quantity"`
	EstimatedPrice decimal.NullDecimal `json:"estimated_price"`
	ActualPrice    decimal.NullDecimal `json:"actual_price"`
	IsCompleted    bool                `json:"is_completed"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// PriceRecord is one historical price paid for an item. Records are written by
// the backend when an actual price is recorded and are read-only here.
type PriceRecord struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	ItemName     string          `json:"item_name"`
	Price        decimal.Decimal `json:"price"`
	RetailerID   string          `json:"retailer_id"`
	RetailerName string          `json:"retailer_name"`
	TripID       string          `json:"trip_id"`
	Date         time.Time       `json:"date"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TripFilter narrows a trip listing. Zero values mean "no filter".
type TripFilter struct {
	Status     TripStatus `json:"status,omitempty"`
	RetailerID string     `json:"retailer_id,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	ExcludeID  string     `json:"exclude_id,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// PriceQuery selects price records, newest first. ItemName matches the
// normalized name exactly; empty fields are not filtered on.
type PriceQuery struct {
	ItemName   string     `json:"item_name,omitempty"`
	RetailerID string     `json:"retailer_id,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// NormalizeItemName lowercases and trims an item name for comparisons.
func NormalizeItemName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LineTotal is quantity times price, or zero when the price is unset.
func LineTotal(quantity float64, price decimal.NullDecimal) decimal.Decimal {
	if !price.Valid {
		return decimal.Zero
	}
	return price.Decimal.Mul(decimal.NewFromFloat(quantity))
}

// Totals sums estimated and actual line totals over items.
func Totals(items []TripItem) (estimated, actual decimal.Decimal) {
	estimated, actual = decimal.Zero, decimal.Zero
	for _, it := range items {
		estimated = estimated.Add(LineTotal(it.Quantity, it.EstimatedPrice))
		actual = actual.Add(LineTotal(it.Quantity, it.ActualPrice))
	}
	return estimated, actual
}

// Matches reports whether t passes the filter. Limit is not applied.
func (f TripFilter) Matches(t Trip) bool {
	switch {
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.RetailerID != "" && t.RetailerID != f.RetailerID:
		return false
	case f.ExcludeID != "" && t.ID == f.ExcludeID:
		return false
	case f.DateFrom != nil && t.Date.Before(Day(*f.DateFrom)):
		return false
	case f.DateTo != nil && t.Date.After(Day(*f.DateTo)):
		return false
	}
	return true
}

// IsZero reports whether the filter selects every trip.
func (f TripFilter) IsZero() bool {
	return f == TripFilter{}
}

// SortTrips orders trips newest date first, then newest created first.
func SortTrips(trips []Trip) {
	sort.SliceStable(trips, func(i, j int) bool {
		if !trips[i].Date.Equal(trips[j].Date) {
			return trips[i].Date.After(trips[j].Date)
		}
		return trips[i].CreatedAt.After(trips[j].CreatedAt)
	})
}

// SortRetailers orders retailers by name.
func SortRetailers(rs []Retailer) {
	sort.SliceStable(rs, func(i, j int) bool {
		return strings.ToLower(rs[i].Name) < strings.ToLower(rs[j].Name)
	})
}

// SortItems orders items oldest first.
func SortItems(items []TripItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
