package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// RetailerInput creates a retailer.
type RetailerInput struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Location *string `json:"location,omitempty" validate:"omitempty,max=200"`
}

// RetailerPatch renames or relocates a retailer. Nil fields are left alone.
type RetailerPatch struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Location *string `json:"location,omitempty" validate:"omitempty,max=200"`
}

// TripInput creates a trip in status planned.
type TripInput struct {
	Name       string    `json:"name" validate:"required,max=100"`
	Date       time.Time `json:"date"`
	RetailerID string    `json:"retailer_id" validate:"required"`
}

// TripPatch edits a trip. A non-empty Status goes through the status machine.
type TripPatch struct {
	Name       *string    `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Date       *time.Time `json:"date,omitempty"`
	RetailerID *string    `json:"retailer_id,omitempty" validate:"omitempty,min=1"`
	Status     TripStatus `json:"status,omitempty" validate:"omitempty,oneof=planned active completed archived"`
}

// ItemInput adds an item to a trip.
type ItemInput struct {
	ItemName       string           `json:"item_name" validate:"required,max=100"`
	Quantity       float64          `json:"quantity" validate:"gt=0"`
	EstimatedPrice *decimal.Decimal `json:"estimated_price,omitempty" validate:"omitempty,gte=0"`
}

// ItemPatch edits an item. Nil fields are left alone.
type ItemPatch struct {
	ItemName       *string          `json:"item_name,omitempty" validate:"omitempty,min=1,max=100"`
	Quantity       *float64         `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	EstimatedPrice *decimal.Decimal `json:"estimated_price,omitempty" validate:"omitempty,gte=0"`
	ActualPrice    *decimal.Decimal `json:"actual_price,omitempty" validate:"omitempty,gte=0"`
	IsCompleted    *bool            `json:"is_completed,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})
	return v
}

// Validate checks an input or patch against its struct tags.
func Validate(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = validationMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	}
	return "is invalid"
}

// Normalize trims names and drops empty locations.
func (in RetailerInput) Normalize() RetailerInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = trimOptional(in.Location)
	return in
}

// Normalize trims the provided fields.
func (p RetailerPatch) Normalize() RetailerPatch {
	if p.Name != nil {
		n := strings.TrimSpace(*p.Name)
		p.Name = &n
	}
	if p.Location != nil {
		l := strings.TrimSpace(*p.Location)
		p.Location = &l
	}
	return p
}

// Normalize trims the trip name and defaults the date to today.
func (in TripInput) Normalize(now time.Time) TripInput {
	in.Name = strings.TrimSpace(in.Name)
	if in.Date.IsZero() {
		in.Date = Day(now)
	}
	return in
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Normalize trims the item name.
func (in ItemInput) Normalize() ItemInput {
	in.ItemName = strings.TrimSpace(in.ItemName)
	return in
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// Apply copies the set fields of p onto r.
func (p RetailerPatch) Apply(r *Retailer) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Location != nil {
		r.Location = trimOptional(p.Location)
	}
}

// Apply copies the set fields of p onto it.
func (p ItemPatch) Apply(it *TripItem) {
	if p.ItemName != nil {
		it.ItemName = *p.ItemName
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.EstimatedPrice != nil {
		it.EstimatedPrice = decimal.NewNullDecimal(*p.EstimatedPrice)
	}
	if p.ActualPrice != nil {
		it.ActualPrice = decimal.NewNullDecimal(*p.ActualPrice)
	}
	if p.IsCompleted != nil {
		it.IsCompleted = *p.IsCompleted
	}
}
