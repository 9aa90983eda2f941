package model

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotAuthenticated  = errors.New("user not authenticated")
	ErrNotFound          = errors.New("not found")
	ErrNotFoundInCache   = errors.New("not found in cache")
	ErrNoCachedData      = errors.New("no cached data available offline")
	ErrActiveTripExists  = errors.New("only one trip can be active at a time")
	ErrRetailerHasTrips  = errors.New("cannot delete retailer with existing trips")
	ErrDuplicateRetailer = errors.New("a retailer with this name already exists")
	ErrInvalidTransition = errors.New("invalid trip status transition")
	ErrInvalidInput      = errors.New("invalid input")
)

// ValidationError lists the offending fields of a rejected input.
// It unwraps to ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+" "+e.Fields[f])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
