package model

import (
	"fmt"
	"slices"
	"time"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	StatusPlanned   TripStatus = "planned"
	StatusActive    TripStatus = "active"
	StatusCompleted TripStatus = "completed"
	StatusArchived  TripStatus = "archived"
)

// validTransitions defines allowed trip status transitions. Archived is
// reachable from every state except active.
var validTransitions = map[TripStatus][]TripStatus{
	StatusPlanned:   {StatusActive, StatusArchived},
	StatusActive:    {StatusCompleted, StatusPlanned},
	StatusCompleted: {StatusActive, StatusArchived},
	StatusArchived:  {StatusPlanned},
}

// Valid reports whether s is a known status.
func (s TripStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CheckTransition returns ErrInvalidTransition if a trip may not move from
// one status to another. Staying in the same status is allowed.
func CheckTransition(from, to TripStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil
	}
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Transition moves t to status to, maintaining CompletedAt: entering
// completed stamps it, leaving completed clears it. The single-active rule is
// enforced by callers since it needs the other trips.
func (t *Trip) Transition(to TripStatus, now time.Time) error {
	if err := CheckTransition(t.Status, to); err != nil {
		return err
	}
	if t.Status == to {
		return nil
	}
	t.Status = to
	if to == StatusCompleted {
		stamp := now.UTC()
		t.CompletedAt = &stamp
	} else {
		t.CompletedAt = nil
	}
	t.UpdatedAt = now.UTC()
	return nil
}

// Apply copies the set non-status fields of p onto t.
func (p TripPatch) Apply(t *Trip) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Date != nil {
		t.Date = Day(*p.Date)
	}
	if p.RetailerID != nil {
		t.RetailerID = *p.RetailerID
	}
}
