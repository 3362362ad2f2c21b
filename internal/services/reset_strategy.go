// Package services orchestrates the settlement engine against the ledger
// ports: transfers, savings circles and limit-usage resets.
//
// Limit usage is reset per scope. Each scope has its own strategy deciding,
// from the last reset and the current time, whether a new window started.
package services

import (
	"fmt"
	"time"
)

type LimitScope string

const (
	ScopeDaily   LimitScope = "daily"
	ScopeMonthly LimitScope = "monthly"
)

// ResetChecker decides whether a limit window rolled over.
type ResetChecker interface {
	// IsDue reports whether usage last reset at lastReset must be reset at
	// now. A zero lastReset is always due.
	IsDue(lastReset, now time.Time) bool
}

// DailyReset rolls over at midnight in Location (UTC when nil).
type DailyReset struct {
	Location *time.Location
}

func (r DailyReset) IsDue(lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return true
	}
	loc := locationOrUTC(r.Location)
	return lastReset.In(loc).Format(time.DateOnly) != now.In(loc).Format(time.DateOnly)
}

// MonthlyReset rolls over on the first day of each month in Location.
type MonthlyReset struct {
	Location *time.Location
}

func (r MonthlyReset) IsDue(lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return true
	}
	loc := locationOrUTC(r.Location)
	last, cur := lastReset.In(loc), now.In(loc)
	return last.Year() != cur.Year() || last.Month() != cur.Month()
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

var resetStrategies = map[LimitScope]ResetChecker{
	ScopeDaily:   DailyReset{},
	ScopeMonthly: MonthlyReset{},
}

// GetResetChecker returns the strategy registered for a scope.
func GetResetChecker(scope LimitScope) (ResetChecker, error) {
	checker, ok := resetStrategies[scope]
	if !ok {
		return nil, fmt.Errorf("unknown limit scope: %s", scope)
	}
	return checker, nil
}

// RegisterResetChecker replaces the strategy of a scope, e.g. to roll over in
// a local time zone.
func RegisterResetChecker(scope LimitScope, checker ResetChecker) {
	resetStrategies[scope] = checker
}
