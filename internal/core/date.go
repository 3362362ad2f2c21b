package core

import (
	"errors"
	"time"
)

type Date struct {
	time.Time
}

var errZeroDate = errors.New("date cannot be zero")

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errZeroDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}
