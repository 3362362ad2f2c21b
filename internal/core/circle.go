package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CirclePending   CircleStatus = "pending"
	CircleActive    CircleStatus = "active"
	CircleCompleted CircleStatus = "completed"
	CircleCancelled CircleStatus = "cancelled"
)

type (
	CircleStatus string

	// Circle is a rotating savings circle: a fixed group of members each paying
	// MonthlyAmount per round, one member collecting the pot each round.
	// Operations return an updated copy; the stored record is owned by the
	// caller.
	Circle struct {
		ID             string
		Name           string
		PoolAccountID  string
		MonthlyAmount  decimal.Decimal
		MemberCount    int
		DurationRounds int
		StartDate      Date
		// CurrentRound is 1-based; DurationRounds+1 means every round is paid.
		CurrentRound int
		// MyTurnNumber is 0 while unassigned.
		MyTurnNumber     int
		HasWithdrawn     bool
		TotalContributed decimal.Decimal
		TotalWithdrawn   decimal.Decimal
		Status           CircleStatus
		Version          int64
	}

	// CircleParams are the structural inputs of a new circle.
	CircleParams struct {
		ID             string
		Name           string
		PoolAccountID  string
		MonthlyAmount  decimal.Decimal
		MemberCount    int
		DurationRounds int // defaults to MemberCount
		StartDate      Date
		MyTurnNumber   int // optional
		Pending        bool
	}
)

// NewCircle validates params and returns a circle at round 1.
func NewCircle(p CircleParams) (Circle, error) {
	if p.DurationRounds == 0 {
		p.DurationRounds = p.MemberCount
	}
	c := Circle{
		ID:               p.ID,
		Name:             strings.TrimSpace(p.Name),
		PoolAccountID:    p.PoolAccountID,
		MonthlyAmount:    p.MonthlyAmount,
		MemberCount:      p.MemberCount,
		DurationRounds:   p.DurationRounds,
		StartDate:        p.StartDate,
		CurrentRound:     1,
		MyTurnNumber:     p.MyTurnNumber,
		TotalContributed: decimal.Zero,
		TotalWithdrawn:   decimal.Zero,
		Status:           CircleActive,
	}
	if p.Pending {
		c.Status = CirclePending
	}
	if err := c.Validate(); err != nil {
		return Circle{}, err
	}
	return c, nil
}

// Validate checks the structural invariants of a circle.
func (c Circle) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return ErrInvalidCircle
	case strings.TrimSpace(c.PoolAccountID) == "":
		return ErrInvalidCircle
	case !c.MonthlyAmount.IsPositive():
		return ErrInvalidAmount
	case c.MemberCount < 2, c.DurationRounds < 2:
		return ErrInvalidCircle
	case c.CurrentRound < 1 || c.CurrentRound > c.DurationRounds+1:
		return ErrInvalidCircle
	case c.MyTurnNumber < 0 || c.MyTurnNumber > c.MemberCount:
		return ErrInvalidCircle
	case c.HasWithdrawn && (c.MyTurnNumber == 0 || c.CurrentRound < c.MyTurnNumber):
		return ErrInvalidCircle
	}
	switch c.Status {
	case CirclePending, CircleActive, CircleCompleted, CircleCancelled:
	default:
		return ErrInvalidCircle
	}
	return c.StartDate.Validate()
}

// PayoutAmount is the full pot of one round, independent of any fees.
func (c Circle) PayoutAmount() decimal.Decimal {
	return c.MonthlyAmount.Mul(decimal.NewFromInt(int64(c.MemberCount)))
}

// RoundsPaid is the number of rounds already contributed.
func (c Circle) RoundsPaid() int {
	return c.CurrentRound - 1
}

// RoundsUntilPayout returns how many more paid rounds are needed before the
// payout is available; 0 when it is available or no turn is assigned.
func (c Circle) RoundsUntilPayout() int {
	if c.MyTurnNumber == 0 {
		return 0
	}
	if n := c.MyTurnNumber - c.RoundsPaid(); n > 0 {
		return n
	}
	return 0
}

// Activate moves a pending circle to active.
func Activate(c Circle) (Circle, error) {
	if c.Status != CirclePending {
		return c, ErrCircleNotPayable
	}
	c.Status = CircleActive
	return c, nil
}

// Cancel stops a pending or active circle.
func Cancel(c Circle) (Circle, error) {
	if c.Status != CirclePending && c.Status != CircleActive {
		return c, ErrCircleNotPayable
	}
	c.Status = CircleCancelled
	return c, nil
}

// AdvanceRound records one contribution and moves to the next round. The
// circle completes once every round is paid.
func AdvanceRound(c Circle) (Circle, error) {
	if c.Status != CircleActive || c.CurrentRound > c.DurationRounds {
		return c, ErrCircleNotPayable
	}
	c.CurrentRound++
	c.TotalContributed = c.TotalContributed.Add(c.MonthlyAmount)
	if c.CurrentRound > c.DurationRounds {
		c.Status = CircleCompleted
	}
	return c, nil
}

// RequestPayout marks the caller's pot as collected and returns its amount.
// The payout for turn N is available once N rounds are paid. A completed
// circle still pays out, so the holder of the last turn can collect.
// Payouts are therefore accepted in the completed state as well as active,
// which widens the active-only rule for this one operation.
func RequestPayout(c Circle) (Circle, decimal.Decimal, error) {
	if c.Status != CircleActive && c.Status != CircleCompleted {
		return c, decimal.Zero, ErrCircleNotPayable
	}
	if c.MyTurnNumber == 0 {
		return c, decimal.Zero, ErrTurnNotAssigned
	}
	if remaining := c.RoundsUntilPayout(); remaining > 0 {
		return c, decimal.Zero, &TurnNotYetDueError{RoundsRemaining: remaining}
	}
	if c.HasWithdrawn {
		return c, decimal.Zero, ErrAlreadyWithdrawn
	}
	payout := c.PayoutAmount()
	c.HasWithdrawn = true
	c.TotalWithdrawn = c.TotalWithdrawn.Add(payout)
	return c, payout, nil
}

// AssignTurn sets the caller's turn. It may only happen once.
func AssignTurn(c Circle, turn int) (Circle, error) {
	if c.MyTurnNumber != 0 {
		return c, ErrTurnAlreadyAssigned
	}
	if c.Status == CircleCancelled {
		return c, ErrCircleNotPayable
	}
	if turn < 1 || turn > c.MemberCount {
		return c, ErrInvalidCircle
	}
	c.MyTurnNumber = turn
	return c, nil
}
