package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

// CircleStore is the persistence a CircleService needs.
type CircleStore interface {
	ledger.AccountStore
	ledger.CircleStore
}

// CircleMovement is the outcome of a contribution or payout.
type CircleMovement struct {
	Circle    core.Circle
	AttemptID string
	Amount    decimal.Decimal
	Result    core.TransferResult
	// Replayed is set when the attempt id had already been committed; Circle
	// then holds the current stored state.
	Replayed bool
}

// CircleMovementRequest moves funds between a member account and the pool.
type CircleMovementRequest struct {
	CircleID  string
	Member    AccountAddress
	AttemptID string
	// Fee applies to contributions only; payouts are never fee-reduced.
	Fee       core.FeeSpec
	FeeBearer core.FeeBearer
}

type CircleService struct {
	store      CircleStore
	publisher  ledger.Publisher
	maxRetries int
	now        func() time.Time
}

func NewCircleService(store CircleStore, publisher ledger.Publisher, maxRetries int) *CircleService {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &CircleService{
		store:      store,
		publisher:  publisher,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Create validates and stores a new circle, opening its pool account when it
// does not exist yet.
func (s *CircleService) Create(ctx context.Context, p core.CircleParams) (core.Circle, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	switch {
	case p.PoolAccountID == "":
		p.PoolAccountID = defaultPoolID(p.ID)
	case strings.HasPrefix(p.PoolAccountID, defaultPoolPrefix) && p.PoolAccountID != defaultPoolID(p.ID):
		// Reserved for the default pools of other circles.
		return core.Circle{}, fmt.Errorf("pool account %s: %w", p.PoolAccountID, core.ErrInvalidCircle)
	}
	c, err := core.NewCircle(p)
	if err != nil {
		return core.Circle{}, err
	}
	if err := s.ensurePool(ctx, c); err != nil {
		return core.Circle{}, err
	}
	c, err = s.store.CreateCircle(ctx, c)
	if err != nil {
		return core.Circle{}, fmt.Errorf("create circle: %w", err)
	}
	slog.InfoContext(ctx, "Savings circle created",
		"circle_id", c.ID,
		"members", c.MemberCount,
		"rounds", c.DurationRounds,
		"monthly_amount", c.MonthlyAmount.String(),
		"status", c.Status)
	return c, nil
}

func (s *CircleService) Get(ctx context.Context, id string) (core.Circle, error) {
	return s.store.LoadCircle(ctx, id)
}

// AssignTurn sets the caller's payout turn. It succeeds once per circle.
func (s *CircleService) AssignTurn(ctx context.Context, id string, turn int) (core.Circle, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		c, err := s.store.LoadCircle(ctx, id)
		if err != nil {
			return core.Circle{}, err
		}
		next, err := core.AssignTurn(c, turn)
		if err != nil {
			logRejection(ctx, "Turn assignment rejected", err, "circle_id", id, "turn", turn)
			return core.Circle{}, err
		}
		saved, err := s.store.SaveCircle(ctx, next)
		if errors.Is(err, core.ErrConflict) {
			continue
		}
		if err != nil {
			return core.Circle{}, fmt.Errorf("save circle: %w", err)
		}
		slog.InfoContext(ctx, "Turn assigned", "circle_id", id, "turn", turn)
		return saved, nil
	}
	return core.Circle{}, fmt.Errorf("assign turn on circle %s: %w", id, core.ErrConflict)
}

// Pay contributes one round from the member account into the pool. The round
// advances only if the money moves.
func (s *CircleService) Pay(ctx context.Context, req CircleMovementRequest) (CircleMovement, error) {
	return s.move(ctx, req, "Contribution", func(c core.Circle, member, pool core.AccountRef) (circleLeg, error) {
		next, err := core.AdvanceRound(c)
		if err != nil {
			return circleLeg{}, err
		}
		res, err := core.Settle(core.TransferSpec{
			BaseAmount: c.MonthlyAmount,
			Fee:        req.Fee,
			FeeBearer:  req.FeeBearer,
		}, member, pool)
		return circleLeg{next: next, amount: c.MonthlyAmount, result: res, from: member, to: pool}, err
	})
}

// Withdraw pays the full pot out of the pool to the member account once the
// member's turn is due.
func (s *CircleService) Withdraw(ctx context.Context, req CircleMovementRequest) (CircleMovement, error) {
	return s.move(ctx, req, "Payout", func(c core.Circle, member, pool core.AccountRef) (circleLeg, error) {
		next, payout, err := core.RequestPayout(c)
		if err != nil {
			return circleLeg{}, err
		}
		res, err := core.SettlePayout(payout, pool, member)
		return circleLeg{next: next, amount: payout, result: res, from: pool, to: member}, err
	})
}

// circleLeg is a circle transition together with the fund movement that has
// to commit with it.
type circleLeg struct {
	next     core.Circle
	amount   decimal.Decimal
	result   core.TransferResult
	from, to core.AccountRef
}

type circleStep func(c core.Circle, member, pool core.AccountRef) (circleLeg, error)

func (s *CircleService) move(ctx context.Context, req CircleMovementRequest, what string, step circleStep) (CircleMovement, error) {
	if req.AttemptID == "" {
		req.AttemptID = uuid.NewString()
	}
	if req.Member.Kind == core.KindPooledCircle {
		return CircleMovement{}, fmt.Errorf("member %s: %w", req.Member, core.ErrPoolAccount)
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return CircleMovement{}, err
		}

		c, err := s.store.LoadCircle(ctx, req.CircleID)
		if err != nil {
			return CircleMovement{}, err
		}
		member, err := s.store.GetAccount(ctx, req.Member.Kind, req.Member.ID)
		if err != nil {
			return CircleMovement{}, fmt.Errorf("load member account: %w", err)
		}
		pool, err := s.store.GetAccount(ctx, core.KindPooledCircle, c.PoolAccountID)
		if err != nil {
			return CircleMovement{}, fmt.Errorf("load pool account: %w", err)
		}

		leg, err := step(c, member, pool)
		if err != nil {
			// A committed payout, retried, fails as already withdrawn; a
			// committed final contribution fails as not payable.
			applied, lerr := s.store.AttemptApplied(ctx, req.AttemptID)
			if lerr != nil {
				slog.WarnContext(ctx, "Failed to look up circle attempt", "attempt_id", req.AttemptID, "error", lerr)
			}
			if applied {
				slog.InfoContext(ctx, what+" attempt already committed", "attempt_id", req.AttemptID)
				return CircleMovement{Circle: c, AttemptID: req.AttemptID, Replayed: true}, nil
			}
			logRejection(ctx, what+" rejected", err,
				"circle_id", c.ID,
				"round", c.CurrentRound,
				"member", req.Member.String())
			return CircleMovement{}, err
		}

		posting := ledger.Posting{
			AttemptID:   req.AttemptID,
			Source:      ledger.KeyOf(leg.from),
			Destination: ledger.KeyOf(leg.to),
			Result:      leg.result,
			Memo:        fmt.Sprintf("circle %s round %d %s", c.ID, c.CurrentRound, strings.ToLower(what)),
			CreatedAt:   s.now().UTC(),
		}

		saved, err := s.store.SettleCircle(ctx, leg.next, posting)
		switch {
		case err == nil:
			slog.InfoContext(ctx, what+" committed",
				"circle_id", saved.ID,
				"attempt_id", req.AttemptID,
				"amount", leg.amount.String(),
				"current_round", saved.CurrentRound,
				"status", saved.Status)
			s.publish(ctx, posting.Record())
			return CircleMovement{Circle: saved, AttemptID: req.AttemptID, Amount: leg.amount, Result: leg.result}, nil
		case errors.Is(err, ledger.ErrAlreadyApplied):
			slog.InfoContext(ctx, what+" attempt already committed", "attempt_id", req.AttemptID)
			current, lerr := s.store.LoadCircle(ctx, req.CircleID)
			if lerr != nil {
				return CircleMovement{}, lerr
			}
			return CircleMovement{Circle: current, AttemptID: req.AttemptID, Replayed: true}, nil
		case errors.Is(err, core.ErrConflict):
			slog.DebugContext(ctx, what+" lost version race, retrying",
				"circle_id", req.CircleID,
				"attempt", attempt)
			continue
		default:
			return CircleMovement{}, fmt.Errorf("settle circle: %w", err)
		}
	}
	return CircleMovement{}, fmt.Errorf("%s on circle %s after %d attempts: %w", what, req.CircleID, s.maxRetries, core.ErrConflict)
}

// ensurePool opens the circle's pool account. An existing pool is reused only
// when it belongs to this circle: either it carries the circle's default pool
// id or the stored circle with this id already names it.
func (s *CircleService) ensurePool(ctx context.Context, c core.Circle) error {
	_, err := s.store.GetAccount(ctx, core.KindPooledCircle, c.PoolAccountID)
	if err == nil {
		if c.PoolAccountID == defaultPoolID(c.ID) {
			return nil
		}
		stored, lerr := s.store.LoadCircle(ctx, c.ID)
		if lerr == nil && stored.PoolAccountID == c.PoolAccountID {
			return nil
		}
		if lerr != nil && !errors.Is(lerr, core.ErrCircleNotFound) {
			return fmt.Errorf("load circle: %w", lerr)
		}
		return fmt.Errorf("pool account %s is already in use: %w", c.PoolAccountID, core.ErrInvalidCircle)
	}
	if !errors.Is(err, core.ErrAccountNotFound) {
		return fmt.Errorf("load pool account: %w", err)
	}
	name := c.Name
	if name == "" {
		name = c.ID
	}
	_, err = s.store.CreateAccount(ctx, core.AccountRef{
		Kind:    core.KindPooledCircle,
		ID:      c.PoolAccountID,
		Name:    name,
		Balance: decimal.Zero,
		Status:  core.StatusActive,
	})
	if err != nil && !errors.Is(err, core.ErrConflict) {
		return fmt.Errorf("open pool account: %w", err)
	}
	return nil
}

const defaultPoolPrefix = "circle-"

func defaultPoolID(circleID string) string {
	return defaultPoolPrefix + circleID
}

func (s *CircleService) publish(ctx context.Context, rec ledger.TransferRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransferSettled(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "Failed to publish settlement event",
			"attempt_id", rec.AttemptID,
			"error", err)
	}
}
