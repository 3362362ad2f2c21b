package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
	"conti/internal/ledger"
)

// DefaultMaxRetries bounds how often a transfer is recomputed after losing a
// version race.
const DefaultMaxRetries = 3

// AccountAddress names one account in the ledger.
type AccountAddress struct {
	Kind core.AccountKind
	ID   string
}

func (a AccountAddress) String() string {
	return string(a.Kind) + "/" + a.ID
}

// TransferRequest is a transfer as submitted by a host.
type TransferRequest struct {
	// AttemptID deduplicates retries of the same transfer. Generated when empty.
	AttemptID   string
	Source      AccountAddress
	Destination AccountAddress
	Spec        core.TransferSpec
	Memo        string
}

// TransferReceipt describes a committed (or previously committed) transfer.
type TransferReceipt struct {
	AttemptID string
	Result    core.TransferResult
	// Replayed is set when the attempt id had already been committed; Result
	// is then empty and the ledger was not touched again.
	Replayed bool
	Attempts int
}

// LedgerService owns every balance mutation. Hosts compute through it and
// never write account state directly.
type LedgerService struct {
	store      ledger.AccountStore
	publisher  ledger.Publisher
	maxRetries int
	now        func() time.Time
}

func NewLedgerService(store ledger.AccountStore, publisher ledger.Publisher, maxRetries int) *LedgerService {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &LedgerService{
		store:      store,
		publisher:  publisher,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Quote runs the settlement engine against current account state without
// committing anything.
func (s *LedgerService) Quote(ctx context.Context, req TransferRequest) (core.TransferResult, error) {
	src, dst, err := s.load(ctx, req.Source, req.Destination)
	if err != nil {
		return core.TransferResult{}, err
	}
	return core.Settle(req.Spec, src, dst)
}

// Transfer settles and commits a transfer. A lost version race re-reads both
// accounts and re-validates from scratch; the posting is never re-applied
// blindly.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error) {
	if req.AttemptID == "" {
		req.AttemptID = uuid.NewString()
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return TransferReceipt{}, err
		}

		src, dst, err := s.load(ctx, req.Source, req.Destination)
		if err != nil {
			return TransferReceipt{}, err
		}

		result, err := core.Settle(req.Spec, src, dst)
		if err != nil {
			// A retry of a committed transfer may no longer pass the checks
			// it passed the first time.
			if replay, ok := s.replayed(ctx, req.AttemptID, attempt); ok {
				return replay, nil
			}
			logRejection(ctx, "Transfer rejected", err,
				"attempt_id", req.AttemptID,
				"source", req.Source.String(),
				"destination", req.Destination.String())
			return TransferReceipt{}, err
		}

		posting := ledger.Posting{
			AttemptID:   req.AttemptID,
			Source:      ledger.KeyOf(src),
			Destination: ledger.KeyOf(dst),
			Result:      result,
			Memo:        req.Memo,
			CreatedAt:   s.now().UTC(),
		}

		err = s.store.ApplyTransfer(ctx, posting)
		switch {
		case err == nil:
			slog.InfoContext(ctx, "Transfer committed",
				"attempt_id", req.AttemptID,
				"source", req.Source.String(),
				"destination", req.Destination.String(),
				"source_delta", result.SourceDelta.String(),
				"destination_delta", result.DestinationDelta.String(),
				"fee", result.Fee.String(),
				"attempts", attempt)
			if result.IsShortfall() {
				slog.WarnContext(ctx, "Collection shortfall",
					"attempt_id", req.AttemptID,
					"realized_profit", result.RealizedProfit.String())
			}
			s.publish(ctx, posting.Record())
			return TransferReceipt{AttemptID: req.AttemptID, Result: result, Attempts: attempt}, nil
		case errors.Is(err, ledger.ErrAlreadyApplied):
			slog.InfoContext(ctx, "Transfer attempt already committed", "attempt_id", req.AttemptID)
			return TransferReceipt{AttemptID: req.AttemptID, Replayed: true, Attempts: attempt}, nil
		case errors.Is(err, core.ErrConflict):
			slog.DebugContext(ctx, "Transfer lost version race, retrying",
				"attempt_id", req.AttemptID,
				"attempt", attempt)
			continue
		default:
			return TransferReceipt{}, fmt.Errorf("apply transfer: %w", err)
		}
	}

	slog.WarnContext(ctx, "Transfer gave up after repeated conflicts",
		"attempt_id", req.AttemptID,
		"max_retries", s.maxRetries)
	return TransferReceipt{}, fmt.Errorf("transfer %s after %d attempts: %w", req.AttemptID, s.maxRetries, core.ErrConflict)
}

// History lists the most recent transfers touching an account.
func (s *LedgerService) History(ctx context.Context, addr AccountAddress, limit int) ([]ledger.TransferRecord, error) {
	lister, ok := s.store.(ledger.TransferLister)
	if !ok {
		return nil, nil
	}
	if _, err := s.store.GetAccount(ctx, addr.Kind, addr.ID); err != nil {
		return nil, err
	}
	return lister.ListTransfers(ctx, addr.Kind, addr.ID, limit)
}

// replayed returns a replay receipt when attemptID is already committed.
func (s *LedgerService) replayed(ctx context.Context, attemptID string, attempt int) (TransferReceipt, bool) {
	applied, err := s.store.AttemptApplied(ctx, attemptID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to look up transfer attempt", "attempt_id", attemptID, "error", err)
		return TransferReceipt{}, false
	}
	if !applied {
		return TransferReceipt{}, false
	}
	slog.InfoContext(ctx, "Transfer attempt already committed", "attempt_id", attemptID)
	return TransferReceipt{AttemptID: attemptID, Replayed: true, Attempts: attempt}, true
}

// load fetches both sides of a plain transfer. Pool accounts are only moved
// by their circle.
func (s *LedgerService) load(ctx context.Context, source, destination AccountAddress) (core.AccountRef, core.AccountRef, error) {
	if source.Kind == core.KindPooledCircle || destination.Kind == core.KindPooledCircle {
		return core.AccountRef{}, core.AccountRef{}, fmt.Errorf("transfer %s -> %s: %w", source, destination, core.ErrPoolAccount)
	}
	src, err := s.store.GetAccount(ctx, source.Kind, source.ID)
	if err != nil {
		return core.AccountRef{}, core.AccountRef{}, fmt.Errorf("load source: %w", err)
	}
	dst, err := s.store.GetAccount(ctx, destination.Kind, destination.ID)
	if err != nil {
		return core.AccountRef{}, core.AccountRef{}, fmt.Errorf("load destination: %w", err)
	}
	return src, dst, nil
}

// publish announces a committed transfer. The ledger is already consistent,
// so failures are logged and never surfaced.
func (s *LedgerService) publish(ctx context.Context, rec ledger.TransferRecord) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, skipping settlement event", "attempt_id", rec.AttemptID)
		return
	}
	if err := s.publisher.PublishTransferSettled(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "Failed to publish settlement event",
			"attempt_id", rec.AttemptID,
			"error", err)
	}
}

// logRejection keeps expected policy outcomes out of the error log.
func logRejection(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "reason", core.Code(err))
	switch core.Classify(err) {
	case core.ClassValidation, core.ClassPolicy:
		slog.InfoContext(ctx, msg, args...)
	case core.ClassNotFound:
		slog.WarnContext(ctx, msg, args...)
	default:
		slog.ErrorContext(ctx, msg, append(args, "error", err)...)
	}
}
