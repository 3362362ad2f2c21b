// Package ledger declares the outbound ports of the settlement engine: where
// accounts and circles live, and where settlement events go.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// ErrAlreadyApplied is returned when a posting with the same attempt id has
// already been committed. Callers treat it as success.
var ErrAlreadyApplied = errors.New("transfer attempt already applied")

type (
	// AccountKey addresses one stored account at a known version.
	AccountKey struct {
		Kind    core.AccountKind
		ID      string
		Version int64
	}

	// Posting is a settled transfer ready to be committed. Both deltas and the
	// source limit consumption are applied in one atomic write, and only if
	// both accounts are still at the versions the settlement was computed on.
	Posting struct {
		AttemptID   string
		Source      AccountKey
		Destination AccountKey
		Result      core.TransferResult
		Memo        string
		CreatedAt   time.Time
	}

	// TransferRecord is a committed posting as read back from the journal.
	TransferRecord struct {
		AttemptID        string
		SourceKind       core.AccountKind
		SourceID         string
		DestinationKind  core.AccountKind
		DestinationID    string
		SourceDelta      decimal.Decimal
		DestinationDelta decimal.Decimal
		Fee              decimal.Decimal
		RealizedProfit   decimal.Decimal
		Mode             core.SettlementMode
		Memo             string
		CreatedAt        time.Time
	}
)

// Ports for outbound adapters.
type (
	AccountStore interface {
		GetAccount(ctx context.Context, kind core.AccountKind, id string) (core.AccountRef, error)
		CreateAccount(ctx context.Context, a core.AccountRef) (core.AccountRef, error)
		ListAccounts(ctx context.Context) ([]core.AccountRef, error)
		// ApplyTransfer returns core.ErrConflict when either account moved on
		// since it was read and ErrAlreadyApplied for a repeated attempt id.
		ApplyTransfer(ctx context.Context, p Posting) error
		// AttemptApplied reports whether a posting with this attempt id has
		// been committed.
		AttemptApplied(ctx context.Context, attemptID string) (bool, error)
	}

	// LimitResetter zeroes limit usage counters. Used by the reset scheduler.
	LimitResetter interface {
		ResetDailyUsage(ctx context.Context, resetAt time.Time) (int64, error)
		ResetMonthlyUsage(ctx context.Context, resetAt time.Time) (int64, error)
		LastLimitReset(ctx context.Context) (daily, monthly time.Time, err error)
	}

	CircleStore interface {
		CreateCircle(ctx context.Context, c core.Circle) (core.Circle, error)
		LoadCircle(ctx context.Context, id string) (core.Circle, error)
		// SaveCircle writes c if the stored version still equals c.Version.
		SaveCircle(ctx context.Context, c core.Circle) (core.Circle, error)
		// SettleCircle writes the circle and commits the posting atomically.
		SettleCircle(ctx context.Context, c core.Circle, p Posting) (core.Circle, error)
	}

	TransferLister interface {
		ListTransfers(ctx context.Context, kind core.AccountKind, id string, limit int) ([]TransferRecord, error)
	}

	// Store is everything a backend provides.
	Store interface {
		AccountStore
		LimitResetter
		CircleStore
		TransferLister
	}

	// Publisher announces committed transfers.
	Publisher interface {
		PublishTransferSettled(ctx context.Context, rec TransferRecord) error
	}

	// JournalWriter mirrors committed transfers to an external journal.
	JournalWriter interface {
		AppendTransfer(ctx context.Context, rec TransferRecord) (ref string, err error)
	}
)

// Record converts a posting into the journal shape.
func (p Posting) Record() TransferRecord {
	return TransferRecord{
		AttemptID:        p.AttemptID,
		SourceKind:       p.Source.Kind,
		SourceID:         p.Source.ID,
		DestinationKind:  p.Destination.Kind,
		DestinationID:    p.Destination.ID,
		SourceDelta:      p.Result.SourceDelta,
		DestinationDelta: p.Result.DestinationDelta,
		Fee:              p.Result.Fee,
		RealizedProfit:   p.Result.RealizedProfit,
		Mode:             p.Result.Mode,
		Memo:             p.Memo,
		CreatedAt:        p.CreatedAt,
	}
}

// KeyOf returns the versioned key of an account.
func KeyOf(a core.AccountRef) AccountKey {
	return AccountKey{Kind: a.Kind, ID: a.ID, Version: a.Version}
}
