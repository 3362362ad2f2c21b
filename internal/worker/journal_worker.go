// Package worker turns settlement events into journal rows.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/ledger"
)

// JournalWorker mirrors each settled transfer to the journal exactly once
// per attempt id, as far as the journal writer can tell.
type JournalWorker struct {
	journal ledger.JournalWriter
	history ledger.TransferLister
	timeout time.Duration
}

func NewJournalWorker(journal ledger.JournalWriter, history ledger.TransferLister, timeout time.Duration) *JournalWorker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JournalWorker{
		journal: journal,
		history: history,
		timeout: timeout,
	}
}

// HandleTransferSettled processes a single settlement message from AMQP.
func (w *JournalWorker) HandleTransferSettled(ctx context.Context, msg *amqp.TransferSettledMessage) error {
	if msg == nil || msg.AttemptID == "" {
		return errors.New("settlement message without attempt id")
	}

	slog.InfoContext(ctx, "Processing settlement message",
		"attempt_id", msg.AttemptID,
		"queued_at", msg.Timestamp)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ref, err := w.journal.AppendTransfer(ctx, msg.Record())
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}

	slog.InfoContext(ctx, "Journaled transfer",
		"attempt_id", msg.AttemptID,
		"journal_ref", ref,
		"lag", time.Since(msg.CommittedAt).Round(time.Millisecond))
	return nil
}

// Backfill journals the most recent transfers of the given accounts. It
// recovers entries whose events were lost while the broker was down; the
// journal skips attempt ids it already holds.
func (w *JournalWorker) Backfill(ctx context.Context, accounts []ledger.AccountKey, perAccount int) (int, error) {
	if w.history == nil {
		return 0, nil
	}

	seen := make(map[string]struct{})
	written := 0
	for _, acc := range accounts {
		recs, err := w.history.ListTransfers(ctx, acc.Kind, acc.ID, perAccount)
		if err != nil {
			return written, fmt.Errorf("list transfers of %s/%s: %w", acc.Kind, acc.ID, err)
		}
		// Oldest first so the journal stays in commit order.
		for i := len(recs) - 1; i >= 0; i-- {
			rec := recs[i]
			if _, dup := seen[rec.AttemptID]; dup {
				continue
			}
			seen[rec.AttemptID] = struct{}{}
			if _, err := w.journal.AppendTransfer(ctx, rec); err != nil {
				slog.ErrorContext(ctx, "Failed to backfill journal entry",
					"attempt_id", rec.AttemptID,
					"error", err)
				continue
			}
			written++
		}
	}

	slog.InfoContext(ctx, "Journal backfill completed",
		"accounts", len(accounts),
		"entries", written)
	return written, nil
}
