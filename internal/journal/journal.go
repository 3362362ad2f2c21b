// Package journal holds the journal writers that need no external service.
package journal

import (
	"context"
	"sync"

	"conti/internal/ledger"
	"conti/internal/log"
)

var (
	_ ledger.JournalWriter = (*LogWriter)(nil)
	_ ledger.JournalWriter = (*Memory)(nil)
)

// LogWriter journals transfers as structured log lines. It is the fallback
// when no spreadsheet is configured.
type LogWriter struct {
	logger *log.Logger
}

func NewLogWriter(logger *log.Logger) *LogWriter {
	return &LogWriter{logger: logger.WithComponent(log.ComponentJournal)}
}

func (w *LogWriter) AppendTransfer(ctx context.Context, rec ledger.TransferRecord) (string, error) {
	fields := log.NewFields().WithTransfer(rec).WithOperation(log.OpAppend)
	if rec.Memo != "" {
		fields["memo"] = rec.Memo
	}
	if !rec.RealizedProfit.IsZero() {
		fields["realized_profit"] = rec.RealizedProfit.String()
	}
	w.logger.InfoContext(ctx, "Journal entry", fields.ToSlice()...)
	return "log:" + rec.AttemptID, nil
}

// Memory keeps journal entries in order, one per attempt id.
type Memory struct {
	mu      sync.Mutex
	entries []ledger.TransferRecord
	index   map[string]int
}

func NewMemory() *Memory {
	return &Memory{index: make(map[string]int)}
}

func (m *Memory) AppendTransfer(_ context.Context, rec ledger.TransferRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[rec.AttemptID]; !ok {
		m.index[rec.AttemptID] = len(m.entries)
		m.entries = append(m.entries, rec)
	}
	return "memory:" + rec.AttemptID, nil
}

// Entries returns a copy of the journal.
func (m *Memory) Entries() []ledger.TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.TransferRecord(nil), m.entries...)
}
