// Package backend builds the ledger store and its outbound adapters from
// configuration.
package backend

import (
	"context"

	"conti/internal/ledger"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendResult contains the store, the optional event publisher and a
// cleanup function closing both.
type BackendResult struct {
	Store     ledger.Store
	Publisher ledger.Publisher
	Cleanup   CleanupFunc
}

// Ready pings the store when it supports it.
func (r *BackendResult) Ready(ctx context.Context) error {
	if p, ok := r.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateJournal(ctx context.Context, config Config) (ledger.JournalWriter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath  string
	DataDirectory string

	// Publishing is disabled when AMQPURL is empty.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// The Sheets journal is used when GoogleSpreadsheetID is set; otherwise
	// transfers are journaled to the log.
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
