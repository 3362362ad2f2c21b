package backend

import (
	"context"
	"path/filepath"
	"testing"

	"conti/internal/config"
	"conti/internal/journal"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "sqlite",
		SQLiteDBPath:        "/tmp/x.db",
		AMQPURL:             "amqp://localhost/",
		AMQPExchange:        "conti",
		AMQPQueue:           "journal",
		GoogleSpreadsheetID: "sheet",
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/x.db" || cfg.AMQPQueue != "journal" || cfg.GoogleSpreadsheetID != "sheet" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x/", AMQPExchange: "e"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		if res.Store == nil || res.Publisher != nil || res.Cleanup != nil {
			t.Errorf("unexpected result %+v", res)
		}
		if err := res.Ready(ctx); err != nil {
			t.Errorf("Ready() error = %v", err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{
			Type:         SQLiteBackend,
			SQLiteDBPath: filepath.Join(t.TempDir(), "conti.db"),
		})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		defer res.Cleanup()
		if err := res.Ready(ctx); err != nil {
			t.Errorf("Ready() error = %v", err)
		}
		accounts, err := res.Store.ListAccounts(ctx)
		if err != nil || len(accounts) != 0 {
			t.Errorf("ListAccounts() = %v, %v", accounts, err)
		}
	})
}

func TestCreateJournal_FallsBackToLog(t *testing.T) {
	w, err := NewFactory(nil).CreateJournal(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateJournal() error = %v", err)
	}
	if _, ok := w.(*journal.LogWriter); !ok {
		t.Errorf("CreateJournal() = %T, want *journal.LogWriter", w)
	}
}
