package google

import (
	"context"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	old, had := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	os.Unsetenv("GOOGLE_APPLICATION_CREDENTIALS")
	defer func() {
		if had {
			os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", old)
		}
	}()

	_, err := New(context.Background(), Options{SpreadsheetID: "sheet"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Options{
		SpreadsheetID:   "sheet",
		CredentialsFile: "/nonexistent/credentials.json",
	})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestClient_AppendTransferValidation(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetBase: "Journal"}

	if _, err := c.AppendTransfer(context.Background(), ledger.TransferRecord{}); err == nil ||
		!strings.Contains(err.Error(), "missing attempt id") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.AppendTransfer(context.Background(), ledger.TransferRecord{AttemptID: "a"}); err == nil ||
		!strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected uninitialized error, got %v", err)
	}
}

func TestJournalRow(t *testing.T) {
	rec := ledger.TransferRecord{
		AttemptID:        "t-1",
		SourceKind:       core.KindBank,
		SourceID:         "b1",
		DestinationKind:  core.KindWallet,
		DestinationID:    "w1",
		SourceDelta:      decimal.RequireFromString("-1020"),
		DestinationDelta: decimal.RequireFromString("1000"),
		Fee:              decimal.RequireFromString("20"),
		RealizedProfit:   decimal.Zero,
		Mode:             core.SettleInstant,
		Memo:             "rent",
		CreatedAt:        time.Date(2025, 7, 4, 8, 15, 0, 0, time.UTC),
	}

	want := []any{
		"2025-07-04 08:15:00", "t-1", "bank/b1", "wallet/w1",
		"-1020.00", "1000.00", "20.00", "0.00", "instant", "rent",
	}
	if got := journalRow(rec); !reflect.DeepEqual(got, want) {
		t.Errorf("journalRow() = %v, want %v", got, want)
	}
}

func TestColumnValues(t *testing.T) {
	rows := [][]any{
		{"Attempt"},
		{},
		{"  t-1 "},
		{""},
		{"# comment"},
		{"t-2", "ignored"},
	}
	got := columnValues(rows)
	want := []string{"Attempt", "t-1", "t-2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("columnValues() = %v, want %v", got, want)
	}
}

func TestSheetFor(t *testing.T) {
	c := &Client{sheetBase: "Journal"}

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"dated", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), "2025 Journal"},
		{"new year in UTC", time.Date(2024, 12, 31, 23, 30, 0, 0, time.FixedZone("X", -2*60*60)), "2025 Journal"},
		{"undated", time.Time{}, "Journal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.sheetFor(ledger.TransferRecord{CreatedAt: tt.at}); got != tt.want {
				t.Errorf("sheetFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemember(t *testing.T) {
	c := &Client{seen: make(map[string]map[string]struct{})}
	c.remember("2025 Journal", "t-1")
	if _, ok := c.seen["2025 Journal"]["t-1"]; !ok {
		t.Error("attempt not remembered")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Journal", 2025, "2025 Journal"},
		{"", 2023, ""},
		{"Transfers Log", 2022, "2022 Transfers Log"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}
