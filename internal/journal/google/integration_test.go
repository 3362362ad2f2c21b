//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/journal/google

func TestIntegration_AppendTransfer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, Options{
		SpreadsheetID:   spreadsheetID,
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec := ledger.TransferRecord{
		AttemptID:        "it-" + uuid.NewString(),
		SourceKind:       core.KindBank,
		SourceID:         "integration",
		DestinationKind:  core.KindWallet,
		DestinationID:    "integration",
		SourceDelta:      decimal.RequireFromString("-1.00"),
		DestinationDelta: decimal.RequireFromString("1.00"),
		Mode:             core.SettleInstant,
		CreatedAt:        time.Now().UTC(),
	}

	ref, err := client.AppendTransfer(ctx, rec)
	if err != nil {
		t.Fatalf("AppendTransfer() error = %v", err)
	}
	t.Logf("appended %s", ref)

	// A fresh client must see the row and skip it.
	again, err := New(ctx, Options{
		SpreadsheetID:   spreadsheetID,
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	})
	if err != nil {
		t.Fatal(err)
	}
	found, err := again.hasAttempt(ctx, again.sheetFor(rec), rec.AttemptID)
	if err != nil || !found {
		t.Fatalf("hasAttempt() = %v, %v", found, err)
	}
}
