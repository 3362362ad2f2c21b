package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seeded() *Store {
	return New(
		core.AccountRef{Kind: core.KindBank, ID: "b1", Status: core.StatusActive, Balance: d("100"),
			Limits: core.Limits{DailyLimit: core.Limit(d("500"))}},
		core.AccountRef{Kind: core.KindWallet, ID: "w1", Status: core.StatusActive, Balance: d("0")},
	)
}

func posting(t *testing.T, s *Store, attempt string, amount string) ledger.Posting {
	t.Helper()
	ctx := context.Background()
	src, err := s.GetAccount(ctx, core.KindBank, "b1")
	if err != nil {
		t.Fatal(err)
	}
	dst, err := s.GetAccount(ctx, core.KindWallet, "w1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := core.Settle(core.TransferSpec{BaseAmount: d(amount)}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	return ledger.Posting{AttemptID: attempt, Source: ledger.KeyOf(src), Destination: ledger.KeyOf(dst), Result: res}
}

func TestApplyTransfer(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	p := posting(t, s, "a1", "40")
	if err := s.ApplyTransfer(ctx, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
	src, _ := s.GetAccount(ctx, core.KindBank, "b1")
	dst, _ := s.GetAccount(ctx, core.KindWallet, "w1")
	if !src.Balance.Equal(d("60")) || !dst.Balance.Equal(d("40")) {
		t.Fatalf("balances = %s/%s", src.Balance, dst.Balance)
	}
	if !src.Limits.DailyUsed.Equal(d("40")) || src.Version != 2 {
		t.Fatalf("source = %+v", src)
	}

	if err := s.ApplyTransfer(ctx, p); !errors.Is(err, ledger.ErrAlreadyApplied) {
		t.Fatalf("replay: got %v", err)
	}
	if ok, err := s.AttemptApplied(ctx, "a1"); !ok || err != nil {
		t.Fatalf("AttemptApplied(a1) = %v, %v", ok, err)
	}

	// p still carries version 1: a new attempt computed on it is stale.
	stale := p
	stale.AttemptID = "a2"
	if err := s.ApplyTransfer(ctx, stale); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale: got %v", err)
	}
	if ok, _ := s.AttemptApplied(ctx, "a2"); ok {
		t.Fatal("rejected attempt reported as applied")
	}
	src, _ = s.GetAccount(ctx, core.KindBank, "b1")
	if !src.Balance.Equal(d("60")) {
		t.Fatalf("stale posting mutated balance: %s", src.Balance)
	}

	recs, _ := s.ListTransfers(ctx, core.KindWallet, "w1", 10)
	if len(recs) != 1 || recs[0].AttemptID != "a1" {
		t.Fatalf("transfers = %+v", recs)
	}
}

func TestApplyTransferMissingAccount(t *testing.T) {
	s := seeded()
	p := ledger.Posting{AttemptID: "x", Source: ledger.AccountKey{Kind: core.KindVault, ID: "nope", Version: 1}}
	if err := s.ApplyTransfer(context.Background(), p); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestResetUsage(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	if err := s.ApplyTransfer(ctx, posting(t, s, "a1", "10")); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	n, err := s.ResetDailyUsage(ctx, at)
	if err != nil || n != 1 {
		t.Fatalf("reset daily: n=%d err=%v", n, err)
	}
	src, _ := s.GetAccount(ctx, core.KindBank, "b1")
	if !src.Limits.DailyUsed.IsZero() || !src.Limits.MonthlyUsed.Equal(d("10")) {
		t.Fatalf("limits = %+v", src.Limits)
	}
	daily, monthly, _ := s.LastLimitReset(ctx)
	if !daily.Equal(at) || !monthly.IsZero() {
		t.Fatalf("last reset = %v/%v", daily, monthly)
	}
}

func TestCircleVersioning(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	c, err := core.NewCircle(core.CircleParams{
		ID: "c1", PoolAccountID: "pool", MonthlyAmount: d("10"), MemberCount: 3, StartDate: core.NewDate(2025, 1, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err = s.CreateCircle(ctx, c)
	if err != nil || c.Version != 1 {
		t.Fatalf("create: %v", err)
	}
	next, _ := core.AdvanceRound(c)
	saved, err := s.SaveCircle(ctx, next)
	if err != nil || saved.Version != 2 {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.SaveCircle(ctx, next); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale save: got %v", err)
	}
	if _, err := s.LoadCircle(ctx, "missing"); !errors.Is(err, core.ErrCircleNotFound) {
		t.Fatalf("missing: got %v", err)
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	if s := NewFromFiles(dir); s == nil {
		t.Fatal("expected empty store when file missing")
	}
	content := "# kind,id,balance\nbank,b1,100\nwallet,w1,0,extra\nvault,v1,abc\nwallet,w2,12.50\n\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_accounts.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFromFiles(dir)
	accs, _ := s.ListAccounts(context.Background())
	if len(accs) != 2 || accs[0].ID != "b1" || accs[1].ID != "w2" {
		t.Fatalf("accounts = %+v", accs)
	}
}
