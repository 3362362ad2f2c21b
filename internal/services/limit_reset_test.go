package services

import (
	"context"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/memory"
)

func TestLimitResetProcessor_ResetDue(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	ledgerSvc := NewLedgerService(store, nil, 0)
	proc := NewLimitResetProcessor(store, DefaultLimitResetConfig())

	spend := func(amount string) {
		t.Helper()
		if _, err := ledgerSvc.Transfer(ctx, TransferRequest{
			Source: bank, Destination: wallet, Spec: core.TransferSpec{BaseAmount: d(amount)},
		}); err != nil {
			t.Fatalf("transfer: %v", err)
		}
	}
	usage := func() core.Limits {
		t.Helper()
		acc, err := store.GetAccount(ctx, bank.Kind, bank.ID)
		if err != nil {
			t.Fatal(err)
		}
		return acc.Limits
	}

	day1 := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)
	if s, err := proc.ResetDue(ctx, day1); err != nil || !s.DailyReset || !s.MonthlyReset {
		t.Fatalf("first pass = %+v, %v", s, err)
	}

	spend("200")
	if s, _ := proc.ResetDue(ctx, day1.Add(time.Hour)); s.DailyReset || s.MonthlyReset {
		t.Fatalf("same day pass reset something: %+v", s)
	}
	if !usage().DailyUsed.Equal(d("200")) {
		t.Fatalf("usage = %+v", usage())
	}

	// Next day is also a new month.
	day2 := time.Date(2025, 2, 1, 0, 1, 0, 0, time.UTC)
	s, err := proc.ResetDue(ctx, day2)
	if err != nil {
		t.Fatal(err)
	}
	if !s.DailyReset || s.DailyAccounts != 1 || !s.MonthlyReset || s.MonthlyAccounts != 1 {
		t.Fatalf("rollover pass = %+v", s)
	}
	if l := usage(); !l.DailyUsed.IsZero() || !l.MonthlyUsed.IsZero() {
		t.Fatalf("usage after rollover = %+v", l)
	}

	spend("300")
	day3 := day2.Add(24 * time.Hour)
	s, _ = proc.ResetDue(ctx, day3)
	if !s.DailyReset || s.MonthlyReset {
		t.Fatalf("day 3 pass = %+v", s)
	}
	if l := usage(); !l.DailyUsed.IsZero() || !l.MonthlyUsed.Equal(d("300")) {
		t.Fatalf("usage after daily reset = %+v", l)
	}

	// The daily window is free again.
	spend("300")
}

func TestLimitResetProcessor_NotInitialized(t *testing.T) {
	proc := NewLimitResetProcessor(nil, LimitResetConfig{})
	if _, err := proc.ResetDue(context.Background(), time.Now()); err == nil {
		t.Error("expected error without a store")
	}
	if proc.config.Interval != time.Minute {
		t.Errorf("default interval = %v", proc.config.Interval)
	}
}

func TestLimitResetProcessor_Lifecycle(t *testing.T) {
	store := memory.New()
	config := DefaultLimitResetConfig()
	config.Interval = 10 * time.Millisecond
	proc := NewLimitResetProcessor(store, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if proc.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	if err := proc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := proc.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	deadline := time.Now().Add(time.Second)
	for {
		daily, _, _ := store.LastLimitReset(ctx)
		if !daily.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop never ran a reset")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := proc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if proc.IsRunning() {
		t.Error("processor still running after Stop")
	}
	if err := proc.Stop(stopCtx); err != nil {
		t.Errorf("Stop when not running should not error: %v", err)
	}
}
