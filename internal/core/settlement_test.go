package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func activeWallet(id, balance string) AccountRef {
	return AccountRef{Kind: KindWallet, ID: id, Status: StatusActive, Balance: d(balance)}
}

func TestSettleScenarios(t *testing.T) {
	src := activeWallet("src", "5000")
	dst := activeWallet("dst", "0")

	t.Run("percentage fee borne by sender", func(t *testing.T) {
		res, err := Settle(TransferSpec{
			BaseAmount: d("1000"),
			Fee:        FeeSpec{FeePercentage, d("0.02")},
			FeeBearer:  BearerSender,
		}, src, dst)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.SourceDelta.Equal(d("-1020")) || !res.DestinationDelta.Equal(d("1000")) {
			t.Errorf("deltas = %s/%s, want -1020/1000", res.SourceDelta, res.DestinationDelta)
		}
		if !res.LimitConsumption.Equal(d("1000")) {
			t.Errorf("limit consumption = %s, want 1000", res.LimitConsumption)
		}
		if !res.RealizedProfit.IsZero() {
			t.Errorf("profit = %s, want 0", res.RealizedProfit)
		}
	})

	t.Run("fixed fee borne by receiver", func(t *testing.T) {
		res, err := Settle(TransferSpec{
			BaseAmount: d("500"),
			Fee:        FeeSpec{FeeFixed, d("10")},
			FeeBearer:  BearerReceiver,
		}, src, dst)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.SourceDelta.Equal(d("-500")) || !res.DestinationDelta.Equal(d("490")) {
			t.Errorf("deltas = %s/%s, want -500/490", res.SourceDelta, res.DestinationDelta)
		}
		if !res.Fee.Equal(d("10")) {
			t.Errorf("fee = %s", res.Fee)
		}
	})

	t.Run("daily limit with thin balance", func(t *testing.T) {
		limited := activeWallet("lim", "100")
		limited.Limits = Limits{DailyLimit: Limit(d("200")), DailyUsed: d("150")}
		_, err := Settle(TransferSpec{BaseAmount: d("80")}, limited, dst)
		if !errors.Is(err, ErrDailyLimitExceeded) {
			t.Fatalf("got %v, want ErrDailyLimitExceeded", err)
		}
	})
}

func TestSettleValidationOrder(t *testing.T) {
	src := activeWallet("a", "100")
	dst := activeWallet("b", "0")
	inactiveDst := dst
	inactiveDst.Status = StatusCancelled

	tests := []struct {
		name string
		spec TransferSpec
		src  AccountRef
		dst  AccountRef
		want error
	}{
		{"same account", TransferSpec{BaseAmount: d("1")}, src, src, ErrSameAccount},
		{"same id different kind is fine", TransferSpec{BaseAmount: d("1")}, src, AccountRef{Kind: KindBank, ID: "a", Status: StatusActive}, nil},
		{"zero amount", TransferSpec{BaseAmount: decimal.Zero}, src, dst, ErrInvalidAmount},
		{"negative amount", TransferSpec{BaseAmount: d("-5")}, src, dst, ErrInvalidAmount},
		{"same account before amount", TransferSpec{BaseAmount: decimal.Zero}, src, src, ErrSameAccount},
		{"bad mode", TransferSpec{BaseAmount: d("1"), Mode: "later"}, src, dst, ErrInvalidSettlementMode},
		{"fee above base for receiver", TransferSpec{BaseAmount: d("5"), Fee: FeeSpec{FeeFixed, d("6")}, FeeBearer: BearerReceiver}, src, dst, ErrInvalidFeeConfiguration},
		{"fee pushes over balance", TransferSpec{BaseAmount: d("100"), Fee: FeeSpec{FeeFixed, d("1")}}, src, dst, ErrInsufficientBalance},
		{"inactive destination", TransferSpec{BaseAmount: d("1")}, src, inactiveDst, ErrAccountInactive},
		{"pool as source", TransferSpec{BaseAmount: d("1")}, AccountRef{Kind: KindPooledCircle, ID: "p", Status: StatusActive, Balance: d("1000")}, dst, ErrPoolAccount},
		{"pool as destination", TransferSpec{BaseAmount: d("1")}, src, AccountRef{Kind: KindPooledCircle, ID: "p", Status: StatusActive}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Settle(tt.spec, tt.src, tt.dst)
			if !errors.Is(err, tt.want) {
				t.Errorf("Settle() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSettlePayout(t *testing.T) {
	pool := AccountRef{Kind: KindPooledCircle, ID: "pool", Status: StatusActive}
	member := activeWallet("m", "0")

	res, err := SettlePayout(d("3000"), pool, member)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.SourceDelta.Equal(d("-3000")) || !res.DestinationDelta.Equal(d("3000")) {
		t.Errorf("deltas = %s/%s, want -3000/3000", res.SourceDelta, res.DestinationDelta)
	}
	if !res.Fee.IsZero() || !res.LimitConsumption.IsZero() {
		t.Errorf("payout result = %+v", res)
	}

	closedPool := pool
	closedPool.Status = StatusSuspended
	tests := []struct {
		name   string
		amount string
		pool   AccountRef
		member AccountRef
		want   error
	}{
		{"source is not a pool", "10", activeWallet("w", "1000"), member, ErrPoolAccount},
		{"member is a pool", "10", pool, AccountRef{Kind: KindPooledCircle, ID: "other", Status: StatusActive}, ErrPoolAccount},
		{"zero amount", "0", pool, member, ErrInvalidAmount},
		{"inactive pool", "10", closedPool, member, ErrAccountInactive},
		{"inactive member", "10", pool, AccountRef{Kind: KindWallet, ID: "m", Status: StatusBlocked}, ErrAccountInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SettlePayout(d(tt.amount), tt.pool, tt.member); !errors.Is(err, tt.want) {
				t.Errorf("SettlePayout() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSettleReceivable(t *testing.T) {
	src := activeWallet("till", "1000")
	recv := AccountRef{Kind: KindReceivable, ID: "cust-1", Status: StatusActive, Balance: d("-300")}

	t.Run("instant requires collected amount", func(t *testing.T) {
		_, err := Settle(TransferSpec{BaseAmount: d("300"), Mode: SettleInstant}, src, recv)
		if !errors.Is(err, ErrMissingCollectionAmount) {
			t.Fatalf("got %v", err)
		}
		_, err = Settle(TransferSpec{BaseAmount: d("300"), ActualCollected: Limit(decimal.Zero)}, src, recv)
		if !errors.Is(err, ErrMissingCollectionAmount) {
			t.Fatalf("zero collection: got %v", err)
		}
	})

	t.Run("instant surplus is profit", func(t *testing.T) {
		res, err := Settle(TransferSpec{
			BaseAmount:      d("300"),
			Fee:             FeeSpec{FeeFixed, d("5")},
			FeeBearer:       BearerSender,
			ActualCollected: Limit(d("350")),
		}, src, recv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.RealizedProfit.Equal(d("45")) {
			t.Errorf("profit = %s, want 45", res.RealizedProfit)
		}
		if res.IsShortfall() {
			t.Error("not a shortfall")
		}
	})

	t.Run("instant shortfall is accepted", func(t *testing.T) {
		res, err := Settle(TransferSpec{BaseAmount: d("300"), ActualCollected: Limit(d("280"))}, src, recv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.RealizedProfit.Equal(d("-20")) || !res.IsShortfall() {
			t.Errorf("profit = %s, want -20", res.RealizedProfit)
		}
	})

	t.Run("deferred has no profit", func(t *testing.T) {
		res, err := Settle(TransferSpec{BaseAmount: d("300"), Mode: SettleDeferred, ActualCollected: Limit(d("999"))}, src, recv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.RealizedProfit.IsZero() || res.Mode != SettleDeferred {
			t.Errorf("got %+v", res)
		}
	})

	t.Run("non receivable ignores collected", func(t *testing.T) {
		res, err := Settle(TransferSpec{BaseAmount: d("10"), ActualCollected: Limit(d("50"))}, src, activeWallet("w", "0"))
		if err != nil || !res.RealizedProfit.IsZero() {
			t.Fatalf("got %+v, %v", res, err)
		}
	})
}

func TestSettleBearerProperties(t *testing.T) {
	src := activeWallet("s", "1000000")
	dst := activeWallet("t", "0")
	fees := []FeeSpec{
		NoFee,
		{FeeFixed, d("3")},
		{FeeFixed, d("0.5")},
		{FeePercentage, d("0.015")},
		{FeePercentage, d("0.2")},
	}
	bases := []string{"1", "9.99", "150", "1234.56", "50000"}
	commissions := []string{"0", "2.5"}

	for _, fs := range fees {
		for _, b := range bases {
			for _, c := range commissions {
				name := fmt.Sprintf("%s-%s-%s-%s", fs.Type, fs.Value, b, c)
				t.Run(name, func(t *testing.T) {
					base, com := d(b), d(c)
					fee, err := ComputeFee(base, fs)
					if err != nil {
						t.Fatalf("fee: %v", err)
					}

					res, err := Settle(TransferSpec{BaseAmount: base, Fee: fs, FeeBearer: BearerSender, Commission: com}, src, dst)
					if err != nil {
						t.Fatalf("sender: %v", err)
					}
					if !res.SourceDelta.Equal(base.Add(fee).Neg()) || !res.DestinationDelta.Equal(base.Add(com)) {
						t.Errorf("sender deltas %s/%s", res.SourceDelta, res.DestinationDelta)
					}

					res, err = Settle(TransferSpec{BaseAmount: base, Fee: fs, FeeBearer: BearerReceiver, Commission: com}, src, dst)
					if fee.GreaterThan(base) {
						if !errors.Is(err, ErrInvalidFeeConfiguration) {
							t.Fatalf("receiver with fee > base: got %v", err)
						}
						return
					}
					if err != nil {
						t.Fatalf("receiver: %v", err)
					}
					if !res.SourceDelta.Equal(base.Neg()) || !res.DestinationDelta.Equal(base.Sub(fee).Add(com)) {
						t.Errorf("receiver deltas %s/%s", res.SourceDelta, res.DestinationDelta)
					}
				})
			}
		}
	}
}

// Usage accumulates per transfer regardless of how transfers are batched,
// and the transfer that would cross the cap is rejected.
func TestSettleDailyUsageAccumulates(t *testing.T) {
	for _, batch := range [][]string{
		{"10", "20", "30", "40"},
		{"100"},
		{"50", "50"},
		{"25", "25", "25", "25"},
	} {
		src := activeWallet("src", "10000")
		src.Limits = Limits{DailyLimit: Limit(d("100"))}
		dst := activeWallet("dst", "0")
		sum := decimal.Zero
		for _, amt := range batch {
			res, err := Settle(TransferSpec{BaseAmount: d(amt), Fee: FeeSpec{FeeFixed, d("1")}}, src, dst)
			if err != nil {
				t.Fatalf("batch %v: %v", batch, err)
			}
			src.Balance = src.Balance.Add(res.SourceDelta)
			src.Limits = src.Limits.ConsumeLimits(res.LimitConsumption)
			sum = sum.Add(d(amt))
		}
		if !src.Limits.DailyUsed.Equal(sum) {
			t.Fatalf("batch %v: daily used %s, want %s", batch, src.Limits.DailyUsed, sum)
		}
		if _, err := Settle(TransferSpec{BaseAmount: d("0.01")}, src, dst); !errors.Is(err, ErrDailyLimitExceeded) {
			t.Fatalf("batch %v: got %v, want ErrDailyLimitExceeded", batch, err)
		}
	}
}
