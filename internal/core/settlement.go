package core

import "github.com/shopspring/decimal"

const (
	SettleInstant  SettlementMode = "instant"
	SettleDeferred SettlementMode = "deferred"
)

type (
	SettlementMode string

	// TransferSpec is a proposed single-hop movement of value.
	TransferSpec struct {
		BaseAmount decimal.Decimal
		Fee        FeeSpec
		FeeBearer  FeeBearer
		// Commission is credited to the destination on top of the principal.
		Commission decimal.Decimal
		// Mode defaults to instant when empty.
		Mode SettlementMode
		// ActualCollected is required for instant settlement into a receivable.
		ActualCollected decimal.NullDecimal
	}

	// TransferResult holds the balance deltas a caller must apply atomically.
	TransferResult struct {
		SourceDelta      decimal.Decimal
		DestinationDelta decimal.Decimal
		Fee              decimal.Decimal
		RealizedProfit   decimal.Decimal
		LimitConsumption decimal.Decimal
		Mode             SettlementMode
	}
)

func (m SettlementMode) normalize() (SettlementMode, error) {
	switch m {
	case "", SettleInstant:
		return SettleInstant, nil
	case SettleDeferred:
		return SettleDeferred, nil
	default:
		return "", ErrInvalidSettlementMode
	}
}

// Settle validates a transfer between source and destination and computes
// its outcome. It is pure: it never mutates its inputs and the same inputs
// always produce the same result.
//
// A negative RealizedProfit means less was collected than owed; it is a
// shortfall the caller has to surface, not a rejection.
func Settle(spec TransferSpec, source, destination AccountRef) (TransferResult, error) {
	if source.SameAs(destination) {
		return TransferResult{}, ErrSameAccount
	}
	if source.IsPool() {
		return TransferResult{}, ErrPoolAccount
	}
	if !spec.BaseAmount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	mode, err := spec.Mode.normalize()
	if err != nil {
		return TransferResult{}, err
	}

	fees, err := ApplyFee(spec.BaseAmount, spec.Fee, spec.FeeBearer, spec.Commission)
	if err != nil {
		return TransferResult{}, err
	}

	if err := CheckLimits(source, spec.BaseAmount, fees.SourceDebit); err != nil {
		return TransferResult{}, err
	}
	if err := CheckDestination(destination); err != nil {
		return TransferResult{}, err
	}

	profit := decimal.Zero
	if destination.IsReceivable() && mode == SettleInstant {
		collected := spec.ActualCollected
		if !collected.Valid || !collected.Decimal.IsPositive() {
			return TransferResult{}, ErrMissingCollectionAmount
		}
		profit = collected.Decimal.Sub(fees.SourceDebit)
	}

	return TransferResult{
		SourceDelta:      fees.SourceDebit.Neg(),
		DestinationDelta: fees.DestinationCredit,
		Fee:              fees.Fee,
		RealizedProfit:   profit,
		LimitConsumption: spec.BaseAmount,
		Mode:             mode,
	}, nil
}

// SettlePayout computes a circle payout from pool to member. The pool is
// notional: it is not balance- or limit-checked and may run negative while
// earlier turns are collected. Payouts carry no fee.
func SettlePayout(amount decimal.Decimal, pool, member AccountRef) (TransferResult, error) {
	if !pool.IsPool() || member.IsPool() {
		return TransferResult{}, ErrPoolAccount
	}
	if !amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	if !pool.IsActive() {
		return TransferResult{}, ErrAccountInactive
	}
	if err := CheckDestination(member); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{
		SourceDelta:      amount.Neg(),
		DestinationDelta: amount,
		Fee:              decimal.Zero,
		RealizedProfit:   decimal.Zero,
		LimitConsumption: decimal.Zero,
		Mode:             SettleInstant,
	}, nil
}

// IsShortfall reports whether an instant collection brought in less than owed.
func (r TransferResult) IsShortfall() bool {
	return r.RealizedProfit.IsNegative()
}
