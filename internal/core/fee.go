package core

import "github.com/shopspring/decimal"

const (
	FeeFixed      FeeType = "fixed"
	FeePercentage FeeType = "percentage"
)

const (
	BearerSender   FeeBearer = "sender"
	BearerReceiver FeeBearer = "receiver"
)

type (
	FeeType   string
	FeeBearer string

	// FeeSpec describes how a fee is derived from the principal. A percentage
	// Value is a ratio in [0, 1]. The zero FeeSpec means no fee.
	FeeSpec struct {
		Type  FeeType
		Value decimal.Decimal
	}

	// FeeBreakdown is the outcome of applying a fee to a principal.
	FeeBreakdown struct {
		Fee               decimal.Decimal
		SourceDebit       decimal.Decimal
		DestinationCredit decimal.Decimal
	}
)

// NoFee is the zero fee specification.
var NoFee = FeeSpec{}

// ComputeFee returns the fee owed on baseAmount. Fixed fees are clamped to be
// non-negative; percentage fees are computed in full precision and rounded
// half-up only here, at the final step.
func ComputeFee(baseAmount decimal.Decimal, spec FeeSpec) (decimal.Decimal, error) {
	switch spec.Type {
	case "":
		return decimal.Zero, nil
	case FeeFixed:
		if spec.Value.IsNegative() {
			return decimal.Zero, nil
		}
		return spec.Value, nil
	case FeePercentage:
		if spec.Value.IsNegative() || spec.Value.GreaterThan(decimal.NewFromInt(1)) {
			return decimal.Zero, ErrInvalidFeeConfiguration
		}
		return RoundHalfUp(baseAmount.Mul(spec.Value)), nil
	default:
		return decimal.Zero, ErrInvalidFeeConfiguration
	}
}

// ApplyFee computes the fee and splits it according to who bears it.
// Commission is a bonus credited to the destination on top of everything
// else; it is never debited from the source and never fee-reduced. An empty
// bearer is treated as sender.
func ApplyFee(baseAmount decimal.Decimal, spec FeeSpec, bearer FeeBearer, commission decimal.Decimal) (FeeBreakdown, error) {
	if commission.IsNegative() {
		return FeeBreakdown{}, ErrInvalidAmount
	}
	fee, err := ComputeFee(baseAmount, spec)
	if err != nil {
		return FeeBreakdown{}, err
	}

	var out FeeBreakdown
	out.Fee = fee
	switch bearer {
	case BearerSender, "":
		out.SourceDebit = baseAmount.Add(fee)
		out.DestinationCredit = baseAmount
	case BearerReceiver:
		out.SourceDebit = baseAmount
		out.DestinationCredit = baseAmount.Sub(fee)
		if out.DestinationCredit.IsNegative() {
			return FeeBreakdown{}, ErrInvalidFeeConfiguration
		}
	default:
		return FeeBreakdown{}, ErrInvalidFeeConfiguration
	}
	out.DestinationCredit = out.DestinationCredit.Add(commission)
	return out, nil
}
