package core

import "github.com/shopspring/decimal"

// CheckLimits approves a prospective debit against the source account.
// principal is what counts against spending limits; debitTotal is what
// actually leaves the account (principal plus any fee the sender bears).
//
// Checks run in a fixed order and stop at the first failure: status,
// available balance, per-transaction, daily, monthly.
func CheckLimits(account AccountRef, principal, debitTotal decimal.Decimal) error {
	if !account.IsActive() {
		return ErrAccountInactive
	}
	if account.Available().LessThan(debitTotal) {
		return ErrInsufficientBalance
	}

	l := account.Limits
	if l.PerTransactionLimit.Valid && principal.GreaterThan(l.PerTransactionLimit.Decimal) {
		return ErrTransactionLimitExceeded
	}
	if l.DailyLimit.Valid && l.DailyUsed.Add(principal).GreaterThan(l.DailyLimit.Decimal) {
		return ErrDailyLimitExceeded
	}
	if l.MonthlyLimit.Valid && l.MonthlyUsed.Add(principal).GreaterThan(l.MonthlyLimit.Decimal) {
		return ErrMonthlyLimitExceeded
	}
	return nil
}

// CheckDestination only requires the receiving account to be active;
// destinations are never limit-checked.
func CheckDestination(account AccountRef) error {
	if !account.IsActive() {
		return ErrAccountInactive
	}
	return nil
}

// ConsumeLimits returns the limits after a successful debit of principal.
func (l Limits) ConsumeLimits(principal decimal.Decimal) Limits {
	l.DailyUsed = l.DailyUsed.Add(principal)
	l.MonthlyUsed = l.MonthlyUsed.Add(principal)
	return l
}

// Remaining reports how much principal may still be debited today and this
// month. An invalid result means that dimension is unlimited.
func (l Limits) Remaining() (daily, monthly decimal.NullDecimal) {
	if l.DailyLimit.Valid {
		daily = Limit(decimal.Max(decimal.Zero, l.DailyLimit.Decimal.Sub(l.DailyUsed)))
	}
	if l.MonthlyLimit.Valid {
		monthly = Limit(decimal.Max(decimal.Zero, l.MonthlyLimit.Decimal.Sub(l.MonthlyUsed)))
	}
	return daily, monthly
}
