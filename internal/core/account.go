package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	KindBank                  AccountKind = "bank"
	KindVault                 AccountKind = "vault"
	KindWallet                AccountKind = "wallet"
	KindPrepaidCard           AccountKind = "prepaid-card"
	KindCreditLine            AccountKind = "credit-line"
	KindInvestmentCertificate AccountKind = "investment-certificate"
	KindPooledCircle          AccountKind = "pooled-circle"
	KindReceivable            AccountKind = "receivable"
)

const (
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusBlocked   AccountStatus = "blocked"
	StatusCancelled AccountStatus = "cancelled"
	StatusExpired   AccountStatus = "expired"
)

type (
	AccountKind   string
	AccountStatus string

	// Limits bound the spending power of an account. An invalid (null) limit
	// means unlimited for that dimension.
	Limits struct {
		DailyLimit          decimal.NullDecimal
		DailyUsed           decimal.Decimal
		MonthlyLimit        decimal.NullDecimal
		MonthlyUsed         decimal.Decimal
		PerTransactionLimit decimal.NullDecimal
	}

	// AccountRef is the shape the engine needs from any money-holding entity.
	AccountRef struct {
		Kind    AccountKind
		ID      string
		Name    string
		Balance decimal.Decimal
		Status  AccountStatus
		Limits  Limits
		// CreditLimit is only meaningful for credit-line accounts.
		CreditLimit decimal.Decimal
		// Version is the optimistic concurrency token of the stored record.
		Version int64
	}
)

var accountKinds = []AccountKind{
	KindBank, KindVault, KindWallet, KindPrepaidCard, KindCreditLine,
	KindInvestmentCertificate, KindPooledCircle, KindReceivable,
}

// AccountKinds lists every supported kind.
func AccountKinds() []AccountKind {
	return append([]AccountKind(nil), accountKinds...)
}

func (k AccountKind) IsValid() bool {
	for _, v := range accountKinds {
		if k == v {
			return true
		}
	}
	return false
}

func (s AccountStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusBlocked, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// SameAs reports whether two refs address the same stored record.
func (a AccountRef) SameAs(b AccountRef) bool {
	return a.Kind == b.Kind && a.ID == b.ID
}

func (a AccountRef) IsActive() bool {
	return a.Status == StatusActive
}

// IsPool marks the notional account a savings circle collects into. It is
// debited only by a circle payout.
func (a AccountRef) IsPool() bool {
	return a.Kind == KindPooledCircle
}

func (a AccountRef) HasLimits() bool {
	l := a.Limits
	return l.DailyLimit.Valid || l.MonthlyLimit.Valid || l.PerTransactionLimit.Valid
}

// IsReceivable marks a counterpart that owes money rather than holding it.
func (a AccountRef) IsReceivable() bool {
	return a.Kind == KindReceivable
}

// Available returns the amount that may be debited. Credit lines run negative
// up to their limit, so their availability is limit minus what is used.
func (a AccountRef) Available() decimal.Decimal {
	if a.Kind == KindCreditLine {
		return a.CreditLimit.Add(a.Balance)
	}
	return a.Balance
}

func (a AccountRef) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrInvalidAccount
	}
	if !a.Kind.IsValid() || !a.Status.IsValid() {
		return ErrInvalidAccount
	}
	if a.Kind == KindCreditLine && a.CreditLimit.IsNegative() {
		return ErrInvalidAccount
	}
	l := a.Limits
	for _, v := range []decimal.NullDecimal{l.DailyLimit, l.MonthlyLimit, l.PerTransactionLimit} {
		if v.Valid && v.Decimal.IsNegative() {
			return ErrInvalidAccount
		}
	}
	if l.DailyUsed.IsNegative() || l.MonthlyUsed.IsNegative() {
		return ErrInvalidAccount
	}
	return nil
}

// Limit is a convenience constructor for a set limit value.
func Limit(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
