package storage

import (
	"github.com/shopspring/decimal"
)

type Account struct {
	Kind                string
	ID                  string
	Name                string
	Balance             decimal.Decimal
	Status              string
	CreditLimit         decimal.Decimal
	DailyLimit          decimal.NullDecimal
	DailyUsed           decimal.Decimal
	MonthlyLimit        decimal.NullDecimal
	MonthlyUsed         decimal.Decimal
	PerTransactionLimit decimal.NullDecimal
	Version             int64
	CreatedAt           string
	UpdatedAt           string
}

type Transfer struct {
	AttemptID        string
	SourceKind       string
	SourceID         string
	DestinationKind  string
	DestinationID    string
	SourceDelta      decimal.Decimal
	DestinationDelta decimal.Decimal
	Fee              decimal.Decimal
	RealizedProfit   decimal.Decimal
	LimitConsumption decimal.Decimal
	Mode             string
	Memo             string
	CreatedAt        string
}

type Circle struct {
	ID               string
	Name             string
	PoolAccountID    string
	MonthlyAmount    decimal.Decimal
	MemberCount      int64
	DurationRounds   int64
	StartDate        string
	CurrentRound     int64
	MyTurnNumber     int64
	HasWithdrawn     bool
	TotalContributed decimal.Decimal
	TotalWithdrawn   decimal.Decimal
	Status           string
	Version          int64
	CreatedAt        string
	UpdatedAt        string
}
