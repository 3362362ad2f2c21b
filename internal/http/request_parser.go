// Package http exposes the ledger as a JSON API.
//
// This file decodes request bodies into engine types. Amounts travel as
// decimal strings and are parsed with core.ParseAmount, never as floats.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/services"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input that never reached the engine.
var errBadRequest = errors.New("bad request")

type addressBody struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type feeBody struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type limitsBody struct {
	Daily          string `json:"daily,omitempty"`
	Monthly        string `json:"monthly,omitempty"`
	PerTransaction string `json:"per_transaction,omitempty"`
}

type createAccountBody struct {
	Kind        string     `json:"kind"`
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Balance     string     `json:"balance"`
	Status      string     `json:"status"`
	CreditLimit string     `json:"credit_limit"`
	Limits      limitsBody `json:"limits"`
}

type transferBody struct {
	Source          addressBody `json:"source"`
	Destination     addressBody `json:"destination"`
	Amount          string      `json:"amount"`
	Fee             *feeBody    `json:"fee,omitempty"`
	FeeBearer       string      `json:"fee_bearer"`
	Commission      string      `json:"commission"`
	Mode            string      `json:"mode"`
	ActualCollected string      `json:"actual_collected"`
	Memo            string      `json:"memo"`
}

type createCircleBody struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PoolAccountID  string `json:"pool_account_id"`
	MonthlyAmount  string `json:"monthly_amount"`
	MemberCount    int    `json:"member_count"`
	DurationRounds int    `json:"duration_rounds"`
	StartDate      string `json:"start_date"`
	MyTurnNumber   int    `json:"my_turn_number"`
	Pending        bool   `json:"pending"`
}

type assignTurnBody struct {
	Turn int `json:"turn"`
}

type circleMovementBody struct {
	Member    addressBody `json:"member"`
	Fee       *feeBody    `json:"fee,omitempty"`
	FeeBearer string      `json:"fee_bearer"`
}

// decodeJSON reads a single JSON object, rejecting unknown fields and
// trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}

func (a addressBody) address() (services.AccountAddress, error) {
	kind := core.AccountKind(strings.TrimSpace(a.Kind))
	id := sanitizeInput(a.ID)
	if !kind.IsValid() || id == "" {
		return services.AccountAddress{}, fmt.Errorf("%w: account kind %q id %q", errBadRequest, a.Kind, a.ID)
	}
	return services.AccountAddress{Kind: kind, ID: id}, nil
}

// spec parses a fee. Fee values may be zero or, for fixed fees, negative
// (clamped by the engine), so they are parsed as signed amounts.
func (f *feeBody) spec() (core.FeeSpec, error) {
	if f == nil || strings.TrimSpace(f.Type) == "" {
		return core.NoFee, nil
	}
	v, err := core.ParseSignedAmount(f.Value)
	if err != nil {
		return core.FeeSpec{}, fmt.Errorf("fee value: %w", core.ErrInvalidFeeConfiguration)
	}
	return core.FeeSpec{Type: core.FeeType(strings.TrimSpace(f.Type)), Value: v}, nil
}

// parseOptionalAmount returns zero for an empty string.
func parseOptionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return core.ParseSignedAmount(s)
}

func parseOptionalLimit(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := core.ParseSignedAmount(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return core.Limit(d), nil
}

func (b transferBody) request(attemptID string) (services.TransferRequest, error) {
	src, err := b.Source.address()
	if err != nil {
		return services.TransferRequest{}, err
	}
	dst, err := b.Destination.address()
	if err != nil {
		return services.TransferRequest{}, err
	}
	amount, err := core.ParseAmount(b.Amount)
	if err != nil {
		return services.TransferRequest{}, err
	}
	fee, err := b.Fee.spec()
	if err != nil {
		return services.TransferRequest{}, err
	}
	commission, err := parseOptionalAmount(b.Commission)
	if err != nil {
		return services.TransferRequest{}, err
	}

	spec := core.TransferSpec{
		BaseAmount: amount,
		Fee:        fee,
		FeeBearer:  core.FeeBearer(strings.TrimSpace(b.FeeBearer)),
		Commission: commission,
		Mode:       core.SettlementMode(strings.TrimSpace(b.Mode)),
	}
	if strings.TrimSpace(b.ActualCollected) != "" {
		collected, err := core.ParseSignedAmount(b.ActualCollected)
		if err != nil {
			return services.TransferRequest{}, err
		}
		spec.ActualCollected = decimal.NullDecimal{Decimal: collected, Valid: true}
	}

	return services.TransferRequest{
		AttemptID:   attemptID,
		Source:      src,
		Destination: dst,
		Spec:        spec,
		Memo:        sanitizeInput(b.Memo),
	}, nil
}

// account builds the record for POST /accounts. Pool accounts are opened by
// their circle, never directly.
func (b createAccountBody) account() (core.AccountRef, error) {
	if core.AccountKind(strings.TrimSpace(b.Kind)) == core.KindPooledCircle {
		return core.AccountRef{}, fmt.Errorf("open account: %w", core.ErrPoolAccount)
	}
	balance, err := parseOptionalAmount(b.Balance)
	if err != nil {
		return core.AccountRef{}, err
	}
	creditLimit, err := parseOptionalAmount(b.CreditLimit)
	if err != nil {
		return core.AccountRef{}, err
	}
	daily, err := parseOptionalLimit(b.Limits.Daily)
	if err != nil {
		return core.AccountRef{}, err
	}
	monthly, err := parseOptionalLimit(b.Limits.Monthly)
	if err != nil {
		return core.AccountRef{}, err
	}
	perTx, err := parseOptionalLimit(b.Limits.PerTransaction)
	if err != nil {
		return core.AccountRef{}, err
	}

	status := core.AccountStatus(strings.TrimSpace(b.Status))
	if status == "" {
		status = core.StatusActive
	}

	a := core.AccountRef{
		Kind:        core.AccountKind(strings.TrimSpace(b.Kind)),
		ID:          sanitizeInput(b.ID),
		Name:        sanitizeInput(b.Name),
		Balance:     balance,
		Status:      status,
		CreditLimit: creditLimit,
		Limits: core.Limits{
			DailyLimit:          daily,
			MonthlyLimit:        monthly,
			PerTransactionLimit: perTx,
		},
	}
	return a, a.Validate()
}

func (b createCircleBody) params() (core.CircleParams, error) {
	amount, err := core.ParseAmount(b.MonthlyAmount)
	if err != nil {
		return core.CircleParams{}, err
	}
	start, err := core.ParseDate(strings.TrimSpace(b.StartDate))
	if err != nil {
		return core.CircleParams{}, fmt.Errorf("start date: %w", core.ErrInvalidCircle)
	}
	return core.CircleParams{
		ID:             sanitizeInput(b.ID),
		Name:           sanitizeInput(b.Name),
		PoolAccountID:  sanitizeInput(b.PoolAccountID),
		MonthlyAmount:  amount,
		MemberCount:    b.MemberCount,
		DurationRounds: b.DurationRounds,
		StartDate:      start,
		MyTurnNumber:   b.MyTurnNumber,
		Pending:        b.Pending,
	}, nil
}

func (b circleMovementBody) request(circleID, attemptID string) (services.CircleMovementRequest, error) {
	member, err := b.Member.address()
	if err != nil {
		return services.CircleMovementRequest{}, err
	}
	fee, err := b.Fee.spec()
	if err != nil {
		return services.CircleMovementRequest{}, err
	}
	return services.CircleMovementRequest{
		CircleID:  circleID,
		Member:    member,
		AttemptID: attemptID,
		Fee:       fee,
		FeeBearer: core.FeeBearer(strings.TrimSpace(b.FeeBearer)),
	}, nil
}

// parseLimit reads ?limit=, clamped to [1, 500]; default 50.
func parseLimit(r *http.Request) int {
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return min(max(limit, 1), 500)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
