// This file builds JSON response bodies. Amounts are rendered with
// core.FormatAmount so clients always see two fraction digits.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/services"
)

type limitsResponse struct {
	Daily          *string `json:"daily,omitempty"`
	DailyUsed      string  `json:"daily_used"`
	Monthly        *string `json:"monthly,omitempty"`
	MonthlyUsed    string  `json:"monthly_used"`
	PerTransaction *string `json:"per_transaction,omitempty"`
}

type accountResponse struct {
	Kind        string          `json:"kind"`
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Balance     string          `json:"balance"`
	Available   string          `json:"available"`
	Status      string          `json:"status"`
	CreditLimit *string         `json:"credit_limit,omitempty"`
	Limits      *limitsResponse `json:"limits,omitempty"`
	Version     int64           `json:"version"`
}

type resultResponse struct {
	SourceDelta      string `json:"source_delta"`
	DestinationDelta string `json:"destination_delta"`
	Fee              string `json:"fee"`
	RealizedProfit   string `json:"realized_profit"`
	LimitConsumption string `json:"limit_consumption"`
	Mode             string `json:"mode"`
	Shortfall        bool   `json:"shortfall,omitempty"`
}

type transferResponse struct {
	AttemptID string          `json:"attempt_id"`
	Replayed  bool            `json:"replayed,omitempty"`
	Attempts  int             `json:"attempts,omitempty"`
	Result    *resultResponse `json:"result,omitempty"`
}

type transferRecordResponse struct {
	AttemptID        string    `json:"attempt_id"`
	Source           string    `json:"source"`
	Destination      string    `json:"destination"`
	SourceDelta      string    `json:"source_delta"`
	DestinationDelta string    `json:"destination_delta"`
	Fee              string    `json:"fee"`
	RealizedProfit   string    `json:"realized_profit"`
	Mode             string    `json:"mode"`
	Memo             string    `json:"memo,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type circleResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PoolAccountID     string `json:"pool_account_id"`
	MonthlyAmount     string `json:"monthly_amount"`
	MemberCount       int    `json:"member_count"`
	DurationRounds    int    `json:"duration_rounds"`
	StartDate         string `json:"start_date"`
	CurrentRound      int    `json:"current_round"`
	MyTurnNumber      int    `json:"my_turn_number,omitempty"`
	RoundsUntilPayout int    `json:"rounds_until_payout"`
	PayoutAmount      string `json:"payout_amount"`
	HasWithdrawn      bool   `json:"has_withdrawn"`
	TotalContributed  string `json:"total_contributed"`
	TotalWithdrawn    string `json:"total_withdrawn"`
	Status            string `json:"status"`
	Version           int64  `json:"version"`
}

type circleMovementResponse struct {
	AttemptID string          `json:"attempt_id"`
	Amount    string          `json:"amount,omitempty"`
	Replayed  bool            `json:"replayed,omitempty"`
	Result    *resultResponse `json:"result,omitempty"`
	Circle    circleResponse  `json:"circle"`
}

type errorBody struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Message string `json:"message"`
	// RoundsRemaining is set for turn_not_yet_due.
	RoundsRemaining int `json:"rounds_remaining,omitempty"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func optionalAmount(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := core.FormatAmount(d.Decimal)
	return &s
}

func newAccountResponse(a core.AccountRef) accountResponse {
	resp := accountResponse{
		Kind:      string(a.Kind),
		ID:        a.ID,
		Name:      a.Name,
		Balance:   core.FormatAmount(a.Balance),
		Available: core.FormatAmount(a.Available()),
		Status:    string(a.Status),
		Version:   a.Version,
	}
	if a.Kind == core.KindCreditLine {
		resp.CreditLimit = optionalAmount(core.Limit(a.CreditLimit))
	}
	if a.HasLimits() {
		resp.Limits = &limitsResponse{
			Daily:          optionalAmount(a.Limits.DailyLimit),
			DailyUsed:      core.FormatAmount(a.Limits.DailyUsed),
			Monthly:        optionalAmount(a.Limits.MonthlyLimit),
			MonthlyUsed:    core.FormatAmount(a.Limits.MonthlyUsed),
			PerTransaction: optionalAmount(a.Limits.PerTransactionLimit),
		}
	}
	return resp
}

func newResultResponse(r core.TransferResult) *resultResponse {
	return &resultResponse{
		SourceDelta:      core.FormatAmount(r.SourceDelta),
		DestinationDelta: core.FormatAmount(r.DestinationDelta),
		Fee:              core.FormatAmount(r.Fee),
		RealizedProfit:   core.FormatAmount(r.RealizedProfit),
		LimitConsumption: core.FormatAmount(r.LimitConsumption),
		Mode:             string(r.Mode),
		Shortfall:        r.IsShortfall(),
	}
}

func newTransferResponse(rec services.TransferReceipt) transferResponse {
	resp := transferResponse{
		AttemptID: rec.AttemptID,
		Replayed:  rec.Replayed,
		Attempts:  rec.Attempts,
	}
	if !rec.Replayed {
		resp.Result = newResultResponse(rec.Result)
	}
	return resp
}

func newTransferRecordResponse(rec ledger.TransferRecord) transferRecordResponse {
	return transferRecordResponse{
		AttemptID:        rec.AttemptID,
		Source:           string(rec.SourceKind) + "/" + rec.SourceID,
		Destination:      string(rec.DestinationKind) + "/" + rec.DestinationID,
		SourceDelta:      core.FormatAmount(rec.SourceDelta),
		DestinationDelta: core.FormatAmount(rec.DestinationDelta),
		Fee:              core.FormatAmount(rec.Fee),
		RealizedProfit:   core.FormatAmount(rec.RealizedProfit),
		Mode:             string(rec.Mode),
		Memo:             rec.Memo,
		CreatedAt:        rec.CreatedAt,
	}
}

func newCircleResponse(c core.Circle) circleResponse {
	return circleResponse{
		ID:                c.ID,
		Name:              c.Name,
		PoolAccountID:     c.PoolAccountID,
		MonthlyAmount:     core.FormatAmount(c.MonthlyAmount),
		MemberCount:       c.MemberCount,
		DurationRounds:    c.DurationRounds,
		StartDate:         c.StartDate.String(),
		CurrentRound:      c.CurrentRound,
		MyTurnNumber:      c.MyTurnNumber,
		RoundsUntilPayout: c.RoundsUntilPayout(),
		PayoutAmount:      core.FormatAmount(c.PayoutAmount()),
		HasWithdrawn:      c.HasWithdrawn,
		TotalContributed:  core.FormatAmount(c.TotalContributed),
		TotalWithdrawn:    core.FormatAmount(c.TotalWithdrawn),
		Status:            string(c.Status),
		Version:           c.Version,
	}
}

func newCircleMovementResponse(m services.CircleMovement) circleMovementResponse {
	resp := circleMovementResponse{
		AttemptID: m.AttemptID,
		Replayed:  m.Replayed,
		Circle:    newCircleResponse(m.Circle),
	}
	if !m.Replayed {
		resp.Amount = core.FormatAmount(m.Amount)
		resp.Result = newResultResponse(m.Result)
	}
	return resp
}

// statusFor maps an engine error class to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch core.Classify(err) {
	case core.ClassValidation:
		return http.StatusUnprocessableEntity
	case core.ClassPolicy, core.ClassConflict:
		return http.StatusConflict
	case core.ClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newErrorResponse(err error, requestID string) (int, errorResponse) {
	status := statusFor(err)
	body := errorBody{
		Code:    core.Code(err),
		Class:   string(core.Classify(err)),
		Message: err.Error(),
	}
	switch {
	case status == http.StatusBadRequest:
		body.Code, body.Class = "bad_request", string(core.ClassValidation)
	case status == http.StatusInternalServerError:
		// Do not leak internals.
		body.Message = "internal error"
	}
	var due *core.TurnNotYetDueError
	if errors.As(err, &due) {
		body.RoundsRemaining = due.RoundsRemaining
	}
	return status, errorResponse{Error: body, RequestID: requestID}
}

// encodeJSON renders v; it never fails for the response types above.
func encodeJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		return []byte(`{"error":{"code":"internal_error","class":"internal","message":"internal error"}}`)
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeRaw(w, status, encodeJSON(v))
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}
