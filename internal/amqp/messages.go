package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

// RoutingTransferSettled is the routing key of committed transfer events.
const RoutingTransferSettled = "transfer.settled"

// TransferSettledMessage announces a committed transfer. It carries the whole
// record so consumers never read back from the ledger.
type TransferSettledMessage struct {
	AttemptID        string          `json:"attempt_id"`
	SourceKind       string          `json:"source_kind"`
	SourceID         string          `json:"source_id"`
	DestinationKind  string          `json:"destination_kind"`
	DestinationID    string          `json:"destination_id"`
	SourceDelta      decimal.Decimal `json:"source_delta"`
	DestinationDelta decimal.Decimal `json:"destination_delta"`
	Fee              decimal.Decimal `json:"fee"`
	RealizedProfit   decimal.Decimal `json:"realized_profit"`
	Mode             string          `json:"mode"`
	Memo             string          `json:"memo,omitempty"`
	CommittedAt      time.Time       `json:"committed_at"`
	Timestamp        time.Time       `json:"timestamp"`
}

func NewTransferSettledMessage(rec ledger.TransferRecord) *TransferSettledMessage {
	return &TransferSettledMessage{
		AttemptID:        rec.AttemptID,
		SourceKind:       string(rec.SourceKind),
		SourceID:         rec.SourceID,
		DestinationKind:  string(rec.DestinationKind),
		DestinationID:    rec.DestinationID,
		SourceDelta:      rec.SourceDelta,
		DestinationDelta: rec.DestinationDelta,
		Fee:              rec.Fee,
		RealizedProfit:   rec.RealizedProfit,
		Mode:             string(rec.Mode),
		Memo:             rec.Memo,
		CommittedAt:      rec.CreatedAt,
		Timestamp:        time.Now(),
	}
}

// Record converts the message back into a ledger record.
func (m *TransferSettledMessage) Record() ledger.TransferRecord {
	return ledger.TransferRecord{
		AttemptID:        m.AttemptID,
		SourceKind:       core.AccountKind(m.SourceKind),
		SourceID:         m.SourceID,
		DestinationKind:  core.AccountKind(m.DestinationKind),
		DestinationID:    m.DestinationID,
		SourceDelta:      m.SourceDelta,
		DestinationDelta: m.DestinationDelta,
		Fee:              m.Fee,
		RealizedProfit:   m.RealizedProfit,
		Mode:             core.SettlementMode(m.Mode),
		Memo:             m.Memo,
		CreatedAt:        m.CommittedAt,
	}
}

func (m *TransferSettledMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransferSettledMessageFromJSON(data []byte) (*TransferSettledMessage, error) {
	var msg TransferSettledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
