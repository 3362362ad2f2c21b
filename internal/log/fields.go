package log

import "conti/internal/ledger"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorCode   = "error_code"
	FieldOperation   = "operation"
	FieldAttemptID   = "attempt_id"
	FieldSource      = "source"
	FieldDestination = "destination"
	FieldSourceDelta = "source_delta"
	FieldDestDelta   = "destination_delta"
	FieldFee         = "fee"
	FieldMode        = "mode"
	FieldCircleID    = "circle_id"
	FieldJournalRef  = "journal_ref"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentCircle  = "circle"
	ComponentLimits  = "limits"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentJournal = "journal"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpList     = "list"
	OpQuote    = "quote"
	OpTransfer = "transfer"
	OpPay      = "pay"
	OpWithdraw = "withdraw"
	OpAppend   = "append"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransfer adds the fields identifying a committed transfer.
func (f LogFields) WithTransfer(rec ledger.TransferRecord) LogFields {
	f[FieldAttemptID] = rec.AttemptID
	f[FieldSource] = string(rec.SourceKind) + "/" + rec.SourceID
	f[FieldDestination] = string(rec.DestinationKind) + "/" + rec.DestinationID
	f[FieldSourceDelta] = rec.SourceDelta.String()
	f[FieldDestDelta] = rec.DestinationDelta.String()
	f[FieldFee] = rec.Fee.String()
	f[FieldMode] = string(rec.Mode)
	return f
}

func (f LogFields) WithHTTPRequest(method, path, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
