package http

import (
	"net/http"
)

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var body transferBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.request("")
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.ledger.Quote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(result))
}

// handleTransfer commits a transfer. The Idempotency-Key header, when sent,
// is the transfer attempt id, so a retried request is applied at most once.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var body transferBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	key, _ := idempotencyKey(r)
	req, err := body.request(key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	receipt, err := s.ledger.Transfer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, newTransferResponse(receipt))
}
