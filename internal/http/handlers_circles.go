package http

import (
	"context"
	"net/http"
	"strings"

	"conti/internal/services"
)

func (s *Server) handleCreateCircle(w http.ResponseWriter, r *http.Request) {
	var body createCircleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	params, err := body.params()
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.circles.Create(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCircleResponse(c))
}

func (s *Server) handleGetCircle(w http.ResponseWriter, r *http.Request) {
	c, err := s.circles.Get(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCircleResponse(c))
}

func (s *Server) handleAssignTurn(w http.ResponseWriter, r *http.Request) {
	var body assignTurnBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.circles.AssignTurn(r.Context(), strings.TrimSpace(r.PathValue("id")), body.Turn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCircleResponse(c))
}

func (s *Server) handleCirclePayment(w http.ResponseWriter, r *http.Request) {
	s.handleCircleMovement(w, r, s.circles.Pay)
}

func (s *Server) handleCirclePayout(w http.ResponseWriter, r *http.Request) {
	s.handleCircleMovement(w, r, s.circles.Withdraw)
}

type circleOp func(context.Context, services.CircleMovementRequest) (services.CircleMovement, error)

// handleCircleMovement serves contributions and payouts. As with transfers,
// the Idempotency-Key header is the attempt id.
func (s *Server) handleCircleMovement(w http.ResponseWriter, r *http.Request, op circleOp) {
	var body circleMovementBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	key, _ := idempotencyKey(r)
	req, err := body.request(strings.TrimSpace(r.PathValue("id")), key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := op(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if m.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, newCircleMovementResponse(m))
}
