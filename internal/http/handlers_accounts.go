package http

import (
	"net/http"
	"sort"

	"conti/internal/core"
	clog "conti/internal/log"
	"conti/internal/services"
)

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var body createAccountBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := body.account()
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.accounts.CreateAccount(r.Context(), acc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	clog.FromContext(r.Context()).InfoContext(r.Context(), "Account opened",
		clog.FieldOperation, clog.OpCreate,
		"account", services.AccountAddress{Kind: created.Kind, ID: created.ID}.String())
	writeJSON(w, http.StatusCreated, newAccountResponse(created))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	kind := core.AccountKind(r.URL.Query().Get("kind"))
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		if kind != "" && a.Kind != kind {
			continue
		}
		out = append(out, newAccountResponse(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.accounts.GetAccount(r.Context(), addr.Kind, addr.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(acc))
}

func (s *Server) handleAccountTransfers(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.ledger.History(r.Context(), addr, parseLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transferRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newTransferRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": out})
}

func pathAddress(r *http.Request) (services.AccountAddress, error) {
	return addressBody{Kind: r.PathValue("kind"), ID: r.PathValue("id")}.address()
}
