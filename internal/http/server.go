package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"conti/internal/cache"
	"conti/internal/ledger"
	clog "conti/internal/log"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/services"
)

// Dependencies are the collaborators the API serves from.
type Dependencies struct {
	Accounts ledger.AccountStore
	Ledger   *services.LedgerService
	Circles  *services.CircleService
	// Ready reports whether the backing store is usable. Optional.
	Ready  func(ctx context.Context) error
	Logger *clog.Logger

	IdempotencyTTL  time.Duration
	IdempotencySize int
	RateLimit       ratelimit.Config
}

type Server struct {
	http.Server
	accounts ledger.AccountStore
	ledger   *services.LedgerService
	circles  *services.CircleService
	ready    func(ctx context.Context) error
	logger   *clog.Logger

	replay  *replayCache
	limiter *ratelimit.Limiter

	stopJanitor  context.CancelFunc
	janitor      *cache.Janitor
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = clog.New(clog.DefaultConfig())
	}
	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = 24 * time.Hour
	}
	if deps.IdempotencySize <= 0 {
		deps.IdempotencySize = 10000
	}

	s := &Server{
		accounts: deps.Accounts,
		ledger:   deps.Ledger,
		circles:  deps.Circles,
		ready:    deps.Ready,
		logger:   deps.Logger.WithComponent(clog.ComponentHTTP),
		replay:   newReplayCache(deps.IdempotencySize, deps.IdempotencyTTL),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("GET /accounts/{kind}/{id}", s.handleGetAccount)
	mux.HandleFunc("GET /accounts/{kind}/{id}/transfers", s.handleAccountTransfers)

	mux.HandleFunc("POST /transfers/quote", s.handleQuote)
	mux.HandleFunc("POST /transfers", s.replay.wrap(s.handleTransfer))

	mux.HandleFunc("POST /circles", s.handleCreateCircle)
	mux.HandleFunc("GET /circles/{id}", s.handleGetCircle)
	mux.HandleFunc("POST /circles/{id}/turn", s.handleAssignTurn)
	mux.HandleFunc("POST /circles/{id}/payments", s.replay.wrap(s.handleCirclePayment))
	mux.HandleFunc("POST /circles/{id}/payout", s.replay.wrap(s.handleCirclePayout))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(clog.ClientIP, s.handleRateLimited)

	var h http.Handler = mux
	h = limit(h)
	h = headers.Middleware(h)
	h = clog.AccessLog(h)
	h = clog.RequestIDMiddleware(h)
	h = clog.Middleware(s.logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopJanitor = cancel
	s.janitor = cache.NewJanitor(s.replay.entries, s.limiter)
	go s.janitor.Run(ctx, 5*time.Minute)

	return s
}

// Shutdown stops background cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopJanitor()
		<-s.janitor.Done()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			clog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", clog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	clog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		clog.FieldClientIP, clog.ClientIP(r),
		clog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error: errorBody{
			Code:    "rate_limited",
			Class:   "policy",
			Message: "rate limit exceeded, retry later",
		},
		RequestID: clog.RequestID(r.Context()),
	})
}

// writeError renders err and logs it at a level matching its class.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, body := newErrorResponse(err, clog.RequestID(ctx))

	logger := clog.FromContext(ctx)
	args := []any{clog.FieldErrorCode, body.Error.Code, clog.FieldPath, r.URL.Path}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", append(args, clog.FieldError, err)...)
	} else {
		logger.DebugContext(ctx, "Request rejected", append(args, clog.FieldError, err.Error())...)
	}

	writeJSON(w, status, body)
}
