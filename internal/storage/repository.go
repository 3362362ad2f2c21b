package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conti/internal/core"
	"conti/internal/ledger"

	_ "modernc.org/sqlite"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

const (
	scopeDaily   = "daily"
	scopeMonthly = "monthly"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Ledger schema ready", "path", dbPath, "schema_version", version)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection serializes every read-modify-write.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, kind core.AccountKind, id string) (core.AccountRef, error) {
	row, err := r.queries.GetAccount(ctx, string(kind), id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AccountRef{}, fmt.Errorf("%s/%s: %w", kind, id, core.ErrAccountNotFound)
	}
	if err != nil {
		return core.AccountRef{}, fmt.Errorf("get account: %w", err)
	}
	return accountFromRow(row), nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.AccountRef) (core.AccountRef, error) {
	if err := a.Validate(); err != nil {
		return core.AccountRef{}, err
	}
	err := r.queries.CreateAccount(ctx, CreateAccountParams{
		Kind:                string(a.Kind),
		ID:                  a.ID,
		Name:                a.Name,
		Balance:             a.Balance,
		Status:              string(a.Status),
		CreditLimit:         a.CreditLimit,
		DailyLimit:          a.Limits.DailyLimit,
		DailyUsed:           a.Limits.DailyUsed,
		MonthlyLimit:        a.Limits.MonthlyLimit,
		MonthlyUsed:         a.Limits.MonthlyUsed,
		PerTransactionLimit: a.Limits.PerTransactionLimit,
		Now:                 formatTime(r.now()),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.AccountRef{}, fmt.Errorf("account %s/%s already exists: %w", a.Kind, a.ID, core.ErrConflict)
		}
		return core.AccountRef{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"kind", a.Kind,
		"id", a.ID,
		"balance", a.Balance.String())

	a.Version = 1
	return a, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.AccountRef, error) {
	rows, err := r.queries.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.AccountRef, len(rows))
	for i, row := range rows {
		out[i] = accountFromRow(row)
	}
	return out, nil
}

// ApplyTransfer commits both deltas, the limit consumption and the transfer
// record in one transaction.
func (r *SQLiteRepository) ApplyTransfer(ctx context.Context, p ledger.Posting) error {
	return r.inTx(ctx, func(q *Queries) error {
		return r.applyPosting(ctx, q, p)
	})
}

func (r *SQLiteRepository) AttemptApplied(ctx context.Context, attemptID string) (bool, error) {
	ok, err := r.queries.TransferExists(ctx, attemptID)
	if err != nil {
		return false, fmt.Errorf("check attempt: %w", err)
	}
	return ok, nil
}

func (r *SQLiteRepository) applyPosting(ctx context.Context, q *Queries, p ledger.Posting) error {
	exists, err := q.TransferExists(ctx, p.AttemptID)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if exists {
		return ledger.ErrAlreadyApplied
	}

	src, err := q.GetAccount(ctx, string(p.Source.Kind), p.Source.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("source %s/%s: %w", p.Source.Kind, p.Source.ID, core.ErrAccountNotFound)
	}
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}
	dst, err := q.GetAccount(ctx, string(p.Destination.Kind), p.Destination.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("destination %s/%s: %w", p.Destination.Kind, p.Destination.ID, core.ErrAccountNotFound)
	}
	if err != nil {
		return fmt.Errorf("get destination: %w", err)
	}
	if src.Version != p.Source.Version || dst.Version != p.Destination.Version {
		return core.ErrConflict
	}

	now := formatTime(r.now())
	n, err := q.UpdateAccountBalance(ctx, UpdateAccountBalanceParams{
		Balance:     src.Balance.Add(p.Result.SourceDelta),
		DailyUsed:   src.DailyUsed.Add(p.Result.LimitConsumption),
		MonthlyUsed: src.MonthlyUsed.Add(p.Result.LimitConsumption),
		UpdatedAt:   now,
		Kind:        src.Kind,
		ID:          src.ID,
		Version:     src.Version,
	})
	if err != nil {
		return fmt.Errorf("debit source: %w", err)
	}
	if n == 0 {
		return core.ErrConflict
	}
	n, err = q.UpdateAccountBalance(ctx, UpdateAccountBalanceParams{
		Balance:     dst.Balance.Add(p.Result.DestinationDelta),
		DailyUsed:   dst.DailyUsed,
		MonthlyUsed: dst.MonthlyUsed,
		UpdatedAt:   now,
		Kind:        dst.Kind,
		ID:          dst.ID,
		Version:     dst.Version,
	})
	if err != nil {
		return fmt.Errorf("credit destination: %w", err)
	}
	if n == 0 {
		return core.ErrConflict
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	if err := q.InsertTransfer(ctx, Transfer{
		AttemptID:        p.AttemptID,
		SourceKind:       src.Kind,
		SourceID:         src.ID,
		DestinationKind:  dst.Kind,
		DestinationID:    dst.ID,
		SourceDelta:      p.Result.SourceDelta,
		DestinationDelta: p.Result.DestinationDelta,
		Fee:              p.Result.Fee,
		RealizedProfit:   p.Result.RealizedProfit,
		LimitConsumption: p.Result.LimitConsumption,
		Mode:             string(p.Result.Mode),
		Memo:             p.Memo,
		CreatedAt:        formatTime(createdAt),
	}); err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResetDailyUsage(ctx context.Context, resetAt time.Time) (int64, error) {
	var n int64
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		if n, err = q.ResetDailyUsed(ctx, formatTime(resetAt)); err != nil {
			return fmt.Errorf("reset daily usage: %w", err)
		}
		return q.UpsertLimitReset(ctx, scopeDaily, formatTime(resetAt))
	})
	return n, err
}

func (r *SQLiteRepository) ResetMonthlyUsage(ctx context.Context, resetAt time.Time) (int64, error) {
	var n int64
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		if n, err = q.ResetMonthlyUsed(ctx, formatTime(resetAt)); err != nil {
			return fmt.Errorf("reset monthly usage: %w", err)
		}
		return q.UpsertLimitReset(ctx, scopeMonthly, formatTime(resetAt))
	})
	return n, err
}

// LastLimitReset returns zero times for scopes never reset.
func (r *SQLiteRepository) LastLimitReset(ctx context.Context) (time.Time, time.Time, error) {
	daily, err := r.lastReset(ctx, scopeDaily)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	monthly, err := r.lastReset(ctx, scopeMonthly)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return daily, monthly, nil
}

func (r *SQLiteRepository) lastReset(ctx context.Context, scope string) (time.Time, error) {
	s, err := r.queries.GetLimitReset(ctx, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get %s reset: %w", scope, err)
	}
	return parseTime(s), nil
}

func (r *SQLiteRepository) CreateCircle(ctx context.Context, c core.Circle) (core.Circle, error) {
	if err := c.Validate(); err != nil {
		return core.Circle{}, err
	}
	now := formatTime(r.now())
	row := circleToRow(c)
	row.CreatedAt, row.UpdatedAt = now, now
	if err := r.queries.CreateCircle(ctx, row); err != nil {
		if isUniqueViolation(err) {
			return core.Circle{}, fmt.Errorf("circle %s already exists: %w", c.ID, core.ErrConflict)
		}
		return core.Circle{}, fmt.Errorf("create circle: %w", err)
	}
	c.Version = 1
	return c, nil
}

func (r *SQLiteRepository) LoadCircle(ctx context.Context, id string) (core.Circle, error) {
	row, err := r.queries.GetCircle(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Circle{}, fmt.Errorf("circle %s: %w", id, core.ErrCircleNotFound)
	}
	if err != nil {
		return core.Circle{}, fmt.Errorf("get circle: %w", err)
	}
	return circleFromRow(row)
}

func (r *SQLiteRepository) SaveCircle(ctx context.Context, c core.Circle) (core.Circle, error) {
	err := r.inTx(ctx, func(q *Queries) error {
		return r.writeCircle(ctx, q, c)
	})
	if err != nil {
		return core.Circle{}, err
	}
	c.Version++
	return c, nil
}

// SettleCircle writes the new circle state and commits the fund movement in
// one transaction: the round only advances if the money moved.
func (r *SQLiteRepository) SettleCircle(ctx context.Context, c core.Circle, p ledger.Posting) (core.Circle, error) {
	err := r.inTx(ctx, func(q *Queries) error {
		if err := r.writeCircle(ctx, q, c); err != nil {
			return err
		}
		return r.applyPosting(ctx, q, p)
	})
	if err != nil {
		return core.Circle{}, err
	}
	c.Version++
	return c, nil
}

func (r *SQLiteRepository) writeCircle(ctx context.Context, q *Queries, c core.Circle) error {
	if err := c.Validate(); err != nil {
		return err
	}
	row := circleToRow(c)
	row.UpdatedAt = formatTime(r.now())
	n, err := q.UpdateCircle(ctx, row)
	if err != nil {
		return fmt.Errorf("update circle: %w", err)
	}
	if n == 0 {
		if _, err := q.GetCircle(ctx, c.ID); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("circle %s: %w", c.ID, core.ErrCircleNotFound)
		}
		return core.ErrConflict
	}
	return nil
}

func (r *SQLiteRepository) ListTransfers(ctx context.Context, kind core.AccountKind, id string, limit int) ([]ledger.TransferRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queries.ListTransfersForAccount(ctx, string(kind), id, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	out := make([]ledger.TransferRecord, len(rows))
	for i, t := range rows {
		out[i] = ledger.TransferRecord{
			AttemptID:        t.AttemptID,
			SourceKind:       core.AccountKind(t.SourceKind),
			SourceID:         t.SourceID,
			DestinationKind:  core.AccountKind(t.DestinationKind),
			DestinationID:    t.DestinationID,
			SourceDelta:      t.SourceDelta,
			DestinationDelta: t.DestinationDelta,
			Fee:              t.Fee,
			RealizedProfit:   t.RealizedProfit,
			Mode:             core.SettlementMode(t.Mode),
			Memo:             t.Memo,
			CreatedAt:        parseTime(t.CreatedAt),
		}
	}
	return out, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func accountFromRow(row Account) core.AccountRef {
	return core.AccountRef{
		Kind:        core.AccountKind(row.Kind),
		ID:          row.ID,
		Name:        row.Name,
		Balance:     row.Balance,
		Status:      core.AccountStatus(row.Status),
		CreditLimit: row.CreditLimit,
		Limits: core.Limits{
			DailyLimit:          row.DailyLimit,
			DailyUsed:           row.DailyUsed,
			MonthlyLimit:        row.MonthlyLimit,
			MonthlyUsed:         row.MonthlyUsed,
			PerTransactionLimit: row.PerTransactionLimit,
		},
		Version: row.Version,
	}
}

func circleToRow(c core.Circle) Circle {
	return Circle{
		ID:               c.ID,
		Name:             c.Name,
		PoolAccountID:    c.PoolAccountID,
		MonthlyAmount:    c.MonthlyAmount,
		MemberCount:      int64(c.MemberCount),
		DurationRounds:   int64(c.DurationRounds),
		StartDate:        c.StartDate.String(),
		CurrentRound:     int64(c.CurrentRound),
		MyTurnNumber:     int64(c.MyTurnNumber),
		HasWithdrawn:     c.HasWithdrawn,
		TotalContributed: c.TotalContributed,
		TotalWithdrawn:   c.TotalWithdrawn,
		Status:           string(c.Status),
		Version:          c.Version,
	}
}

func circleFromRow(row Circle) (core.Circle, error) {
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.Circle{}, fmt.Errorf("parse start date of circle %s: %w", row.ID, err)
	}
	return core.Circle{
		ID:               row.ID,
		Name:             row.Name,
		PoolAccountID:    row.PoolAccountID,
		MonthlyAmount:    row.MonthlyAmount,
		MemberCount:      int(row.MemberCount),
		DurationRounds:   int(row.DurationRounds),
		StartDate:        start,
		CurrentRound:     int(row.CurrentRound),
		MyTurnNumber:     int(row.MyTurnNumber),
		HasWithdrawn:     row.HasWithdrawn,
		TotalContributed: row.TotalContributed,
		TotalWithdrawn:   row.TotalWithdrawn,
		Status:           core.CircleStatus(row.Status),
		Version:          row.Version,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
