package storage

import (
	"context"

	"github.com/shopspring/decimal"
)

const accountColumns = `kind, id, name, balance, status, credit_limit, daily_limit, daily_used,
	monthly_limit, monthly_used, per_transaction_limit, version, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	err := row.Scan(
		&a.Kind, &a.ID, &a.Name, &a.Balance, &a.Status, &a.CreditLimit,
		&a.DailyLimit, &a.DailyUsed, &a.MonthlyLimit, &a.MonthlyUsed,
		&a.PerTransactionLimit, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE kind = ? AND id = ?`

func (q *Queries) GetAccount(ctx context.Context, kind, id string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccount, kind, id))
}

const listAccounts = `SELECT ` + accountColumns + ` FROM accounts ORDER BY kind, id`

func (q *Queries) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const createAccount = `INSERT INTO accounts (` + accountColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

type CreateAccountParams struct {
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
	Now                 string
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) error {
	_, err := q.db.ExecContext(ctx, createAccount,
		arg.Kind, arg.ID, arg.Name, arg.Balance, arg.Status, arg.CreditLimit,
		arg.DailyLimit, arg.DailyUsed, arg.MonthlyLimit, arg.MonthlyUsed,
		arg.PerTransactionLimit, arg.Now, arg.Now,
	)
	return err
}

const updateAccountBalance = `UPDATE accounts
SET balance = ?, daily_used = ?, monthly_used = ?, version = version + 1, updated_at = ?
WHERE kind = ? AND id = ? AND version = ?`

type UpdateAccountBalanceParams struct {
	Balance     decimal.Decimal
	DailyUsed   decimal.Decimal
	MonthlyUsed decimal.Decimal
	UpdatedAt   string
	Kind        string
	ID          string
	Version     int64
}

// UpdateAccountBalance returns the number of rows written; zero means the
// expected version is stale.
func (q *Queries) UpdateAccountBalance(ctx context.Context, arg UpdateAccountBalanceParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateAccountBalance,
		arg.Balance, arg.DailyUsed, arg.MonthlyUsed, arg.UpdatedAt,
		arg.Kind, arg.ID, arg.Version,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetDailyUsed = `UPDATE accounts SET daily_used = '0', version = version + 1, updated_at = ?
WHERE daily_used <> '0'`

func (q *Queries) ResetDailyUsed(ctx context.Context, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetDailyUsed, updatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetMonthlyUsed = `UPDATE accounts SET monthly_used = '0', version = version + 1, updated_at = ?
WHERE monthly_used <> '0'`

func (q *Queries) ResetMonthlyUsed(ctx context.Context, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetMonthlyUsed, updatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const upsertLimitReset = `INSERT INTO limit_resets (scope, reset_at) VALUES (?, ?)
ON CONFLICT (scope) DO UPDATE SET reset_at = excluded.reset_at`

func (q *Queries) UpsertLimitReset(ctx context.Context, scope, resetAt string) error {
	_, err := q.db.ExecContext(ctx, upsertLimitReset, scope, resetAt)
	return err
}

const getLimitReset = `SELECT reset_at FROM limit_resets WHERE scope = ?`

func (q *Queries) GetLimitReset(ctx context.Context, scope string) (string, error) {
	var resetAt string
	err := q.db.QueryRowContext(ctx, getLimitReset, scope).Scan(&resetAt)
	return resetAt, err
}

const transferExists = `SELECT COUNT(*) FROM transfers WHERE attempt_id = ?`

func (q *Queries) TransferExists(ctx context.Context, attemptID string) (bool, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, transferExists, attemptID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const transferColumns = `attempt_id, source_kind, source_id, destination_kind, destination_id,
	source_delta, destination_delta, fee, realized_profit, limit_consumption, mode, memo, created_at`

const insertTransfer = `INSERT INTO transfers (` + transferColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransfer(ctx context.Context, t Transfer) error {
	_, err := q.db.ExecContext(ctx, insertTransfer,
		t.AttemptID, t.SourceKind, t.SourceID, t.DestinationKind, t.DestinationID,
		t.SourceDelta, t.DestinationDelta, t.Fee, t.RealizedProfit, t.LimitConsumption,
		t.Mode, t.Memo, t.CreatedAt,
	)
	return err
}

const listTransfersForAccount = `SELECT ` + transferColumns + ` FROM transfers
WHERE (source_kind = ? AND source_id = ?) OR (destination_kind = ? AND destination_id = ?)
ORDER BY created_at DESC, rowid DESC
LIMIT ?`

func (q *Queries) ListTransfersForAccount(ctx context.Context, kind, id string, limit int64) ([]Transfer, error) {
	rows, err := q.db.QueryContext(ctx, listTransfersForAccount, kind, id, kind, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(
			&t.AttemptID, &t.SourceKind, &t.SourceID, &t.DestinationKind, &t.DestinationID,
			&t.SourceDelta, &t.DestinationDelta, &t.Fee, &t.RealizedProfit, &t.LimitConsumption,
			&t.Mode, &t.Memo, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const circleColumns = `id, name, pool_account_id, monthly_amount, member_count, duration_rounds,
	start_date, current_round, my_turn_number, has_withdrawn, total_contributed, total_withdrawn,
	status, version, created_at, updated_at`

const getCircle = `SELECT ` + circleColumns + ` FROM circles WHERE id = ?`

func (q *Queries) GetCircle(ctx context.Context, id string) (Circle, error) {
	var c Circle
	err := q.db.QueryRowContext(ctx, getCircle, id).Scan(
		&c.ID, &c.Name, &c.PoolAccountID, &c.MonthlyAmount, &c.MemberCount, &c.DurationRounds,
		&c.StartDate, &c.CurrentRound, &c.MyTurnNumber, &c.HasWithdrawn, &c.TotalContributed,
		&c.TotalWithdrawn, &c.Status, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

const createCircle = `INSERT INTO circles (` + circleColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

func (q *Queries) CreateCircle(ctx context.Context, c Circle) error {
	_, err := q.db.ExecContext(ctx, createCircle,
		c.ID, c.Name, c.PoolAccountID, c.MonthlyAmount, c.MemberCount, c.DurationRounds,
		c.StartDate, c.CurrentRound, c.MyTurnNumber, c.HasWithdrawn, c.TotalContributed,
		c.TotalWithdrawn, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

const updateCircle = `UPDATE circles
SET current_round = ?, my_turn_number = ?, has_withdrawn = ?, total_contributed = ?,
    total_withdrawn = ?, status = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`

// UpdateCircle returns the number of rows written; zero means the expected
// version is stale.
func (q *Queries) UpdateCircle(ctx context.Context, c Circle) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCircle,
		c.CurrentRound, c.MyTurnNumber, c.HasWithdrawn, c.TotalContributed,
		c.TotalWithdrawn, c.Status, c.UpdatedAt, c.ID, c.Version,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
