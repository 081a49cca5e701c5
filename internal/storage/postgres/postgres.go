// Package postgres is the PostgreSQL account and transaction store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"wallet/internal/core"
	"wallet/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ store.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to databaseURL and brings the schema up to date.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

// RunMigrations applies the embedded migrations through a database/sql
// handle borrowed from the pool.
func RunMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const accountColumns = `id, user_id, name, image, currency, amount, total_income, total_expense, version, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) InsertAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.ID = uuid.NewString()
	a.Version = 1
	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt
	if a.Currency == "" {
		a.Currency = core.DefaultCurrency
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.UserID, a.Name, a.Image, a.Currency,
		a.Amount, a.TotalIncome, a.TotalExpense,
		a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE accounts
		    SET user_id = $1, name = $2, image = $3, currency = $4,
		        amount = $5, total_income = $6, total_expense = $7,
		        version = version + 1, updated_at = $8
		  WHERE id = $9 AND version = $10
		RETURNING `+accountColumns,
		a.UserID, a.Name, a.Image, a.Currency,
		a.Amount, a.TotalIncome, a.TotalExpense,
		s.now(), a.ID, a.Version)
	saved, err := scanAccount(row)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return core.Account{}, fmt.Errorf("update account %s: %w", a.ID, err)
	}
	cur, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		return core.Account{}, err
	}
	return core.Account{}, fmt.Errorf("account %s at version %d, have %d: %w",
		a.ID, cur.Version, a.Version, store.ErrVersionConflict)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, q store.AccountQuery) ([]core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if q.UserID != "" {
		args = append(args, q.UserID)
		query += fmt.Sprintf(` WHERE user_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at, id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]core.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

const transactionColumns = `id, type, amount, account_id, date, description, category, receipt_image, user_id, created_at, updated_at`

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, string(t.Type), t.Amount, t.AccountID, t.Date.UTC(),
		t.Description, t.Category, t.ReceiptImage, t.UserID,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE transactions
		    SET type = $1, amount = $2, account_id = $3, date = $4, description = $5,
		        category = $6, receipt_image = $7, user_id = $8, updated_at = $9
		  WHERE id = $10
		RETURNING `+transactionColumns,
		string(t.Type), t.Amount, t.AccountID, t.Date.UTC(), t.Description,
		t.Category, t.ReceiptImage, t.UserID, s.now(), t.ID)
	saved, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, store.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return saved, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, q store.TransactionQuery) ([]core.Transaction, error) {
	query, args := buildTransactionQuery(q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func buildTransactionQuery(q store.TransactionQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.UserID != "" {
		add("user_id = $%d", q.UserID)
	}
	if q.AccountID != "" {
		add("account_id = $%d", q.AccountID)
	}
	if !q.From.IsZero() {
		add("date >= $%d", q.From.UTC())
	}
	if !q.To.IsZero() {
		add("date <= $%d", q.To.UTC())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if q.Desc {
		query += ` ORDER BY date DESC, id DESC`
	} else {
		query += ` ORDER BY date, id`
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return query, args
}

func scanAccount(row pgx.Row) (core.Account, error) {
	var a core.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Image, &a.Currency,
		&a.Amount, &a.TotalIncome, &a.TotalExpense, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t   core.Transaction
		typ string
	)
	err := row.Scan(&t.ID, &typ, &t.Amount, &t.AccountID, &t.Date, &t.Description,
		&t.Category, &t.ReceiptImage, &t.UserID, &t.CreatedAt, &t.UpdatedAt)
	t.Type = core.TxType(typ)
	return t, err
}
