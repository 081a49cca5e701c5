// Package store declares the record-level persistence ports the ledger is
// built on. Implementations offer single-record operations only; there are
// no multi-record transactions.
package store

import (
	"context"
	"errors"
	"time"

	"wallet/internal/core"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by UpdateAccount when the stored version
	// no longer matches the one the caller read.
	ErrVersionConflict = errors.New("account version conflict")
)

type (
	AccountStore interface {
		GetAccount(ctx context.Context, id string) (core.Account, error)
		// InsertAccount assigns ID, Version, CreatedAt and UpdatedAt.
		InsertAccount(ctx context.Context, a core.Account) (core.Account, error)
		// UpdateAccount writes a if the stored version equals a.Version and
		// returns the record with the incremented version.
		UpdateAccount(ctx context.Context, a core.Account) (core.Account, error)
		DeleteAccount(ctx context.Context, id string) error
		ListAccounts(ctx context.Context, q AccountQuery) ([]core.Account, error)
	}

	TransactionStore interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		// InsertTransaction assigns ID, CreatedAt and UpdatedAt.
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
		// ListTransactions is the reporting read. Results are ordered by date.
		ListTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, error)
	}

	// Store bundles both ports; every backend implements it.
	Store interface {
		AccountStore
		TransactionStore
		Ping(ctx context.Context) error
		Close() error
	}

	AccountQuery struct {
		UserID string // empty means every user
		Limit  int    // <= 0 means no limit
	}

	TransactionQuery struct {
		UserID    string
		AccountID string
		From      time.Time // inclusive, zero means unbounded
		To        time.Time // inclusive, zero means unbounded
		Desc      bool      // newest first
		Limit     int       // <= 0 means no limit
	}
)

// Match reports whether t satisfies the filter part of q.
func (q TransactionQuery) Match(t core.Transaction) bool {
	if q.UserID != "" && t.UserID != q.UserID {
		return false
	}
	if q.AccountID != "" && t.AccountID != q.AccountID {
		return false
	}
	if !q.From.IsZero() && t.Date.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && t.Date.After(q.To) {
		return false
	}
	return true
}
