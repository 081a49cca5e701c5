package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wallet/internal/core"
	"wallet/internal/store"
)

func TestBuildTransactionQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		q     store.TransactionQuery
		want  string
		nargs int
	}{
		{
			name: "no filter",
			q:    store.TransactionQuery{},
			want: `SELECT ` + transactionColumns + ` FROM transactions ORDER BY date, id`,
		},
		{
			name:  "user and range newest first",
			q:     store.TransactionQuery{UserID: "u1", From: from, To: from.AddDate(0, 1, 0), Desc: true, Limit: 10},
			want:  `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 AND date >= $2 AND date <= $3 ORDER BY date DESC, id DESC LIMIT $4`,
			nargs: 4,
		},
		{
			name:  "account only",
			q:     store.TransactionQuery{AccountID: "a1"},
			want:  `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1 ORDER BY date, id`,
			nargs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args := buildTransactionQuery(tt.q)
			if got != tt.want {
				t.Errorf("query =\n%s\nwant\n%s", got, tt.want)
			}
			if len(args) != tt.nargs {
				t.Errorf("got %d args, want %d", len(args), tt.nargs)
			}
		})
	}
}

// TestStoreIntegration runs against a real database when
// WALLET_TEST_DATABASE_URL is set.
func TestStoreIntegration(t *testing.T) {
	url := os.Getenv("WALLET_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WALLET_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	a, err := s.InsertAccount(ctx, core.Account{Name: "Integration", Amount: decimal.RequireFromString("10.25")})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	defer s.DeleteAccount(ctx, a.ID)

	a.Amount = decimal.RequireFromString("5.5")
	updated, err := s.UpdateAccount(ctx, a)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || !updated.Amount.Equal(decimal.RequireFromString("5.5")) {
		t.Errorf("unexpected account %+v", updated)
	}
	if _, err := s.UpdateAccount(ctx, a); !errors.Is(err, store.ErrVersionConflict) {
		t.Errorf("expected version conflict, got %v", err)
	}
	if _, err := s.GetTransaction(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
