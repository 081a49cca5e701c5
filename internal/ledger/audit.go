package ledger

import (
	"context"
	"errors"
	"time"

	"wallet/internal/core"
	"wallet/internal/log"
	"wallet/internal/store"
)

// Report compares an account's stored aggregates with the ones implied by
// its transactions.
type Report struct {
	Account      core.Account
	Expected     core.Effect
	Transactions int
	Repaired     bool
}

// Drifted reports whether the stored aggregates disagree with the expected ones.
func (r Report) Drifted() bool {
	return !r.Account.Amount.Equal(r.Expected.Amount) ||
		!r.Account.TotalIncome.Equal(r.Expected.Income) ||
		!r.Account.TotalExpense.Equal(r.Expected.Expense)
}

// Audit recomputes the account's aggregates from its transactions without
// writing anything.
func (e *Engine) Audit(ctx context.Context, accountID string) (Report, error) {
	acc, err := e.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return Report{}, storeError(err, "account %s", accountID)
	}
	return e.audit(ctx, acc)
}

func (e *Engine) audit(ctx context.Context, acc core.Account) (Report, error) {
	txs, err := e.txs.ListTransactions(ctx, store.TransactionQuery{AccountID: acc.ID})
	if err != nil {
		return Report{}, core.Unavailable(err, "list transactions of account %s", acc.ID)
	}
	return Report{Account: acc, Expected: core.Totals(txs), Transactions: len(txs)}, nil
}

// Reconcile overwrites the account's aggregates with the recomputed ones.
// The write is a compare-and-swap; a concurrent change restarts the audit.
//
// Ledger operations write the account before the transaction, so an account
// touched less than the settle window ago may belong to an operation still
// in flight. Reconcile waits for such an account to settle and audits it
// again rather than repairing a drift that is about to disappear.
func (e *Engine) Reconcile(ctx context.Context, accountID string) (Report, error) {
	caller := ctx
	ctx = context.WithoutCancel(ctx)
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		rep, err := e.Audit(ctx, accountID)
		if err != nil {
			return Report{}, err
		}
		if !rep.Drifted() {
			return rep, nil
		}
		if wait := e.unsettled(rep.Account); wait > 0 {
			e.logger.DebugContext(ctx, "Drifted account has recent writes, waiting",
				log.FieldOperation, log.OpReconcile,
				log.FieldAccountID, accountID,
				"wait", wait.String())
			if err := sleep(caller, wait); err != nil {
				return Report{}, core.NewError(core.KindConflict, err,
					"account %s has writes in flight", accountID)
			}
			continue
		}

		fixed := rep.Account
		fixed.Amount = rep.Expected.Amount
		fixed.TotalIncome = rep.Expected.Income
		fixed.TotalExpense = rep.Expected.Expense
		fixed.UpdatedAt = e.now()

		saved, err := e.accounts.UpdateAccount(ctx, fixed)
		if err == nil {
			e.logger.WarnContext(ctx, "Account reconciled",
				log.FieldOperation, log.OpReconcile,
				log.FieldAccountID, accountID,
				"stored_amount", rep.Account.Amount.String(),
				"expected_amount", rep.Expected.Amount.String())
			e.publish(ctx, log.OpReconcile, "", accountID)
			rep.Account = saved
			rep.Repaired = true
			return rep, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return Report{}, storeError(err, "update account %s", accountID)
		}
	}
	return Report{}, core.NewError(core.KindConflict, store.ErrVersionConflict,
		"account %s kept changing, gave up after %d attempts", accountID, e.maxRetries)
}

// unsettled returns how long to wait before acc is old enough to repair.
func (e *Engine) unsettled(acc core.Account) time.Duration {
	if e.settle <= 0 || acc.UpdatedAt.IsZero() {
		return 0
	}
	age := e.now().Sub(acc.UpdatedAt)
	if age >= e.settle {
		return 0
	}
	if age < 0 {
		return e.settle
	}
	return e.settle - age
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
