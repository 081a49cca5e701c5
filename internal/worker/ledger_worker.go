package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wallet/internal/amqp"
	"wallet/internal/core"
	"wallet/internal/ledger"
)

// AccountChecker audits one account and repairs it when configured to.
type AccountChecker interface {
	CheckAccount(ctx context.Context, accountID string) (ledger.Report, error)
}

// LedgerWorker re-audits the accounts touched by each ledger event.
type LedgerWorker struct {
	checker AccountChecker
}

func NewLedgerWorker(checker AccountChecker) *LedgerWorker {
	return &LedgerWorker{checker: checker}
}

// HandleLedgerEvent processes a single ledger event from AMQP. An account that
// no longer exists is skipped; any other failure is returned so the delivery
// is retried.
func (w *LedgerWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"op", msg.Op,
		"transaction_id", msg.TransactionID,
		"account_ids", msg.AccountIDs)

	var errs []error
	for _, id := range msg.AccountIDs {
		rep, err := w.checker.CheckAccount(ctx, id)
		switch {
		case errors.Is(err, core.ErrNotFound):
			slog.DebugContext(ctx, "Account gone, skipping audit", "account_id", id)
		case err != nil:
			slog.ErrorContext(ctx, "Account audit failed", "account_id", id, "error", err)
			errs = append(errs, fmt.Errorf("audit %s: %w", id, err))
		case rep.Repaired:
			slog.InfoContext(ctx, "Account repaired", "account_id", id, "amount", rep.Account.Amount.String())
		case rep.Drifted():
			slog.WarnContext(ctx, "Account drift left unrepaired", "account_id", id)
		}
	}
	return errors.Join(errs...)
}
