// Package ledger keeps account balances and totals consistent with the
// transactions attributed to them. It is the only writer of account
// aggregates.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"wallet/internal/core"
	"wallet/internal/log"
	"wallet/internal/media"
	"wallet/internal/store"
)

// DefaultMaxRetries bounds the read-modify-write loop on version conflicts.
const DefaultMaxRetries = 5

// DefaultSettleWindow is how long an account must go unwritten before
// Reconcile will overwrite its aggregates.
const DefaultSettleWindow = 2 * time.Second

// Publisher announces completed ledger operations. Delivery is best effort.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, op, transactionID string, accountIDs []string) error
}

type Engine struct {
	accounts   store.AccountStore
	txs        store.TransactionStore
	uploader   media.Uploader
	events     Publisher
	logger     *log.Logger
	maxRetries int
	settle     time.Duration
	now        func() time.Time
}

type Option func(*Engine)

func WithUploader(u media.Uploader) Option { return func(e *Engine) { e.uploader = u } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.events = p } }

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithSettleWindow sets the quiet period Reconcile requires. Zero disables it.
func WithSettleWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.settle = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(accounts store.AccountStore, txs store.TransactionStore, opts ...Option) *Engine {
	e := &Engine{
		accounts:   accounts,
		txs:        txs,
		logger:     log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentLedger}),
		maxRetries: DefaultMaxRetries,
		settle:     DefaultSettleWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Record validates in, applies its effect to the account and stores the
// transaction. The account write comes first; a failed insert is undone.
func (e *Engine) Record(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	in.AccountID = strings.TrimSpace(in.AccountID)
	if err := in.Validate(); err != nil {
		return core.Transaction{}, core.Validation(err)
	}

	acc, err := e.accounts.GetAccount(ctx, in.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Transaction{}, core.NewError(core.KindValidation, err, "account %s does not exist", in.AccountID)
		}
		return core.Transaction{}, core.Unavailable(err, "load account %s", in.AccountID)
	}
	if in.UserID == "" {
		in.UserID = acc.UserID
	} else if acc.UserID != "" && acc.UserID != in.UserID {
		return core.Transaction{}, core.NewError(core.KindValidation, nil, "account %s does not exist", in.AccountID)
	}

	tx := core.Transaction{
		Type:        in.Type,
		Amount:      in.Amount,
		AccountID:   acc.ID,
		Date:        in.Date,
		Description: in.Description,
		Category:    in.Category,
		UserID:      in.UserID,
	}
	if tx.Date.IsZero() {
		tx.Date = e.now()
	}
	if err := checkFunds(acc, tx); err != nil {
		return core.Transaction{}, err
	}

	receipt, err := e.resolveReceipt(ctx, in.Receipt)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ReceiptImage = receipt

	ctx = context.WithoutCancel(ctx)
	effect := core.EffectOf(tx)
	if _, err := e.adjust(ctx, acc.ID, effect, fundsGuard(tx)); err != nil {
		return core.Transaction{}, err
	}

	saved, err := e.txs.InsertTransaction(ctx, tx)
	if err != nil {
		e.compensate(ctx, acc.ID, effect)
		return core.Transaction{}, core.Unavailable(err, "save transaction")
	}

	e.logger.InfoContext(ctx, "Transaction recorded",
		log.NewFields().WithOperation(log.OpRecord).WithTransaction(saved).ToSlice()...)
	e.publish(ctx, log.OpRecord, saved.ID, saved.AccountID)
	return saved, nil
}

// Amend applies patch to transaction id. Edits that move money revert the
// old effect and apply the new one; descriptive edits only touch the record.
func (e *Engine) Amend(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, core.Validation(err)
	}

	old, err := e.txs.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, storeError(err, "transaction %s", id)
	}
	next := patch.Apply(old)

	origin, err := e.accounts.GetAccount(ctx, old.AccountID)
	if err != nil {
		return core.Transaction{}, storeError(err, "account %s", old.AccountID)
	}

	moved := core.LedgerChanged(old, next)
	sameAccount := next.AccountID == old.AccountID
	revert := core.EffectOf(old).Neg()
	forward := core.EffectOf(next)

	if moved {
		basis := origin.Apply(revert)
		if !sameAccount {
			dest, err := e.accounts.GetAccount(ctx, next.AccountID)
			if err != nil {
				return core.Transaction{}, storeError(err, "account %s", next.AccountID)
			}
			if old.UserID != "" && dest.UserID != "" && dest.UserID != old.UserID {
				return core.Transaction{}, core.NotFound("account %s not found", next.AccountID)
			}
			basis = dest
		}
		if err := checkFunds(basis, next); err != nil {
			return core.Transaction{}, err
		}
	}

	if patch.Receipt != nil {
		receipt, err := e.resolveReceipt(ctx, *patch.Receipt)
		if err != nil {
			return core.Transaction{}, err
		}
		next.ReceiptImage = receipt
	}

	ctx = context.WithoutCancel(ctx)
	next.UpdatedAt = e.now()

	if !moved {
		saved, err := e.txs.UpdateTransaction(ctx, next)
		if err != nil {
			return core.Transaction{}, storeError(err, "transaction %s", id)
		}
		e.publish(ctx, log.OpAmend, saved.ID)
		return saved, nil
	}

	var applied []pending
	if sameAccount {
		delta := revert.Add(forward)
		if _, err := e.adjust(ctx, origin.ID, delta, fundsGuard(next)); err != nil {
			return core.Transaction{}, err
		}
		applied = append(applied, pending{origin.ID, delta})
	} else {
		if _, err := e.adjust(ctx, origin.ID, revert, nil); err != nil {
			return core.Transaction{}, err
		}
		applied = append(applied, pending{origin.ID, revert})
		if _, err := e.adjust(ctx, next.AccountID, forward, fundsGuard(next)); err != nil {
			e.undo(ctx, applied)
			return core.Transaction{}, err
		}
		applied = append(applied, pending{next.AccountID, forward})
	}

	saved, err := e.txs.UpdateTransaction(ctx, next)
	if err != nil {
		e.undo(ctx, applied)
		return core.Transaction{}, core.Unavailable(err, "save transaction %s", id)
	}

	fields := log.NewFields().WithOperation(log.OpAmend).WithTransaction(saved)
	if !sameAccount {
		fields[log.FieldDestAccountID] = saved.AccountID
		fields[log.FieldAccountID] = old.AccountID
	}
	e.logger.InfoContext(ctx, "Transaction amended", fields.ToSlice()...)
	e.publish(ctx, log.OpAmend, saved.ID, old.AccountID, saved.AccountID)
	return saved, nil
}

// Remove deletes transaction id from accountID and reverts its effect.
func (e *Engine) Remove(ctx context.Context, id, accountID string) error {
	tx, err := e.txs.GetTransaction(ctx, id)
	if err != nil {
		return storeError(err, "transaction %s", id)
	}
	if strings.TrimSpace(accountID) != tx.AccountID {
		return core.NotFound("transaction %s not found in account %s", id, accountID)
	}

	acc, err := e.accounts.GetAccount(ctx, tx.AccountID)
	if err != nil {
		return storeError(err, "account %s", tx.AccountID)
	}
	revert := core.EffectOf(tx).Neg()
	guard := revertGuard(tx)
	if err := guard(acc.Apply(revert)); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	if _, err := e.adjust(ctx, acc.ID, revert, guard); err != nil {
		return err
	}
	if err := e.txs.DeleteTransaction(ctx, id); err != nil {
		e.compensate(ctx, acc.ID, revert)
		return storeError(err, "delete transaction %s", id)
	}

	e.logger.InfoContext(ctx, "Transaction removed",
		log.NewFields().WithOperation(log.OpRemove).WithTransaction(tx).ToSlice()...)
	e.publish(ctx, log.OpRemove, tx.ID, acc.ID)
	return nil
}

type guard func(after core.Account) error

// adjust adds delta to the account's aggregates with a compare-and-swap on
// its version, re-reading and retrying on conflict. check runs against the
// adjusted account on every attempt.
func (e *Engine) adjust(ctx context.Context, accountID string, delta core.Effect, check guard) (core.Account, error) {
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		acc, err := e.accounts.GetAccount(ctx, accountID)
		if err != nil {
			return core.Account{}, storeError(err, "account %s", accountID)
		}
		next := acc.Apply(delta)
		if check != nil {
			if err := check(next); err != nil {
				return core.Account{}, err
			}
		}
		next.UpdatedAt = e.now()

		saved, err := e.accounts.UpdateAccount(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return core.Account{}, storeError(err, "update account %s", accountID)
		}
		e.logger.DebugContext(ctx, "Account version conflict, retrying",
			log.FieldAccountID, accountID,
			log.FieldVersion, acc.Version,
			log.FieldAttempt, attempt)
	}
	return core.Account{}, core.NewError(core.KindConflict, store.ErrVersionConflict,
		"account %s kept changing, gave up after %d attempts", accountID, e.maxRetries)
}

type pending struct {
	accountID string
	delta     core.Effect
}

func (e *Engine) undo(ctx context.Context, applied []pending) {
	for i := len(applied) - 1; i >= 0; i-- {
		e.compensate(ctx, applied[i].accountID, applied[i].delta)
	}
}

// compensate reverts a delta that was already written. A failure here leaves
// the account drifted until Reconcile runs.
func (e *Engine) compensate(ctx context.Context, accountID string, delta core.Effect) {
	if _, err := e.adjust(ctx, accountID, delta.Neg(), nil); err != nil {
		e.logger.ErrorContext(ctx, "Compensation failed, account needs reconcile",
			log.NewFields().WithOperation(log.OpReconcile).WithError(err).ToSlice()...)
		e.publish(ctx, log.OpReconcile, "", accountID)
		return
	}
	e.logger.WarnContext(ctx, "Compensated account write", log.FieldAccountID, accountID)
}

func (e *Engine) resolveReceipt(ctx context.Context, ref core.ImageRef) (string, error) {
	url, err := media.Resolve(ctx, e.uploader, ref, media.FolderTransactions)
	if err != nil {
		if errors.Is(err, media.ErrNoUploader) {
			return "", core.Validation(err)
		}
		return "", core.Unavailable(err, "upload receipt")
	}
	return url, nil
}

func (e *Engine) publish(ctx context.Context, op, transactionID string, accountIDs ...string) {
	if e.events == nil {
		return
	}
	ids := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if id != "" && !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if err := e.events.PublishLedgerEvent(ctx, op, transactionID, ids); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// checkFunds rejects an expense that would take basis below zero.
func checkFunds(basis core.Account, t core.Transaction) error {
	if t.Type != core.Expense {
		return nil
	}
	if basis.Amount.Sub(t.Amount).IsNegative() {
		return core.InsufficientFunds("insufficient funds: balance %s, expense %s", basis.Amount, t.Amount)
	}
	return nil
}

func fundsGuard(t core.Transaction) guard {
	if t.Type != core.Expense {
		return nil
	}
	return func(after core.Account) error {
		if after.Amount.IsNegative() {
			return core.InsufficientFunds("insufficient funds: balance would be %s", after.Amount)
		}
		return nil
	}
}

// revertGuard refuses to remove an expense when the account would still be
// negative afterwards, which only happens on an already inconsistent account.
func revertGuard(t core.Transaction) guard {
	return func(after core.Account) error {
		if t.Type == core.Expense && after.Amount.IsNegative() {
			return core.InvalidState("account %s would be left at %s", after.ID, after.Amount)
		}
		return nil
	}
}

// storeError maps store failures onto the ledger taxonomy.
func storeError(err error, format string, args ...any) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return core.NewError(core.KindNotFound, err, format+" not found", args...)
	}
	return core.Unavailable(err, format, args...)
}
