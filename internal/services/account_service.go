package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"wallet/internal/core"
	"wallet/internal/media"
	"wallet/internal/store"
)

const defaultDeleteBatch = 100

// AccountService manages the descriptive side of accounts. Aggregates are
// only ever written by the ledger engine.
type AccountService struct {
	accounts   store.AccountStore
	txs        store.TransactionStore
	uploader   media.Uploader
	batchSize  int
	maxRetries int
}

type (
	NewAccount struct {
		Name     string
		UserID   string
		Currency string
		Image    core.ImageRef
	}

	// AccountPatch changes descriptive fields; nil means unchanged.
	AccountPatch struct {
		Name     *string
		Currency *string
		Image    *core.ImageRef
	}
)

var ErrUnknownCurrency = errors.New("unknown currency code")

func NewAccountService(accounts store.AccountStore, txs store.TransactionStore, uploader media.Uploader) *AccountService {
	return &AccountService{
		accounts:   accounts,
		txs:        txs,
		uploader:   uploader,
		batchSize:  defaultDeleteBatch,
		maxRetries: 5,
	}
}

// Create stores a new account with zero balance and totals.
func (s *AccountService) Create(ctx context.Context, in NewAccount) (core.Account, error) {
	currency, err := normalizeCurrency(in.Currency)
	if err != nil {
		return core.Account{}, core.Validation(err)
	}
	a := core.Account{
		Name:         strings.TrimSpace(in.Name),
		UserID:       in.UserID,
		Currency:     currency,
		Amount:       decimal.Zero,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, core.Validation(err)
	}

	if a.Image, err = s.resolveImage(ctx, in.Image); err != nil {
		return core.Account{}, err
	}

	saved, err := s.accounts.InsertAccount(ctx, a)
	if err != nil {
		return core.Account{}, core.Unavailable(err, "create account")
	}
	slog.InfoContext(ctx, "Account created", "account_id", saved.ID, "user_id", saved.UserID)
	return saved, nil
}

// Update writes descriptive fields, retrying when the ledger changes the
// account's aggregates concurrently.
func (s *AccountService) Update(ctx context.Context, id string, p AccountPatch) (core.Account, error) {
	var (
		name, currency string
		err            error
	)
	if p.Name != nil {
		name = strings.TrimSpace(*p.Name)
		if name == "" {
			return core.Account{}, core.Validation(core.ErrEmptyName)
		}
	}
	if p.Currency != nil {
		if currency, err = normalizeCurrency(*p.Currency); err != nil {
			return core.Account{}, core.Validation(err)
		}
	}
	var image string
	if p.Image != nil {
		if image, err = s.resolveImage(ctx, *p.Image); err != nil {
			return core.Account{}, err
		}
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		a, err := s.accounts.GetAccount(ctx, id)
		if err != nil {
			return core.Account{}, classify(err, "account %s", id)
		}
		if p.Name != nil {
			a.Name = name
		}
		if p.Currency != nil {
			a.Currency = currency
		}
		if p.Image != nil {
			a.Image = image
		}
		saved, err := s.accounts.UpdateAccount(ctx, a)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return core.Account{}, classify(err, "update account %s", id)
		}
	}
	return core.Account{}, core.NewError(core.KindConflict, store.ErrVersionConflict, "account %s kept changing", id)
}

// Delete removes every transaction of the account in batches, then the
// account itself. It returns how many transactions were removed.
func (s *AccountService) Delete(ctx context.Context, id string) (int, error) {
	if _, err := s.accounts.GetAccount(ctx, id); err != nil {
		return 0, classify(err, "account %s", id)
	}

	ctx = context.WithoutCancel(ctx)
	removed := 0
	for {
		batch, err := s.txs.ListTransactions(ctx, store.TransactionQuery{AccountID: id, Limit: s.batchSize})
		if err != nil {
			return removed, core.Unavailable(err, "list transactions of account %s", id)
		}
		if len(batch) == 0 {
			break
		}
		for _, t := range batch {
			if err := s.txs.DeleteTransaction(ctx, t.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return removed, core.Unavailable(err, "delete transaction %s", t.ID)
			}
			removed++
		}
	}

	if err := s.accounts.DeleteAccount(ctx, id); err != nil {
		return removed, classify(err, "delete account %s", id)
	}
	slog.InfoContext(ctx, "Account deleted", "account_id", id, "transactions", removed)
	return removed, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (core.Account, error) {
	a, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, classify(err, "account %s", id)
	}
	return a, nil
}

func (s *AccountService) List(ctx context.Context, userID string) ([]core.Account, error) {
	out, err := s.accounts.ListAccounts(ctx, store.AccountQuery{UserID: userID})
	if err != nil {
		return nil, core.Unavailable(err, "list accounts")
	}
	return out, nil
}

func (s *AccountService) resolveImage(ctx context.Context, ref core.ImageRef) (string, error) {
	url, err := media.Resolve(ctx, s.uploader, ref, media.FolderAccounts)
	if err != nil {
		if errors.Is(err, media.ErrNoUploader) {
			return "", core.Validation(err)
		}
		return "", core.Unavailable(err, "upload account image")
	}
	return url, nil
}

func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return core.DefaultCurrency, nil
	}
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return code, nil
}

// classify maps store errors onto the ledger error kinds.
func classify(err error, format string, args ...any) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return core.NewError(core.KindNotFound, err, format+" not found", args...)
	}
	return core.Unavailable(err, format, args...)
}
