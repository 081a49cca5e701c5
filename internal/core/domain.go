package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// DefaultCurrency is used for accounts created without an explicit currency code.
const DefaultCurrency = "EUR"

type (
	TxType string

	// ImageRef points at an image that is either already hosted (http/https URL)
	// or a local file that still has to be uploaded.
	ImageRef struct {
		URI string
	}

	Account struct {
		ID           string
		UserID       string
		Name         string
		Image        string
		Currency     string
		Amount       decimal.Decimal // current balance
		TotalIncome  decimal.Decimal
		TotalExpense decimal.Decimal
		Version      int64
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	Transaction struct {
		ID           string
		Type         TxType
		Amount       decimal.Decimal
		AccountID    string
		Date         time.Time
		Description  string
		Category     string
		ReceiptImage string
		UserID       string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// TransactionInput is what a caller submits to record a new transaction.
	TransactionInput struct {
		Type        TxType
		Amount      decimal.Decimal
		AccountID   string
		Date        time.Time
		Description string
		Category    string
		Receipt     ImageRef
		UserID      string
	}

	// TransactionPatch carries the fields an amend changes; nil means unchanged.
	TransactionPatch struct {
		Type        *TxType
		Amount      *decimal.Decimal
		AccountID   *string
		Date        *time.Time
		Description *string
		Category    *string
		Receipt     *ImageRef
	}
)

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidType     = errors.New("type must be income or expense")
	ErrMissingAccount  = errors.New("account id is required")
	ErrEmptyName       = errors.New("account name is required")
	ErrDescriptionSize = errors.New("description too long (max 200 characters)")
)

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// ParseTxType normalises user input. "expenses" is accepted for older clients.
func ParseTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense", "expenses":
		return Expense, nil
	}
	return "", ErrInvalidType
}

// IsRemote reports whether the image is already hosted.
func (r ImageRef) IsRemote() bool {
	u := strings.ToLower(r.URI)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func (r ImageRef) IsEmpty() bool {
	return strings.TrimSpace(r.URI) == ""
}

func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (in TransactionInput) Validate() error {
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if err := ValidateAmount(in.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return ErrMissingAccount
	}
	if len(in.Description) > 200 {
		return ErrDescriptionSize
	}
	return nil
}

func (p TransactionPatch) Validate() error {
	if p.Type != nil && !p.Type.Valid() {
		return ErrInvalidType
	}
	if p.Amount != nil {
		if err := ValidateAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.AccountID != nil && strings.TrimSpace(*p.AccountID) == "" {
		return ErrMissingAccount
	}
	if p.Description != nil && len(*p.Description) > 200 {
		return ErrDescriptionSize
	}
	return nil
}

// Apply returns a copy of t with every non-nil patch field set. Receipt is
// left to the caller because it may need an upload first.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.AccountID != nil {
		t.AccountID = strings.TrimSpace(*p.AccountID)
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	return t
}

// LedgerChanged reports whether the edit touches the fields that feed account aggregates.
func LedgerChanged(before, after Transaction) bool {
	return before.Type != after.Type ||
		!before.Amount.Equal(after.Amount) ||
		before.AccountID != after.AccountID
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	return nil
}
