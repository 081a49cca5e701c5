package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet/internal/core"
	"wallet/internal/ledger"
)

// amountText accepts an amount as a JSON string or number and keeps its
// literal text so no float rounding happens before parsing.
type amountText string

func (a *amountText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("amount must be a string or number")
	}
	*a = amountText(n.String())
	return nil
}

func (a amountText) parse() (decimal.Decimal, error) {
	d, err := core.ParseAmount(string(a))
	if err != nil {
		return decimal.Zero, core.Validation(err)
	}
	return d, nil
}

var errInvalidDate = errors.New("date must be YYYY-MM-DD or RFC 3339")

// parseDate accepts a calendar day or a full timestamp; empty means zero.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, core.Validation(errInvalidDate)
	}
	return t, nil
}

type (
	recordRequest struct {
		Type        string     `json:"type"`
		Amount      amountText `json:"amount"`
		AccountID   string     `json:"account_id"`
		Date        string     `json:"date"`
		Description string     `json:"description"`
		Category    string     `json:"category"`
		Receipt     string     `json:"receipt"`
	}

	amendRequest struct {
		Type        *string     `json:"type"`
		Amount      *amountText `json:"amount"`
		AccountID   *string     `json:"account_id"`
		Date        *string     `json:"date"`
		Description *string     `json:"description"`
		Category    *string     `json:"category"`
		Receipt     *string     `json:"receipt"`
	}

	createAccountRequest struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
		Image    string `json:"image"`
	}

	updateAccountRequest struct {
		Name     *string `json:"name"`
		Currency *string `json:"currency"`
		Image    *string `json:"image"`
	}
)

func (req recordRequest) input(user string, images *stagedImages) (core.TransactionInput, error) {
	typ, err := core.ParseTxType(req.Type)
	if err != nil {
		return core.TransactionInput{}, core.Validation(err)
	}
	amount, err := req.Amount.parse()
	if err != nil {
		return core.TransactionInput{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.TransactionInput{}, err
	}
	receipt, err := images.ref(req.Receipt)
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Type:        typ,
		Amount:      amount,
		AccountID:   strings.TrimSpace(req.AccountID),
		Date:        date,
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
		Receipt:     receipt,
		UserID:      user,
	}, nil
}

func (req amendRequest) patch(images *stagedImages) (core.TransactionPatch, error) {
	var p core.TransactionPatch
	if req.Type != nil {
		typ, err := core.ParseTxType(*req.Type)
		if err != nil {
			return p, core.Validation(err)
		}
		p.Type = &typ
	}
	if req.Amount != nil {
		amount, err := req.Amount.parse()
		if err != nil {
			return p, err
		}
		p.Amount = &amount
	}
	if req.AccountID != nil {
		id := strings.TrimSpace(*req.AccountID)
		p.AccountID = &id
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return p, err
		}
		if date.IsZero() {
			return p, core.Validation(errInvalidDate)
		}
		p.Date = &date
	}
	if req.Description != nil {
		d := sanitizeInput(*req.Description)
		p.Description = &d
	}
	if req.Category != nil {
		c := sanitizeInput(*req.Category)
		p.Category = &c
	}
	if req.Receipt != nil {
		receipt, err := images.ref(*req.Receipt)
		if err != nil {
			return p, err
		}
		p.Receipt = &receipt
	}
	return p, nil
}

type (
	accountJSON struct {
		ID            string          `json:"id"`
		UserID        string          `json:"user_id"`
		Name          string          `json:"name"`
		Image         string          `json:"image,omitempty"`
		Currency      string          `json:"currency"`
		Amount        decimal.Decimal `json:"amount"`
		TotalIncome   decimal.Decimal `json:"total_income"`
		TotalExpense  decimal.Decimal `json:"total_expense"`
		AmountDisplay string          `json:"amount_display"`
		Version       int64           `json:"version"`
		CreatedAt     time.Time       `json:"created_at"`
		UpdatedAt     time.Time       `json:"updated_at"`
	}

	transactionJSON struct {
		ID           string          `json:"id"`
		Type         core.TxType     `json:"type"`
		Amount       decimal.Decimal `json:"amount"`
		AccountID    string          `json:"account_id"`
		Date         time.Time       `json:"date"`
		Description  string          `json:"description,omitempty"`
		Category     string          `json:"category,omitempty"`
		ReceiptImage string          `json:"receipt_image,omitempty"`
		UserID       string          `json:"user_id"`
		CreatedAt    time.Time       `json:"created_at"`
		UpdatedAt    time.Time       `json:"updated_at"`
	}

	effectJSON struct {
		Amount  decimal.Decimal `json:"amount"`
		Income  decimal.Decimal `json:"total_income"`
		Expense decimal.Decimal `json:"total_expense"`
	}

	reportJSON struct {
		Account      accountJSON `json:"account"`
		Expected     effectJSON  `json:"expected"`
		Transactions int         `json:"transactions"`
		Drifted      bool        `json:"drifted"`
		Repaired     bool        `json:"repaired"`
	}

	bucketJSON struct {
		Label   string          `json:"label"`
		Start   time.Time       `json:"start"`
		End     time.Time       `json:"end"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
	}

	statsJSON struct {
		Period       core.Period       `json:"period"`
		Buckets      []bucketJSON      `json:"buckets"`
		Transactions []transactionJSON `json:"transactions"`
	}
)

func toAccountJSON(a core.Account) accountJSON {
	return accountJSON{
		ID:            a.ID,
		UserID:        a.UserID,
		Name:          a.Name,
		Image:         a.Image,
		Currency:      a.Currency,
		Amount:        a.Amount,
		TotalIncome:   a.TotalIncome,
		TotalExpense:  a.TotalExpense,
		AmountDisplay: core.Display(a.Amount, a.Currency),
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toAccountsJSON(as []core.Account) []accountJSON {
	out := make([]accountJSON, 0, len(as))
	for _, a := range as {
		out = append(out, toAccountJSON(a))
	}
	return out
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:           t.ID,
		Type:         t.Type,
		Amount:       t.Amount,
		AccountID:    t.AccountID,
		Date:         t.Date,
		Description:  t.Description,
		Category:     t.Category,
		ReceiptImage: t.ReceiptImage,
		UserID:       t.UserID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toTransactionsJSON(ts []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

func toReportJSON(r ledger.Report) reportJSON {
	return reportJSON{
		Account: toAccountJSON(r.Account),
		Expected: effectJSON{
			Amount:  r.Expected.Amount,
			Income:  r.Expected.Income,
			Expense: r.Expected.Expense,
		},
		Transactions: r.Transactions,
		Drifted:      r.Drifted(),
		Repaired:     r.Repaired,
	}
}

func toStatsJSON(s core.Stats) statsJSON {
	out := statsJSON{
		Period:       s.Period,
		Buckets:      make([]bucketJSON, 0, len(s.Buckets)),
		Transactions: toTransactionsJSON(s.Transactions),
	}
	for _, b := range s.Buckets {
		out.Buckets = append(out.Buckets, bucketJSON{
			Label:   b.Label,
			Start:   b.Start,
			End:     b.End,
			Income:  b.Income,
			Expense: b.Expense,
		})
	}
	return out
}
