package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseTxType(t *testing.T) {
	cases := []struct {
		in   string
		want TxType
		ok   bool
	}{
		{"income", Income, true},
		{" Expense ", Expense, true},
		{"expenses", Expense, true},
		{"transfer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseTxType(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestTransactionInputValidate(t *testing.T) {
	good := TransactionInput{Type: Expense, Amount: dec("1"), AccountID: "a1", Date: time.Now()}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		in   TransactionInput
		want error
	}{
		{TransactionInput{Type: "gift", Amount: dec("1"), AccountID: "a1"}, ErrInvalidType},
		{TransactionInput{Type: Income, Amount: dec("0"), AccountID: "a1"}, ErrInvalidAmount},
		{TransactionInput{Type: Income, Amount: dec("-3"), AccountID: "a1"}, ErrInvalidAmount},
		{TransactionInput{Type: Income, Amount: dec("1"), AccountID: "  "}, ErrMissingAccount},
		{TransactionInput{Type: Income, Amount: dec("1"), AccountID: "a1", Description: strings.Repeat("x", 201)}, ErrDescriptionSize},
	}
	for i, tc := range bads {
		if err := tc.in.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestTransactionPatch(t *testing.T) {
	zero := dec("0")
	bad := TxType("gift")
	empty := ""
	for i, p := range []TransactionPatch{{Amount: &zero}, {Type: &bad}, {AccountID: &empty}} {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}

	old := Transaction{ID: "t1", Type: Expense, Amount: dec("30"), AccountID: "a1", Description: "lunch"}
	desc := "dinner"
	got := TransactionPatch{Description: &desc}.Apply(old)
	if got.Description != "dinner" || got.Type != Expense || !got.Amount.Equal(dec("30")) {
		t.Fatalf("unexpected patched transaction: %+v", got)
	}
	if LedgerChanged(old, got) {
		t.Fatal("description only edit must not count as a ledger change")
	}

	amt := dec("30.00")
	if LedgerChanged(old, TransactionPatch{Amount: &amt}.Apply(old)) {
		t.Fatal("equal decimal amounts with different scale must not count as a change")
	}
	other := "a2"
	if !LedgerChanged(old, TransactionPatch{AccountID: &other}.Apply(old)) {
		t.Fatal("moving accounts is a ledger change")
	}
}

func TestImageRef(t *testing.T) {
	if !(ImageRef{URI: "https://cdn.example.com/a.jpg"}).IsRemote() {
		t.Fatal("https url should be remote")
	}
	if (ImageRef{URI: "/tmp/receipt.jpg"}).IsRemote() {
		t.Fatal("local path should not be remote")
	}
	if !(ImageRef{URI: "  "}).IsEmpty() {
		t.Fatal("blank uri should be empty")
	}
}

func TestErrorKinds(t *testing.T) {
	err := InsufficientFunds("account %s has %s", "a1", "20")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("expected insufficient funds kind")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("kinds must not cross-match")
	}
	wrapped := Unavailable(errors.New("disk full"), "insert transaction")
	if KindOf(wrapped) != KindUnavailable || wrapped.Error() != "insert transaction: disk full" {
		t.Fatalf("unexpected wrapped error: %v", wrapped)
	}
	if KindOf(errors.New("plain")) != KindUnavailable {
		t.Fatal("unclassified errors are infrastructure failures")
	}

	resp := Fail(err)
	if resp.Success || resp.Kind != KindInsufficientFunds || resp.Msg == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
