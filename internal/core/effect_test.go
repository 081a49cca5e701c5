package core

import "testing"

func TestEffectOf(t *testing.T) {
	in := EffectOf(Transaction{Type: Income, Amount: dec("40")})
	if !in.Amount.Equal(dec("40")) || !in.Income.Equal(dec("40")) || !in.Expense.IsZero() {
		t.Fatalf("unexpected income effect: %+v", in)
	}
	out := EffectOf(Transaction{Type: Expense, Amount: dec("15")})
	if !out.Amount.Equal(dec("-15")) || !out.Income.IsZero() || !out.Expense.Equal(dec("15")) {
		t.Fatalf("unexpected expense effect: %+v", out)
	}
	if !out.Add(out.Neg()).IsZero() {
		t.Fatal("effect plus its negation must be zero")
	}
}

func TestRevertThenReapply(t *testing.T) {
	acct := Account{Amount: dec("100"), TotalIncome: dec("100"), TotalExpense: dec("0"), Version: 3}
	tx := Transaction{Type: Expense, Amount: dec("30")}

	acct = acct.Apply(EffectOf(tx))
	if !acct.Amount.Equal(dec("70")) || !acct.TotalExpense.Equal(dec("30")) {
		t.Fatalf("after record: %+v", acct)
	}

	edited := tx
	edited.Amount = dec("50")
	acct = acct.Apply(EffectOf(tx).Neg().Add(EffectOf(edited)))
	if !acct.Amount.Equal(dec("50")) || !acct.TotalIncome.Equal(dec("100")) || !acct.TotalExpense.Equal(dec("50")) {
		t.Fatalf("after amend: %+v", acct)
	}
	if acct.Version != 3 {
		t.Fatal("Apply must not touch the version")
	}
}

func TestTotals(t *testing.T) {
	txs := []Transaction{
		{Type: Income, Amount: dec("100")},
		{Type: Expense, Amount: dec("30.5")},
		{Type: Income, Amount: dec("0.5")},
	}
	sum := Totals(txs)
	if !sum.Amount.Equal(dec("70")) || !sum.Income.Equal(dec("100.5")) || !sum.Expense.Equal(dec("30.5")) {
		t.Fatalf("unexpected totals: %+v", sum)
	}
	if !Totals(nil).IsZero() {
		t.Fatal("empty set must total zero")
	}
}
