package core

import "github.com/shopspring/decimal"

// Effect is the contribution of one transaction to its account's aggregates.
type Effect struct {
	Amount  decimal.Decimal
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// EffectOf returns the forward effect of t. Negate it to revert.
func EffectOf(t Transaction) Effect {
	switch t.Type {
	case Income:
		return Effect{Amount: t.Amount, Income: t.Amount, Expense: decimal.Zero}
	case Expense:
		return Effect{Amount: t.Amount.Neg(), Income: decimal.Zero, Expense: t.Amount}
	}
	return Effect{Amount: decimal.Zero, Income: decimal.Zero, Expense: decimal.Zero}
}

func (e Effect) Neg() Effect {
	return Effect{Amount: e.Amount.Neg(), Income: e.Income.Neg(), Expense: e.Expense.Neg()}
}

func (e Effect) Add(o Effect) Effect {
	return Effect{
		Amount:  e.Amount.Add(o.Amount),
		Income:  e.Income.Add(o.Income),
		Expense: e.Expense.Add(o.Expense),
	}
}

func (e Effect) IsZero() bool {
	return e.Amount.IsZero() && e.Income.IsZero() && e.Expense.IsZero()
}

// Apply returns a copy of a with e added to its aggregates. Version is kept
// so the store can compare it against the stored one.
func (a Account) Apply(e Effect) Account {
	a.Amount = a.Amount.Add(e.Amount)
	a.TotalIncome = a.TotalIncome.Add(e.Income)
	a.TotalExpense = a.TotalExpense.Add(e.Expense)
	return a
}

// Totals sums the effects of txs. Amount is income minus expense.
func Totals(txs []Transaction) Effect {
	sum := Effect{Amount: decimal.Zero, Income: decimal.Zero, Expense: decimal.Zero}
	for _, t := range txs {
		sum = sum.Add(EffectOf(t))
	}
	return sum
}
