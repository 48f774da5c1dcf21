package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE CHAIN - The running-balance invariant
// =============================================================================

// SortRows orders rows by (Date, ID) ascending, the canonical ledger order.
// The sort is stable so equal keys keep their input order.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].ID < rows[j].ID
	})
}

// ValidateChain checks that rows, already in (Date, ID) order, satisfy
//
//	balance[n] == balance[n-1] + income[n] - expense[n]
//
// seeded with seed as balance[-1]. Returns nil on success, or a ChainError
// naming the first offending row. Pure: no I/O, input is not modified.
func ValidateChain(rows []Row, seed decimal.Decimal) *ChainError {
	prev := seed
	for i := range rows {
		expected := prev.Add(rows[i].Income).Sub(rows[i].Expense)
		if !rows[i].Balance.Equal(expected) {
			return &ChainError{
				RowID:    rows[i].ID,
				Date:     rows[i].Date,
				Expected: expected,
				Actual:   rows[i].Balance,
			}
		}
		prev = rows[i].Balance
	}
	return nil
}

// ChainSeed returns the balance to seed validation with: zero when the card
// has no row before the sequence, otherwise that row's balance.
func ChainSeed(prior *Row) decimal.Decimal {
	if prior == nil {
		return decimal.Zero
	}
	return prior.Balance
}
