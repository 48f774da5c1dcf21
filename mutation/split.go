package mutation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/transitpass/cardledger/ledger"
	"github.com/transitpass/cardledger/summary"
)

// =============================================================================
// SPLIT - Fan one row out into one row per detail group
// =============================================================================

// Split divides a row's raw legs, tagged with >=2 distinct group ids, into
// one ledger row per group. The first group overwrites the original row in
// place; later groups become new rows. Each resulting row's summary,
// income, expense and balance are recomputed from just its group's legs;
// group tags are cleared on write-back; card, staff and lending metadata
// copy unchanged onto every resulting row. Returns the resulting row ids,
// first-group row first.
func (s *Service) Split(ctx context.Context, id ledger.RowID, details []ledger.SwipeRecord) ([]ledger.RowID, error) {
	original, err := s.store.GetRow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", id, err)
	}

	groups := groupLegs(details)
	if len(groups) < 2 {
		return nil, ledger.ErrTooFewGroups
	}

	// All rows built in memory before the first write.
	rows := make([]ledger.Row, 0, len(groups))
	for i, g := range groups {
		rows = append(rows, buildGroupRow(*original, g, i == 0))
	}

	ids := make([]ledger.RowID, 0, len(rows))
	for i := range rows {
		if i == 0 {
			if err := s.store.UpdateRow(ctx, &rows[i]); err != nil {
				return nil, fmt.Errorf("split: writing row failed: %w", err)
			}
			if err := s.store.ReplaceDetails(ctx, rows[i].ID, rows[i].Details); err != nil {
				return nil, fmt.Errorf("split: writing details failed: %w", err)
			}
		} else {
			if err := s.store.InsertRow(ctx, &rows[i]); err != nil {
				return nil, fmt.Errorf("split: inserting row failed: %w", err)
			}
		}
		ids = append(ids, rows[i].ID)
	}

	log.WithFields(log.Fields{"row": id, "groups": len(groups)}).Info("ledger row split")
	return ids, nil
}

type legGroup struct {
	id   string
	legs []ledger.SwipeRecord
}

// groupLegs partitions legs by group tag, keeping first-appearance order
// of the tags and input order within a group.
func groupLegs(details []ledger.SwipeRecord) []legGroup {
	var groups []legGroup
	index := make(map[string]int)
	for _, d := range details {
		i, ok := index[d.GroupID]
		if !ok {
			i = len(groups)
			index[d.GroupID] = i
			groups = append(groups, legGroup{id: d.GroupID})
		}
		groups[i].legs = append(groups[i].legs, d)
	}
	return groups
}

// buildGroupRow derives one resulting row from a group's legs. The
// original's identity is kept only for the first group; metadata (card,
// staff name, lender/returner ids and timestamps) copies onto all of them.
func buildGroupRow(original ledger.Row, g legGroup, first bool) ledger.Row {
	row := original.Clone()
	if !first {
		row.ID = 0
		row.Note = "" // free text stays with the original row
	}

	entries := summary.GenerateByDate(newestFirst(g.legs))

	income, expense := decimal.Zero, decimal.Zero
	for _, e := range entries {
		income = income.Add(e.Income)
		expense = expense.Add(e.Expense)
	}
	if len(entries) > 0 {
		row.Date = entries[0].Date
		row.Summary = summary.Generate(newestFirst(g.legs))
		row.Balance = entries[len(entries)-1].Balance
	}
	row.Income = income
	row.Expense = expense

	legs := sortedOldestFirst(g.legs)
	for i := range legs {
		legs[i].GroupID = ""
	}
	row.Details = legs
	return row
}
