package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/transitpass/cardledger/ledger"
	"github.com/transitpass/cardledger/summary"
)

// =============================================================================
// MERGE - Absorb rows into the earliest-dated survivor
// =============================================================================

// Merge combines the named rows into the one with the earliest date
// (lowest id on ties). Income and expense are summed; the balance is taken
// from the source row with the highest row id; the summary is re-derived
// from the union of the rows' raw legs; notes concatenate with duplicates
// dropped. Before anything is touched, a full-field snapshot of every
// source row is saved as an undo record keyed by the returned history id.
func (s *Service) Merge(ctx context.Context, ids []ledger.RowID) (ledger.HistoryID, error) {
	rows, err := s.loadMergeSet(ctx, ids)
	if err != nil {
		return "", err
	}

	// Survivor: earliest (Date, ID).
	ledger.SortRows(rows)
	survivor := rows[0]
	absorbed := rows[1:]

	merged := s.buildMergedRow(survivor, rows)
	history, err := buildUndoRecord(survivor, absorbed, rows, s.now())
	if err != nil {
		return "", fmt.Errorf("merge: snapshot failed: %w", err)
	}

	// Snapshot first: once rows start disappearing the only way back is
	// through this record.
	if err := s.store.SaveMergeHistory(ctx, history); err != nil {
		return "", fmt.Errorf("merge: saving undo record failed: %w", err)
	}
	if err := s.store.UpdateRow(ctx, &merged); err != nil {
		return "", fmt.Errorf("merge: writing survivor failed: %w", err)
	}
	if err := s.store.ReplaceDetails(ctx, merged.ID, merged.Details); err != nil {
		return "", fmt.Errorf("merge: writing survivor details failed: %w", err)
	}
	for _, row := range absorbed {
		if err := s.store.DeleteRow(ctx, row.ID); err != nil {
			return "", fmt.Errorf("merge: deleting row %d failed: %w", row.ID, err)
		}
	}

	log.WithFields(log.Fields{
		"history":  history.ID,
		"survivor": merged.ID,
		"absorbed": len(absorbed),
	}).Info("ledger rows merged")
	return history.ID, nil
}

// loadMergeSet loads and validates the merge inputs. All checks run before
// any mutation: enough ids, every id known, one card, no lending
// placeholder, no charge-only row mixed with usage rows.
func (s *Service) loadMergeSet(ctx context.Context, ids []ledger.RowID) ([]ledger.Row, error) {
	if len(ids) < 2 {
		return nil, ledger.ErrTooFewRows
	}

	rows := make([]ledger.Row, 0, len(ids))
	seen := make(map[ledger.RowID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		row, err := s.store.GetRow(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", id, err)
		}
		rows = append(rows, *row)
	}
	if len(rows) < 2 {
		return nil, ledger.ErrTooFewRows
	}

	charges := 0
	for _, row := range rows {
		if row.CardIdm != rows[0].CardIdm {
			return nil, ledger.ErrCrossCardMerge
		}
		if row.IsLentRecord {
			return nil, ledger.ErrPlaceholderInMerge
		}
		if isChargeOnly(row) {
			charges++
		}
	}
	if charges != 0 && charges != len(rows) {
		return nil, ledger.ErrChargeUsageMix
	}
	return rows, nil
}

func (s *Service) buildMergedRow(survivor ledger.Row, all []ledger.Row) ledger.Row {
	merged := survivor.Clone()

	income, expense := decimal.Zero, decimal.Zero
	highest := all[0]
	var notes []string
	noteSeen := make(map[string]bool)
	var union []ledger.SwipeRecord

	for _, row := range all {
		income = income.Add(row.Income)
		expense = expense.Add(row.Expense)
		// Balance comes from the highest insertion sequence, not the max
		// date: merge sets may contain out-of-order entry dates and the
		// most recently inserted row carries the balance that the rest of
		// the ledger chains onto.
		if row.ID > highest.ID {
			highest = row
		}
		if row.Note != "" && !noteSeen[row.Note] {
			noteSeen[row.Note] = true
			notes = append(notes, row.Note)
		}
		union = append(union, row.Details...)
	}

	merged.Income = income
	merged.Expense = expense
	merged.Balance = highest.Balance
	merged.Note = strings.Join(notes, "、")
	merged.Summary = mergedSummary(union, all)
	merged.Details = sortedOldestFirst(union)
	return merged
}

// mergedSummary re-derives the display text from the union of raw legs so
// transfer and round-trip rules apply across the merged set. Rows without
// stored legs (e.g. imported ones) fall back to their own summaries.
func mergedSummary(union []ledger.SwipeRecord, all []ledger.Row) string {
	if len(union) > 0 {
		if text := summary.Generate(newestFirst(union)); text != "" {
			return text
		}
	}
	var parts []string
	seen := make(map[string]bool)
	for _, row := range all {
		if row.Summary != "" && !seen[row.Summary] {
			seen[row.Summary] = true
			parts = append(parts, row.Summary)
		}
	}
	return strings.Join(parts, "、")
}

func buildUndoRecord(survivor ledger.Row, absorbed []ledger.Row, all []ledger.Row, at time.Time) (*ledger.MergeHistory, error) {
	owners := make(map[int]ledger.RowID)
	for _, row := range all {
		for _, d := range row.Details {
			owners[d.Seq] = row.ID
		}
	}

	snapshot := ledger.MergeSnapshot{
		Survivor:     survivor.Clone(),
		DetailOwners: owners,
	}
	for _, row := range absorbed {
		snapshot.Absorbed = append(snapshot.Absorbed, row.Clone())
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return &ledger.MergeHistory{
		ID:         ledger.HistoryID(uuid.NewString()),
		Kind:       ledger.HistoryMerge,
		SurvivorID: survivor.ID,
		Payload:    payload,
		CreatedAt:  at,
	}, nil
}

// isChargeOnly classifies a row by its legs when it has them, otherwise by
// its amounts. Rows that only ever charged the card must not merge with
// usage rows.
func isChargeOnly(row ledger.Row) bool {
	if len(row.Details) > 0 {
		for _, d := range row.Details {
			if !d.IsCharge {
				return false
			}
		}
		return true
	}
	return row.Income.IsPositive() && row.Expense.IsZero()
}

// newestFirst orders legs the way the physical card exposes them, which is
// the summarizer's input contract. Seq grows with the card's transaction
// counter, so newest means highest Seq.
func newestFirst(legs []ledger.SwipeRecord) []ledger.SwipeRecord {
	out := append([]ledger.SwipeRecord(nil), legs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out
}

func sortedOldestFirst(legs []ledger.SwipeRecord) []ledger.SwipeRecord {
	out := append([]ledger.SwipeRecord(nil), legs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
