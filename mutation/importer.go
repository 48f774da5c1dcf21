package mutation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/transitpass/cardledger/ledger"
)

// =============================================================================
// BULK IMPORT - Validate an external batch against the full chain
// =============================================================================

// ValidateImport checks that applying the incoming rows to the card's
// ledger would leave the full per-card sequence satisfying the balance
// chain. Incoming rows with an id update that row; rows without one are
// inserts. Rows the batch does not touch stay in the validated sequence,
// so a later changed row's expected balance is computed against its true
// predecessor, not merely the previous changed row. Nothing is written.
func (s *Service) ValidateImport(ctx context.Context, idm ledger.CardIdm, incoming []ledger.Row) error {
	_, err := s.reconstruct(ctx, idm, incoming)
	return err
}

// ApplyImport validates and then writes the batch: updates first, then
// inserts, in batch order. The full chain result is computed before the
// first write; a chain mismatch leaves the store untouched.
func (s *Service) ApplyImport(ctx context.Context, idm ledger.CardIdm, incoming []ledger.Row) ([]ledger.RowID, error) {
	prepared, err := s.reconstruct(ctx, idm, incoming)
	if err != nil {
		return nil, err
	}

	ids := make([]ledger.RowID, 0, len(prepared))
	for i := range prepared {
		row := prepared[i]
		if row.update {
			if err := s.store.UpdateRow(ctx, &row.Row); err != nil {
				return nil, fmt.Errorf("import: updating row %d failed: %w", row.ID, err)
			}
		} else {
			row.ID = 0
			if err := s.store.InsertRow(ctx, &row.Row); err != nil {
				return nil, fmt.Errorf("import: inserting row failed: %w", err)
			}
		}
		ids = append(ids, row.ID)
	}

	log.WithFields(log.Fields{"card": idm, "rows": len(ids)}).Info("ledger batch imported")
	return ids, nil
}

type importRow struct {
	ledger.Row
	update bool
}

// reconstruct merges the incoming batch into the card's existing rows and
// validates the resulting sequence ordered by (date, id) from a zero seed.
// Inserts get provisional ids above the current maximum so they order the
// way they will once assigned.
func (s *Service) reconstruct(ctx context.Context, idm ledger.CardIdm, incoming []ledger.Row) ([]importRow, error) {
	existing, err := s.store.RowsByCard(ctx, idm)
	if err != nil {
		return nil, fmt.Errorf("import: reading ledger failed: %w", err)
	}

	byID := make(map[ledger.RowID]int, len(existing))
	maxID := ledger.RowID(0)
	for i, row := range existing {
		byID[row.ID] = i
		if row.ID > maxID {
			maxID = row.ID
		}
	}

	sequence := make([]ledger.Row, len(existing))
	copy(sequence, existing)

	var prepared []importRow
	for _, in := range incoming {
		row := in
		row.CardIdm = idm
		if row.ID != 0 {
			i, ok := byID[row.ID]
			if !ok {
				return nil, fmt.Errorf("row %d: %w", row.ID, ledger.ErrRowNotFound)
			}
			sequence[i] = row
			prepared = append(prepared, importRow{Row: row, update: true})
		} else {
			maxID++
			row.ID = maxID // provisional, for ordering only
			sequence = append(sequence, row)
			prepared = append(prepared, importRow{Row: row})
		}
	}

	ledger.SortRows(sequence)
	if chainErr := ledger.ValidateChain(sequence, decimal.Zero); chainErr != nil {
		return nil, chainErr
	}
	return prepared, nil
}
