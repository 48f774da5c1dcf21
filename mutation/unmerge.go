package mutation

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/transitpass/cardledger/ledger"
)

// =============================================================================
// UNMERGE - Replay an undo record
// =============================================================================

// Unmerge reverses a merge: the survivor goes back to its pre-merge state,
// every absorbed row is re-inserted id-for-id from its snapshot, and the
// record is marked consumed. An absent or already-consumed record is
// rejected before any mutation.
func (s *Service) Unmerge(ctx context.Context, id ledger.HistoryID) error {
	history, err := s.store.GetMergeHistory(ctx, id)
	if err != nil {
		return err
	}
	if history.Consumed {
		return ledger.ErrHistoryConsumed
	}

	var snapshot ledger.MergeSnapshot
	if err := json.Unmarshal(history.Payload, &snapshot); err != nil {
		return fmt.Errorf("unmerge: corrupt undo record %s: %w", id, err)
	}

	survivor := snapshot.Survivor
	if err := s.store.UpdateRow(ctx, &survivor); err != nil {
		return fmt.Errorf("unmerge: restoring survivor failed: %w", err)
	}
	if err := s.store.ReplaceDetails(ctx, survivor.ID, survivor.Details); err != nil {
		return fmt.Errorf("unmerge: restoring survivor details failed: %w", err)
	}
	for i := range snapshot.Absorbed {
		row := snapshot.Absorbed[i]
		if err := s.store.RestoreRow(ctx, &row); err != nil {
			return fmt.Errorf("unmerge: restoring row %d failed: %w", row.ID, err)
		}
	}

	if err := s.store.MarkHistoryConsumed(ctx, id); err != nil {
		return fmt.Errorf("unmerge: consuming undo record failed: %w", err)
	}

	log.WithFields(log.Fields{
		"history":  id,
		"survivor": survivor.ID,
		"restored": len(snapshot.Absorbed),
	}).Info("ledger merge undone")
	return nil
}

// UndoableHistories lists the undo records still eligible for Unmerge,
// newest first.
func (s *Service) UndoableHistories(ctx context.Context) ([]ledger.MergeHistory, error) {
	return s.store.UndoableHistories(ctx)
}
