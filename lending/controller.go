package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/transitpass/cardledger/ledger"
	"github.com/transitpass/cardledger/summary"
)

// PlaceholderSummary is the fixed summary on a lending placeholder row.
const PlaceholderSummary = "貸出中"

// noUsageSummary is written when a card comes back with no usable taps.
const noUsageSummary = "利用なし"

// Settings supplies the deployment knobs the controller reads.
type Settings interface {
	// LowBalanceWarning is the threshold at or below which a returned
	// card's balance is flagged for recharge.
	LowBalanceWarning() decimal.Decimal
}

// =============================================================================
// CONTROLLER - The lend/return state machine
// =============================================================================

// Controller orchestrates Lend and Return under per-card mutual exclusion.
// Every mutation path acquires the card's lock first and releases it on
// every exit; stable card states are Available and Lent.
type Controller struct {
	store    ledger.Store
	locks    *LockManager
	retouch  *RetouchState
	settings Settings
	now      func() time.Time
}

func NewController(store ledger.Store, locks *LockManager, retouch *RetouchState, settings Settings) *Controller {
	return &Controller{
		store:    store,
		locks:    locks,
		retouch:  retouch,
		settings: settings,
		now:      time.Now,
	}
}

type LendResult struct {
	Row ledger.Row // the inserted placeholder
}

type ReturnResult struct {
	RowIDs       []ledger.RowID
	FinalBalance decimal.Decimal
	HasBusUsage  bool
	LowBalance   bool
}

// Lend flips an available card to Lent: inserts the zero-value placeholder
// row, then records the lender on the card. Fails distinctly on unknown
// card, unknown staff, already-lent card, lock timeout, or store failure.
func (c *Controller) Lend(ctx context.Context, staffID ledger.StaffID, idm ledger.CardIdm) (*LendResult, error) {
	release, err := c.locks.Acquire(ctx, idm)
	if err != nil {
		return nil, err
	}
	defer release()

	card, err := c.store.GetCard(ctx, idm)
	if err != nil {
		return nil, err
	}
	if card.Lending {
		return nil, ledger.ErrCardAlreadyLent
	}
	staff, err := c.store.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	prior, err := c.store.LatestRowBefore(ctx, idm, ledger.Day(now))
	if err != nil {
		return nil, fmt.Errorf("lend: reading ledger failed: %w", err)
	}

	placeholder := ledger.Row{
		CardIdm:      idm,
		Date:         ledger.Day(now),
		Summary:      PlaceholderSummary,
		Income:       decimal.Zero,
		Expense:      decimal.Zero,
		Balance:      ledger.ChainSeed(prior),
		StaffName:    staff.Name,
		LenderID:     staffID,
		LentAt:       &now,
		IsLentRecord: true,
	}
	if err := c.store.InsertRow(ctx, &placeholder); err != nil {
		return nil, fmt.Errorf("lend: writing ledger failed: %w", err)
	}
	if err := c.store.SetCardLendingState(ctx, idm, true, &now, staffID); err != nil {
		return nil, fmt.Errorf("lend: updating card failed: %w", err)
	}

	c.retouch.Record(idm, OpLend)
	log.WithFields(log.Fields{"card": idm, "staff": staffID}).Info("card lent")
	return &LendResult{Row: placeholder}, nil
}

// Return flips a lent card back to Available. The card's taps recorded
// during the loan are summarized into per-date rows; income, expense and
// balance are re-derived by walking the balance chain from the most recent
// prior ledger balance. The placeholder converts into the first row, any
// further dates insert new rows.
func (c *Controller) Return(ctx context.Context, staffID ledger.StaffID, idm ledger.CardIdm, details []ledger.SwipeRecord) (*ReturnResult, error) {
	release, err := c.locks.Acquire(ctx, idm)
	if err != nil {
		return nil, err
	}
	defer release()

	card, err := c.store.GetCard(ctx, idm)
	if err != nil {
		return nil, err
	}
	if !card.Lending {
		return nil, ledger.ErrCardNotLent
	}
	staff, err := c.store.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	placeholder, err := c.store.LendingPlaceholder(ctx, idm)
	if err != nil {
		return nil, fmt.Errorf("return: reading ledger failed: %w", err)
	}
	if placeholder == nil {
		return nil, ledger.ErrPlaceholderMissing
	}

	now := c.now()
	prior, err := c.store.LatestRowBefore(ctx, idm, ledger.Day(now))
	if err != nil {
		return nil, fmt.Errorf("return: reading ledger failed: %w", err)
	}

	// Full result computed in memory before any write.
	entries := summary.GenerateByDate(details)
	rows, result := c.buildReturnRows(*placeholder, staff, staffID, entries, ledger.ChainSeed(prior), now)

	for i := range rows {
		if rows[i].ID == placeholder.ID {
			if err := c.store.UpdateRow(ctx, &rows[i]); err != nil {
				return nil, fmt.Errorf("return: writing ledger failed: %w", err)
			}
			if err := c.store.ReplaceDetails(ctx, rows[i].ID, rows[i].Details); err != nil {
				return nil, fmt.Errorf("return: writing ledger failed: %w", err)
			}
		} else {
			if err := c.store.InsertRow(ctx, &rows[i]); err != nil {
				return nil, fmt.Errorf("return: writing ledger failed: %w", err)
			}
		}
		result.RowIDs = append(result.RowIDs, rows[i].ID)
	}

	if err := c.store.SetCardLendingState(ctx, idm, false, nil, ""); err != nil {
		return nil, fmt.Errorf("return: updating card failed: %w", err)
	}

	c.retouch.Record(idm, OpReturn)
	log.WithFields(log.Fields{
		"card":    idm,
		"staff":   staffID,
		"rows":    len(rows),
		"balance": result.FinalBalance.String(),
	}).Info("card returned")
	return result, nil
}

// buildReturnRows materializes the rows a return will write. The first
// entry overwrites the placeholder (keeping its id and lender fields),
// later entries become new rows carrying the same lending metadata.
// Income and expense come from the chain walk, not the summarizer's own
// sums, so the invariant holds even over gappy card history.
func (c *Controller) buildReturnRows(placeholder ledger.Row, staff *ledger.Staff, returner ledger.StaffID, entries []summary.Entry, seed decimal.Decimal, now time.Time) ([]ledger.Row, *ReturnResult) {
	result := &ReturnResult{FinalBalance: seed}

	base := placeholder.Clone()
	base.ReturnerID = returner
	base.ReturnedAt = &now
	base.IsLentRecord = false

	if len(entries) == 0 {
		// Card came back untouched: the placeholder converts into a
		// zero-value row so the loan still leaves a trace.
		base.Summary = noUsageSummary
		base.Balance = seed
		result.LowBalance = c.isLow(seed)
		return []ledger.Row{base}, result
	}

	rows := make([]ledger.Row, 0, len(entries))
	prev := seed
	for i, e := range entries {
		row := base.Clone()
		if i > 0 {
			row.ID = 0 // new insertion
			row.StaffName = staff.Name
		}
		row.Date = e.Date
		row.Summary = e.Summary
		row.Balance = e.Balance
		if e.Kind == summary.KindCharge {
			row.Income = e.Balance.Sub(prev)
			row.Expense = decimal.Zero
		} else {
			row.Income = decimal.Zero
			row.Expense = prev.Sub(e.Balance)
		}
		row.Details = append([]ledger.SwipeRecord(nil), e.Records...)
		prev = e.Balance

		if e.HasBus {
			result.HasBusUsage = true
		}
		rows = append(rows, row)
	}

	result.FinalBalance = prev
	result.LowBalance = c.isLow(prev)
	return rows, result
}

func (c *Controller) isLow(balance decimal.Decimal) bool {
	return balance.LessThanOrEqual(c.settings.LowBalanceWarning())
}

// IsRetouchWithinTimeout reports whether a new tap of idm should be read
// as the reverse of the operation just performed on it.
func (c *Controller) IsRetouchWithinTimeout(idm ledger.CardIdm) bool {
	return c.retouch.IsRetouchWithinTimeout(idm)
}

// LastOperation exposes the retouch kind for callers picking the reverse.
func (c *Controller) LastOperation(idm ledger.CardIdm) OperationKind {
	return c.retouch.LastKind(idm)
}

// ClearHistory resets retouch state, e.g. when an operator session ends.
func (c *Controller) ClearHistory() {
	c.retouch.ClearHistory()
}
