/*
errors.go - Centralized error types for the card ledger

PURPOSE:
  All error values in one place for consistency and discoverability.
  Higher layers wrap these with operation context via fmt.Errorf + %w.

ERROR CATEGORIES (spec'd taxonomy):
  1. Validation errors   - bad input shape, rejected before any mutation
  2. State conflicts     - precondition/concurrency violations, retryable
  3. Consistency errors  - balance-chain corruption, block the mutation
  4. Store failures      - persistence faults, wrapped with context

USAGE:
  if errors.Is(err, ledger.ErrCardAlreadyLent) { ... }
  if ledger.IsValidation(err) { respond 400 }
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCardNotFound is returned when a referenced card does not exist.
	ErrCardNotFound = errors.New("card not found")

	// ErrStaffNotFound is returned when a referenced staff member does not exist.
	ErrStaffNotFound = errors.New("staff not found")

	// ErrRowNotFound is returned when a referenced ledger row does not exist.
	ErrRowNotFound = errors.New("ledger row not found")

	// ErrHistoryNotFound is returned when a referenced undo record does not exist.
	ErrHistoryNotFound = errors.New("merge history not found")

	// ErrCardAlreadyLent is returned when lending a card that is already out.
	ErrCardAlreadyLent = errors.New("card already lent")

	// ErrCardNotLent is returned when returning a card that is not out.
	ErrCardNotLent = errors.New("card not currently lent")

	// ErrPlaceholderMissing is returned when a return finds no lending
	// placeholder row to convert. Indicates prior state corruption.
	ErrPlaceholderMissing = errors.New("lending placeholder row missing")

	// ErrOperationInProgress is returned when the per-card lock could not be
	// acquired within the bounded wait. Safe to retry.
	ErrOperationInProgress = errors.New("operation already in progress for this card")

	// ErrHistoryConsumed is returned when re-applying an undo record that
	// was already used.
	ErrHistoryConsumed = errors.New("merge history already consumed")

	// ErrTooFewRows is returned when a merge names fewer than two rows.
	ErrTooFewRows = errors.New("merge requires at least two rows")

	// ErrTooFewGroups is returned when a split has fewer than two distinct groups.
	ErrTooFewGroups = errors.New("split requires at least two distinct groups")

	// ErrCrossCardMerge is returned when merge inputs span multiple cards.
	ErrCrossCardMerge = errors.New("cannot merge rows of different cards")

	// ErrPlaceholderInMerge is returned when a lending placeholder is named
	// in a merge set.
	ErrPlaceholderInMerge = errors.New("cannot merge a lending placeholder row")

	// ErrChargeUsageMix is returned when a merge mixes charge-only rows with
	// usage rows.
	ErrChargeUsageMix = errors.New("cannot merge charge rows with usage rows")

	// ErrChainMismatch is returned when the running-balance invariant is
	// violated. See ChainError for the offending row.
	ErrChainMismatch = errors.New("balance chain mismatch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ChainError reports the first row violating the balance-chain invariant:
// its expected balance derived from the immediately preceding row, and the
// value actually recorded.
type ChainError struct {
	RowID    RowID
	Date     time.Time
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("balance chain mismatch at row %d (%s): expected %s, actual %s",
		e.RowID, e.Date.Format("2006-01-02"), e.Expected.String(), e.Actual.String())
}

func (e *ChainError) Unwrap() error { return ErrChainMismatch }

// =============================================================================
// CATEGORY PREDICATES
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrStaffNotFound) ||
		errors.Is(err, ErrRowNotFound) ||
		errors.Is(err, ErrHistoryNotFound)
}

// IsValidation reports whether the error is a pre-mutation input rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrTooFewRows) ||
		errors.Is(err, ErrTooFewGroups) ||
		errors.Is(err, ErrCrossCardMerge) ||
		errors.Is(err, ErrPlaceholderInMerge) ||
		errors.Is(err, ErrChargeUsageMix) ||
		IsNotFound(err)
}

// IsStateConflict reports whether the error is a precondition or concurrency
// violation. These are always safe to retry after inspection.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrCardAlreadyLent) ||
		errors.Is(err, ErrCardNotLent) ||
		errors.Is(err, ErrPlaceholderMissing) ||
		errors.Is(err, ErrOperationInProgress) ||
		errors.Is(err, ErrHistoryConsumed)
}

// IsConsistency reports whether the error indicates ledger data corruption.
// Mutations must be blocked entirely when this is true.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrChainMismatch)
}
