/*
store.go - Persistence contracts for rows, cards, staff and undo records

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage; the
  lending controller and the mutation layer only ever see these contracts.

KEY INTERFACES:
  RowStore:     Ledger row persistence, detail ownership, chain seeding
  CardStore:    Card registry reads + the lending-state flip
  StaffStore:   Staff registry reads
  HistoryStore: Merge undo records (tagged snapshots)
  Store:        All of the above; what the controllers take

CONSISTENCY CONTRACT:
  Callers compute the full balance-chain result in memory before issuing
  writes for an operation. Implementations must make multi-row writes
  atomic where the backend supports it; the memory store holds its lock
  across a batch, the sqlite store uses database transactions.

IMPLEMENTATIONS:
  - store/sqlite:      Production SQLite
  - ledger/store:      In-memory for tests/dev
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// ROW STORE
// =============================================================================

// RowStore persists ledger rows and their raw legs.
type RowStore interface {
	// GetRow returns the row with its details. ErrRowNotFound if absent.
	GetRow(ctx context.Context, id RowID) (*Row, error)

	// InsertRow persists a new row (with details) and assigns row.ID.
	InsertRow(ctx context.Context, row *Row) error

	// UpdateRow rewrites every scalar field of an existing row.
	// Details are not touched; use ReplaceDetails.
	UpdateRow(ctx context.Context, row *Row) error

	// DeleteRow removes a row and its details. Only the merge path calls
	// this, and only after an undo snapshot has been saved.
	DeleteRow(ctx context.Context, id RowID) error

	// RestoreRow re-inserts a previously deleted row keeping row.ID.
	// Unmerge uses this so the pre-merge row set comes back id-for-id.
	RestoreRow(ctx context.Context, row *Row) error

	// ReplaceDetails swaps the full raw-leg set owned by a row.
	ReplaceDetails(ctx context.Context, id RowID, details []SwipeRecord) error

	// RowsByCard returns all rows of a card ordered by (Date, ID),
	// details loaded.
	RowsByCard(ctx context.Context, idm CardIdm) ([]Row, error)

	// LatestRowBefore returns the most recent non-placeholder row of the
	// card with Date <= date, by (Date, ID). Nil (not an error) when the
	// card has no such row. Used to seed the balance chain.
	LatestRowBefore(ctx context.Context, idm CardIdm, date time.Time) (*Row, error)

	// LendingPlaceholder returns the card's open placeholder row, or nil.
	LendingPlaceholder(ctx context.Context, idm CardIdm) (*Row, error)
}

// =============================================================================
// CARD / STAFF STORES
// =============================================================================

// CardStore reads the card registry and flips lending state. Card CRUD
// validation lives outside this core; SaveCard exists for seeding.
type CardStore interface {
	GetCard(ctx context.Context, idm CardIdm) (*Card, error)
	ListCards(ctx context.Context) ([]Card, error)
	SaveCard(ctx context.Context, card Card) error

	// SetCardLendingState flips the lending flag and records lender/time.
	// Pass lent=false with zero values to clear.
	SetCardLendingState(ctx context.Context, idm CardIdm, lent bool, at *time.Time, lender StaffID) error
}

type StaffStore interface {
	GetStaff(ctx context.Context, id StaffID) (*Staff, error)
	ListStaff(ctx context.Context) ([]Staff, error)
	SaveStaff(ctx context.Context, staff Staff) error
}

// =============================================================================
// HISTORY STORE - Undo records
// =============================================================================

// HistoryStore persists merge undo snapshots. Append-and-consume: records
// are never rewritten, only marked consumed.
type HistoryStore interface {
	SaveMergeHistory(ctx context.Context, h *MergeHistory) error

	// GetMergeHistory returns the record regardless of consumed state.
	GetMergeHistory(ctx context.Context, id HistoryID) (*MergeHistory, error)

	// UndoableHistories returns unconsumed records, newest first.
	UndoableHistories(ctx context.Context) ([]MergeHistory, error)

	MarkHistoryConsumed(ctx context.Context, id HistoryID) error
}

// Store is the full persistence surface the controllers operate against.
type Store interface {
	RowStore
	CardStore
	StaffStore
	HistoryStore
}
