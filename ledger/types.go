/*
Package ledger provides the core data model for the transit card ledger.

PURPOSE:
  This package defines the records the whole system operates on: physical
  cards and the staff who borrow them, the raw tap events read off a card,
  and the persisted ledger rows that track income, expense and running
  balance per card. It also owns the balance-chain invariant and the store
  contracts every persistence backend implements.

KEY CONCEPTS IN THIS FILE (types.go):
  - Card / Staff: registry records (read-mostly from this core's view)
  - SwipeRecord: one physical tap event (rail leg, bus leg, or charge)
  - Row: one persisted ledger entry for a card on a given date
  - MergeHistory: serialized undo snapshot for a merge operation

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money fields, never floats
  2. Type safety: CardIdm, StaffID and RowID are distinct types
  3. Reversibility: destructive merges snapshot full row state first

SEE ALSO:
  - chain.go: the running-balance invariant
  - errors.go: sentinel and structured errors
  - store.go: persistence contracts
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// CardIdm is the fixed-length hexadecimal identifier burned into a card.
type CardIdm string

// StaffID is the hexadecimal identifier of a staff member.
type StaffID string

// RowID is the insertion sequence of a ledger row. Higher means inserted later.
type RowID int64

// HistoryID identifies a stored undo record.
type HistoryID string

// =============================================================================
// CARD / STAFF
// =============================================================================

type CardType string

const (
	CardTypeNimoca    CardType = "nimoca"
	CardTypeSugoca    CardType = "sugoca"
	CardTypeHayakaken CardType = "hayakaken"
)

// Card is a physical transit card lent to staff.
type Card struct {
	Idm          CardIdm
	Type         CardType
	ManagementNo string // human-facing label, e.g. "No.3"
	StartPage    int    // first report page, used by the reporting layer
	Lending      bool
	LenderID     StaffID
	LentAt       *time.Time
}

type Staff struct {
	ID   StaffID
	Name string
}

// =============================================================================
// SWIPE RECORD - One physical tap event read off a card
// =============================================================================

// SwipeRecord is a single usage event as the card exposes it: a rail leg,
// a bus leg, a charge, or a point redemption. The card lists records
// newest-first; Balance is the balance after the event.
type SwipeRecord struct {
	Seq          int // position within the card's history; stable across merges
	UsedAt       *time.Time
	EntryStation string
	ExitStation  string
	BusStop      string
	IsCharge     bool
	IsBus        bool
	IsPoint      bool
	Amount       decimal.Decimal // signed: positive for charge, negative for usage
	Balance      decimal.Decimal
	GroupID      string // split tag; empty outside a split operation
}

// IsRail reports whether the record is a rail leg with a resolvable
// station pair.
func (r SwipeRecord) IsRail() bool {
	return !r.IsCharge && !r.IsBus && r.EntryStation != "" && r.ExitStation != ""
}

// Usable reports whether the record can contribute to a summary.
// Records with no use date, or with neither a station pair nor a
// charge/bus signal, are skipped without producing output.
func (r SwipeRecord) Usable() bool {
	if r.UsedAt == nil {
		return false
	}
	return r.IsCharge || r.IsBus || (r.EntryStation != "" && r.ExitStation != "")
}

// =============================================================================
// LEDGER ROW - One persisted income/expense/balance entry
// =============================================================================

// Row is one ledger entry for a card on a given date.
//
// INVARIANT: for any two rows of the same card ordered by (Date, ID),
//
//	row[n].Balance == row[n-1].Balance + row[n].Income - row[n].Expense
//
// A lending placeholder (IsLentRecord) carries zero income/expense and the
// previous row's balance, so the invariant holds across it unchanged.
type Row struct {
	ID      RowID
	CardIdm CardIdm
	Date    time.Time // day granularity, UTC midnight
	Summary string
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal

	StaffName string
	Note      string

	// Lending fields. Set on the placeholder at lend time; ReturnedAt and
	// ReturnerID are filled when the placeholder is converted on return.
	LenderID     StaffID
	ReturnerID   StaffID
	LentAt       *time.Time
	ReturnedAt   *time.Time
	IsLentRecord bool

	// Raw legs owned by this row. Needed by merge (union of legs) and
	// split (legs tagged with group ids).
	Details []SwipeRecord
}

// Clone returns a deep copy; Details are copied, pointer fields re-allocated.
func (r Row) Clone() Row {
	c := r
	c.Details = append([]SwipeRecord(nil), r.Details...)
	if r.LentAt != nil {
		t := *r.LentAt
		c.LentAt = &t
	}
	if r.ReturnedAt != nil {
		t := *r.ReturnedAt
		c.ReturnedAt = &t
	}
	return c
}

// Day truncates t to UTC midnight. Ledger rows are keyed by day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// MERGE HISTORY - Tagged undo record
// =============================================================================

type HistoryKind string

const (
	HistoryMerge HistoryKind = "merge"
)

// MergeHistory is an operation-log record holding the serialized pre-merge
// state. Payload is a JSON-encoded MergeSnapshot. Once consumed by an
// unmerge it can never be applied again.
type MergeHistory struct {
	ID         HistoryID
	Kind       HistoryKind
	SurvivorID RowID
	Payload    []byte
	CreatedAt  time.Time
	Consumed   bool
}

// MergeSnapshot is the full-field capture taken before a merge commits:
// the survivor's pre-merge state, every row about to disappear, and the
// mapping from raw-leg sequence numbers to their originating rows (needed
// to hand legs back on unmerge).
type MergeSnapshot struct {
	Survivor     Row           `json:"survivor"`
	Absorbed     []Row         `json:"absorbed"`
	DetailOwners map[int]RowID `json:"detail_owners"`
}
