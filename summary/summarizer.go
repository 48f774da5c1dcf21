/*
Package summary converts a card's raw tap history into ledger entries.

PURPOSE:
  The physical card exposes its history newest-first, with each record
  carrying the balance after the event. This package reconstructs
  chronological order, groups by calendar date, merges transfer legs,
  detects round trips, and emits human-readable daily entries.

ALGORITHM (GenerateByDate):
  1. Discard unusable records (no use date, no station/charge/bus signal)
  2. Invert the list so legs run oldest-to-newest
  3. Partition by calendar date
  4. Per date: emit one entry per charge, then a single usage entry
     covering every rail segment and bus leg of that day
  5. Order output by date ascending, charges before usage within a day

PURITY:
  No I/O, no shared state, input never modified. Calling twice with the
  same input yields the same output.

SEE ALSO:
  - lending: walks the balance chain over these entries on card return
  - mutation: re-derives summaries after merge/split
*/
package summary

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transitpass/cardledger/ledger"
)

// Fixed display strings. These are observable output; changing them changes
// every persisted summary going forward.
const (
	LabelCharge      = "チャージ"
	LabelRail        = "鉄道"
	LabelBus         = "バス"
	LabelUnknownStop = "（不明）"
	labelRoundTrip   = "往復"
	clauseSeparator  = "、"
)

type Kind string

const (
	KindCharge Kind = "charge"
	KindUsage  Kind = "usage"
)

// Entry is one summarized ledger entry for a single date: either one charge
// or the whole day's usage. Balance is the post-event balance of the
// newest record the entry covers.
type Entry struct {
	Date    time.Time
	Kind    Kind
	Summary string
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
	HasBus  bool
	Records []ledger.SwipeRecord // covered legs, oldest-first
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateByDate turns raw tap records (newest-first, as read off the card)
// into entries ordered by date ascending, then reconstructed intra-day
// position. Unusable records are skipped silently; a day with only
// unusable records yields no entry.
func GenerateByDate(records []ledger.SwipeRecord) []Entry {
	chrono := usableOldestFirst(records)

	var entries []Entry
	for _, day := range partitionByDate(chrono) {
		entries = append(entries, summarizeDay(day)...)
	}
	return entries
}

// Generate is the convenience form for a batch that should read as one
// summary string: entry clauses joined in date order, consecutive
// duplicate clauses collapsed (two charges do not read "チャージ、チャージ").
func Generate(records []ledger.SwipeRecord) string {
	var clauses []string
	for _, e := range GenerateByDate(records) {
		if n := len(clauses); n > 0 && clauses[n-1] == e.Summary {
			continue
		}
		clauses = append(clauses, e.Summary)
	}
	return strings.Join(clauses, clauseSeparator)
}

// usableOldestFirst filters out unusable records and inverts the card's
// newest-first order. The inversion is what makes the balance chain walk
// strictly forward: same-day consumption decreases the balance, so the
// lower post-balance record is the earlier one.
func usableOldestFirst(records []ledger.SwipeRecord) []ledger.SwipeRecord {
	var out []ledger.SwipeRecord
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Usable() {
			out = append(out, records[i])
		}
	}
	return out
}

type dayGroup struct {
	date    time.Time
	records []ledger.SwipeRecord // oldest-first
}

func partitionByDate(chrono []ledger.SwipeRecord) []dayGroup {
	var groups []dayGroup
	index := make(map[time.Time]int)
	for _, r := range chrono {
		d := ledger.Day(*r.UsedAt)
		i, ok := index[d]
		if !ok {
			i = len(groups)
			index[d] = i
			groups = append(groups, dayGroup{date: d})
		}
		groups[i].records = append(groups[i].records, r)
	}
	// Dates ascend; intra-day order is already chronological.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].date.Before(groups[j].date)
	})
	return groups
}

// summarizeDay emits the entries for one date: one per charge record,
// then a single usage entry. Charges come first regardless of raw input
// order; per the balance chain a same-day charge funds the usage that
// follows it.
func summarizeDay(day dayGroup) []Entry {
	var charges, usage []ledger.SwipeRecord
	for _, r := range day.records {
		if r.IsCharge {
			charges = append(charges, r)
		} else {
			usage = append(usage, r)
		}
	}

	var entries []Entry
	for _, c := range charges {
		entries = append(entries, Entry{
			Date:    day.date,
			Kind:    KindCharge,
			Summary: LabelCharge,
			Income:  c.Amount.Abs(),
			Expense: decimal.Zero,
			Balance: c.Balance,
			Records: []ledger.SwipeRecord{c},
		})
	}
	if len(usage) > 0 {
		entries = append(entries, summarizeUsage(day.date, usage))
	}
	return entries
}

// summarizeUsage builds the single usage entry for a date out of its rail
// and bus legs (oldest-first).
func summarizeUsage(date time.Time, usage []ledger.SwipeRecord) Entry {
	var rail, bus []ledger.SwipeRecord
	for _, r := range usage {
		if r.IsBus {
			bus = append(bus, r)
		} else {
			rail = append(rail, r)
		}
	}

	var clauses []string
	if len(rail) > 0 {
		clauses = append(clauses, railClauses(rail)...)
	}
	if len(bus) > 0 {
		clauses = append(clauses, busClause(bus))
	}

	expense := decimal.Zero
	for _, r := range usage {
		expense = expense.Add(r.Amount.Abs())
	}

	return Entry{
		Date:    date,
		Kind:    KindUsage,
		Summary: strings.Join(clauses, clauseSeparator),
		Income:  decimal.Zero,
		Expense: expense,
		Balance: usage[len(usage)-1].Balance,
		HasBus:  len(bus) > 0,
		Records: usage,
	}
}

// railClauses renders the day's rail legs. A palindrome pair (A→B then
// B→A) is a round trip in the older leg's direction; otherwise adjacent
// legs chain into transfers wherever one leg's exit is the next leg's
// entry. The round-trip check runs first: a palindrome also satisfies the
// transfer condition and would otherwise collapse to A→A.
func railClauses(rail []ledger.SwipeRecord) []string {
	if len(rail) == 2 &&
		rail[1].EntryStation == rail[0].ExitStation &&
		rail[1].ExitStation == rail[0].EntryStation {
		return []string{LabelRail + "（" + rail[0].EntryStation + "～" + rail[0].ExitStation + " " + labelRoundTrip + "）"}
	}

	type segment struct{ entry, exit string }
	var segments []segment
	for _, leg := range rail {
		if n := len(segments); n > 0 && segments[n-1].exit == leg.EntryStation {
			segments[n-1].exit = leg.ExitStation // transfer: extend, drop the midpoint
			continue
		}
		segments = append(segments, segment{entry: leg.EntryStation, exit: leg.ExitStation})
	}

	clauses := make([]string, 0, len(segments))
	for _, s := range segments {
		clauses = append(clauses, LabelRail+"（"+s.entry+"～"+s.exit+"）")
	}
	return clauses
}

// busClause renders the day's bus legs oldest-first. An unset stop
// description is shown with a placeholder rather than omitted, so the
// stop count stays visible.
func busClause(bus []ledger.SwipeRecord) string {
	stops := make([]string, 0, len(bus))
	for _, leg := range bus {
		stop := leg.BusStop
		if stop == "" {
			stop = LabelUnknownStop
		}
		stops = append(stops, stop)
	}
	return LabelBus + "（" + strings.Join(stops, clauseSeparator) + "）"
}
