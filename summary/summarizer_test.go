/*
summarizer_test.go - Unit tests for tap-history summarization

CORE DESIGN:
- Input is newest-first, exactly as read off the card
- Output entries ascend by date, charges before usage within a day
- The function is pure: no state, input never modified
*/
package summary

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitpass/cardledger/ledger"
)

func at(day int, hour int) *time.Time {
	t := time.Date(2026, time.June, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func rail(seq int, used *time.Time, entry, exit string, amount, balance int64) ledger.SwipeRecord {
	return ledger.SwipeRecord{
		Seq:          seq,
		UsedAt:       used,
		EntryStation: entry,
		ExitStation:  exit,
		Amount:       decimal.NewFromInt(amount),
		Balance:      decimal.NewFromInt(balance),
	}
}

func bus(seq int, used *time.Time, stop string, amount, balance int64) ledger.SwipeRecord {
	return ledger.SwipeRecord{
		Seq:     seq,
		UsedAt:  used,
		BusStop: stop,
		IsBus:   true,
		Amount:  decimal.NewFromInt(amount),
		Balance: decimal.NewFromInt(balance),
	}
}

func charge(seq int, used *time.Time, amount, balance int64) ledger.SwipeRecord {
	return ledger.SwipeRecord{
		Seq:      seq,
		UsedAt:   used,
		IsCharge: true,
		Amount:   decimal.NewFromInt(amount),
		Balance:  decimal.NewFromInt(balance),
	}
}

// =============================================================================
// ROUND TRIPS AND TRANSFERS
// =============================================================================

func TestGenerateByDate_RoundTrip(t *testing.T) {
	// GIVEN: An out-and-back pair on one day, newest-first
	// WHEN: Summarizing
	// THEN: One usage entry in the older leg's direction

	records := []ledger.SwipeRecord{
		rail(2, at(1, 18), "博多", "天神", -210, 1580),
		rail(1, at(1, 9), "天神", "博多", -210, 1790),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 1)
	assert.Equal(t, "鉄道（天神～博多 往復）", entries[0].Summary)
	assert.Equal(t, KindUsage, entries[0].Kind)
	assert.True(t, entries[0].Expense.Equal(decimal.NewFromInt(420)))
	assert.True(t, entries[0].Balance.Equal(decimal.NewFromInt(1580)))
}

func TestGenerateByDate_RoundTripNotCollapsedToSameStation(t *testing.T) {
	// A palindrome pair also satisfies the transfer condition; it must never
	// render as 鉄道（天神～天神）.

	records := []ledger.SwipeRecord{
		rail(2, at(1, 18), "博多", "天神", -210, 1580),
		rail(1, at(1, 9), "天神", "博多", -210, 1790),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Summary, "天神～天神")
}

func TestGenerateByDate_TransferMerge(t *testing.T) {
	// GIVEN: Two legs where the first exit equals the second entry
	// WHEN: Summarizing
	// THEN: One segment spanning the transfer, midpoint dropped

	records := []ledger.SwipeRecord{
		rail(2, at(1, 10), "薬院", "大橋", -150, 1500),
		rail(1, at(1, 9), "天神", "薬院", -150, 1650),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 1)
	assert.Equal(t, "鉄道（天神～大橋）", entries[0].Summary)
}

func TestGenerateByDate_DisjointLegsStaySeparate(t *testing.T) {
	records := []ledger.SwipeRecord{
		rail(2, at(1, 15), "中洲川端", "西新", -200, 1400),
		rail(1, at(1, 9), "天神", "博多", -210, 1600),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 1)
	assert.Equal(t, "鉄道（天神～博多）、鉄道（中洲川端～西新）", entries[0].Summary)
}

func TestGenerateByDate_ThreeLegsNeverRoundTrip(t *testing.T) {
	// Round-trip rendering is strictly for an exact pair.

	records := []ledger.SwipeRecord{
		rail(3, at(1, 20), "天神", "博多", -210, 1200),
		rail(2, at(1, 18), "博多", "天神", -210, 1410),
		rail(1, at(1, 9), "天神", "博多", -210, 1620),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Summary, "往復")
	// Legs chain as transfers: 天神→博多→天神→博多.
	assert.Equal(t, "鉄道（天神～博多）", entries[0].Summary)
}

// =============================================================================
// CHARGES, BUSES, UNUSABLE RECORDS
// =============================================================================

func TestGenerateByDate_ChargeBeforeUsage(t *testing.T) {
	// GIVEN: A day with a charge and a rail leg, charge newest
	// WHEN: Summarizing
	// THEN: Charge entry first, then the usage entry

	records := []ledger.SwipeRecord{
		rail(2, at(1, 12), "天神", "博多", -210, 2790),
		charge(1, at(1, 9), 2000, 3000),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 2)
	assert.Equal(t, KindCharge, entries[0].Kind)
	assert.Equal(t, LabelCharge, entries[0].Summary)
	assert.True(t, entries[0].Income.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, KindUsage, entries[1].Kind)
}

func TestGenerateByDate_BusStops(t *testing.T) {
	records := []ledger.SwipeRecord{
		bus(2, at(1, 17), "", -230, 1340),
		bus(1, at(1, 8), "博多駅前", -230, 1570),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 1)
	assert.Equal(t, "バス（博多駅前、（不明））", entries[0].Summary)
	assert.True(t, entries[0].HasBus)
}

func TestGenerateByDate_SkipsUnusableRecords(t *testing.T) {
	// Records with no use date or no station/charge/bus signal contribute
	// nothing. A pure point redemption has neither.

	pointOnly := ledger.SwipeRecord{Seq: 3, UsedAt: at(1, 10), IsPoint: true,
		Amount: decimal.NewFromInt(50), Balance: decimal.NewFromInt(1650)}
	noDate := rail(2, nil, "天神", "博多", -210, 1600)

	records := []ledger.SwipeRecord{
		pointOnly,
		noDate,
		rail(1, at(1, 9), "天神", "博多", -210, 1600),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 1)
	assert.Equal(t, "鉄道（天神～博多）", entries[0].Summary)
}

func TestGenerateByDate_EmptyAndAllUnusable(t *testing.T) {
	assert.Empty(t, GenerateByDate(nil))
	assert.Empty(t, GenerateByDate([]ledger.SwipeRecord{rail(1, nil, "天神", "博多", -210, 1600)}))
}

// =============================================================================
// DATE PARTITIONING AND ORDERING
// =============================================================================

func TestGenerateByDate_MultipleDatesAscend(t *testing.T) {
	records := []ledger.SwipeRecord{
		rail(3, at(3, 9), "西新", "天神", -200, 1200),
		charge(2, at(2, 12), 1000, 1400),
		rail(1, at(1, 9), "天神", "博多", -210, 400),
	}

	entries := GenerateByDate(records)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.Day(*at(1, 0)), entries[0].Date)
	assert.Equal(t, ledger.Day(*at(2, 0)), entries[1].Date)
	assert.Equal(t, ledger.Day(*at(3, 0)), entries[2].Date)
}

func TestGenerateByDate_Pure(t *testing.T) {
	// Same input twice gives the same output, and the input is untouched.

	records := []ledger.SwipeRecord{
		rail(2, at(1, 18), "博多", "天神", -210, 1580),
		rail(1, at(1, 9), "天神", "博多", -210, 1790),
	}
	snapshot := append([]ledger.SwipeRecord(nil), records...)

	first := GenerateByDate(records)
	second := GenerateByDate(records)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, records)
}

func TestGenerate_CollapsesConsecutiveDuplicates(t *testing.T) {
	// Two charges on adjacent dates read as one チャージ clause.

	records := []ledger.SwipeRecord{
		charge(2, at(2, 9), 1000, 3000),
		charge(1, at(1, 9), 1000, 2000),
	}

	assert.Equal(t, LabelCharge, Generate(records))
}

func TestGenerate_JoinsClausesInDateOrder(t *testing.T) {
	records := []ledger.SwipeRecord{
		rail(2, at(2, 9), "天神", "博多", -210, 2790),
		charge(1, at(1, 9), 2000, 3000),
	}

	assert.Equal(t, "チャージ、鉄道（天神～博多）", Generate(records))
}
