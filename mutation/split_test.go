package mutation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitpass/cardledger/ledger"
	"github.com/transitpass/cardledger/ledger/store"
)

func TestSplit_OneRowPerGroup(t *testing.T) {
	// GIVEN: A row whose four legs are tagged with two group ids
	// WHEN: Splitting
	// THEN: Two rows result; the first keeps the original id and note, the
	//       second is new with an empty note; group tags are cleared and
	//       the amount sums are preserved

	mem := store.NewMemory()
	s := NewService(mem)
	ctx := context.Background()

	original := seedRow(t, mem, ledger.Row{
		Date:      day(1),
		Summary:   "鉄道（天神～博多）、バス（博多駅前）",
		Expense:   decimal.NewFromInt(650),
		Balance:   decimal.NewFromInt(1350),
		StaffName: "山田",
		Note:      "二人分",
	})

	details := []ledger.SwipeRecord{
		{Seq: 1, UsedAt: tap(1, 9), EntryStation: "天神", ExitStation: "博多",
			Amount: decimal.NewFromInt(-210), Balance: decimal.NewFromInt(1790), GroupID: "a"},
		{Seq: 2, UsedAt: tap(1, 10), EntryStation: "博多", ExitStation: "天神",
			Amount: decimal.NewFromInt(-210), Balance: decimal.NewFromInt(1580), GroupID: "a"},
		{Seq: 3, UsedAt: tap(2, 8), IsBus: true, BusStop: "博多駅前",
			Amount: decimal.NewFromInt(-230), Balance: decimal.NewFromInt(1350), GroupID: "b"},
	}

	ids, err := s.Split(ctx, original, details)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, original, ids[0])
	assert.NotEqual(t, original, ids[1])

	first, err := mem.GetRow(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "鉄道（天神～博多 往復）", first.Summary)
	assert.True(t, first.Expense.Equal(decimal.NewFromInt(420)))
	assert.True(t, first.Balance.Equal(decimal.NewFromInt(1580)))
	assert.Equal(t, "二人分", first.Note)
	assert.Equal(t, "山田", first.StaffName)
	for _, d := range first.Details {
		assert.Empty(t, d.GroupID)
	}

	second, err := mem.GetRow(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "バス（博多駅前）", second.Summary)
	assert.True(t, second.Expense.Equal(decimal.NewFromInt(230)))
	assert.True(t, second.Balance.Equal(decimal.NewFromInt(1350)))
	assert.Empty(t, second.Note)
	assert.Equal(t, "山田", second.StaffName, "staff metadata copies to every resulting row")
	assert.Equal(t, day(2), second.Date)

	total := first.Expense.Add(second.Expense)
	assert.True(t, total.Equal(decimal.NewFromInt(650)), "split preserves the amount sum")
}

func TestSplit_ThreeGroupsThreeRows(t *testing.T) {
	mem := store.NewMemory()
	s := NewService(mem)
	ctx := context.Background()

	original := seedRow(t, mem, ledger.Row{
		Date: day(1), Expense: decimal.NewFromInt(600), Balance: decimal.NewFromInt(1400),
	})

	details := []ledger.SwipeRecord{
		{Seq: 1, UsedAt: tap(1, 9), EntryStation: "天神", ExitStation: "博多",
			Amount: decimal.NewFromInt(-200), Balance: decimal.NewFromInt(1800), GroupID: "a"},
		{Seq: 2, UsedAt: tap(1, 10), EntryStation: "薬院", ExitStation: "大橋",
			Amount: decimal.NewFromInt(-200), Balance: decimal.NewFromInt(1600), GroupID: "b"},
		{Seq: 3, UsedAt: tap(1, 11), EntryStation: "西新", ExitStation: "天神",
			Amount: decimal.NewFromInt(-200), Balance: decimal.NewFromInt(1400), GroupID: "c"},
	}

	ids, err := s.Split(ctx, original, details)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	rows, err := mem.RowsByCard(ctx, mergeCard)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSplit_Failures(t *testing.T) {
	mem := store.NewMemory()
	s := NewService(mem)
	ctx := context.Background()

	original := seedRow(t, mem, ledger.Row{
		Date: day(1), Expense: decimal.NewFromInt(210), Balance: decimal.NewFromInt(1790),
	})

	oneGroup := []ledger.SwipeRecord{
		{Seq: 1, UsedAt: tap(1, 9), EntryStation: "天神", ExitStation: "博多",
			Amount: decimal.NewFromInt(-210), Balance: decimal.NewFromInt(1790), GroupID: "a"},
	}

	_, err := s.Split(ctx, original, oneGroup)
	assert.ErrorIs(t, err, ledger.ErrTooFewGroups)

	_, err = s.Split(ctx, 9999, oneGroup)
	assert.ErrorIs(t, err, ledger.ErrRowNotFound)

	// The rejected attempts wrote nothing.
	rows, err := mem.RowsByCard(ctx, mergeCard)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.True(t, rows[0].Expense.Equal(decimal.NewFromInt(210)))
}
