/*
sqlite_test.go - SQLite store round-trip tests

Runs everything against ":memory:" databases; each test gets a fresh
schema from the auto-migration.
*/
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitpass/cardledger/ledger"
)

const testCard = ledger.CardIdm("0102030405060708")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDay(d int) time.Time {
	return time.Date(2026, time.June, d, 0, 0, 0, 0, time.UTC)
}

func testRow(d int, income, expense, balance int64) ledger.Row {
	return ledger.Row{
		CardIdm: testCard,
		Date:    testDay(d),
		Income:  decimal.NewFromInt(income),
		Expense: decimal.NewFromInt(expense),
		Balance: decimal.NewFromInt(balance),
	}
}

// =============================================================================
// ROWS
// =============================================================================

func TestRow_InsertGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	used := time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	lent := time.Date(2026, time.June, 1, 8, 30, 0, 0, time.UTC)

	row := testRow(1, 0, 210, 1790)
	row.Summary = "鉄道（天神～博多）"
	row.StaffName = "山田"
	row.Note = "出張"
	row.LenderID = "a1b2c3d4"
	row.LentAt = &lent
	row.Details = []ledger.SwipeRecord{
		{Seq: 1, UsedAt: &used, EntryStation: "天神", ExitStation: "博多",
			Amount: decimal.NewFromInt(-210), Balance: decimal.NewFromInt(1790), GroupID: "a"},
	}

	require.NoError(t, s.InsertRow(ctx, &row))
	require.NotZero(t, row.ID)

	got, err := s.GetRow(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.CardIdm, got.CardIdm)
	assert.True(t, got.Date.Equal(testDay(1)))
	assert.Equal(t, "鉄道（天神～博多）", got.Summary)
	assert.True(t, got.Expense.Equal(decimal.NewFromInt(210)))
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(1790)))
	assert.Equal(t, "出張", got.Note)
	require.NotNil(t, got.LentAt)
	assert.True(t, got.LentAt.Equal(lent))

	require.Len(t, got.Details, 1)
	assert.Equal(t, "天神", got.Details[0].EntryStation)
	assert.Equal(t, "a", got.Details[0].GroupID)
	require.NotNil(t, got.Details[0].UsedAt)
	assert.True(t, got.Details[0].UsedAt.Equal(used))
}

func TestRow_UpdateScalarsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	used := time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	row := testRow(1, 0, 210, 1790)
	row.Details = []ledger.SwipeRecord{
		{Seq: 1, UsedAt: &used, IsCharge: true,
			Amount: decimal.NewFromInt(2000), Balance: decimal.NewFromInt(2000)},
	}
	require.NoError(t, s.InsertRow(ctx, &row))

	row.Summary = "訂正"
	row.Balance = decimal.NewFromInt(1500)
	require.NoError(t, s.UpdateRow(ctx, &row))

	got, err := s.GetRow(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "訂正", got.Summary)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(1500)))
	assert.Len(t, got.Details, 1, "UpdateRow leaves details alone")

	assert.ErrorIs(t, s.UpdateRow(ctx, &ledger.Row{ID: 9999,
		Income: decimal.Zero, Expense: decimal.Zero, Balance: decimal.Zero}), ledger.ErrRowNotFound)
}

func TestRow_DeleteAndRestoreKeepsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	used := time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	row := testRow(1, 1000, 0, 1000)
	row.Details = []ledger.SwipeRecord{
		{Seq: 1, UsedAt: &used, IsCharge: true,
			Amount: decimal.NewFromInt(1000), Balance: decimal.NewFromInt(1000)},
	}
	require.NoError(t, s.InsertRow(ctx, &row))
	originalID := row.ID

	require.NoError(t, s.DeleteRow(ctx, originalID))
	_, err := s.GetRow(ctx, originalID)
	assert.ErrorIs(t, err, ledger.ErrRowNotFound)
	assert.ErrorIs(t, s.DeleteRow(ctx, originalID), ledger.ErrRowNotFound)

	require.NoError(t, s.RestoreRow(ctx, &row))
	got, err := s.GetRow(ctx, originalID)
	require.NoError(t, err)
	assert.Equal(t, originalID, got.ID)
	assert.Len(t, got.Details, 1)

	// A later insert must not collide with the restored id.
	next := testRow(2, 0, 200, 800)
	require.NoError(t, s.InsertRow(ctx, &next))
	assert.Greater(t, next.ID, originalID)
}

func TestRow_ReplaceDetails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	used := time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	row := testRow(1, 0, 210, 1790)
	row.Details = []ledger.SwipeRecord{
		{Seq: 1, UsedAt: &used, EntryStation: "天神", ExitStation: "博多",
			Amount: decimal.NewFromInt(-210), Balance: decimal.NewFromInt(1790)},
	}
	require.NoError(t, s.InsertRow(ctx, &row))

	replacement := []ledger.SwipeRecord{
		{Seq: 2, UsedAt: &used, IsBus: true, BusStop: "博多駅前",
			Amount: decimal.NewFromInt(-230), Balance: decimal.NewFromInt(1560)},
		{Seq: 3, UsedAt: &used, IsBus: true,
			Amount: decimal.NewFromInt(-230), Balance: decimal.NewFromInt(1330)},
	}
	require.NoError(t, s.ReplaceDetails(ctx, row.ID, replacement))

	got, err := s.GetRow(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, got.Details, 2)
	assert.Equal(t, 2, got.Details[0].Seq)
	assert.True(t, got.Details[0].IsBus)
}

func TestRowsByCard_OrderAndDetailOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	used := time.Date(2026, time.June, 2, 9, 0, 0, 0, time.UTC)

	second := testRow(2, 0, 200, 800)
	second.Details = []ledger.SwipeRecord{
		{Seq: 2, UsedAt: &used, EntryStation: "天神", ExitStation: "博多",
			Amount: decimal.NewFromInt(-200), Balance: decimal.NewFromInt(800)},
	}
	first := testRow(1, 1000, 0, 1000)

	// Insert out of date order; reads come back (date, id) ordered.
	require.NoError(t, s.InsertRow(ctx, &second))
	require.NoError(t, s.InsertRow(ctx, &first))

	other := ledger.Row{CardIdm: "ffffffffffffffff", Date: testDay(1),
		Income: decimal.Zero, Expense: decimal.Zero, Balance: decimal.Zero}
	require.NoError(t, s.InsertRow(ctx, &other))

	rows, err := s.RowsByCard(ctx, testCard)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Date.Equal(testDay(1)))
	assert.Empty(t, rows[0].Details)
	require.Len(t, rows[1].Details, 1)
	assert.Equal(t, 2, rows[1].Details[0].Seq)
}

func TestLatestRowBefore_SkipsPlaceholders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	charge := testRow(1, 1000, 0, 1000)
	require.NoError(t, s.InsertRow(ctx, &charge))

	placeholder := testRow(2, 0, 0, 1000)
	placeholder.IsLentRecord = true
	require.NoError(t, s.InsertRow(ctx, &placeholder))

	got, err := s.LatestRowBefore(ctx, testCard, testDay(5))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, charge.ID, got.ID)

	// No rows at or before the date: nil, not an error.
	got, err = s.LatestRowBefore(ctx, testCard, testDay(0).AddDate(0, -1, 0))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLendingPlaceholder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LendingPlaceholder(ctx, testCard)
	require.NoError(t, err)
	assert.Nil(t, got)

	placeholder := testRow(1, 0, 0, 500)
	placeholder.IsLentRecord = true
	placeholder.Summary = "貸出中"
	require.NoError(t, s.InsertRow(ctx, &placeholder))

	got, err = s.LendingPlaceholder(ctx, testCard)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, placeholder.ID, got.ID)
	assert.Equal(t, "貸出中", got.Summary)
}

// =============================================================================
// CARDS / STAFF
// =============================================================================

func TestCard_SaveGetAndLendingState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCard(ctx, ledger.Card{
		Idm: testCard, Type: ledger.CardTypeNimoca, ManagementNo: "No.3", StartPage: 5,
	}))

	got, err := s.GetCard(ctx, testCard)
	require.NoError(t, err)
	assert.Equal(t, ledger.CardTypeNimoca, got.Type)
	assert.Equal(t, "No.3", got.ManagementNo)
	assert.False(t, got.Lending)

	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetCardLendingState(ctx, testCard, true, &now, "a1b2c3d4"))

	got, err = s.GetCard(ctx, testCard)
	require.NoError(t, err)
	assert.True(t, got.Lending)
	assert.Equal(t, ledger.StaffID("a1b2c3d4"), got.LenderID)
	require.NotNil(t, got.LentAt)
	assert.True(t, got.LentAt.Equal(now))

	require.NoError(t, s.SetCardLendingState(ctx, testCard, false, nil, ""))
	got, err = s.GetCard(ctx, testCard)
	require.NoError(t, err)
	assert.False(t, got.Lending)
	assert.Nil(t, got.LentAt)

	_, err = s.GetCard(ctx, "ffffffffffffffff")
	assert.ErrorIs(t, err, ledger.ErrCardNotFound)
	assert.ErrorIs(t, s.SetCardLendingState(ctx, "ffffffffffffffff", true, &now, "x"),
		ledger.ErrCardNotFound)
}

func TestStaff_SaveGetList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveStaff(ctx, ledger.Staff{ID: "bb", Name: "田中"}))
	require.NoError(t, s.SaveStaff(ctx, ledger.Staff{ID: "aa", Name: "山田"}))

	got, err := s.GetStaff(ctx, "aa")
	require.NoError(t, err)
	assert.Equal(t, "山田", got.Name)

	_, err = s.GetStaff(ctx, "zz")
	assert.ErrorIs(t, err, ledger.ErrStaffNotFound)

	list, err := s.ListStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// =============================================================================
// HISTORIES
// =============================================================================

func TestMergeHistory_SaveConsumeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := &ledger.MergeHistory{
		ID:         "hist-1",
		Kind:       ledger.HistoryMerge,
		SurvivorID: 7,
		Payload:    []byte(`{"survivor":{}}`),
		CreatedAt:  time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveMergeHistory(ctx, h))

	got, err := s.GetMergeHistory(ctx, "hist-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.RowID(7), got.SurvivorID)
	assert.Equal(t, h.Payload, got.Payload)
	assert.False(t, got.Consumed)

	undoable, err := s.UndoableHistories(ctx)
	require.NoError(t, err)
	require.Len(t, undoable, 1)

	require.NoError(t, s.MarkHistoryConsumed(ctx, "hist-1"))
	assert.ErrorIs(t, s.MarkHistoryConsumed(ctx, "hist-1"), ledger.ErrHistoryConsumed)
	assert.ErrorIs(t, s.MarkHistoryConsumed(ctx, "hist-2"), ledger.ErrHistoryNotFound)

	undoable, err = s.UndoableHistories(ctx)
	require.NoError(t, err)
	assert.Empty(t, undoable)

	// Consumed records stay readable.
	got, err = s.GetMergeHistory(ctx, "hist-1")
	require.NoError(t, err)
	assert.True(t, got.Consumed)
}

func TestUndoableHistories_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := &ledger.MergeHistory{ID: "old", Kind: ledger.HistoryMerge, SurvivorID: 1,
		Payload: []byte(`{}`), CreatedAt: time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)}
	newer := &ledger.MergeHistory{ID: "new", Kind: ledger.HistoryMerge, SurvivorID: 2,
		Payload: []byte(`{}`), CreatedAt: time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, s.SaveMergeHistory(ctx, older))
	require.NoError(t, s.SaveMergeHistory(ctx, newer))

	got, err := s.UndoableHistories(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger.HistoryID("new"), got[0].ID)
	assert.Equal(t, ledger.HistoryID("old"), got[1].ID)
}
