// Package store provides an in-memory ledger.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/transitpass/cardledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	nextID    ledger.RowID
	rows      map[ledger.RowID]ledger.Row
	cards     map[ledger.CardIdm]ledger.Card
	staff     map[ledger.StaffID]ledger.Staff
	histories map[ledger.HistoryID]ledger.MergeHistory

	// FailWrites makes every write return an error. Used by tests to
	// exercise store-failure paths.
	FailWrites bool
}

func NewMemory() *Memory {
	return &Memory{
		nextID:    1,
		rows:      make(map[ledger.RowID]ledger.Row),
		cards:     make(map[ledger.CardIdm]ledger.Card),
		staff:     make(map[ledger.StaffID]ledger.Staff),
		histories: make(map[ledger.HistoryID]ledger.MergeHistory),
	}
}

func (m *Memory) writeErr() error {
	if m.FailWrites {
		return fmt.Errorf("memory store: writes disabled")
	}
	return nil
}

// =============================================================================
// ROW STORE
// =============================================================================

func (m *Memory) GetRow(_ context.Context, id ledger.RowID) (*ledger.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, ledger.ErrRowNotFound
	}
	c := row.Clone()
	return &c, nil
}

func (m *Memory) InsertRow(_ context.Context, row *ledger.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	row.ID = m.nextID
	m.nextID++
	m.rows[row.ID] = row.Clone()
	return nil
}

func (m *Memory) UpdateRow(_ context.Context, row *ledger.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	existing, ok := m.rows[row.ID]
	if !ok {
		return ledger.ErrRowNotFound
	}
	updated := row.Clone()
	updated.Details = existing.Details // scalar update only
	m.rows[row.ID] = updated
	return nil
}

func (m *Memory) DeleteRow(_ context.Context, id ledger.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	if _, ok := m.rows[id]; !ok {
		return ledger.ErrRowNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *Memory) RestoreRow(_ context.Context, row *ledger.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	m.rows[row.ID] = row.Clone()
	if row.ID >= m.nextID {
		m.nextID = row.ID + 1
	}
	return nil
}

func (m *Memory) ReplaceDetails(_ context.Context, id ledger.RowID, details []ledger.SwipeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	row, ok := m.rows[id]
	if !ok {
		return ledger.ErrRowNotFound
	}
	row.Details = append([]ledger.SwipeRecord(nil), details...)
	m.rows[id] = row
	return nil
}

func (m *Memory) RowsByCard(_ context.Context, idm ledger.CardIdm) ([]ledger.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Row
	for _, row := range m.rows {
		if row.CardIdm == idm {
			result = append(result, row.Clone())
		}
	}
	ledger.SortRows(result)
	return result, nil
}

func (m *Memory) LatestRowBefore(ctx context.Context, idm ledger.CardIdm, date time.Time) (*ledger.Row, error) {
	rows, err := m.RowsByCard(ctx, idm)
	if err != nil {
		return nil, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].IsLentRecord {
			continue
		}
		if !rows[i].Date.After(date) {
			r := rows[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Memory) LendingPlaceholder(_ context.Context, idm ledger.CardIdm) (*ledger.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.rows {
		if row.CardIdm == idm && row.IsLentRecord {
			c := row.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

// =============================================================================
// CARD / STAFF STORE
// =============================================================================

func (m *Memory) GetCard(_ context.Context, idm ledger.CardIdm) (*ledger.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[idm]
	if !ok {
		return nil, ledger.ErrCardNotFound
	}
	return &card, nil
}

func (m *Memory) ListCards(_ context.Context) ([]ledger.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Card, 0, len(m.cards))
	for _, c := range m.cards {
		result = append(result, c)
	}
	return result, nil
}

func (m *Memory) SaveCard(_ context.Context, card ledger.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	m.cards[card.Idm] = card
	return nil
}

func (m *Memory) SetCardLendingState(_ context.Context, idm ledger.CardIdm, lent bool, at *time.Time, lender ledger.StaffID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	card, ok := m.cards[idm]
	if !ok {
		return ledger.ErrCardNotFound
	}
	card.Lending = lent
	card.LentAt = at
	card.LenderID = lender
	m.cards[idm] = card
	return nil
}

func (m *Memory) GetStaff(_ context.Context, id ledger.StaffID) (*ledger.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.staff[id]
	if !ok {
		return nil, ledger.ErrStaffNotFound
	}
	return &s, nil
}

func (m *Memory) ListStaff(_ context.Context) ([]ledger.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Staff, 0, len(m.staff))
	for _, s := range m.staff {
		result = append(result, s)
	}
	return result, nil
}

func (m *Memory) SaveStaff(_ context.Context, staff ledger.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	m.staff[staff.ID] = staff
	return nil
}

// =============================================================================
// HISTORY STORE
// =============================================================================

func (m *Memory) SaveMergeHistory(_ context.Context, h *ledger.MergeHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	stored := *h
	stored.Payload = append([]byte(nil), h.Payload...)
	m.histories[h.ID] = stored
	return nil
}

func (m *Memory) GetMergeHistory(_ context.Context, id ledger.HistoryID) (*ledger.MergeHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.histories[id]
	if !ok {
		return nil, ledger.ErrHistoryNotFound
	}
	c := h
	c.Payload = append([]byte(nil), h.Payload...)
	return &c, nil
}

func (m *Memory) UndoableHistories(_ context.Context) ([]ledger.MergeHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.MergeHistory
	for _, h := range m.histories {
		if !h.Consumed {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) MarkHistoryConsumed(_ context.Context, id ledger.HistoryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeErr(); err != nil {
		return err
	}
	h, ok := m.histories[id]
	if !ok {
		return ledger.ErrHistoryNotFound
	}
	if h.Consumed {
		return ledger.ErrHistoryConsumed
	}
	h.Consumed = true
	m.histories[id] = h
	return nil
}
