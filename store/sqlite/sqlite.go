/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists cards, staff, ledger rows, their raw legs, and merge undo
  records. The schema auto-migrates on open; use ":memory:" for tests.

KEY TABLES:
  cards:           card registry + lending flag
  staff:           staff registry
  ledger_rows:     one row per card/date/kind entry; id is the insertion
                   sequence the merge tie-break and chain ordering rely on
  ledger_details:  raw legs owned by a row, keyed (row_id, seq)
  merge_histories: serialized undo snapshots, append-and-consume

CONCURRENCY:
  A sync.RWMutex serializes access on top of WAL mode. Multi-statement
  writes (row+details, delete sets) run inside database transactions so a
  failure never leaves a partially written ledger.

MONEY:
  Amounts are stored as decimal strings, never floats.

SEE ALSO:
  - ledger/store.go: the contracts implemented here
  - ledger/store/memory.go: in-memory twin for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/transitpass/cardledger/ledger"
)

const dayFormat = "2006-01-02"

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cards (
		idm TEXT PRIMARY KEY,
		card_type TEXT NOT NULL,
		management_no TEXT NOT NULL DEFAULT '',
		start_page INTEGER NOT NULL DEFAULT 0,
		lending BOOLEAN NOT NULL DEFAULT FALSE,
		lender_id TEXT NOT NULL DEFAULT '',
		lent_at TEXT
	);

	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	-- Ledger rows. id is the insertion sequence; (card_idm, date, id) is
	-- the canonical chain order.
	CREATE TABLE IF NOT EXISTS ledger_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		card_idm TEXT NOT NULL,
		date TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		income TEXT NOT NULL,
		expense TEXT NOT NULL,
		balance TEXT NOT NULL,
		staff_name TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		lender_id TEXT NOT NULL DEFAULT '',
		returner_id TEXT NOT NULL DEFAULT '',
		lent_at TEXT,
		returned_at TEXT,
		is_lent_record BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_rows_card_date
		ON ledger_rows(card_idm, date, id);
	CREATE INDEX IF NOT EXISTS idx_rows_lending
		ON ledger_rows(card_idm, is_lent_record);

	-- Raw legs owned by a row. seq is the card's transaction counter and
	-- survives merges, which is what lets unmerge hand legs back.
	CREATE TABLE IF NOT EXISTS ledger_details (
		row_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		used_at TEXT,
		entry_station TEXT NOT NULL DEFAULT '',
		exit_station TEXT NOT NULL DEFAULT '',
		bus_stop TEXT NOT NULL DEFAULT '',
		is_charge BOOLEAN NOT NULL DEFAULT FALSE,
		is_bus BOOLEAN NOT NULL DEFAULT FALSE,
		is_point BOOLEAN NOT NULL DEFAULT FALSE,
		amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		group_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (row_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_details_row
		ON ledger_details(row_id, seq);

	-- Undo records. Append-and-consume, never rewritten.
	CREATE TABLE IF NOT EXISTS merge_histories (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		survivor_id INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		consumed BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_histories_consumed
		ON merge_histories(consumed, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW STORE (ledger.RowStore interface)
// =============================================================================

const rowColumns = `id, card_idm, date, summary, income, expense, balance,
	staff_name, note, lender_id, returner_id, lent_at, returned_at, is_lent_record`

func (s *Store) GetRow(ctx context.Context, id ledger.RowID) (*ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, err := s.scanRow(s.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM ledger_rows WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) InsertRow(ctx context.Context, row *ledger.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_rows
			(card_idm, date, summary, income, expense, balance, staff_name, note,
			 lender_id, returner_id, lent_at, returned_at, is_lent_record)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.CardIdm,
			row.Date.Format(dayFormat),
			row.Summary,
			row.Income.String(),
			row.Expense.String(),
			row.Balance.String(),
			row.StaffName,
			row.Note,
			row.LenderID,
			row.ReturnerID,
			nullTime(row.LentAt),
			nullTime(row.ReturnedAt),
			row.IsLentRecord,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		row.ID = ledger.RowID(id)
		return insertDetails(ctx, tx, row.ID, row.Details)
	})
}

func (s *Store) UpdateRow(ctx context.Context, row *ledger.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_rows SET
			card_idm = ?, date = ?, summary = ?, income = ?, expense = ?,
			balance = ?, staff_name = ?, note = ?, lender_id = ?,
			returner_id = ?, lent_at = ?, returned_at = ?, is_lent_record = ?
		WHERE id = ?`,
		row.CardIdm,
		row.Date.Format(dayFormat),
		row.Summary,
		row.Income.String(),
		row.Expense.String(),
		row.Balance.String(),
		row.StaffName,
		row.Note,
		row.LenderID,
		row.ReturnerID,
		nullTime(row.LentAt),
		nullTime(row.ReturnedAt),
		row.IsLentRecord,
		row.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, ledger.ErrRowNotFound)
}

func (s *Store) DeleteRow(ctx context.Context, id ledger.RowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_details WHERE row_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, ledger.ErrRowNotFound)
	})
}

func (s *Store) RestoreRow(ctx context.Context, row *ledger.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_rows
			(id, card_idm, date, summary, income, expense, balance, staff_name, note,
			 lender_id, returner_id, lent_at, returned_at, is_lent_record)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID,
			row.CardIdm,
			row.Date.Format(dayFormat),
			row.Summary,
			row.Income.String(),
			row.Expense.String(),
			row.Balance.String(),
			row.StaffName,
			row.Note,
			row.LenderID,
			row.ReturnerID,
			nullTime(row.LentAt),
			nullTime(row.ReturnedAt),
			row.IsLentRecord,
		)
		if err != nil {
			return err
		}
		return insertDetails(ctx, tx, row.ID, row.Details)
	})
}

func (s *Store) ReplaceDetails(ctx context.Context, id ledger.RowID, details []ledger.SwipeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_details WHERE row_id = ?`, id); err != nil {
			return err
		}
		return insertDetails(ctx, tx, id, details)
	})
}

func (s *Store) RowsByCard(ctx context.Context, idm ledger.CardIdm) ([]ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM ledger_rows WHERE card_idm = ? ORDER BY date, id`, idm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Row
	index := make(map[ledger.RowID]int)
	for rows.Next() {
		row, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		index[row.ID] = len(result)
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// One pass over all of the card's legs instead of a query per row.
	detailRows, err := s.db.QueryContext(ctx, `
		SELECT d.row_id, d.seq, d.used_at, d.entry_station, d.exit_station,
		       d.bus_stop, d.is_charge, d.is_bus, d.is_point, d.amount,
		       d.balance, d.group_id
		FROM ledger_details d
		JOIN ledger_rows r ON r.id = d.row_id
		WHERE r.card_idm = ?
		ORDER BY d.row_id, d.seq`, idm)
	if err != nil {
		return nil, err
	}
	defer detailRows.Close()

	for detailRows.Next() {
		var rowID ledger.RowID
		detail, err := scanDetail(detailRows, &rowID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[rowID]; ok {
			result[i].Details = append(result[i].Details, detail)
		}
	}
	return result, detailRows.Err()
}

func (s *Store) LatestRowBefore(ctx context.Context, idm ledger.CardIdm, date time.Time) (*ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, err := s.scanRow(s.db.QueryRowContext(ctx, `
		SELECT `+rowColumns+` FROM ledger_rows
		WHERE card_idm = ? AND date <= ? AND is_lent_record = FALSE
		ORDER BY date DESC, id DESC LIMIT 1`,
		idm, date.Format(dayFormat)))
	if err == ledger.ErrRowNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) LendingPlaceholder(ctx context.Context, idm ledger.CardIdm) (*ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, err := s.scanRow(s.db.QueryRowContext(ctx, `
		SELECT `+rowColumns+` FROM ledger_rows
		WHERE card_idm = ? AND is_lent_record = TRUE
		ORDER BY id DESC LIMIT 1`, idm))
	if err == ledger.ErrRowNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// =============================================================================
// CARD / STAFF STORE
// =============================================================================

func (s *Store) GetCard(ctx context.Context, idm ledger.CardIdm) (*ledger.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanCard(s.db.QueryRowContext(ctx, `
		SELECT idm, card_type, management_no, start_page, lending, lender_id, lent_at
		FROM cards WHERE idm = ?`, idm))
}

func (s *Store) ListCards(ctx context.Context) ([]ledger.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT idm, card_type, management_no, start_page, lending, lender_id, lent_at
		FROM cards ORDER BY management_no, idm`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *card)
	}
	return result, rows.Err()
}

func (s *Store) SaveCard(ctx context.Context, card ledger.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (idm, card_type, management_no, start_page, lending, lender_id, lent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idm) DO UPDATE SET
			card_type = excluded.card_type,
			management_no = excluded.management_no,
			start_page = excluded.start_page,
			lending = excluded.lending,
			lender_id = excluded.lender_id,
			lent_at = excluded.lent_at`,
		card.Idm, card.Type, card.ManagementNo, card.StartPage,
		card.Lending, card.LenderID, nullTime(card.LentAt))
	return err
}

func (s *Store) SetCardLendingState(ctx context.Context, idm ledger.CardIdm, lent bool, at *time.Time, lender ledger.StaffID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE cards SET lending = ?, lent_at = ?, lender_id = ? WHERE idm = ?`,
		lent, nullTime(at), lender, idm)
	if err != nil {
		return err
	}
	return requireAffected(res, ledger.ErrCardNotFound)
}

func (s *Store) GetStaff(ctx context.Context, id ledger.StaffID) (*ledger.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var staff ledger.Staff
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM staff WHERE id = ?`, id).Scan(&staff.ID, &staff.Name)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrStaffNotFound
	}
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]ledger.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM staff ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Staff
	for rows.Next() {
		var staff ledger.Staff
		if err := rows.Scan(&staff.ID, &staff.Name); err != nil {
			return nil, err
		}
		result = append(result, staff)
	}
	return result, rows.Err()
}

func (s *Store) SaveStaff(ctx context.Context, staff ledger.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		staff.ID, staff.Name)
	return err
}

// =============================================================================
// HISTORY STORE
// =============================================================================

func (s *Store) SaveMergeHistory(ctx context.Context, h *ledger.MergeHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merge_histories (id, kind, survivor_id, payload, created_at, consumed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.Kind, h.SurvivorID, string(h.Payload),
		h.CreatedAt.UTC().Format(time.RFC3339), h.Consumed)
	return err
}

func (s *Store) GetMergeHistory(ctx context.Context, id ledger.HistoryID) (*ledger.MergeHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanHistory(s.db.QueryRowContext(ctx, `
		SELECT id, kind, survivor_id, payload, created_at, consumed
		FROM merge_histories WHERE id = ?`, id))
}

func (s *Store) UndoableHistories(ctx context.Context) ([]ledger.MergeHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, survivor_id, payload, created_at, consumed
		FROM merge_histories WHERE consumed = FALSE
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.MergeHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

func (s *Store) MarkHistoryConsumed(ctx context.Context, id ledger.HistoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE merge_histories SET consumed = TRUE WHERE id = ? AND consumed = FALSE`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish missing from already-consumed.
		var consumed bool
		err := s.db.QueryRowContext(ctx,
			`SELECT consumed FROM merge_histories WHERE id = ?`, id).Scan(&consumed)
		if err == sql.ErrNoRows {
			return ledger.ErrHistoryNotFound
		}
		if err != nil {
			return err
		}
		return ledger.ErrHistoryConsumed
	}
	return nil
}

// =============================================================================
// SCAN / WRITE HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRow(sc rowScanner) (*ledger.Row, error) {
	var (
		row                      ledger.Row
		date                     string
		income, expense, balance string
		lentAt, returnedAt       sql.NullString
	)
	err := sc.Scan(&row.ID, &row.CardIdm, &date, &row.Summary, &income, &expense,
		&balance, &row.StaffName, &row.Note, &row.LenderID, &row.ReturnerID,
		&lentAt, &returnedAt, &row.IsLentRecord)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrRowNotFound
	}
	if err != nil {
		return nil, err
	}

	if row.Date, err = time.ParseInLocation(dayFormat, date, time.UTC); err != nil {
		return nil, fmt.Errorf("corrupt row date %q: %w", date, err)
	}
	if row.Income, err = decimal.NewFromString(income); err != nil {
		return nil, fmt.Errorf("corrupt income %q: %w", income, err)
	}
	if row.Expense, err = decimal.NewFromString(expense); err != nil {
		return nil, fmt.Errorf("corrupt expense %q: %w", expense, err)
	}
	if row.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt balance %q: %w", balance, err)
	}
	row.LentAt = parseNullTime(lentAt)
	row.ReturnedAt = parseNullTime(returnedAt)
	return &row, nil
}

func (s *Store) loadDetails(ctx context.Context, row *ledger.Row) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_id, seq, used_at, entry_station, exit_station, bus_stop,
		       is_charge, is_bus, is_point, amount, balance, group_id
		FROM ledger_details WHERE row_id = ? ORDER BY seq`, row.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rowID ledger.RowID
		detail, err := scanDetail(rows, &rowID)
		if err != nil {
			return err
		}
		row.Details = append(row.Details, detail)
	}
	return rows.Err()
}

func scanDetail(sc rowScanner, rowID *ledger.RowID) (ledger.SwipeRecord, error) {
	var (
		d               ledger.SwipeRecord
		usedAt          sql.NullString
		amount, balance string
	)
	err := sc.Scan(rowID, &d.Seq, &usedAt, &d.EntryStation, &d.ExitStation,
		&d.BusStop, &d.IsCharge, &d.IsBus, &d.IsPoint, &amount, &balance, &d.GroupID)
	if err != nil {
		return d, err
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return d, fmt.Errorf("corrupt detail amount %q: %w", amount, err)
	}
	if d.Balance, err = decimal.NewFromString(balance); err != nil {
		return d, fmt.Errorf("corrupt detail balance %q: %w", balance, err)
	}
	d.UsedAt = parseNullTime(usedAt)
	return d, nil
}

func insertDetails(ctx context.Context, tx *sql.Tx, id ledger.RowID, details []ledger.SwipeRecord) error {
	for _, d := range details {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_details
			(row_id, seq, used_at, entry_station, exit_station, bus_stop,
			 is_charge, is_bus, is_point, amount, balance, group_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, d.Seq, nullTime(d.UsedAt), d.EntryStation, d.ExitStation,
			d.BusStop, d.IsCharge, d.IsBus, d.IsPoint,
			d.Amount.String(), d.Balance.String(), d.GroupID)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanCard(sc rowScanner) (*ledger.Card, error) {
	var (
		card   ledger.Card
		lentAt sql.NullString
	)
	err := sc.Scan(&card.Idm, &card.Type, &card.ManagementNo, &card.StartPage,
		&card.Lending, &card.LenderID, &lentAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	card.LentAt = parseNullTime(lentAt)
	return &card, nil
}

func scanHistory(sc rowScanner) (*ledger.MergeHistory, error) {
	var (
		h         ledger.MergeHistory
		payload   string
		createdAt string
	)
	err := sc.Scan(&h.ID, &h.Kind, &h.SurvivorID, &payload, &createdAt, &h.Consumed)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrHistoryNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Payload = []byte(payload)
	if h.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt history timestamp %q: %w", createdAt, err)
	}
	return &h, nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireAffected(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
