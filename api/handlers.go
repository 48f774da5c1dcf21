/*
handlers.go - HTTP handlers for the card lending and ledger system

PURPOSE:
  Exposes the lending controller and the ledger mutation service over
  REST. Handles HTTP request/response, JSON serialization, and delegates
  everything else to the domain packages.

ENDPOINTS:
  Cards:
    GET    /api/cards                      List registered cards
    GET    /api/cards/{idm}                Card details + lending state
    GET    /api/cards/{idm}/ledger         Ledger rows (date range / fiscal year)
    POST   /api/cards/{idm}/lend           Lend the card to a staff member
    POST   /api/cards/{idm}/return         Return the card with its raw taps
    GET    /api/cards/{idm}/retouch        Retouch-window state for the card
    POST   /api/cards/{idm}/import         Bulk ledger import (dry_run supported)

  Staff:
    GET    /api/staff                      List staff

  Ledger mutations:
    POST   /api/ledger/merge               Merge rows into one
    POST   /api/ledger/unmerge             Undo a merge by history id
    GET    /api/ledger/histories           Unconsumed merge histories
    POST   /api/ledger/rows/{id}/split     Split a row by detail group tags

  Operator session:
    POST   /api/retouch/clear              Drop all retouch state

RESPONSE SHAPE:
  Every endpoint returns the {ok, message, data} envelope. Failures set
  ok=false and a human-readable message.

ERROR HANDLING:
  Domain error categories map onto HTTP status:
  - 400: validation (bad input, merge/split preconditions)
  - 404: unknown card, staff, row or history
  - 409: state conflict (already lent, lock busy, consumed history)
  - 422: balance-chain mismatch
  - 500: store failure

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/transitpass/cardledger/ledger"
	"github.com/transitpass/cardledger/lending"
	"github.com/transitpass/cardledger/mutation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    ledger.Store
	Lending  *lending.Controller
	Mutation *mutation.Service
}

// NewHandler wires the handler against the store and the two controllers.
func NewHandler(store ledger.Store, lend *lending.Controller, mut *mutation.Service) *Handler {
	return &Handler{
		Store:    store,
		Lending:  lend,
		Mutation: mut,
	}
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// ListCards returns the card registry with lending state.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.Store.ListCards(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]cardDTO, len(cards))
	for i, c := range cards {
		dtos[i] = toCardDTO(c)
	}
	writeOK(w, http.StatusOK, dtos)
}

// GetCard returns one card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	idm := ledger.CardIdm(chi.URLParam(r, "idm"))

	card, err := h.Store.GetCard(r.Context(), idm)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, toCardDTO(*card))
}

// GetLedger returns a card's ledger rows, placeholder rows filtered out.
// Optional filters: from/to (YYYY-MM-DD, inclusive) or fiscal_year (the
// April-to-March year starting in the given calendar year).
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	idm := ledger.CardIdm(chi.URLParam(r, "idm"))

	if _, err := h.Store.GetCard(r.Context(), idm); err != nil {
		writeDomainError(w, err)
		return
	}

	from, to, err := parseLedgerRange(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.Store.RowsByCard(r.Context(), idm)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]rowDTO, 0, len(rows))
	for _, row := range rows {
		if row.IsLentRecord {
			continue
		}
		if from != nil && row.Date.Before(*from) {
			continue
		}
		if to != nil && row.Date.After(*to) {
			continue
		}
		dtos = append(dtos, toRowDTO(row))
	}
	writeOK(w, http.StatusOK, dtos)
}

// parseLedgerRange resolves from/to or fiscal_year query parameters into an
// inclusive date window. fiscal_year wins when both are supplied.
func parseLedgerRange(r *http.Request) (*time.Time, *time.Time, error) {
	if fy := r.URL.Query().Get("fiscal_year"); fy != "" {
		year, err := strconv.Atoi(fy)
		if err != nil {
			return nil, nil, errors.New("fiscal_year must be a calendar year")
		}
		start := time.Date(year, time.April, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(year+1, time.March, 31, 0, 0, 0, 0, time.UTC)
		return &start, &end, nil
	}

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, nil, errors.New("from must be YYYY-MM-DD")
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, nil, errors.New("to must be YYYY-MM-DD")
		}
		to = &t
	}
	return from, to, nil
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// ListStaff returns the staff registry.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.Store.ListStaff(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]staffDTO, len(staff))
	for i, s := range staff {
		dtos[i] = staffDTO{ID: string(s.ID), Name: s.Name}
	}
	writeOK(w, http.StatusOK, dtos)
}

// =============================================================================
// LENDING HANDLERS
// =============================================================================

// Lend lends the card to the requesting staff member.
func (h *Handler) Lend(w http.ResponseWriter, r *http.Request) {
	idm := ledger.CardIdm(chi.URLParam(r, "idm"))

	var req lendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StaffID == "" {
		writeFail(w, http.StatusBadRequest, "staff_id is required")
		return
	}

	result, err := h.Lending.Lend(r.Context(), ledger.StaffID(req.StaffID), idm)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, toRowDTO(result.Row))
}

// Return returns a lent card, carrying the raw taps read off it.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	idm := ledger.CardIdm(chi.URLParam(r, "idm"))

	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StaffID == "" {
		writeFail(w, http.StatusBadRequest, "staff_id is required")
		return
	}

	result, err := h.Lending.Return(r.Context(), ledger.StaffID(req.StaffID), idm, fromDetailDTOs(req.Details))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ids := make([]int64, len(result.RowIDs))
	for i, id := range result.RowIDs {
		ids[i] = int64(id)
	}
	writeOK(w, http.StatusOK, returnResponse{
		RowIDs:       ids,
		FinalBalance: result.FinalBalance,
		HasBusUsage:  result.HasBusUsage,
		LowBalance:   result.LowBalance,
	})
}

// GetRetouch reports whether a fresh tap of this card falls inside the
// retouch window, and which operation it would reverse.
func (h *Handler) GetRetouch(w http.ResponseWriter, r *http.Request) {
	idm := ledger.CardIdm(chi.URLParam(r, "idm"))

	resp := retouchResponse{Retouch: h.Lending.IsRetouchWithinTimeout(idm)}
	if resp.Retouch {
		resp.LastOp = string(h.Lending.LastOperation(idm))
	}
	writeOK(w, http.StatusOK, resp)
}

// ClearRetouch drops all retouch state, e.g. when the kiosk session ends.
func (h *Handler) ClearRetouch(w http.ResponseWriter, r *http.Request) {
	h.Lending.ClearHistory()
	writeOK(w, http.StatusOK, nil)
}

// =============================================================================
// MUTATION HANDLERS
// =============================================================================

// Merge combines the requested rows into one, returning the undo history id.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ids := make([]ledger.RowID, len(req.RowIDs))
	for i, id := range req.RowIDs {
		ids[i] = ledger.RowID(id)
	}

	historyID, err := h.Mutation.Merge(r.Context(), ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"history_id": string(historyID)})
}

// Unmerge restores the pre-merge row set recorded under a history id.
func (h *Handler) Unmerge(w http.ResponseWriter, r *http.Request) {
	var req unmergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HistoryID == "" {
		writeFail(w, http.StatusBadRequest, "history_id is required")
		return
	}

	if err := h.Mutation.Unmerge(r.Context(), ledger.HistoryID(req.HistoryID)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

// ListHistories returns unconsumed merge histories, newest first.
func (h *Handler) ListHistories(w http.ResponseWriter, r *http.Request) {
	histories, err := h.Mutation.UndoableHistories(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type historyDTO struct {
		ID         string `json:"id"`
		Kind       string `json:"kind"`
		SurvivorID int64  `json:"survivor_id"`
		CreatedAt  string `json:"created_at"`
	}
	dtos := make([]historyDTO, len(histories))
	for i, hist := range histories {
		dtos[i] = historyDTO{
			ID:         string(hist.ID),
			Kind:       string(hist.Kind),
			SurvivorID: int64(hist.SurvivorID),
			CreatedAt:  hist.CreatedAt.Format(time.RFC3339),
		}
	}
	writeOK(w, http.StatusOK, dtos)
}

// Split fans a row out into one row per detail group tag.
func (h *Handler) Split(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "row id must be an integer")
		return
	}

	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rowIDs, err := h.Mutation.Split(r.Context(), ledger.RowID(id), fromDetailDTOs(req.Details))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ids := make([]int64, len(rowIDs))
	for i, rid := range rowIDs {
		ids[i] = int64(rid)
	}
	writeOK(w, http.StatusOK, map[string]any{"row_ids": ids})
}

// Import validates (and unless dry_run, applies) a ledger batch.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	idm := ledger.CardIdm(chi.URLParam(r, "idm"))

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	incoming := make([]ledger.Row, 0, len(req.Rows))
	for _, in := range req.Rows {
		date, err := time.Parse("2006-01-02", in.Date)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "row date must be YYYY-MM-DD")
			return
		}
		incoming = append(incoming, ledger.Row{
			ID:        ledger.RowID(in.ID),
			CardIdm:   idm,
			Date:      date,
			Summary:   in.Summary,
			Income:    in.Income,
			Expense:   in.Expense,
			Balance:   in.Balance,
			StaffName: in.Staff,
			Note:      in.Note,
		})
	}

	if req.DryRun {
		if err := h.Mutation.ValidateImport(r.Context(), idm, incoming); err != nil {
			writeDomainError(w, err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"dry_run": true, "rows": len(incoming)})
		return
	}

	rowIDs, err := h.Mutation.ApplyImport(r.Context(), idm, incoming)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ids := make([]int64, len(rowIDs))
	for i, rid := range rowIDs {
		ids[i] = int64(rid)
	}
	writeOK(w, http.StatusOK, map[string]any{"row_ids": ids})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{OK: true, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{OK: false, Message: message})
}

// writeDomainError maps a domain error category onto an HTTP status. The
// message is the error text itself; domain errors are written to be shown.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsValidation(err):
		status = http.StatusBadRequest
	case ledger.IsStateConflict(err):
		status = http.StatusConflict
	case ledger.IsConsistency(err):
		status = http.StatusUnprocessableEntity
	}
	writeFail(w, status, err.Error())
}
