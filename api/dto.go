package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/transitpass/cardledger/ledger"
)

// =============================================================================
// RESPONSE ENVELOPE
// =============================================================================

// Response is the structured result every endpoint returns: success flag,
// a non-empty message on failure, and any payload.
type Response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// =============================================================================
// REQUEST / RESPONSE BODIES
// =============================================================================

type lendRequest struct {
	StaffID string `json:"staff_id"`
}

type returnRequest struct {
	StaffID string      `json:"staff_id"`
	Details []detailDTO `json:"details"`
}

type mergeRequest struct {
	RowIDs []int64 `json:"row_ids"`
}

type unmergeRequest struct {
	HistoryID string `json:"history_id"`
}

type splitRequest struct {
	Details []detailDTO `json:"details"`
}

type importRequest struct {
	Rows   []importRowDTO `json:"rows"`
	DryRun bool           `json:"dry_run"`
}

type importRowDTO struct {
	ID      int64           `json:"id,omitempty"` // 0 = insert
	Date    string          `json:"date"`         // 2006-01-02
	Summary string          `json:"summary"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
	Staff   string          `json:"staff_name"`
	Note    string          `json:"note"`
}

type returnResponse struct {
	RowIDs       []int64         `json:"row_ids"`
	FinalBalance decimal.Decimal `json:"final_balance"`
	HasBusUsage  bool            `json:"has_bus_usage"`
	LowBalance   bool            `json:"low_balance"`
}

type retouchResponse struct {
	Retouch bool   `json:"retouch"`
	LastOp  string `json:"last_op,omitempty"`
}

// =============================================================================
// MODEL DTOS
// =============================================================================

type cardDTO struct {
	Idm          string     `json:"idm"`
	Type         string     `json:"type"`
	ManagementNo string     `json:"management_no"`
	StartPage    int        `json:"start_page"`
	Lending      bool       `json:"lending"`
	LenderID     string     `json:"lender_id,omitempty"`
	LentAt       *time.Time `json:"lent_at,omitempty"`
}

type staffDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rowDTO struct {
	ID         int64           `json:"id"`
	CardIdm    string          `json:"card_idm"`
	Date       string          `json:"date"`
	Summary    string          `json:"summary"`
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Balance    decimal.Decimal `json:"balance"`
	StaffName  string          `json:"staff_name"`
	Note       string          `json:"note,omitempty"`
	LenderID   string          `json:"lender_id,omitempty"`
	ReturnerID string          `json:"returner_id,omitempty"`
	LentAt     *time.Time      `json:"lent_at,omitempty"`
	ReturnedAt *time.Time      `json:"returned_at,omitempty"`
	Details    []detailDTO     `json:"details,omitempty"`
}

type detailDTO struct {
	Seq          int             `json:"seq"`
	UsedAt       *time.Time      `json:"used_at,omitempty"`
	EntryStation string          `json:"entry_station,omitempty"`
	ExitStation  string          `json:"exit_station,omitempty"`
	BusStop      string          `json:"bus_stop,omitempty"`
	IsCharge     bool            `json:"is_charge,omitempty"`
	IsBus        bool            `json:"is_bus,omitempty"`
	IsPoint      bool            `json:"is_point,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Balance      decimal.Decimal `json:"balance"`
	GroupID      string          `json:"group_id,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCardDTO(c ledger.Card) cardDTO {
	return cardDTO{
		Idm:          string(c.Idm),
		Type:         string(c.Type),
		ManagementNo: c.ManagementNo,
		StartPage:    c.StartPage,
		Lending:      c.Lending,
		LenderID:     string(c.LenderID),
		LentAt:       c.LentAt,
	}
}

func toRowDTO(r ledger.Row) rowDTO {
	dto := rowDTO{
		ID:         int64(r.ID),
		CardIdm:    string(r.CardIdm),
		Date:       r.Date.Format("2006-01-02"),
		Summary:    r.Summary,
		Income:     r.Income,
		Expense:    r.Expense,
		Balance:    r.Balance,
		StaffName:  r.StaffName,
		Note:       r.Note,
		LenderID:   string(r.LenderID),
		ReturnerID: string(r.ReturnerID),
		LentAt:     r.LentAt,
		ReturnedAt: r.ReturnedAt,
	}
	for _, d := range r.Details {
		dto.Details = append(dto.Details, toDetailDTO(d))
	}
	return dto
}

func toDetailDTO(d ledger.SwipeRecord) detailDTO {
	return detailDTO{
		Seq:          d.Seq,
		UsedAt:       d.UsedAt,
		EntryStation: d.EntryStation,
		ExitStation:  d.ExitStation,
		BusStop:      d.BusStop,
		IsCharge:     d.IsCharge,
		IsBus:        d.IsBus,
		IsPoint:      d.IsPoint,
		Amount:       d.Amount,
		Balance:      d.Balance,
		GroupID:      d.GroupID,
	}
}

func fromDetailDTO(d detailDTO) ledger.SwipeRecord {
	return ledger.SwipeRecord{
		Seq:          d.Seq,
		UsedAt:       d.UsedAt,
		EntryStation: d.EntryStation,
		ExitStation:  d.ExitStation,
		BusStop:      d.BusStop,
		IsCharge:     d.IsCharge,
		IsBus:        d.IsBus,
		IsPoint:      d.IsPoint,
		Amount:       d.Amount,
		Balance:      d.Balance,
		GroupID:      d.GroupID,
	}
}

func fromDetailDTOs(dtos []detailDTO) []ledger.SwipeRecord {
	out := make([]ledger.SwipeRecord, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, fromDetailDTO(d))
	}
	return out
}
