package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmynk/equalsplit/internal/calculator"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
	"github.com/mmynk/equalsplit/internal/service"
)

type splitLine struct {
	UserID     string          `json:"user_id" validate:"required"`
	Amount     money.Amount    `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	Shares     int64           `json:"shares"`
}

type addExpenseBody struct {
	GroupID      string       `json:"group_id" validate:"required"`
	Description  string       `json:"description" validate:"max=200"`
	Amount       money.Amount `json:"amount"`
	PaidBy       string       `json:"paid_by" validate:"required"`
	SplitType    string       `json:"split_type" validate:"required"`
	Participants []string     `json:"participants" validate:"omitempty,dive,required"`
	Splits       []splitLine  `json:"splits" validate:"omitempty,dive"`
}

type recordSettlementBody struct {
	GroupID  string       `json:"group_id" validate:"required"`
	FromUser string       `json:"from_user" validate:"required"`
	ToUser   string       `json:"to_user" validate:"required"`
	Amount   money.Amount `json:"amount"`
	Note     string       `json:"note" validate:"max=500"`
}

func (h *Handler) addExpense(w http.ResponseWriter, r *http.Request) {
	var body addExpenseBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	entries := make([]calculator.SplitEntry, len(body.Splits))
	for i, s := range body.Splits {
		entries[i] = calculator.SplitEntry{
			UserID:     s.UserID,
			Amount:     s.Amount,
			Percentage: s.Percentage,
			Shares:     s.Shares,
		}
	}

	expense, err := h.ledger.AddExpense(r.Context(), service.AddExpenseRequest{
		GroupID:      body.GroupID,
		Description:  body.Description,
		Amount:       body.Amount,
		PaidBy:       body.PaidBy,
		SplitType:    models.SplitType(body.SplitType),
		Participants: body.Participants,
		Splits:       entries,
		Requester:    requester(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.ledger.GetExpense(r.Context(), chi.URLParam(r, "expenseID"), requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteExpense(r.Context(), chi.URLParam(r, "expenseID"), requester(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordSettlement(w http.ResponseWriter, r *http.Request) {
	var body recordSettlementBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	settlement, err := h.ledger.RecordSettlement(r.Context(), service.RecordSettlementRequest{
		GroupID:   body.GroupID,
		FromUser:  body.FromUser,
		ToUser:    body.ToUser,
		Amount:    body.Amount,
		Note:      body.Note,
		Requester: requester(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

func (h *Handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.ledger.ListSettlements(r.Context(), requester(r), r.URL.Query().Get("group_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlements)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.GetSummary(r.Context(), chi.URLParam(r, "groupID"), requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) getBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.GetBalances(r.Context(), chi.URLParam(r, "groupID"), requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.ledger.Dashboard(r.Context(), requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
