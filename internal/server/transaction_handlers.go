package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/interfaces"
	"github.com/novabank/novabank/internal/models"
)

type depositRequest struct {
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !canAccess(r, req.AccountID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if _, err := s.ledger.Deposit(r.Context(), req.AccountID, req.Amount, req.Note); err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deposit successful"})
}

type transferRequest struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
}

type transferResponse struct {
	Message            string `json:"message"`
	DebitTransactionID string `json:"debitTransactionId"`
	Credited           bool   `json:"credited"`
	ExternalReceiver   string `json:"externalReceiver,omitempty"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !canAccess(r, req.SenderID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	result, err := s.ledger.Transfer(r.Context(), req.SenderID, req.ReceiverID, req.Amount, req.Note)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{
		Message:            "Transfer successful",
		DebitTransactionID: result.DebitEntryID,
		Credited:           result.Credited,
		ExternalReceiver:   result.ExternalReceiver,
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	if !canAccess(r, accountID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	q, page := parseEntryQuery(r)
	result, err := s.ledger.ListEntries(r.Context(), accountID, q, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch transactions")
		return
	}

	entries := result.Entries
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": entries,
		"totalPages":   result.TotalPages,
		"currentPage":  result.CurrentPage,
	})
}

func parseEntryQuery(r *http.Request) (interfaces.EntryQuery, int) {
	values := r.URL.Query()
	var q interfaces.EntryQuery

	switch values.Get("type") {
	case "credit":
		q.Direction = models.DirectionCredit
	case "debit":
		q.Direction = models.DirectionDebit
	}
	if t, ok := parseDate(values.Get("from")); ok {
		q.From = &t
	}
	if t, ok := parseDate(values.Get("to")); ok {
		// Make the upper bound inclusive of the whole day.
		t = t.Add(24*time.Hour - time.Nanosecond)
		q.To = &t
	}
	q.Search = values.Get("search")
	if values.Get("sortBy") == "amount" {
		q.SortBy = interfaces.SortByAmount
	}
	q.Ascending = values.Get("sortOrder") == "asc"

	page := 1
	if p, err := strconv.Atoi(values.Get("page")); err == nil && p > 0 {
		page = p
	}
	return q, page
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.ExportEntries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export transactions")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "type", "amount", "note", "user", "date"})
	for _, e := range entries {
		cw.Write([]string{
			e.ID,
			string(e.Direction),
			e.Amount.String(),
			e.Note,
			e.AccountName,
			e.CreatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrSameAccount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
