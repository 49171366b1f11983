package server

import (
	"encoding/csv"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/interfaces"
	"github.com/novabank/novabank/internal/models"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	var filter interfaces.AccountFilter

	if v := values.Get("balanceBelow"); v != "" {
		below, err := decimal.NewFromString(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid balanceBelow")
			return
		}
		filter.BalanceBelow = &below
	}
	filter.Search = values.Get("search")

	accounts, err := s.accounts.ListAccounts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !canAccess(r, id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	account, err := s.accounts.AccountByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.ListAccounts(r.Context(), interfaces.AccountFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export users")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "name", "email", "accountType", "balance", "role"})
	for _, a := range accounts {
		cw.Write([]string{
			a.ID,
			a.Name,
			a.Email,
			string(a.AccountType),
			a.Balance.String(),
			string(a.Role),
		})
	}
	cw.Flush()
}
