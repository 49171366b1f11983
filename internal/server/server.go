package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/novabank/novabank/internal/auth"
	"github.com/novabank/novabank/internal/interfaces"
	"github.com/novabank/novabank/internal/ledger"
)

// Server wires the HTTP surface to the ledger service and account store.
type Server struct {
	accounts interfaces.AccountStore
	ledger   *ledger.Ledger
	tokens   *auth.Tokens
	router   *mux.Router
}

func NewServer(accounts interfaces.AccountStore, l *ledger.Ledger, tokens *auth.Tokens) *Server {
	s := &Server{accounts: accounts, ledger: l, tokens: tokens}

	mx := mux.NewRouter()
	mx.Use(Recoverer)
	mx.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := mx.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	pr := api.PathPrefix("/").Subrouter()
	pr.Use(s.requireAuth)
	pr.HandleFunc("/transactions/deposit", s.handleDeposit).Methods(http.MethodPost)
	pr.HandleFunc("/transactions/transfer", s.handleTransfer).Methods(http.MethodPost)
	pr.HandleFunc("/transactions/user/{accountId}", s.handleListTransactions).Methods(http.MethodGet)
	pr.HandleFunc("/transactions/export/csv", s.requireAdmin(s.handleExportTransactions)).Methods(http.MethodGet)
	pr.HandleFunc("/users", s.requireAdmin(s.handleListUsers)).Methods(http.MethodGet)
	pr.HandleFunc("/users/export/csv", s.requireAdmin(s.handleExportUsers)).Methods(http.MethodGet)
	pr.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)

	s.router = mx
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
