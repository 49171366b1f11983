package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/auth"
	"github.com/novabank/novabank/internal/models"
)

type registerRequest struct {
	Name        string             `json:"name"`
	Email       string             `json:"email"`
	Password    string             `json:"password"`
	Role        models.Role        `json:"role"`
	AccountType models.AccountType `json:"accountType"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  models.Account `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if req.AccountType == "" {
		req.AccountType = models.AccountTypeChecking
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Registration failed. Please try again.")
		return
	}

	account := models.Account{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		AccountType:  req.AccountType,
		Balance:      decimal.Zero,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.CreateAccount(r.Context(), &account); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "Email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Registration failed. Please try again.")
		return
	}

	token, err := s.tokens.Generate(account.ID, account.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Registration failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: account})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	account, err := s.accounts.AccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}
	if !auth.CheckPassword(account.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Generate(account.ID, account.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: account})
}
