package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novabank/novabank/internal/auth"
	"github.com/novabank/novabank/internal/ledger"
	"github.com/novabank/novabank/internal/models"
	"github.com/novabank/novabank/internal/storage/memory"
)

func newTestServer() http.Handler {
	store := memory.NewStore()
	l := ledger.New(store, store, nil)
	return NewServer(store, l, auth.NewTokens("test-secret")).Router()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

// register creates an account through the API and returns its token and id.
func register(t *testing.T, h http.Handler, name string, role models.Role) (token, id string) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     name,
		"email":    strings.ToLower(name) + "@example.com",
		"password": "password123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string         `json:"token"`
		User  models.Account `json:"user"`
	}
	decodeBody(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User.ID
}

func TestHealth(t *testing.T) {
	h := newTestServer()
	w := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	h := newTestServer()

	w := do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Token string         `json:"token"`
		User  models.Account `json:"user"`
	}
	decodeBody(t, w, &created)
	assert.Equal(t, models.RoleUser, created.User.Role)
	assert.True(t, created.User.Balance.IsZero())

	// Duplicate email.
	w = do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     "Alice Again",
		"email":    "alice@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Login happy path.
	w = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "alice@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Wrong password.
	w = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown email.
	w = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "nobody@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	h := newTestServer()

	w := do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "x@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     "X",
		"email":    "x@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositEndpoint(t *testing.T) {
	h := newTestServer()
	token, id := register(t, h, "Alice", models.RoleUser)

	w := do(t, h, http.MethodPost, "/api/transactions/deposit", token, map[string]any{
		"accountId": id,
		"amount":    "250.50",
		"note":      "salary",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Balance is visible on the profile.
	w = do(t, h, http.MethodGet, "/api/users/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var account models.Account
	decodeBody(t, w, &account)
	assert.Equal(t, "250.5", account.Balance.String())

	// Zero and negative amounts are rejected.
	for _, amt := range []string{"0", "-10"} {
		w = do(t, h, http.MethodPost, "/api/transactions/deposit", token, map[string]any{
			"accountId": id,
			"amount":    amt,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, "amount %s", amt)
	}

	// Non-numeric amount fails decoding.
	w = do(t, h, http.MethodPost, "/api/transactions/deposit", token, map[string]any{
		"accountId": id,
		"amount":    "not-a-number",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No token.
	w = do(t, h, http.MethodPost, "/api/transactions/deposit", "", map[string]any{
		"accountId": id,
		"amount":    "10",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Another user's account.
	otherToken, _ := register(t, h, "Mallory", models.RoleUser)
	w = do(t, h, http.MethodPost, "/api/transactions/deposit", otherToken, map[string]any{
		"accountId": id,
		"amount":    "10",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unknown account, as admin.
	adminToken, _ := register(t, h, "Admin", models.RoleAdmin)
	w = do(t, h, http.MethodPost, "/api/transactions/deposit", adminToken, map[string]any{
		"accountId": "00000000-0000-0000-0000-000000000000",
		"amount":    "10",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransferEndpoint(t *testing.T) {
	h := newTestServer()
	aliceToken, aliceID := register(t, h, "Alice", models.RoleUser)
	_, bobID := register(t, h, "Bob", models.RoleUser)

	w := do(t, h, http.MethodPost, "/api/transactions/deposit", aliceToken, map[string]any{
		"accountId": aliceID,
		"amount":    "500",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Happy path.
	w = do(t, h, http.MethodPost, "/api/transactions/transfer", aliceToken, map[string]any{
		"senderId":   aliceID,
		"receiverId": bobID,
		"amount":     "300",
		"note":       "rent",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Message            string `json:"message"`
		DebitTransactionID string `json:"debitTransactionId"`
		Credited           bool   `json:"credited"`
		ExternalReceiver   string `json:"externalReceiver"`
	}
	decodeBody(t, w, &resp)
	assert.True(t, resp.Credited)
	assert.NotEmpty(t, resp.DebitTransactionID)
	assert.Empty(t, resp.ExternalReceiver)

	// Insufficient funds.
	w = do(t, h, http.MethodPost, "/api/transactions/transfer", aliceToken, map[string]any{
		"senderId":   aliceID,
		"receiverId": bobID,
		"amount":     "9999",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// External receiver: debited, not credited, receiver echoed back.
	w = do(t, h, http.MethodPost, "/api/transactions/transfer", aliceToken, map[string]any{
		"senderId":   aliceID,
		"receiverId": "999",
		"amount":     "100",
	})
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &resp)
	assert.False(t, resp.Credited)
	assert.Equal(t, "999", resp.ExternalReceiver)

	// Sending from somebody else's account is forbidden.
	bobToken, _ := do2Login(t, h, "bob@example.com")
	w = do(t, h, http.MethodPost, "/api/transactions/transfer", bobToken, map[string]any{
		"senderId":   aliceID,
		"receiverId": bobID,
		"amount":     "10",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func do2Login(t *testing.T, h http.Handler, email string) (string, string) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string         `json:"token"`
		User  models.Account `json:"user"`
	}
	decodeBody(t, w, &resp)
	return resp.Token, resp.User.ID
}

func TestListTransactionsEndpoint(t *testing.T) {
	h := newTestServer()
	aliceToken, aliceID := register(t, h, "Alice", models.RoleUser)
	_, bobID := register(t, h, "Bob", models.RoleUser)

	for i := 0; i < 3; i++ {
		w := do(t, h, http.MethodPost, "/api/transactions/deposit", aliceToken, map[string]any{
			"accountId": aliceID,
			"amount":    fmt.Sprintf("%d", 10*(i+1)),
		})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, h, http.MethodPost, "/api/transactions/transfer", aliceToken, map[string]any{
		"senderId":   aliceID,
		"receiverId": bobID,
		"amount":     "15",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Transactions []models.LedgerEntry `json:"transactions"`
		TotalPages   int                  `json:"totalPages"`
		CurrentPage  int                  `json:"currentPage"`
	}

	w = do(t, h, http.MethodGet, "/api/transactions/user/"+aliceID, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &page)
	assert.Len(t, page.Transactions, 4)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)

	// Direction filter.
	w = do(t, h, http.MethodGet, "/api/transactions/user/"+aliceID+"?type=debit", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &page)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, models.DirectionDebit, page.Transactions[0].Direction)

	// Amount sort ascending.
	w = do(t, h, http.MethodGet, "/api/transactions/user/"+aliceID+"?sortBy=amount&sortOrder=asc", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &page)
	require.Len(t, page.Transactions, 4)
	assert.Equal(t, "10", page.Transactions[0].Amount.String())

	// Another user's history is off limits.
	bobToken, _ := do2Login(t, h, "bob@example.com")
	w = do(t, h, http.MethodGet, "/api/transactions/user/"+aliceID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admins may read anyone's history.
	adminToken, _ := register(t, h, "Admin", models.RoleAdmin)
	w = do(t, h, http.MethodGet, "/api/transactions/user/"+aliceID, adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExportTransactionsCSV(t *testing.T) {
	h := newTestServer()
	aliceToken, aliceID := register(t, h, "Alice", models.RoleUser)
	adminToken, _ := register(t, h, "Admin", models.RoleAdmin)

	w := do(t, h, http.MethodPost, "/api/transactions/deposit", aliceToken, map[string]any{
		"accountId": aliceID,
		"amount":    "42",
		"note":      "seed",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Admin scope only.
	w = do(t, h, http.MethodGet, "/api/transactions/export/csv", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodGet, "/api/transactions/export/csv", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,type,amount,note,user,date", lines[0])
	assert.Contains(t, lines[1], "credit")
	assert.Contains(t, lines[1], "Alice")
}

func TestUserEndpoints(t *testing.T) {
	h := newTestServer()
	aliceToken, aliceID := register(t, h, "Alice", models.RoleUser)
	_, bobID := register(t, h, "Bob", models.RoleUser)
	adminToken, _ := register(t, h, "Admin", models.RoleAdmin)

	// Listing users is admin only.
	w := do(t, h, http.MethodGet, "/api/users", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var accounts []models.Account
	decodeBody(t, w, &accounts)
	assert.Len(t, accounts, 3)

	// Search filter.
	w = do(t, h, http.MethodGet, "/api/users?search=bob", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &accounts)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Bob", accounts[0].Name)

	// Owners see themselves, not each other; admin sees anyone.
	w = do(t, h, http.MethodGet, "/api/users/"+aliceID, aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodGet, "/api/users/"+bobID, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, h, http.MethodGet, "/api/users/"+bobID, adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Password hash is never serialized.
	w = do(t, h, http.MethodGet, "/api/users/"+aliceID, aliceToken, nil)
	assert.NotContains(t, w.Body.String(), "passwordHash")
	assert.NotContains(t, w.Body.String(), "$2a$")

	// Users CSV export.
	w = do(t, h, http.MethodGet, "/api/users/export/csv", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "id,name,email,accountType,balance,role"))
}
