package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IYouKnow/TunnelUI/internal/crypto"
	"github.com/IYouKnow/TunnelUI/internal/database"
)

func TestCreateAccount(t *testing.T) {
	setupTestDB(t)

	body := fmt.Sprintf(`{"name":"personal","description":"home lab","api_token":%q}`, testToken)
	w := httptest.NewRecorder()
	CreateAccount(w, buildRequest(t, "POST", "/api/accounts", body, nil))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	acc, err := database.GetAccountByName("personal")
	if err != nil {
		t.Fatalf("account not stored: %v", err)
	}
	if acc.APIToken == testToken {
		t.Error("token stored in plaintext")
	}
	if plain, _ := crypto.OpenToken(acc.APIToken); plain != testToken {
		t.Errorf("decrypted token = %q", plain)
	}
}

func TestCreateAccount_Validation(t *testing.T) {
	setupTestDB(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"name":""}`},
		{"name with space", `{"name":"my account"}`},
		{"short token", `{"name":"acme","api_token":"short"}`},
		{"bad body", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			CreateAccount(w, buildRequest(t, "POST", "/api/accounts", tc.body, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateAccount_DuplicateName(t *testing.T) {
	setupTestDB(t)
	createTestAccount(t, "personal", "")

	w := httptest.NewRecorder()
	CreateAccount(w, buildRequest(t, "POST", "/api/accounts", `{"name":"personal"}`, nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestListAccounts_MasksToken(t *testing.T) {
	setupTestDB(t)
	createTestAccount(t, "personal", testToken)
	createTestAccount(t, "work", "")

	w := httptest.NewRecorder()
	ListAccounts(w, buildRequest(t, "GET", "/api/accounts", "", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); strings.Contains(got, testToken) {
		t.Fatalf("response leaks the token: %s", got)
	}

	var accounts []accountResponse
	decodeInto(t, w, &accounts)
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].APIToken != "****mnop" || !accounts[0].HasAPIToken {
		t.Errorf("personal: token=%q has=%v", accounts[0].APIToken, accounts[0].HasAPIToken)
	}
	if accounts[1].APIToken != "" || accounts[1].HasAPIToken {
		t.Errorf("work: token=%q has=%v", accounts[1].APIToken, accounts[1].HasAPIToken)
	}
}

func TestUpdateAccount_MaskedTokenKeepsExisting(t *testing.T) {
	setupTestDB(t)
	acc := createTestAccount(t, "personal", testToken)

	w := httptest.NewRecorder()
	UpdateAccount(w, buildRequest(t, "PUT", "/api/accounts/1",
		`{"name":"personal","description":"updated","api_token":"****mnop"}`,
		map[string]string{"id": fmt.Sprint(acc.ID)}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := database.GetAccount(acc.ID)
	if got.Description != "updated" {
		t.Errorf("description = %q", got.Description)
	}
	if plain, _ := crypto.OpenToken(got.APIToken); plain != testToken {
		t.Errorf("token changed to %q", plain)
	}
}

func TestUpdateAccount_RenameBlockedByTunnels(t *testing.T) {
	setupTestDB(t)
	acc := createTestAccount(t, "personal", "")
	database.DB.Create(&database.Tunnel{CloudflareID: tunnelA, Name: "web", Domain: "app.example.com", AccountID: acc.ID})

	w := httptest.NewRecorder()
	UpdateAccount(w, buildRequest(t, "PUT", "/api/accounts/1", `{"name":"renamed"}`,
		map[string]string{"id": fmt.Sprint(acc.ID)}))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestUpdateAccount_NotFound(t *testing.T) {
	setupTestDB(t)

	w := httptest.NewRecorder()
	UpdateAccount(w, buildRequest(t, "PUT", "/api/accounts/99", `{"name":"x"}`, map[string]string{"id": "99"}))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestDeleteAccount_InUse(t *testing.T) {
	setupTestDB(t)
	acc := createTestAccount(t, "personal", "")
	database.DB.Create(&database.Domain{AccountID: acc.ID, Domain: "example.com"})

	w := httptest.NewRecorder()
	DeleteAccount(w, buildRequest(t, "DELETE", "/api/accounts/1", "", map[string]string{"id": fmt.Sprint(acc.ID)}))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	resp := parseResponse(t, w)
	if resp["domains"] != float64(1) || resp["tunnels"] != float64(0) {
		t.Errorf("unexpected counts: %v", resp)
	}
	if _, err := database.GetAccount(acc.ID); err != nil {
		t.Error("account should still exist")
	}
}

func TestDeleteAccount(t *testing.T) {
	setupTestDB(t)
	acc := createTestAccount(t, "personal", "")

	w := httptest.NewRecorder()
	DeleteAccount(w, buildRequest(t, "DELETE", "/api/accounts/1", "", map[string]string{"id": fmt.Sprint(acc.ID)}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, err := database.GetAccount(acc.ID); !database.IsNotFound(err) {
		t.Errorf("expected account gone, got %v", err)
	}
}
