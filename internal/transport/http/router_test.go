// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"userledger/internal/eventlog"
	"userledger/internal/service"
	"userledger/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(t *testing.T) (http.Handler, *service.Users) {
	t.Helper()

	mem := store.NewMemory()
	gw := eventlog.NewGateway(eventlog.NewMemoryBackend(), discardLogger())
	svc := service.NewUsers(mem, gw, discardLogger())

	return NewRouter(Deps{
		Users:  svc,
		Logger: discardLogger(),
	}), svc
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_CreateUser(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/users", map[string]string{
		"email_address": "alice@example.com",
		"password":      "hunter22",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID            uuid.UUID `json:"id"`
		EmailAddress  string    `json:"email_address"`
		EmailVerified bool      `json:"email_verified"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.ID == uuid.Nil {
		t.Fatal("expected a user ID")
	}
	if resp.EmailAddress != "alice@example.com" {
		t.Fatalf("expected email alice@example.com got %s", resp.EmailAddress)
	}
	if resp.EmailVerified {
		t.Fatal("expected new user to be unverified")
	}
	if body := rec.Body.String(); bytes.Contains([]byte(body), []byte("hashed_password")) {
		t.Fatal("hashed password leaked into the response")
	}
}

func TestRouter_CreateUserInvalidEmail(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/users", map[string]string{
		"email_address": "not-an-email",
		"password":      "hunter22",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_CreateUserMissingPassword(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/users", map[string]string{
		"email_address": "alice@example.com",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_CreateUserDuplicateEmail(t *testing.T) {
	router, _ := testRouter(t)

	body := map[string]string{
		"email_address": "alice@example.com",
		"password":      "hunter22",
	}
	if rec := doJSON(t, router, http.MethodPost, "/users", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected status 201 got %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/users", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestRouter_CreateUserUnknownField(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/users", map[string]string{
		"email_address": "alice@example.com",
		"password":      "hunter22",
		"role":          "admin",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_GetUser(t *testing.T) {
	router, svc := testRouter(t)

	u, err := svc.Create(context.Background(), service.CreateParams{
		EmailAddress:   "alice@example.com",
		HashedPassword: "hash",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/users/"+u.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		EmailAddress string `json:"email_address"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EmailAddress != "alice@example.com" {
		t.Fatalf("expected email alice@example.com got %s", resp.EmailAddress)
	}
}

func TestRouter_GetUserNotFound(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/users/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestRouter_GetUserInvalidID(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/users/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_ListUsers(t *testing.T) {
	router, svc := testRouter(t)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if _, err := svc.Create(context.Background(), service.CreateParams{
			EmailAddress:   email,
			HashedPassword: "hash",
		}); err != nil {
			t.Fatalf("seed user %s: %v", email, err)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		Users []struct {
			EmailAddress string `json:"email_address"`
		} `json:"users"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Users) != 2 {
		t.Fatalf("expected 2 users got %d", len(resp.Users))
	}
}

func TestRouter_UpdateUserEmailResetsVerification(t *testing.T) {
	router, svc := testRouter(t)

	u, err := svc.Create(context.Background(), service.CreateParams{
		EmailAddress:   "alice@example.com",
		HashedPassword: "hash",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	verified := true
	if _, err := svc.Update(context.Background(), u.ID, service.UpdateParams{EmailVerified: &verified}); err != nil {
		t.Fatalf("verify user: %v", err)
	}

	rec := doJSON(t, router, http.MethodPatch, "/users/"+u.ID.String(), map[string]string{
		"email_address": "alice@example.org",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		EmailAddress  string `json:"email_address"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EmailAddress != "alice@example.org" {
		t.Fatalf("expected updated email, got %s", resp.EmailAddress)
	}
	if resp.EmailVerified {
		t.Fatal("expected verification reset after email change")
	}
}

func TestRouter_UpdateUserNotFound(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPatch, "/users/"+uuid.NewString(), map[string]string{
		"email_address": "alice@example.org",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestRouter_ScheduleRemoval(t *testing.T) {
	router, svc := testRouter(t)

	u, err := svc.Create(context.Background(), service.CreateParams{
		EmailAddress:   "alice@example.com",
		HashedPassword: "hash",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	rec := doJSON(t, router, http.MethodDelete, "/users/"+u.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}

	got, err := svc.Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get after removal: %v", err)
	}
	if !got.Removed() {
		t.Fatal("expected removal to be scheduled")
	}

	// A second delete is a no-op, not an error.
	rec = doJSON(t, router, http.MethodDelete, "/users/"+u.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected repeated delete status 204 got %d", rec.Code)
	}
}

func TestRouter_ScheduleRemovalNotFound(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodDelete, "/users/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestRouter_History(t *testing.T) {
	router, svc := testRouter(t)

	u, err := svc.Create(context.Background(), service.CreateParams{
		EmailAddress:   "alice@example.com",
		HashedPassword: "h1",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	h2 := "h2"
	if _, err := svc.Update(context.Background(), u.ID, service.UpdateParams{HashedPassword: &h2}); err != nil {
		t.Fatalf("update user: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/users/"+u.ID.String()+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		UserID string `json:"user_id"`
		Events []struct {
			Kind  string `json:"kind"`
			Field string `json:"field"`
		} `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != u.ID.String() {
		t.Fatalf("expected user_id %s got %s", u.ID, resp.UserID)
	}
	if len(resp.Events) != 5 {
		t.Fatalf("expected 5 events got %d", len(resp.Events))
	}
	if resp.Events[0].Kind != "Update" || resp.Events[0].Field != "hashed_password" {
		t.Fatalf("expected newest event to be the password update, got %s on %s",
			resp.Events[0].Kind, resp.Events[0].Field)
	}
}

func TestRouter_HistoryLimit(t *testing.T) {
	router, svc := testRouter(t)

	u, err := svc.Create(context.Background(), service.CreateParams{
		EmailAddress:   "alice@example.com",
		HashedPassword: "hash",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/users/"+u.ID.String()+"/history?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events got %d", len(resp.Events))
	}

	rec = doJSON(t, router, http.MethodGet, "/users/"+u.ID.String()+"/history?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad limit got %d", rec.Code)
	}
}

func TestRouter_HistoryUnknownUserIsEmpty(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/users/"+uuid.NewString()+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected empty history got %d events", len(resp.Events))
	}
}

func TestRouter_Version(t *testing.T) {
	router := NewRouter(Deps{
		Users:   nil,
		Logger:  discardLogger(),
		Version: "1.2.3",
	})

	rec := doJSON(t, router, http.MethodGet, "/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["version"] != "1.2.3" {
		t.Fatalf("expected version 1.2.3 got %s", resp["version"])
	}
	if resp["commit"] != "none" {
		t.Fatalf("expected default commit got %s", resp["commit"])
	}
}

type failingHealth struct{}

func (failingHealth) Check(context.Context) error { return errors.New("schema missing") }

func TestRouter_HealthzReportsFailure(t *testing.T) {
	router := NewRouter(Deps{
		Logger: discardLogger(),
		Health: failingHealth{},
	})

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
}

func TestRouter_HealthzOKWithoutChecker(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}
