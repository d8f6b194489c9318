package bankapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kodbank/cmd/account"
	"kodbank/cmd/internal/auth/session"
	"kodbank/cmd/internal/ledger"
)

type capturedTransfers struct {
	results []ledger.Result
}

func (c *capturedTransfers) PublishTransfer(res ledger.Result) {
	c.results = append(c.results, res)
}

type testHarness struct {
	mux      *http.ServeMux
	accounts *account.MemoryStore
	feed     *capturedTransfers
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	accounts := account.NewMemoryStore()
	sessions := session.NewManager(session.DefaultConfig(), session.NewMemoryStore(), accounts)
	engine := ledger.NewEngine(accounts)
	feed := &capturedTransfers{}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, Config{MaxBodyBytes: 1 << 20}, accounts, sessions, engine,
		WithTransferPublisher(feed))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return &testHarness{mux: mux, accounts: accounts, feed: feed}
}

func (th *testHarness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	th.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	decodeBody(t, rec, &resp)
	return resp.Error.Code
}

func (th *testHarness) register(t *testing.T, name, email, password string) string {
	t.Helper()

	rec := th.do(t, http.MethodPost, "/api/register", "",
		`{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", email, rec.Code, rec.Body.String())
	}
	var resp registerResponse
	decodeBody(t, rec, &resp)
	if resp.CustomerID == "" {
		t.Fatalf("register %s: empty customer_id", email)
	}
	return resp.CustomerID
}

func (th *testHarness) login(t *testing.T, email, password string) loginResponse {
	t.Helper()

	rec := th.do(t, http.MethodPost, "/api/login", "",
		`{"email":"`+email+`","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status=%d body=%s", email, rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatalf("login %s: empty token", email)
	}
	return resp
}

func TestRegister(t *testing.T) {
	t.Parallel()

	th := newTestHarness(t)
	th.register(t, "Alice", "alice@example.com", "hunter2hunter2")

	// Duplicate email, case-insensitively.
	rec := th.do(t, http.MethodPost, "/api/register", "",
		`{"name":"Imposter","email":"ALICE@example.com","password":"hunter2hunter2"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "duplicate_email" {
		t.Fatalf("duplicate: code=%q", code)
	}

	// Missing fields.
	rec = th.do(t, http.MethodPost, "/api/register", "", `{"name":"NoEmail","password":"hunter2hunter2"}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_request" {
		t.Fatalf("missing email: status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Malformed JSON.
	rec = th.do(t, http.MethodPost, "/api/register", "", `{"name":`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_json" {
		t.Fatalf("bad json: status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Wrong method.
	rec = th.do(t, http.MethodGet, "/api/register", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET register: status=%d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	th := newTestHarness(t)
	id := th.register(t, "Alice", "alice@example.com", "hunter2hunter2")

	resp := th.login(t, "alice@example.com", "hunter2hunter2")
	if resp.CustomerID != id || resp.Name != "Alice" {
		t.Fatalf("login response=%+v want customer_id=%s name=Alice", resp, id)
	}

	// Wrong password and unknown email produce the same answer.
	for _, body := range []string{
		`{"email":"alice@example.com","password":"wrong-password"}`,
		`{"email":"nobody@example.com","password":"hunter2hunter2"}`,
	} {
		rec := th.do(t, http.MethodPost, "/api/login", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("bad login: status=%d body=%s", rec.Code, rec.Body.String())
		}
		if code := errorCode(t, rec); code != "invalid_credentials" {
			t.Fatalf("bad login: code=%q", code)
		}
	}

	// Two logins yield distinct tokens.
	second := th.login(t, "alice@example.com", "hunter2hunter2")
	if second.Token == resp.Token {
		t.Fatalf("expected a fresh token per login")
	}
}

func TestBalance(t *testing.T) {
	t.Parallel()

	th := newTestHarness(t)
	id := th.register(t, "Alice", "alice@example.com", "hunter2hunter2")
	login := th.login(t, "alice@example.com", "hunter2hunter2")

	for _, path := range []string{"/api/balance", "/me"} {
		rec := th.do(t, http.MethodGet, path, login.Token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", path, rec.Code, rec.Body.String())
		}
		var resp balanceResponse
		decodeBody(t, rec, &resp)
		if resp.CustomerID != id || resp.Name != "Alice" || resp.Email != "alice@example.com" {
			t.Fatalf("%s: response=%+v", path, resp)
		}
		if resp.Balance != account.StartingBalance {
			t.Fatalf("%s: balance=%v want %v", path, resp.Balance, account.StartingBalance)
		}
	}

	// Missing and bogus tokens.
	if rec := th.do(t, http.MethodGet, "/api/balance", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", rec.Code)
	}
	if rec := th.do(t, http.MethodGet, "/api/balance", "bogus", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token: status=%d", rec.Code)
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	th := newTestHarness(t)
	aliceID := th.register(t, "Alice", "alice@example.com", "hunter2hunter2")
	bobID := th.register(t, "Bob", "bob@example.com", "hunter2hunter2")
	login := th.login(t, "alice@example.com", "hunter2hunter2")

	rec := th.do(t, http.MethodPost, "/api/send", login.Token,
		`{"recipient_id":"`+bobID+`","amount":400}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("send: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp sendResponse
	decodeBody(t, rec, &resp)
	if resp.NewBalance != 600 {
		t.Fatalf("new_balance=%v want 600", resp.NewBalance)
	}

	// Quoted amounts parse too.
	rec = th.do(t, http.MethodPost, "/api/send", login.Token,
		`{"recipient_id":"`+bobID+`","amount":"100"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("send quoted: status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Both transfers were published to the feed.
	if got := len(th.feed.results); got != 2 {
		t.Fatalf("published=%d want 2", got)
	}
	first := th.feed.results[0]
	if first.SenderID != aliceID || first.RecipientID != bobID || first.Amount != 400 {
		t.Fatalf("published=%+v", first)
	}
	if first.SenderBalance != 600 || first.RecipientBalance != 1400 {
		t.Fatalf("published balances=%+v", first)
	}
}

func TestSend_ErrorCodes(t *testing.T) {
	t.Parallel()

	th := newTestHarness(t)
	aliceID := th.register(t, "Alice", "alice@example.com", "hunter2hunter2")
	bobID := th.register(t, "Bob", "bob@example.com", "hunter2hunter2")
	login := th.login(t, "alice@example.com", "hunter2hunter2")

	for _, tc := range []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"zero amount", `{"recipient_id":"` + bobID + `","amount":0}`, http.StatusBadRequest, "invalid_amount"},
		{"negative amount", `{"recipient_id":"` + bobID + `","amount":-5}`, http.StatusBadRequest, "invalid_amount"},
		{"non numeric amount", `{"recipient_id":"` + bobID + `","amount":"abc"}`, http.StatusBadRequest, "invalid_json"},
		{"self transfer", `{"recipient_id":"` + aliceID + `","amount":10}`, http.StatusBadRequest, "self_transfer"},
		{"unknown recipient", `{"recipient_id":"01ZZZZZZZZZZZZZZZZZZZZZZZZ","amount":10}`, http.StatusNotFound, "recipient_not_found"},
		{"insufficient funds", `{"recipient_id":"` + bobID + `","amount":100000}`, http.StatusBadRequest, "insufficient_funds"},
		{"missing recipient", `{"amount":10}`, http.StatusBadRequest, "invalid_request"},
	} {
		rec := th.do(t, http.MethodPost, "/api/send", login.Token, tc.body)
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: status=%d want %d (body=%s)", tc.name, rec.Code, tc.wantStatus, rec.Body.String())
		}
		if code := errorCode(t, rec); code != tc.wantCode {
			t.Fatalf("%s: code=%q want %q", tc.name, code, tc.wantCode)
		}
	}

	// No failed attempt moved money or reached the feed.
	rec := th.do(t, http.MethodGet, "/api/balance", login.Token, "")
	var bal balanceResponse
	decodeBody(t, rec, &bal)
	if bal.Balance != account.StartingBalance {
		t.Fatalf("balance=%v want %v after failed sends", bal.Balance, account.StartingBalance)
	}
	if len(th.feed.results) != 0 {
		t.Fatalf("failed sends must not publish, got %d events", len(th.feed.results))
	}

	// Unauthenticated send.
	if rec := th.do(t, http.MethodPost, "/api/send", "", `{"recipient_id":"x","amount":10}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	th := newTestHarness(t)
	th.register(t, "Alice", "alice@example.com", "hunter2hunter2")
	login := th.login(t, "alice@example.com", "hunter2hunter2")

	rec := th.do(t, http.MethodPost, "/api/logout", login.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Token is dead now.
	if rec := th.do(t, http.MethodGet, "/api/balance", login.Token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("balance after logout: status=%d", rec.Code)
	}

	// Logout stays 200 for repeated, unknown, or missing tokens.
	for _, token := range []string{login.Token, "never-issued", ""} {
		if rec := th.do(t, http.MethodPost, "/api/logout", token, ""); rec.Code != http.StatusOK {
			t.Fatalf("logout token=%q: status=%d", token, rec.Code)
		}
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	t.Parallel()

	th := newTestHarness(t)
	rec := th.do(t, http.MethodPost, "/api/register", "",
		`{"name":"Alice","email":"alice@example.com","password":"hunter2hunter2","admin":true}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_json" {
		t.Fatalf("unknown field: status=%d body=%s", rec.Code, rec.Body.String())
	}
}
