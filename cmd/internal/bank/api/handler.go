package bankapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"kodbank/cmd/account"
	"kodbank/cmd/internal/auth/session"
	"kodbank/cmd/internal/ledger"
)

// TransferPublisher receives committed transfers for best-effort fan-out
// (the balance event feed). Publishing happens after commit and never
// participates in the transfer's atomicity.
type TransferPublisher interface {
	PublishTransfer(res ledger.Result)
}

// Metrics counts authentication and transfer outcomes. Implementations must
// be safe for concurrent use.
type Metrics interface {
	IncLogin(outcome string)
	IncTransfer(outcome string)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) IncLogin(string)    {}
func (NoopMetrics) IncTransfer(string) {}

// Handler wires the banking HTTP endpoints to the account store, session
// manager, and ledger engine.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts account.Store
	sessions *session.Manager
	engine   *ledger.Engine

	feed    TransferPublisher
	metrics Metrics
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithTransferPublisher attaches a post-commit transfer fan-out sink.
func WithTransferPublisher(p TransferPublisher) HandlerOption {
	return func(h *Handler) {
		if h == nil || p == nil {
			return
		}
		h.feed = p
	}
}

// WithMetrics overrides the default no-op metrics sink.
func WithMetrics(m Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.metrics = m
	}
}

// NewHandler constructs a bank API Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts account.Store, sessions *session.Manager, engine *ledger.Engine, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if accounts == nil {
		return nil, errors.New("bankapi: nil account store")
	}
	if sessions == nil {
		return nil, errors.New("bankapi: nil session manager")
	}
	if engine == nil {
		return nil, errors.New("bankapi: nil ledger engine")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		sessions: sessions,
		engine:   engine,
		metrics:  NoopMetrics{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires bank routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/register", h.handleRegister)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/balance", h.handleBalance)
	mux.HandleFunc("/api/send", h.handleSend)
	mux.HandleFunc("/api/logout", h.handleLogout)
	mux.HandleFunc("/me", h.handleBalance) // alias
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name, email and password are required")
		return
	}

	a, err := h.accounts.Create(r.Context(), account.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		switch {
		case account.IsConflict(err):
			writeError(w, http.StatusConflict, "duplicate_email", "email already registered")
		case account.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("bank.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.log.Info("bank.register.ok", "account_id", a.ID)
	writeJSON(w, http.StatusCreated, registerResponse{CustomerID: a.ID})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// Unknown email and wrong password are indistinguishable to the client;
	// FindByCredentials runs a dummy verify on the miss path for timing
	// resistance.
	a, err := account.FindByCredentials(ctx, h.accounts, email, password)
	if err != nil {
		if account.IsNotFound(err) {
			h.metrics.IncLogin("invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.metrics.IncLogin("error")
		h.log.Error("bank.login.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	issued, err := h.sessions.Issue(ctx, now, a.ID)
	if err != nil {
		h.metrics.IncLogin("error")
		h.log.Error("bank.login.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.IncLogin("ok")
	h.log.Info("bank.login.ok", "account_id", a.ID, "ip", clientIP(r, h.cfg.TrustProxy))
	writeJSON(w, http.StatusOK, loginResponse{
		Token:      issued.Token,
		CustomerID: a.ID,
		Name:       a.Name,
	})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		CustomerID: id.AccountID,
		Name:       id.Name,
		Email:      id.Email,
		Balance:    id.Balance,
	})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	recipientID := strings.TrimSpace(req.RecipientID)
	if recipientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "recipient_id is required")
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		h.metrics.IncTransfer("invalid_amount")
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be a positive number")
		return
	}

	res, err := h.engine.Transfer(r.Context(), id.AccountID, recipientID, amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			h.metrics.IncTransfer("invalid_amount")
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be a positive number")
		case errors.Is(err, ledger.ErrSelfTransfer):
			h.metrics.IncTransfer("self_transfer")
			writeError(w, http.StatusBadRequest, "self_transfer", "cannot send money to yourself")
		case errors.Is(err, ledger.ErrRecipientNotFound):
			h.metrics.IncTransfer("recipient_not_found")
			writeError(w, http.StatusNotFound, "recipient_not_found", "recipient does not exist")
		case errors.Is(err, ledger.ErrInsufficientFunds):
			h.metrics.IncTransfer("insufficient_funds")
			writeError(w, http.StatusBadRequest, "insufficient_funds", "balance is too low")
		default:
			h.metrics.IncTransfer("error")
			h.log.Error("bank.send.fail", "err", err, "sender_id", id.AccountID)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.IncTransfer("ok")
	h.log.Info("bank.send.ok",
		"sender_id", res.SenderID,
		"recipient_id", res.RecipientID,
		"amount", res.Amount,
	)
	if h.feed != nil {
		h.feed.PublishTransfer(res)
	}

	writeJSON(w, http.StatusOK, sendResponse{NewBalance: res.SenderBalance})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Logout always succeeds: revoking a missing, unknown, or expired token
	// leaves the client in the same logged-out state.
	if tok := bearerToken(r); tok != "" {
		if err := h.sessions.Revoke(r.Context(), tok); err != nil {
			h.log.Error("bank.logout.revoke.fail", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, logoutResponse{OK: true})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.Identity{}, false
	}

	id, err := h.sessions.Resolve(r.Context(), time.Now().UTC(), tok)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrExpiredToken) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return session.Identity{}, false
		}
		h.log.Error("bank.auth.resolve.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return session.Identity{}, false
	}
	return id, true
}
