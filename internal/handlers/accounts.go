package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/platform/auth"
	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/services"
)

const maxAccountBodySize = 8 * 1024

// AccountHandlers binds Firebase identities to marketplace accounts.
type AccountHandlers struct {
	authn    *auth.Authenticator
	accounts services.AccountService
}

func NewAccountHandlers(authn *auth.Authenticator, accounts services.AccountService) *AccountHandlers {
	return &AccountHandlers{authn: authn, accounts: accounts}
}

// Routes registers /auth. Both endpoints need a Firebase token but no account.
func (h *AccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/register", h.register)
	r.Get("/me", h.me)
}

type registerAccountRequest struct {
	PhoneNumber string `json:"phone_number"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	UserType    string `json:"user_type"`
}

func (h *AccountHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		serviceUnavailable(ctx, w, "account")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req registerAccountRequest
	if !decodeJSONBody(w, r, maxAccountBodySize, &req) {
		return
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		phone = identity.PhoneNumber
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = identity.Email
	}

	account, created, err := h.accounts.Register(ctx, services.RegisterAccountCommand{
		FirebaseUID: identity.UID,
		PhoneNumber: phone,
		Email:       email,
		FullName:    req.FullName,
		UserType:    domain.UserType(req.UserType),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	message := "Login successful"
	if created {
		message = "Registration successful"
	}
	httpx.WriteSuccess(w, http.StatusOK, message, map[string]any{
		"user":    newAccountView(account),
		"created": created,
	})
}

func (h *AccountHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		serviceUnavailable(ctx, w, "account")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	account, err := h.accounts.Me(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"user": newAccountView(account)})
}
