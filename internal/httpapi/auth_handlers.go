package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"credledger.org/internal/audit"
	"credledger.org/internal/auth"
	"credledger.org/internal/obs"
)

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	Account      auth.Account `json:"account"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// privilegedRoles may only be registered by an authenticated admin.
var privilegedRoles = map[string]struct{}{
	auth.RoleAdmin:      {},
	auth.RoleDepartment: {},
	auth.RoleVerifier:   {},
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	role := strings.TrimSpace(strings.ToLower(req.Role))
	if _, privileged := privilegedRoles[role]; privileged {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok || principal.Role != auth.RoleAdmin {
			obs.CountDenial("role")
			writeError(w, r, http.StatusForbidden, "registering role "+role+" requires admin")
			return
		}
	}

	acc, err := a.accounts.Register(r.Context(), auth.RegisterParams{
		Username:   req.Username,
		Password:   req.Password,
		Email:      req.Email,
		Role:       role,
		Department: req.Department,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"account_id": acc.ID,
		"username":   acc.Username,
		"role":       acc.Role,
		"department": acc.Department,
	})

	w.Header().Set("Location", "/v1/accounts/"+acc.ID)
	writeJSON(w, http.StatusCreated, acc)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, acc, err := a.accounts.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			// One message for every failure mode: no account enumeration.
			obs.CountLogin("rejected")
			writeError(w, r, http.StatusUnauthorized, "invalid login or password")
			return
		}
		obs.CountLogin("error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	obs.CountLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"account_id": acc.ID,
		"username":   acc.Username,
		"role":       acc.Role,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
		Account:      acc,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, exp, err := a.accounts.Tokens().Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			obs.CountRefresh("expired")
			writeError(w, r, http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, auth.ErrRevoked):
			obs.CountRefresh("revoked")
			writeError(w, r, http.StatusUnauthorized, "refresh token revoked")
		case errors.Is(err, auth.ErrInvalidToken):
			obs.CountRefresh("invalid")
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, auth.ErrAccountInactive):
			obs.CountRefresh("inactive")
			writeError(w, r, http.StatusForbidden, "account is inactive")
		default:
			obs.CountRefresh("error")
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.CountRefresh("success")
	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: token, ExpiresAt: exp})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	a.accounts.Tokens().Revoke(req.RefreshToken)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	acc, err := a.accounts.Get(r.Context(), principal.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	err := a.accounts.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrIncorrectPassword) {
			writeError(w, r, http.StatusBadRequest, "current password does not match")
			return
		}
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password.change", map[string]any{
		"account_id": principal.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	filter := auth.ListFilter{
		Role:       strings.TrimSpace(r.URL.Query().Get("role")),
		Department: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("department"))),
	}
	if rawActive := strings.TrimSpace(r.URL.Query().Get("active")); rawActive != "" {
		active, err := strconv.ParseBool(rawActive)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "active must be a boolean")
			return
		}
		filter.Active = &active
	}

	accounts, err := a.accounts.List(r.Context(), filter)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": accounts})
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/deactivate") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/deactivate"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		a.deactivateAccount(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		acc, err := a.accounts.Get(r.Context(), path)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) deactivateAccount(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.accounts.Deactivate(r.Context(), id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.deactivate", map[string]any{
		"account_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "username or email already taken")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "account not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid login or password")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
