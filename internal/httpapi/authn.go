package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"credledger.org/internal/audit"
	"credledger.org/internal/auth"
	"credledger.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireAuth gates a handler: the request must carry a valid bearer token,
// and when an allow-list is given the principal's role must be a member.
// The verified principal is attached to the request context.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.CountDenial("unauthenticated")
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.accounts.Tokens().VerifyAccessToken(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				// Distinct from invalid so clients know a refresh may help.
				obs.CountDenial("expired_token")
				writeError(w, r, http.StatusUnauthorized, "token expired")
			case errors.Is(err, auth.ErrInvalidToken):
				obs.CountDenial("invalid_token")
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		if len(roles) > 0 && !roleAllowed(principal.Role, roles) {
			obs.CountDenial("role")
			_ = audit.LogEvent(auth.ContextWithPrincipal(r.Context(), principal), "authz.denied", map[string]any{
				"reason": "role",
				"path":   r.URL.Path,
			})
			writeError(w, r, http.StatusForbidden, fmt.Sprintf(
				"role %q is not permitted here (allowed: %s)",
				principal.Role, strings.Join(roles, ", ")))
			return
		}

		next(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	}
}

// optionalAuth attaches a principal when a valid bearer token is present and
// lets anonymous requests through. A token that is present but unverifiable
// is still rejected.
func (a *API) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(authHeader))
		if header == "" {
			next(w, r)
			return
		}
		a.requireAuth(next)(w, r)
	}
}

// enforceDepartment applies department scoping for the given resource (a
// roll-number shaped identifier or an explicit department code). It writes
// the rejection response itself and reports whether the request may proceed.
func (a *API) enforceDepartment(w http.ResponseWriter, r *http.Request, resource string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing principal")
		return false
	}
	if principal.Role == auth.RoleDepartment || principal.Role == auth.RoleFaculty {
		if strings.TrimSpace(principal.Department) == "" {
			obs.CountDenial("department")
			writeError(w, r, http.StatusForbidden, "no department assigned")
			return false
		}
	}
	if !auth.HasAccessToDepartment(principal, resource) {
		obs.CountDenial("department")
		_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
			"reason":   "department",
			"resource": auth.DepartmentPrefix(resource),
		})
		writeError(w, r, http.StatusForbidden, fmt.Sprintf(
			"department %s may not access resources of department %s",
			strings.ToUpper(principal.Department), auth.DepartmentPrefix(resource)))
		return false
	}
	return true
}

func roleAllowed(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
