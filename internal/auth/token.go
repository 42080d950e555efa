package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 6 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// AccessClaims is the access token payload. Field names are a wire contract
// shared with clients; do not rename.
type AccessClaims struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	MSPID      string `json:"mspId"`
	Department string `json:"department,omitempty"`
	Email      string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// refreshClaims is the refresh token payload: identifier and login only.
type refreshClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// refreshRecord is the registry entry for an outstanding refresh token.
type refreshRecord struct {
	AccountID string
	IssuedAt  time.Time
}

// AccountSource is the subset of Store the token service needs to confirm an
// account is still active before honoring a refresh.
type AccountSource interface {
	FindByID(ctx context.Context, id string) (*Account, error)
}

// TokenService issues and verifies signed bearer tokens. Access token
// verification is stateless and lock-free; the refresh registry is the only
// mutable state and is lost on restart, which forces re-login.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	accounts   AccountSource
	now        func() time.Time

	mu       sync.Mutex
	registry map[string]refreshRecord
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with the given secret.
func NewTokenService(secret string, accounts AccountSource, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		accounts:   accounts,
		now:        time.Now,
		registry:   make(map[string]refreshRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccessToken signs a stateless HS256 access token for the account.
func (s *TokenService) IssueAccessToken(acc Account) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := AccessClaims{
		UserID:     acc.ID,
		Username:   acc.Username,
		Role:       acc.Role,
		MSPID:      acc.MSPID(),
		Department: acc.Department,
		Email:      acc.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// IssueRefreshToken signs a refresh token and records it in the registry so
// it can later be revoked.
func (s *TokenService) IssueRefreshToken(acc Account) (string, error) {
	now := s.now().UTC()
	claims := refreshClaims{
		UserID:   acc.ID,
		Username: acc.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sweepLocked(now)
	s.registry[token] = refreshRecord{AccountID: acc.ID, IssuedAt: now}
	s.mu.Unlock()
	return token, nil
}

// sweepLocked drops registry entries whose tokens can no longer verify.
// Callers must hold s.mu.
func (s *TokenService) sweepLocked(now time.Time) {
	for token, record := range s.registry {
		if now.Sub(record.IssuedAt) >= s.refreshTTL {
			delete(s.registry, token)
		}
	}
}

// VerifyAccessToken checks signature and expiry and decodes the principal.
// Expired and malformed tokens are distinguished so callers can tell clients
// whether a refresh is worth attempting.
func (s *TokenService) VerifyAccessToken(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, s.keyFunc,
		jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.UserID) == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		ID:         claims.UserID,
		Username:   claims.Username,
		Role:       claims.Role,
		Department: claims.Department,
		MSPID:      claims.MSPID,
		Email:      claims.Email,
	}, nil
}

// Refresh exchanges a tracked refresh token for a new access token. The
// refresh token itself is not rotated. A token absent from the registry is
// rejected as revoked regardless of its cryptographic validity.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(refreshToken, &refreshClaims{}, s.keyFunc,
		jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// The registry entry is useless once the token expires.
			s.mu.Lock()
			delete(s.registry, refreshToken)
			s.mu.Unlock()
			return "", time.Time{}, ErrExpiredToken
		}
		return "", time.Time{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*refreshClaims)
	if !ok || !parsed.Valid {
		return "", time.Time{}, ErrInvalidToken
	}

	s.mu.Lock()
	record, tracked := s.registry[refreshToken]
	s.mu.Unlock()
	if !tracked || record.AccountID != claims.UserID {
		return "", time.Time{}, ErrRevoked
	}

	acc, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrRevoked
		}
		return "", time.Time{}, err
	}
	if !acc.IsActive {
		return "", time.Time{}, ErrAccountInactive
	}
	return s.IssueAccessToken(*acc)
}

// Revoke removes a refresh token from the registry. Unknown tokens are a
// no-op, which makes logout idempotent.
func (s *TokenService) Revoke(refreshToken string) {
	s.mu.Lock()
	delete(s.registry, strings.TrimSpace(refreshToken))
	s.mu.Unlock()
}

func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, ErrInvalidToken
	}
	return s.secret, nil
}
