package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultMinPasswordLength = 8
	defaultBcryptCost        = 10
)

// Service implements the account lifecycle: registration, authentication,
// password changes and deactivation. It composes the credential store, the
// role/department policy and the token service.
type Service struct {
	store       Store
	tokens      *TokenService
	minPassword int
	bcryptCost  int
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMinPasswordLength overrides the minimum accepted password length.
func WithMinPasswordLength(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.minPassword = n
		}
	}
}

// WithBcryptCost overrides the password hashing work factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle service.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		tokens:      tokens,
		minPassword: defaultMinPasswordLength,
		bcryptCost:  defaultBcryptCost,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the token service for callers that verify or revoke tokens
// directly (the HTTP layer).
func (s *Service) Tokens() *TokenService { return s.tokens }

// RegisterParams carries registration input.
type RegisterParams struct {
	Username   string
	Password   string
	Email      string
	Role       string
	Department string
}

// Register validates and creates a new active account. Duplicate username or
// email surfaces as ErrConflict; the existing account is left untouched.
func (s *Service) Register(ctx context.Context, p RegisterParams) (Account, error) {
	username := strings.TrimSpace(p.Username)
	email := strings.TrimSpace(strings.ToLower(p.Email))
	role := strings.TrimSpace(strings.ToLower(p.Role))
	department := strings.TrimSpace(strings.ToUpper(p.Department))

	if username == "" || email == "" {
		return Account{}, ErrInvalidInput
	}
	if !IsValidRole(role) {
		return Account{}, ErrInvalidInput
	}
	if (role == RoleStudent || role == RoleFaculty) && department == "" {
		return Account{}, ErrInvalidInput
	}
	if len(p.Password) < s.minPassword {
		return Account{}, ErrInvalidInput
	}

	hash, err := HashPassword(p.Password, s.bcryptCost)
	if err != nil {
		return Account{}, err
	}
	acc := Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Department:   department,
		IsActive:     true,
	}
	if err := s.store.Insert(ctx, &acc); err != nil {
		return Account{}, err
	}
	return acc.Sanitized(), nil
}

// mismatchHash is a bcrypt hash of an unused password. Rejection paths that
// never reach the stored hash compare against it so latency does not reveal
// whether the account exists.
const mismatchHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Authenticate resolves the account by email first, then username, and
// verifies the password. Unknown account, inactive account and wrong password
// all collapse into ErrInvalidCredentials so callers
// cannot be used for account enumeration.
func (s *Service) Authenticate(ctx context.Context, loginOrEmail, password string) (Account, error) {
	loginOrEmail = strings.TrimSpace(loginOrEmail)
	if loginOrEmail == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}
	acc, err := s.store.FindByEmail(ctx, strings.ToLower(loginOrEmail))
	if errors.Is(err, ErrNotFound) {
		acc, err = s.store.FindByUsername(ctx, loginOrEmail)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = VerifyPassword(mismatchHash, password)
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if !acc.IsActive {
		_ = VerifyPassword(acc.PasswordHash, password)
		return Account{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acc.Sanitized(), nil
}

// TokenPair bundles freshly issued credentials.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Login authenticates and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, loginOrEmail, password string) (TokenPair, Account, error) {
	acc, err := s.Authenticate(ctx, loginOrEmail, password)
	if err != nil {
		return TokenPair{}, Account{}, err
	}
	access, exp, err := s.tokens.IssueAccessToken(acc)
	if err != nil {
		return TokenPair{}, Account{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(acc)
	if err != nil {
		return TokenPair{}, Account{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, AccessExpiresAt: exp}, acc, nil
}

// ChangePassword requires the current password to match before re-hashing.
// The new hash is computed before entering the store's write critical
// section, so the lock is held only for the collection rewrite.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if len(newPassword) < s.minPassword {
		return ErrInvalidInput
	}
	acc, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(acc.PasswordHash, oldPassword); err != nil {
		return ErrIncorrectPassword
	}
	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	_, err = s.store.Update(ctx, accountID, func(a *Account) error {
		a.PasswordHash = hash
		return nil
	})
	return err
}

// Deactivate soft-deletes the account: the record is retained for audit and
// its username/email slots stay occupied. Idempotent.
func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	_, err := s.store.Update(ctx, accountID, func(a *Account) error {
		a.IsActive = false
		return nil
	})
	return err
}

// Get returns a sanitized account by id.
func (s *Service) Get(ctx context.Context, accountID string) (Account, error) {
	acc, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	return acc.Sanitized(), nil
}

// List returns sanitized accounts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return s.store.List(ctx, filter)
}
