package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubAccounts satisfies AccountSource with a fixed set of records.
type stubAccounts struct {
	accounts map[string]Account
}

func (s *stubAccounts) FindByID(_ context.Context, id string) (*Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &acc, nil
}

func testAccount() Account {
	return Account{
		ID:         "01JTESTACCOUNT0000000000AA",
		Username:   "s.ivanov",
		Email:      "s.ivanov@example.edu",
		Role:       RoleFaculty,
		Department: "CSE",
		IsActive:   true,
	}
}

func newTestTokenService(t *testing.T, opts ...TokenOption) (*TokenService, *stubAccounts) {
	t.Helper()
	acc := testAccount()
	src := &stubAccounts{accounts: map[string]Account{acc.ID: acc}}
	svc, err := NewTokenService("unit-test-secret", src, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc, src
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("  ", nil); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, _ := newTestTokenService(t)
	acc := testAccount()

	token, exp, err := svc.IssueAccessToken(acc)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	p, err := svc.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	want := Principal{
		ID:         acc.ID,
		Username:   acc.Username,
		Role:       acc.Role,
		Department: acc.Department,
		MSPID:      NamespaceInstitute,
		Email:      acc.Email,
	}
	if p != want {
		t.Fatalf("principal mismatch:\n got %+v\nwant %+v", p, want)
	}
}

func TestVerifyAccessTokenDistinguishesExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	svc, _ := newTestTokenService(t,
		WithAccessTTL(time.Minute),
		WithTokenClock(func() time.Time { return clock }))

	token, _, err := svc.IssueAccessToken(testAccount())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := svc.VerifyAccessToken(token); err != nil {
		t.Fatalf("token should verify before expiry: %v", err)
	}

	clock = base.Add(2 * time.Minute)
	if _, err := svc.VerifyAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	if _, err := svc.VerifyAccessToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
	if _, err := svc.VerifyAccessToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty, got %v", err)
	}
}

func TestVerifyAccessTokenRejectsForeignSignature(t *testing.T) {
	svc, _ := newTestTokenService(t)
	other, err := NewTokenService("different-secret", nil)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	token, _, err := other.IssueAccessToken(testAccount())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := svc.VerifyAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshFlow(t *testing.T) {
	ctx := context.Background()
	svc, src := newTestTokenService(t)
	acc := testAccount()

	refresh, err := svc.IssueRefreshToken(acc)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	access, _, err := svc.Refresh(ctx, refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := svc.VerifyAccessToken(access); err != nil {
		t.Fatalf("refreshed access token should verify: %v", err)
	}

	// The refresh token is not rotated, so a second exchange works too.
	if _, _, err := svc.Refresh(ctx, refresh); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}

	svc.Revoke(refresh)
	if _, _, err := svc.Refresh(ctx, refresh); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked after Revoke, got %v", err)
	}
	// Revoking again must not fail.
	svc.Revoke(refresh)

	// Untracked but well-signed tokens are revoked, not invalid.
	other, _ := NewTokenService("unit-test-secret", src)
	stray, err := other.IssueRefreshToken(acc)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, stray); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked for untracked token, got %v", err)
	}
}

func TestRefreshRejectsInactiveAccount(t *testing.T) {
	ctx := context.Background()
	svc, src := newTestTokenService(t)
	acc := testAccount()

	refresh, err := svc.IssueRefreshToken(acc)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	acc.IsActive = false
	src.accounts[acc.ID] = acc
	if _, _, err := svc.Refresh(ctx, refresh); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	delete(src.accounts, acc.ID)
	if _, _, err := svc.Refresh(ctx, refresh); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked for deleted account, got %v", err)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	svc, _ := newTestTokenService(t,
		WithRefreshTTL(time.Hour),
		WithTokenClock(func() time.Time { return clock }))

	refresh, err := svc.IssueRefreshToken(testAccount())
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	clock = base.Add(2 * time.Hour)
	if _, _, err := svc.Refresh(context.Background(), refresh); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestRefreshRegistryDropsExpiredEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	svc, _ := newTestTokenService(t,
		WithRefreshTTL(time.Hour),
		WithTokenClock(func() time.Time { return clock }))

	stale, err := svc.IssueRefreshToken(testAccount())
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	// An expired exchange removes its registry entry.
	clock = base.Add(2 * time.Hour)
	if _, _, err := svc.Refresh(context.Background(), stale); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
	svc.mu.Lock()
	_, tracked := svc.registry[stale]
	svc.mu.Unlock()
	if tracked {
		t.Fatal("expired token still in the registry after refresh")
	}

	// Issuing sweeps entries whose tokens can no longer verify.
	lingering, err := svc.IssueRefreshToken(testAccount())
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	clock = base.Add(4 * time.Hour)
	fresh, err := svc.IssueRefreshToken(testAccount())
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	svc.mu.Lock()
	_, lingerTracked := svc.registry[lingering]
	_, freshTracked := svc.registry[fresh]
	size := len(svc.registry)
	svc.mu.Unlock()
	if lingerTracked {
		t.Fatal("stale entry survived the issue-time sweep")
	}
	if !freshTracked || size != 1 {
		t.Fatalf("expected only the fresh token tracked, registry size %d", size)
	}
}
