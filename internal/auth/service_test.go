package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := newTestFileStore(t)
	tokens, err := NewTokenService("unit-test-secret", store)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewService(store, tokens, WithBcryptCost(4))
}

func registerTestAccount(t *testing.T, svc *Service, p RegisterParams) Account {
	t.Helper()
	acc, err := svc.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("Register(%+v): %v", p, err)
	}
	return acc
}

func TestRegisterNormalizesAndSanitizes(t *testing.T) {
	svc := newTestService(t)
	acc := registerTestAccount(t, svc, RegisterParams{
		Username:   "  a.petrov  ",
		Password:   "correct-horse",
		Email:      "A.Petrov@Example.EDU",
		Role:       "Faculty",
		Department: "cse",
	})
	if acc.Username != "a.petrov" {
		t.Fatalf("username not trimmed: %q", acc.Username)
	}
	if acc.Email != "a.petrov@example.edu" {
		t.Fatalf("email not lowercased: %q", acc.Email)
	}
	if acc.Role != RoleFaculty {
		t.Fatalf("role not normalized: %q", acc.Role)
	}
	if acc.Department != "CSE" {
		t.Fatalf("department not uppercased: %q", acc.Department)
	}
	if acc.PasswordHash != "" {
		t.Fatal("Register leaked the password hash")
	}
	if !acc.IsActive {
		t.Fatal("new accounts must start active")
	}
	if acc.MSPID() != NamespaceInstitute {
		t.Fatalf("faculty must map to %s, got %s", NamespaceInstitute, acc.MSPID())
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	cases := []struct {
		name string
		p    RegisterParams
	}{
		{"empty username", RegisterParams{Password: "correct-horse", Email: "x@example.edu", Role: RoleClient}},
		{"empty email", RegisterParams{Username: "x", Password: "correct-horse", Role: RoleClient}},
		{"unknown role", RegisterParams{Username: "x", Password: "correct-horse", Email: "x@example.edu", Role: "superuser"}},
		{"student without department", RegisterParams{Username: "x", Password: "correct-horse", Email: "x@example.edu", Role: RoleStudent}},
		{"faculty without department", RegisterParams{Username: "x", Password: "correct-horse", Email: "x@example.edu", Role: RoleFaculty}},
		{"short password", RegisterParams{Username: "x", Password: "short", Email: "x@example.edu", Role: RoleClient}},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.p); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestRegisterDuplicateLeavesOriginalIntact(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	first := registerTestAccount(t, svc, RegisterParams{
		Username: "a.petrov", Password: "correct-horse", Email: "a.petrov@example.edu", Role: RoleClient,
	})

	_, err := svc.Register(ctx, RegisterParams{
		Username: "a.petrov", Password: "other-password", Email: "second@example.edu", Role: RoleClient,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != first.Email || !got.IsActive {
		t.Fatalf("original account changed: %+v", got)
	}
	if _, err := svc.Authenticate(ctx, "a.petrov", "correct-horse"); err != nil {
		t.Fatalf("original credentials must still work: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	registerTestAccount(t, svc, RegisterParams{
		Username: "a.petrov", Password: "correct-horse", Email: "a.petrov@example.edu", Role: RoleClient,
	})

	byUsername, err := svc.Authenticate(ctx, "a.petrov", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate by username: %v", err)
	}
	if byUsername.PasswordHash != "" {
		t.Fatal("Authenticate leaked the password hash")
	}
	if _, err := svc.Authenticate(ctx, "a.petrov@example.edu", "correct-horse"); err != nil {
		t.Fatalf("Authenticate by email: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "A.Petrov@Example.edu", "correct-horse"); err != nil {
		t.Fatalf("Authenticate by mixed-case email: %v", err)
	}

	for _, tc := range []struct{ login, password string }{
		{"a.petrov", "wrong-password"},
		{"nobody", "correct-horse"},
		{"", "correct-horse"},
		{"a.petrov", ""},
	} {
		if _, err := svc.Authenticate(ctx, tc.login, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Authenticate(%q, %q): expected ErrInvalidCredentials, got %v", tc.login, tc.password, err)
		}
	}
}

func TestAuthenticateRejectsInactive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	acc := registerTestAccount(t, svc, RegisterParams{
		Username: "a.petrov", Password: "correct-horse", Email: "a.petrov@example.edu", Role: RoleClient,
	})
	if err := svc.Deactivate(ctx, acc.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "a.petrov", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive account, got %v", err)
	}
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	registerTestAccount(t, svc, RegisterParams{
		Username: "s.ivanov", Password: "correct-horse", Email: "s.ivanov@example.edu",
		Role: RoleStudent, Department: "CS",
	})

	pair, acc, err := svc.Login(ctx, "s.ivanov", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	p, err := svc.Tokens().VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if p.ID != acc.ID || p.Role != RoleStudent || p.Department != "CS" || p.MSPID != NamespaceInstitute {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if _, _, err := svc.Tokens().Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	acc := registerTestAccount(t, svc, RegisterParams{
		Username: "a.petrov", Password: "correct-horse", Email: "a.petrov@example.edu", Role: RoleClient,
	})

	if err := svc.ChangePassword(ctx, acc.ID, "wrong-old", "brand-new-secret"); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, acc.ID, "correct-horse", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, acc.ID, "correct-horse", "brand-new-secret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "a.petrov", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "a.petrov", "brand-new-secret"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
	if err := svc.ChangePassword(ctx, "missing", "x", "brand-new-secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	acc := registerTestAccount(t, svc, RegisterParams{
		Username: "a.petrov", Password: "correct-horse", Email: "a.petrov@example.edu", Role: RoleClient,
	})
	if err := svc.Deactivate(ctx, acc.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := svc.Deactivate(ctx, acc.ID); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
	got, err := svc.Get(ctx, acc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsActive {
		t.Fatal("account still active")
	}
	if err := svc.Deactivate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentPasswordChangeAndDeactivation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	acc := registerTestAccount(t, svc, RegisterParams{
		Username: "a.petrov", Password: "correct-horse", Email: "a.petrov@example.edu", Role: RoleClient,
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- svc.ChangePassword(ctx, acc.ID, "correct-horse", "brand-new-secret")
	}()
	go func() {
		defer wg.Done()
		errs <- svc.Deactivate(ctx, acc.ID)
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent mutation: %v", err)
		}
	}

	got, err := svc.Get(ctx, acc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsActive {
		t.Fatal("deactivation lost to the password change")
	}
}
