package auth

import "context"

// ListFilter narrows List results. Zero values mean "no restriction".
type ListFilter struct {
	Role       string
	Department string
	Active     *bool
}

// Store describes persistence operations for account records. Mutations are
// atomic with respect to each other: Update runs its mutator inside the
// store's write critical section so concurrent writers cannot lose updates.
//
// Find methods return the full record including the password hash; only the
// lifecycle service may consume it. List always returns sanitized copies.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Insert(ctx context.Context, acc *Account) error
	Update(ctx context.Context, id string, mutate func(*Account) error) (*Account, error)
	List(ctx context.Context, filter ListFilter) ([]Account, error)
}

// matches reports whether the account passes the filter.
func (f ListFilter) matches(acc Account) bool {
	if f.Role != "" && acc.Role != f.Role {
		return false
	}
	if f.Department != "" && acc.Department != f.Department {
		return false
	}
	if f.Active != nil && acc.IsActive != *f.Active {
		return false
	}
	return true
}
