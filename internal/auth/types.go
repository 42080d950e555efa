package auth

import "time"

// Application roles. The set is fixed; anything else is rejected at
// registration time.
const (
	RoleAdmin      = "admin"
	RoleStudent    = "student"
	RoleFaculty    = "faculty"
	RoleDepartment = "department"
	RoleVerifier   = "verifier"
	RoleClient     = "client"
)

// Ledger identity namespaces (MSP IDs). They select which wallet identity
// signs a ledger operation on behalf of the principal.
const (
	NamespaceInstitute   = "InstituteMSP"
	NamespaceDepartments = "DepartmentsMSP"
	NamespaceVerifiers   = "VerifiersMSP"
)

// Account is the durable credential record. PasswordHash never leaves the
// auth package; use Sanitized before handing an account to callers.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Role         string    `json:"role"`
	Department   string    `json:"department,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Sanitized returns a copy with all secret material stripped.
func (a Account) Sanitized() Account {
	a.PasswordHash = ""
	return a
}

// MSPID resolves the ledger namespace for the account's role.
func (a Account) MSPID() string {
	return NamespaceForRole(a.Role)
}

// Principal is the authenticated identity derived from a verified access
// token. It exists only for the duration of a request and is never persisted.
type Principal struct {
	ID         string
	Username   string
	Role       string
	Department string
	MSPID      string
	Email      string
}
