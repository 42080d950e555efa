package auth

import "strings"

// departmentPrefixLen is the number of leading characters of a roll number
// that encode the owning department. This is the issuing institution's
// convention; department codes longer than the prefix (e.g. "CSE") are
// compared by their first two characters as a consequence.
const departmentPrefixLen = 2

var validRoles = map[string]struct{}{
	RoleAdmin:      {},
	RoleStudent:    {},
	RoleFaculty:    {},
	RoleDepartment: {},
	RoleVerifier:   {},
	RoleClient:     {},
}

// IsValidRole reports membership in the fixed role enum.
func IsValidRole(role string) bool {
	_, ok := validRoles[role]
	return ok
}

// NamespaceForRole maps an application role to the ledger identity namespace
// whose wallet signs operations for that role. Unknown roles and client map
// to no namespace.
func NamespaceForRole(role string) string {
	switch role {
	case RoleAdmin, RoleStudent, RoleFaculty:
		return NamespaceInstitute
	case RoleDepartment:
		return NamespaceDepartments
	case RoleVerifier:
		return NamespaceVerifiers
	default:
		return ""
	}
}

// DepartmentPrefix extracts the uppercased department code encoded in the
// leading characters of a roll-number identifier.
func DepartmentPrefix(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if len(identifier) < departmentPrefixLen {
		return strings.ToUpper(identifier)
	}
	return strings.ToUpper(identifier[:departmentPrefixLen])
}

// IsRollNumber reports whether the value looks like a roll number:
// a department prefix of letters followed by at least one digit.
func IsRollNumber(s string) bool {
	if len(s) <= departmentPrefixLen {
		return false
	}
	for i := 0; i < departmentPrefixLen; i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	c := s[departmentPrefixLen]
	return c >= '0' && c <= '9'
}

// HasAccessToDepartment decides whether the principal may touch a resource
// scoped to the given department code or roll-number identifier.
// Admins always pass. Department and faculty principals must match the
// resource's department (case-insensitive, via the prefix convention when the
// resource is roll-number shaped). All other roles defer: the check imposes
// no additional restriction on them.
func HasAccessToDepartment(p Principal, resource string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	if p.Role != RoleDepartment && p.Role != RoleFaculty {
		return true
	}
	if strings.TrimSpace(p.Department) == "" {
		return false
	}
	resource = strings.TrimSpace(resource)
	if IsRollNumber(resource) {
		return DepartmentPrefix(resource) == DepartmentPrefix(p.Department)
	}
	return strings.EqualFold(p.Department, resource)
}
