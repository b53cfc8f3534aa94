package enums

// StaffRole is the role carried by an operator access token.
type StaffRole string

const (
	StaffRoleAdmin   StaffRole = "ADMIN"
	StaffRoleManager StaffRole = "MANAGER"
	StaffRoleStaff   StaffRole = "STAFF"
)

// IsValid reports whether the value is a known staff role.
func (r StaffRole) IsValid() bool {
	switch r {
	case StaffRoleAdmin, StaffRoleManager, StaffRoleStaff:
		return true
	}
	return false
}
