package staff

import (
	"time"

	"github.com/google/uuid"
)

// Role of a staff member in the hospital directory.
type Role string

const (
	RolePhysician     Role = "physician"
	RoleNurse         Role = "nurse"
	RoleAdministrator Role = "administrator"
	RoleResident      Role = "resident"
)

var validRoles = map[Role]bool{
	RolePhysician:     true,
	RoleNurse:         true,
	RoleAdministrator: true,
	RoleResident:      true,
}

// ValidRole reports whether r is a known staff role.
func ValidRole(r Role) bool { return validRoles[r] }

// Staff maps to the staff table.
type Staff struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Role          Role       `db:"role" json:"role"`
	Specialty     *string    `db:"specialty" json:"specialty,omitempty"`
	LicenseNumber string     `db:"license_number" json:"license_number"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Active        bool       `db:"active" json:"active"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	LastLoginAt   *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name used on rosters and boards.
func (s *Staff) FullName() string {
	return s.FirstName + " " + s.LastName
}

// IsClinicalStaff reports whether the member may hold clinical shifts.
func (s *Staff) IsClinicalStaff() bool {
	return s.Role == RolePhysician || s.Role == RoleResident
}

// CanManageEmergencies reports whether the member may report and manage
// emergencies.
func (s *Staff) CanManageEmergencies() bool {
	return s.Role == RolePhysician || s.Role == RoleAdministrator
}
