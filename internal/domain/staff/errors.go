package staff

import "errors"

var (
	ErrNotFound           = errors.New("staff member not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrLicenseTaken       = errors.New("license number is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactive           = errors.New("staff member is deactivated")
)
