package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medsched/medsched/internal/platform/auth"
)

// Service handles staff directory business logic.
type Service struct {
	repo   Repository
	issuer *auth.TokenIssuer
}

// NewService creates a staff service.
func NewService(repo Repository, issuer *auth.TokenIssuer) *Service {
	return &Service{repo: repo, issuer: issuer}
}

// CreateInput carries the fields for registering a staff member.
type CreateInput struct {
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Role          Role   `json:"role"`
	Specialty     string `json:"specialty"`
	LicenseNumber string `json:"license_number"`
	Phone         string `json:"phone"`
	Password      string `json:"password"`
}

// Create registers a new staff member with a hashed password. Email and
// license number must be unique across the directory.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Staff, error) {
	if !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("email is invalid")
	}
	if len(strings.TrimSpace(in.FirstName)) < 2 {
		return nil, fmt.Errorf("first_name must be at least 2 characters")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return nil, fmt.Errorf("last_name is required")
	}
	if !ValidRole(in.Role) {
		return nil, fmt.Errorf("unknown role %q", in.Role)
	}
	if strings.TrimSpace(in.LicenseNumber) == "" {
		return nil, fmt.Errorf("license_number is required")
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	taken, err := s.repo.EmailExists(ctx, in.Email, nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	existing, err := s.repo.GetByLicense(ctx, in.LicenseNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrLicenseTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	member := &Staff{
		ID:            uuid.New(),
		Email:         strings.ToLower(in.Email),
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Role:          in.Role,
		LicenseNumber: in.LicenseNumber,
		Active:        true,
		PasswordHash:  hash,
	}
	if in.Specialty != "" {
		member.Specialty = &in.Specialty
	}
	if in.Phone != "" {
		member.Phone = &in.Phone
	}

	if err := s.repo.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Staff     *Staff    `json:"staff"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates a staff member and issues an access token. Missing
// accounts and wrong passwords both come back as ErrInvalidCredentials so
// the response does not leak which emails exist.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	member, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrInvalidCredentials
	}
	if !member.Active {
		return nil, ErrInactive
	}
	if err := auth.VerifyPassword(member.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now().UTC()
	member.LastLoginAt = &now
	if err := s.repo.Update(ctx, member); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(member.ID.String(), string(member.Role))
	if err != nil {
		return nil, err
	}
	return &LoginResult{Staff: member, Token: token, ExpiresAt: expiresAt}, nil
}

// FindByID returns the staff member, or (nil, nil) when none exists.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateInput carries the profile fields an update may change. Nil fields
// are left untouched.
type UpdateInput struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Specialty *string `json:"specialty"`
	Phone     *string `json:"phone"`
	Active    *bool   `json:"active"`
}

// Update modifies a staff member's profile.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Staff, error) {
	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotFound
	}

	if in.Email != nil && !strings.EqualFold(*in.Email, member.Email) {
		if !strings.Contains(*in.Email, "@") {
			return nil, fmt.Errorf("email is invalid")
		}
		taken, err := s.repo.EmailExists(ctx, *in.Email, &id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrEmailTaken
		}
		member.Email = strings.ToLower(*in.Email)
	}
	if in.FirstName != nil {
		if len(strings.TrimSpace(*in.FirstName)) < 2 {
			return nil, fmt.Errorf("first_name must be at least 2 characters")
		}
		member.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		member.LastName = *in.LastName
	}
	if in.Specialty != nil {
		member.Specialty = in.Specialty
	}
	if in.Phone != nil {
		member.Phone = in.Phone
	}
	if in.Active != nil {
		member.Active = *in.Active
	}

	if err := s.repo.Update(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotFound
	}
	if err := auth.VerifyPassword(member.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	if len(next) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	member.PasswordHash = hash
	return s.repo.Update(ctx, member)
}

// Deactivate marks a staff member inactive, keeping their history intact.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotFound
	}
	member.Active = false
	return s.repo.Update(ctx, member)
}

// List returns a page of the staff directory with a total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListByRole returns all staff members holding the given role.
func (s *Service) ListByRole(ctx context.Context, role Role) ([]*Staff, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return s.repo.ListByRole(ctx, role)
}

// ListBySpecialty returns all staff members with the given specialty.
func (s *Service) ListBySpecialty(ctx context.Context, specialty string) ([]*Staff, error) {
	return s.repo.ListBySpecialty(ctx, specialty)
}
