package staff

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the staff directory. Lookup
// methods return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetByEmail(ctx context.Context, email string) (*Staff, error)
	GetByLicense(ctx context.Context, license string) (*Staff, error)
	Update(ctx context.Context, s *Staff) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Staff, int, error)
	ListByRole(ctx context.Context, role Role) ([]*Staff, error)
	ListBySpecialty(ctx context.Context, specialty string) ([]*Staff, error)
	// EmailExists reports whether another staff member already uses the
	// email. excludeID, when set, ignores that member.
	EmailExists(ctx context.Context, email string, excludeID *uuid.UUID) (bool, error)
	CountActive(ctx context.Context) (int, error)
}
