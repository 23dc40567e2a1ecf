package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsched/medsched/internal/platform/db"
)

type staffRepoPG struct {
	pool *pgxpool.Pool
}

// NewStaffRepoPG creates a PostgreSQL staff repository.
func NewStaffRepoPG(pool *pgxpool.Pool) Repository {
	return &staffRepoPG{pool: pool}
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *staffRepoPG) conn(ctx context.Context) queryable {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const staffColumns = `id, email, first_name, last_name, role, specialty, license_number, phone,
	active, password_hash, last_login_at, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(
		&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.Role, &s.Specialty, &s.LicenseNumber, &s.Phone,
		&s.Active, &s.PasswordHash, &s.LastLoginAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectStaff(rows pgx.Rows) ([]*Staff, error) {
	defer rows.Close()
	var members []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, s)
	}
	return members, rows.Err()
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff (`+staffColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, strings.ToLower(s.Email), s.FirstName, s.LastName, s.Role, s.Specialty, s.LicenseNumber, s.Phone,
		s.Active, s.PasswordHash, s.LastLoginAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create staff: %w", err)
	}
	return nil
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id)
	s, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return s, nil
}

func (r *staffRepoPG) GetByEmail(ctx context.Context, email string) (*Staff, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE email = $1`, strings.ToLower(email))
	s, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get staff by email: %w", err)
	}
	return s, nil
}

func (r *staffRepoPG) GetByLicense(ctx context.Context, license string) (*Staff, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE license_number = $1`, license)
	s, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get staff by license: %w", err)
	}
	return s, nil
}

func (r *staffRepoPG) Update(ctx context.Context, s *Staff) error {
	s.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE staff SET
			email = $2, first_name = $3, last_name = $4, role = $5, specialty = $6,
			license_number = $7, phone = $8, active = $9, password_hash = $10,
			last_login_at = $11, updated_at = $12
		WHERE id = $1`,
		s.ID, strings.ToLower(s.Email), s.FirstName, s.LastName, s.Role, s.Specialty,
		s.LicenseNumber, s.Phone, s.Active, s.PasswordHash,
		s.LastLoginAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *staffRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete staff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *staffRepoPG) List(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count staff: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+staffColumns+` FROM staff
		ORDER BY last_name, first_name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list staff: %w", err)
	}
	members, err := collectStaff(rows)
	if err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

func (r *staffRepoPG) ListByRole(ctx context.Context, role Role) ([]*Staff, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+staffColumns+` FROM staff
		WHERE role = $1
		ORDER BY last_name, first_name`, role)
	if err != nil {
		return nil, fmt.Errorf("list staff by role: %w", err)
	}
	return collectStaff(rows)
}

func (r *staffRepoPG) ListBySpecialty(ctx context.Context, specialty string) ([]*Staff, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+staffColumns+` FROM staff
		WHERE specialty = $1
		ORDER BY last_name, first_name`, specialty)
	if err != nil {
		return nil, fmt.Errorf("list staff by specialty: %w", err)
	}
	return collectStaff(rows)
}

func (r *staffRepoPG) EmailExists(ctx context.Context, email string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff
			WHERE email = $1 AND ($2::uuid IS NULL OR id <> $2)
		)`, strings.ToLower(email), excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *staffRepoPG) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff WHERE active`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active staff: %w", err)
	}
	return count, nil
}
