package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsched/medsched/internal/platform/db"
)

type eventRepoPG struct {
	pool *pgxpool.Pool
}

// NewEventRepoPG creates a PostgreSQL event repository.
func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{pool: pool}
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// conn returns the transaction bound to the context when one is present,
// falling back to the pool.
func (r *eventRepoPG) conn(ctx context.Context) queryable {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const eventColumns = `id, reference, event_type, title, description, event_date, start_min, end_min,
	priority, status, staff_id, specialty, location, notes,
	shift_slot, weekend_shift, requires_supervisor,
	emergency_code, patient_info, medical_team, required_resources,
	main_topic, participants, cases_to_review, requires_presentation,
	created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.Reference, &e.Type, &e.Title, &e.Description, &e.Date, &e.StartTime, &e.EndTime,
		&e.Priority, &e.Status, &e.StaffID, &e.Specialty, &e.Location, &e.Notes,
		&e.Slot, &e.WeekendShift, &e.RequiresSupervisor,
		&e.EmergencyCode, &e.PatientInfo, &e.MedicalTeam, &e.RequiredResources,
		&e.MainTopic, &e.Participants, &e.CasesToReview, &e.RequiresPresentation,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *eventRepoPG) Create(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_event (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		e.ID, e.Reference, e.Type, e.Title, e.Description, e.Date, e.StartTime, e.EndTime,
		e.Priority, e.Status, e.StaffID, e.Specialty, e.Location, e.Notes,
		e.Slot, e.WeekendShift, e.RequiresSupervisor,
		e.EmergencyCode, e.PatientInfo, e.MedicalTeam, e.RequiredResources,
		e.MainTopic, e.Participants, e.CasesToReview, e.RequiresPresentation,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *eventRepoPG) FindByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+eventColumns+` FROM medical_event WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return e, nil
}

func (r *eventRepoPG) Update(ctx context.Context, e *Event) error {
	e.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_event SET
			title = $2, description = $3, event_date = $4, start_min = $5, end_min = $6,
			priority = $7, status = $8, specialty = $9, location = $10, notes = $11,
			shift_slot = $12, weekend_shift = $13, requires_supervisor = $14,
			emergency_code = $15, patient_info = $16, medical_team = $17, required_resources = $18,
			main_topic = $19, participants = $20, cases_to_review = $21, requires_presentation = $22,
			updated_at = $23
		WHERE id = $1`,
		e.ID, e.Title, e.Description, e.Date, e.StartTime, e.EndTime,
		e.Priority, e.Status, e.Specialty, e.Location, e.Notes,
		e.Slot, e.WeekendShift, e.RequiresSupervisor,
		e.EmergencyCode, e.PatientInfo, e.MedicalTeam, e.RequiredResources,
		e.MainTopic, e.Participants, e.CasesToReview, e.RequiresPresentation,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *eventRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_event WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *eventRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE staff_id = $1
		ORDER BY event_date, start_min`, staffID)
	if err != nil {
		return nil, fmt.Errorf("list events by staff: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepoPG) ListByDate(ctx context.Context, date time.Time) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE event_date = $1
		ORDER BY start_min`, DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list events by date: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepoPG) ListByDateRange(ctx context.Context, from, to time.Time) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE event_date >= $1 AND event_date <= $2
		ORDER BY event_date, start_min`, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("list events by date range: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepoPG) ListByType(ctx context.Context, t EventType) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE event_type = $1
		ORDER BY event_date, start_min`, t)
	if err != nil {
		return nil, fmt.Errorf("list events by type: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepoPG) ListByPriority(ctx context.Context, p Priority) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE priority = $1
		ORDER BY event_date, start_min`, p)
	if err != nil {
		return nil, fmt.Errorf("list events by priority: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepoPG) ListByStatus(ctx context.Context, s Status) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE status = $1
		ORDER BY event_date, start_min`, s)
	if err != nil {
		return nil, fmt.Errorf("list events by status: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepoPG) ListActiveEmergencies(ctx context.Context) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE event_type = 'emergency' AND status IN ('scheduled', 'in_progress')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active emergencies: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepoPG) ListShiftsBySlot(ctx context.Context, slot ShiftSlot, date time.Time) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM medical_event
		WHERE event_type = 'shift' AND shift_slot = $1 AND event_date = $2
		ORDER BY start_min`, slot, DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list shifts by slot: %w", err)
	}
	return collectEvents(rows)
}

// HasOverlap compares half-open minute windows on one calendar date. Windows
// that run past midnight are extended beyond 1440 before comparing so a
// 22:00-06:00 shift still collides with 23:00-05:00. Cancelled events do not
// occupy the calendar.
func (r *eventRepoPG) HasOverlap(ctx context.Context, staffID uuid.UUID, date time.Time, start, end TimeOfDay, excludeID *uuid.UUID) (bool, error) {
	var overlap bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM medical_event
			WHERE staff_id = $1
			  AND event_date = $2
			  AND status <> 'cancelled'
			  AND ($5::uuid IS NULL OR id <> $5)
			  AND start_min < (CASE WHEN $4::int < $3::int THEN $4::int + 1440 ELSE $4::int END)
			  AND (CASE WHEN end_min < start_min THEN end_min + 1440 ELSE end_min END) > $3::int
		)`,
		staffID, DateOnly(date), int(start), int(end), excludeID,
	).Scan(&overlap)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return overlap, nil
}

func (r *eventRepoPG) CountByStaffAndDate(ctx context.Context, staffID uuid.UUID, date time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM medical_event
		WHERE staff_id = $1 AND event_date = $2`,
		staffID, DateOnly(date),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// LockStaff takes a transaction-scoped advisory lock keyed on the staff id.
// Outside a transaction this is a no-op on the pool connection's session and
// offers no protection, so callers run it through a TxRunner.
func (r *eventRepoPG) LockStaff(ctx context.Context, staffID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, staffID)
	if err != nil {
		return fmt.Errorf("lock staff schedule: %w", err)
	}
	return nil
}

func (r *eventRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Event, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argN := 1

	if v, ok := params["type"]; ok && v != "" {
		where += fmt.Sprintf(" AND event_type = $%d", argN)
		args = append(args, v)
		argN++
	}
	if v, ok := params["status"]; ok && v != "" {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, v)
		argN++
	}
	if v, ok := params["priority"]; ok && v != "" {
		where += fmt.Sprintf(" AND priority = $%d", argN)
		args = append(args, v)
		argN++
	}
	if v, ok := params["staff_id"]; ok && v != "" {
		where += fmt.Sprintf(" AND staff_id = $%d", argN)
		args = append(args, v)
		argN++
	}
	if v, ok := params["date"]; ok && v != "" {
		where += fmt.Sprintf(" AND event_date = $%d", argN)
		args = append(args, v)
		argN++
	}
	if v, ok := params["from"]; ok && v != "" {
		where += fmt.Sprintf(" AND event_date >= $%d", argN)
		args = append(args, v)
		argN++
	}
	if v, ok := params["to"]; ok && v != "" {
		where += fmt.Sprintf(" AND event_date <= $%d", argN)
		args = append(args, v)
		argN++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_event `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+eventColumns+` FROM medical_event %s ORDER BY event_date, start_min LIMIT $%d OFFSET $%d`,
		where, argN, argN+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search events: %w", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
