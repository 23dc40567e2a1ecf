package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventRepository is the persistence contract for medical events. List
// methods return events in no particular order unless stated; callers sort.
type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	// FindByID returns (nil, nil) when no event exists with the given id.
	FindByID(ctx context.Context, id uuid.UUID) (*Event, error)
	Update(ctx context.Context, e *Event) error
	// Delete removes the event and reports whether a row existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Event, error)
	ListByDate(ctx context.Context, date time.Time) ([]*Event, error)
	// ListByDateRange returns events with from <= date <= to.
	ListByDateRange(ctx context.Context, from, to time.Time) ([]*Event, error)
	ListByType(ctx context.Context, t EventType) ([]*Event, error)
	ListByPriority(ctx context.Context, p Priority) ([]*Event, error)
	ListByStatus(ctx context.Context, s Status) ([]*Event, error)
	// ListActiveEmergencies returns emergencies that are scheduled or in
	// progress.
	ListActiveEmergencies(ctx context.Context) ([]*Event, error)
	ListShiftsBySlot(ctx context.Context, slot ShiftSlot, date time.Time) ([]*Event, error)

	// HasOverlap reports whether the staff member already has a
	// non-cancelled event on date whose half-open window intersects
	// [start, end). excludeID, when set, ignores that event so updates can
	// check against everything but themselves.
	HasOverlap(ctx context.Context, staffID uuid.UUID, date time.Time, start, end TimeOfDay, excludeID *uuid.UUID) (bool, error)
	CountByStaffAndDate(ctx context.Context, staffID uuid.UUID, date time.Time) (int, error)

	// LockStaff serializes check-then-create sequences for one staff
	// member. Two callers holding the same staff lock cannot interleave
	// their conflict checks and writes; the lock lives for the surrounding
	// transaction where one exists.
	LockStaff(ctx context.Context, staffID uuid.UUID) error

	// Search lists events matching the given filters with a total count
	// for pagination. Supported keys: type, status, priority, staff_id,
	// date, from, to.
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Event, int, error)
}
