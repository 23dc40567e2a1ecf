package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the medical event variants stored in the
// medical_event table.
type EventType string

const (
	TypeShift           EventType = "shift"
	TypeEmergency       EventType = "emergency"
	TypeClinicalMeeting EventType = "clinical_meeting"
)

// Priority of a medical event.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Status of a medical event within its lifecycle.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// ShiftSlot is the coverage block a shift belongs to.
type ShiftSlot string

const (
	SlotMorning   ShiftSlot = "morning"
	SlotAfternoon ShiftSlot = "afternoon"
	SlotNight     ShiftSlot = "night"
)

var validEventTypes = map[EventType]bool{
	TypeShift:           true,
	TypeEmergency:       true,
	TypeClinicalMeeting: true,
}

var validPriorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

var validStatuses = map[Status]bool{
	StatusScheduled:   true,
	StatusInProgress:  true,
	StatusCompleted:   true,
	StatusCancelled:   true,
	StatusRescheduled: true,
}

var validShiftSlots = map[ShiftSlot]bool{
	SlotMorning:   true,
	SlotAfternoon: true,
	SlotNight:     true,
}

const (
	minutesPerDay     = 24 * 60
	minShiftMinutes   = 8 * 60
	maxMeetingMinutes = 4 * 60
)

// TimeOfDay is a wall-clock time expressed as whole minutes since midnight.
// It marshals as "HH:MM" and is stored in an integer column.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute pair.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses a "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return NewTimeOfDay(parsed.Hour(), parsed.Minute()), nil
}

// Hour returns the hour component (0-23).
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component (0-59).
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Valid reports whether t falls within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && t < minutesPerDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOnly truncates t to midnight UTC. Event dates are compared as
// calendar days, never as instants.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether the half-open windows [aStart, aEnd) and
// [bStart, bEnd) intersect. A window whose end precedes its start runs
// past midnight and is extended into the next day before comparing.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	ae, be := int(aEnd), int(bEnd)
	if ae < int(aStart) {
		ae += minutesPerDay
	}
	if be < int(bStart) {
		be += minutesPerDay
	}
	return int(aStart) < be && ae > int(bStart)
}

// Event maps to the medical_event table. A single row holds the shared
// scheduling attributes plus the variant fields selected by Type; variant
// fields outside the event's type are left at their zero values.
type Event struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Reference   string    `db:"reference" json:"reference"`
	Type        EventType `db:"event_type" json:"event_type"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	Date        time.Time `db:"event_date" json:"event_date"`
	StartTime   TimeOfDay `db:"start_min" json:"start_time"`
	EndTime     TimeOfDay `db:"end_min" json:"end_time"`
	Priority    Priority  `db:"priority" json:"priority"`
	Status      Status    `db:"status" json:"status"`
	StaffID     uuid.UUID `db:"staff_id" json:"staff_id"`
	Specialty   *string   `db:"specialty" json:"specialty,omitempty"`
	Location    *string   `db:"location" json:"location,omitempty"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`

	// Shift fields.
	Slot               ShiftSlot `db:"shift_slot" json:"shift_slot,omitempty"`
	WeekendShift       bool      `db:"weekend_shift" json:"weekend_shift"`
	RequiresSupervisor bool      `db:"requires_supervisor" json:"requires_supervisor"`

	// Emergency fields.
	EmergencyCode     *string  `db:"emergency_code" json:"emergency_code,omitempty"`
	PatientInfo       *string  `db:"patient_info" json:"patient_info,omitempty"`
	MedicalTeam       []string `db:"medical_team" json:"medical_team,omitempty"`
	RequiredResources []string `db:"required_resources" json:"required_resources,omitempty"`

	// Clinical meeting fields.
	MainTopic            *string  `db:"main_topic" json:"main_topic,omitempty"`
	Participants         []string `db:"participants" json:"participants,omitempty"`
	CasesToReview        []string `db:"cases_to_review" json:"cases_to_review,omitempty"`
	RequiresPresentation bool     `db:"requires_presentation" json:"requires_presentation"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks the structural invariants shared by every event type.
// It returns the first violation found.
func (e *Event) Validate() error {
	if !validEventTypes[e.Type] {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if len(strings.TrimSpace(e.Title)) < 3 {
		return fmt.Errorf("title must be at least 3 characters")
	}
	if e.StaffID == uuid.Nil {
		return fmt.Errorf("staff_id is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("event_date is required")
	}
	if !e.StartTime.Valid() || !e.EndTime.Valid() {
		return fmt.Errorf("start_time and end_time must be valid times of day")
	}
	if e.Type != TypeShift && e.EndTime <= e.StartTime {
		return fmt.Errorf("end_time must be after start_time")
	}
	if !validPriorities[e.Priority] {
		return fmt.Errorf("unknown priority %q", e.Priority)
	}
	if !validStatuses[e.Status] {
		return fmt.Errorf("unknown status %q", e.Status)
	}
	return nil
}

// DurationMinutes returns the event length in whole minutes. A shift whose
// end time precedes its start time runs into the next day, so a 22:00-06:00
// night shift counts as 480 minutes.
func (e *Event) DurationMinutes() int {
	start, end := int(e.StartTime), int(e.EndTime)
	if end < start && e.Type == TypeShift {
		end += minutesPerDay
	}
	return end - start
}

// ValidateBusinessRules checks the per-type scheduling rules and returns
// every violation found, not just the first.
func (e *Event) ValidateBusinessRules() []string {
	var violations []string
	switch e.Type {
	case TypeShift:
		if !validShiftSlots[e.Slot] {
			violations = append(violations, "shift slot must be morning, afternoon or night")
		}
		if e.DurationMinutes() < minShiftMinutes {
			violations = append(violations, "shift duration must be at least 8 hours")
		}
		if e.Slot == SlotNight && !e.RequiresSupervisor {
			violations = append(violations, "night shifts require a supervisor")
		}
	case TypeEmergency:
		if e.Priority != PriorityHigh && e.Priority != PriorityCritical {
			violations = append(violations, "emergency priority must be high or critical")
		}
		if strVal(e.EmergencyCode) == "" {
			violations = append(violations, "emergency code is required")
		}
	case TypeClinicalMeeting:
		if len(e.Participants) < 2 {
			violations = append(violations, "clinical meetings require at least 2 participants")
		}
		if e.DurationMinutes() > maxMeetingMinutes {
			violations = append(violations, "clinical meetings cannot exceed 4 hours")
		}
	}
	return violations
}

// IsActive reports whether the event is still pending or underway, the
// states shown on live boards.
func (e *Event) IsActive() bool {
	return e.Status == StatusScheduled || e.Status == StatusInProgress
}

// StartInstant combines the event date and start time into an instant.
func (e *Event) StartInstant() time.Time {
	return e.Date.Add(time.Duration(e.StartTime) * time.Minute)
}

// EndInstant combines the event date and end time into an instant, rolling
// into the next day for midnight-crossing shifts.
func (e *Event) EndInstant() time.Time {
	end := e.Date.Add(time.Duration(e.EndTime) * time.Minute)
	if e.EndTime < e.StartTime && e.Type == TypeShift {
		end = end.Add(24 * time.Hour)
	}
	return end
}

// Start moves a scheduled event into progress.
func (e *Event) Start() error {
	if e.Status != StatusScheduled {
		return fmt.Errorf("%w: cannot start an event in status %q", ErrInvalidTransition, e.Status)
	}
	e.Status = StatusInProgress
	e.touch()
	return nil
}

// Complete finishes an event that is in progress.
func (e *Event) Complete() error {
	if e.Status != StatusInProgress {
		return fmt.Errorf("%w: cannot complete an event in status %q", ErrInvalidTransition, e.Status)
	}
	e.Status = StatusCompleted
	e.touch()
	return nil
}

// Cancel cancels a scheduled or rescheduled event. The cancellation reason
// replaces any existing notes.
func (e *Event) Cancel(reason string) error {
	if e.Status != StatusScheduled && e.Status != StatusRescheduled {
		return fmt.Errorf("%w: cannot cancel an event in status %q", ErrInvalidTransition, e.Status)
	}
	e.Status = StatusCancelled
	notes := "Cancelled: " + reason
	e.Notes = &notes
	e.touch()
	return nil
}

// Reschedule moves the event to a new date and time window and marks it
// rescheduled. An already rescheduled event may be moved again.
func (e *Event) Reschedule(date time.Time, start, end TimeOfDay) error {
	if e.Status != StatusScheduled && e.Status != StatusRescheduled {
		return fmt.Errorf("%w: cannot reschedule an event in status %q", ErrInvalidTransition, e.Status)
	}
	if date.IsZero() {
		return fmt.Errorf("event_date is required")
	}
	if !start.Valid() || !end.Valid() {
		return fmt.Errorf("start_time and end_time must be valid times of day")
	}
	if e.Type != TypeShift && end <= start {
		return fmt.Errorf("end_time must be after start_time")
	}
	e.Date = DateOnly(date)
	e.StartTime = start
	e.EndTime = end
	e.Status = StatusRescheduled
	e.touch()
	return nil
}

// AssignTeam replaces the medical team of an emergency.
func (e *Event) AssignTeam(team []string) error {
	if e.Type != TypeEmergency {
		return fmt.Errorf("medical teams can only be assigned to emergencies")
	}
	e.MedicalTeam = team
	e.touch()
	return nil
}

// AddParticipant adds a participant to a clinical meeting. Names already
// on the list are rejected.
func (e *Event) AddParticipant(name string) error {
	if e.Type != TypeClinicalMeeting {
		return fmt.Errorf("participants can only be added to clinical meetings")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("participant name is required")
	}
	for _, p := range e.Participants {
		if strings.EqualFold(p, name) {
			return fmt.Errorf("participant %q is already on the list", name)
		}
	}
	e.Participants = append(e.Participants, name)
	e.touch()
	return nil
}

func (e *Event) touch() {
	e.UpdatedAt = time.Now().UTC()
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
