package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/medsched/medsched/internal/domain/staff"
)

// StaffDirectory resolves staff members for eligibility checks and display
// name lookups.
type StaffDirectory interface {
	// FindByID returns (nil, nil) when no staff member exists.
	FindByID(ctx context.Context, id uuid.UUID) (*staff.Staff, error)
}

// TxRunner executes fn inside a database transaction so repository calls made
// through fn's context see and mutate a single consistent snapshot.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MaxWeeklyShifts is the most shifts a staff member may hold in one
// Monday-to-Sunday week.
const MaxWeeklyShifts = 3

const referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newReference makes a short event code for rosters and boards, e.g. EV-7KQ2M9XA.
func newReference() string {
	id, _ := gonanoid.Generate(referenceAlphabet, 8)
	return "EV-" + id
}

// Service coordinates event scheduling, conflict detection and calendar
// queries.
type Service struct {
	events EventRepository
	staff  StaffDirectory
	tx     TxRunner
}

// NewService creates a scheduling service.
func NewService(events EventRepository, staffDir StaffDirectory, tx TxRunner) *Service {
	return &Service{events: events, staff: staffDir, tx: tx}
}

// ShiftInput carries the caller-supplied fields for a new shift.
// WeekendShift left nil is derived from the date.
type ShiftInput struct {
	Title              string
	Description        string
	Date               time.Time
	StartTime          TimeOfDay
	EndTime            TimeOfDay
	Slot               ShiftSlot
	Specialty          string
	Location           string
	Notes              string
	WeekendShift       *bool
	RequiresSupervisor bool
}

// EmergencyInput carries the caller-supplied fields for a new emergency.
// Priority is accepted but always overridden to critical.
type EmergencyInput struct {
	Title             string
	Description       string
	Date              time.Time
	StartTime         *TimeOfDay
	EndTime           TimeOfDay
	Priority          Priority
	Code              string
	PatientInfo       string
	MedicalTeam       []string
	RequiredResources []string
	Location          string
	Notes             string
}

// MeetingInput carries the caller-supplied fields for a new clinical meeting.
type MeetingInput struct {
	Title                string
	Description          string
	Date                 time.Time
	StartTime            TimeOfDay
	EndTime              TimeOfDay
	MainTopic            string
	Participants         []string
	CasesToReview        []string
	RequiresPresentation bool
	Location             string
	Notes                string
}

// ScheduleShift validates and persists a shift for the given staff member.
// Checks run in a fixed order: staff existence, clinical eligibility, event
// validation, schedule conflict, weekly cap. The conflict and cap checks run
// inside one transaction holding the staff member's schedule lock, so two
// concurrent requests cannot both pass the checks and double-book.
func (s *Service) ScheduleShift(ctx context.Context, staffID uuid.UUID, in ShiftInput) (*Event, error) {
	member, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("find staff: %w", err)
	}
	if member == nil {
		return nil, ErrStaffNotFound
	}
	if !member.IsClinicalStaff() {
		return nil, ErrNotEligible
	}

	date := DateOnly(in.Date)
	weekend := date.Weekday() == time.Saturday || date.Weekday() == time.Sunday
	if in.WeekendShift != nil {
		weekend = *in.WeekendShift
	}

	ev := &Event{
		ID:                 uuid.New(),
		Reference:          newReference(),
		Type:               TypeShift,
		Title:              in.Title,
		Description:        strPtr(in.Description),
		Date:               date,
		StartTime:          in.StartTime,
		EndTime:            in.EndTime,
		Priority:           PriorityHigh,
		Status:             StatusScheduled,
		StaffID:            staffID,
		Specialty:          strPtr(in.Specialty),
		Location:           strPtr(in.Location),
		Notes:              strPtr(in.Notes),
		Slot:               in.Slot,
		WeekendShift:       weekend,
		RequiresSupervisor: in.RequiresSupervisor,
	}
	if ev.Specialty == nil {
		ev.Specialty = member.Specialty
	}

	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.events.LockStaff(ctx, staffID); err != nil {
			return err
		}
		conflict, err := s.events.HasOverlap(ctx, staffID, ev.Date, ev.StartTime, ev.EndTime, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSchedulingConflict
		}
		if err := s.checkWeeklyCap(ctx, staffID, ev.Date); err != nil {
			return err
		}
		return s.events.Create(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ReportEmergency records an emergency for the reporting staff member.
// Emergencies always enter the calendar at critical priority and are exempt
// from conflict checks: an emergency trumps whatever else is on the schedule.
func (s *Service) ReportEmergency(ctx context.Context, reporterID uuid.UUID, in EmergencyInput) (*Event, error) {
	member, err := s.staff.FindByID(ctx, reporterID)
	if err != nil {
		return nil, fmt.Errorf("find staff: %w", err)
	}
	if member == nil {
		return nil, ErrStaffNotFound
	}
	if !member.CanManageEmergencies() {
		return nil, ErrNotAuthorized
	}

	now := time.Now().UTC()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	start := NewTimeOfDay(now.Hour(), now.Minute())
	if in.StartTime != nil {
		start = *in.StartTime
	}
	title := in.Title
	if title == "" && in.Code != "" {
		title = "Emergency " + in.Code
	}

	ev := &Event{
		ID:                uuid.New(),
		Reference:         newReference(),
		Type:              TypeEmergency,
		Title:             title,
		Description:       strPtr(in.Description),
		Date:              DateOnly(date),
		StartTime:         start,
		EndTime:           in.EndTime,
		Priority:          PriorityCritical,
		Status:            StatusScheduled,
		StaffID:           reporterID,
		Location:          strPtr(in.Location),
		Notes:             strPtr(in.Notes),
		EmergencyCode:     strPtr(in.Code),
		PatientInfo:       strPtr(in.PatientInfo),
		MedicalTeam:       in.MedicalTeam,
		RequiredResources: in.RequiredResources,
	}

	if err := validateEvent(ev); err != nil {
		return nil, err
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ScheduleMeeting validates and persists a clinical meeting owned by the
// organizing staff member. Meetings occupy the organizer's calendar, so the
// conflict check applies; the weekly cap covers shifts only.
func (s *Service) ScheduleMeeting(ctx context.Context, organizerID uuid.UUID, in MeetingInput) (*Event, error) {
	member, err := s.staff.FindByID(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("find staff: %w", err)
	}
	if member == nil {
		return nil, ErrStaffNotFound
	}

	ev := &Event{
		ID:                   uuid.New(),
		Reference:            newReference(),
		Type:                 TypeClinicalMeeting,
		Title:                in.Title,
		Description:          strPtr(in.Description),
		Date:                 DateOnly(in.Date),
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		Priority:             PriorityMedium,
		Status:               StatusScheduled,
		StaffID:              organizerID,
		Location:             strPtr(in.Location),
		Notes:                strPtr(in.Notes),
		MainTopic:            strPtr(in.MainTopic),
		Participants:         in.Participants,
		CasesToReview:        in.CasesToReview,
		RequiresPresentation: in.RequiresPresentation,
	}

	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.events.LockStaff(ctx, organizerID); err != nil {
			return err
		}
		conflict, err := s.events.HasOverlap(ctx, organizerID, ev.Date, ev.StartTime, ev.EndTime, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSchedulingConflict
		}
		return s.events.Create(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// GetStaffCalendar returns the staff member's events between from and to
// inclusive, ordered by date then start time.
func (s *Service) GetStaffCalendar(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]*Event, error) {
	member, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("find staff: %w", err)
	}
	if member == nil {
		return nil, ErrStaffNotFound
	}

	events, err := s.events.ListByStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	lo, hi := DateOnly(from), DateOnly(to)
	calendar := make([]*Event, 0, len(events))
	for _, ev := range events {
		if !ev.Date.Before(lo) && !ev.Date.After(hi) {
			calendar = append(calendar, ev)
		}
	}
	sort.SliceStable(calendar, func(i, j int) bool {
		if !calendar[i].Date.Equal(calendar[j].Date) {
			return calendar[i].Date.Before(calendar[j].Date)
		}
		return calendar[i].StartTime < calendar[j].StartTime
	})
	return calendar, nil
}

// CheckAvailability reports whether the staff member is free for the window
// [start, end) on the given date.
func (s *Service) CheckAvailability(ctx context.Context, staffID uuid.UUID, date time.Time, start, end TimeOfDay) (bool, error) {
	conflict, err := s.events.HasOverlap(ctx, staffID, date, start, end, nil)
	if err != nil {
		return false, err
	}
	return !conflict, nil
}

// StartEvent moves a scheduled event into progress.
func (s *Service) StartEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.transition(ctx, id, (*Event).Start)
}

// CompleteEvent finishes an event that is in progress.
func (s *Service) CompleteEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.transition(ctx, id, (*Event).Complete)
}

// CancelEvent cancels an event, recording the reason in its notes.
func (s *Service) CancelEvent(ctx context.Context, id uuid.UUID, reason string) (*Event, error) {
	return s.transition(ctx, id, func(e *Event) error { return e.Cancel(reason) })
}

// RescheduleEvent moves an event to a new window after confirming the staff
// member is free there, ignoring the event's own current slot.
func (s *Service) RescheduleEvent(ctx context.Context, id uuid.UUID, date time.Time, start, end TimeOfDay) (*Event, error) {
	var moved *Event
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ev, err := s.events.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if ev == nil {
			return ErrNotFound
		}
		if err := s.events.LockStaff(ctx, ev.StaffID); err != nil {
			return err
		}
		conflict, err := s.events.HasOverlap(ctx, ev.StaffID, date, start, end, &ev.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSchedulingConflict
		}
		if err := ev.Reschedule(date, start, end); err != nil {
			return err
		}
		if err := s.events.Update(ctx, ev); err != nil {
			return err
		}
		moved = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// AssignEmergencyTeam replaces the medical team on an emergency.
func (s *Service) AssignEmergencyTeam(ctx context.Context, id uuid.UUID, team []string) (*Event, error) {
	ev, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ev.AssignTeam(team); err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// AddMeetingParticipant adds a participant to a clinical meeting.
func (s *Service) AddMeetingParticipant(ctx context.Context, id uuid.UUID, name string) (*Event, error) {
	ev, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ev.AddParticipant(name); err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// GetEvent fetches a single event.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.getEvent(ctx, id)
}

// ListEvents lists events matching the given filters with a total count.
func (s *Service) ListEvents(ctx context.Context, params map[string]string, limit, offset int) ([]*Event, int, error) {
	return s.events.Search(ctx, params, limit, offset)
}

// ListShiftsBySlot lists the shifts in one coverage block on a date.
func (s *Service) ListShiftsBySlot(ctx context.Context, slot ShiftSlot, date time.Time) ([]*Event, error) {
	if !validShiftSlots[slot] {
		return nil, &ValidationError{Violations: []string{fmt.Sprintf("unknown shift slot %q", slot)}}
	}
	return s.events.ListShiftsBySlot(ctx, slot, date)
}

// DeleteEvent removes an event record outright. Normal workflows cancel
// instead; this exists for administrative cleanup.
func (s *Service) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.events.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Service) getEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	ev, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, ErrNotFound
	}
	return ev, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, apply func(*Event) error) (*Event, error) {
	ev, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(ev); err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// checkWeeklyCap rejects a shift when the staff member already holds
// MaxWeeklyShifts shifts in the Monday-to-Sunday week containing date.
// Every shift in the week counts toward the cap regardless of status.
func (s *Service) checkWeeklyCap(ctx context.Context, staffID uuid.UUID, date time.Time) error {
	monday, sunday := weekBounds(date)
	events, err := s.events.ListByDateRange(ctx, monday, sunday)
	if err != nil {
		return err
	}
	count := 0
	for _, ev := range events {
		if ev.Type == TypeShift && ev.StaffID == staffID {
			count++
		}
	}
	if count >= MaxWeeklyShifts {
		return ErrWeeklyCapExceeded
	}
	return nil
}

// weekBounds returns the Monday and Sunday of the week containing d.
func weekBounds(d time.Time) (time.Time, time.Time) {
	day := DateOnly(d)
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// validateEvent runs the structural checks and the per-type rules, folding
// any failure into a ValidationError.
func validateEvent(ev *Event) error {
	if err := ev.Validate(); err != nil {
		return &ValidationError{Violations: []string{err.Error()}}
	}
	if violations := ev.ValidateBusinessRules(); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
