package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medsched/medsched/internal/domain/staff"
)

func TestGetDailyShiftRoster(t *testing.T) {
	svc, repo, dir := newTestService()
	anaID := dir.add(staff.RolePhysician, "Ana", "Silva", "Cardiology")
	beaID := dir.add(staff.RolePhysician, "Bea", "Costa", "")

	seed := func(staffID uuid.UUID, slot ShiftSlot, specialty string) *Event {
		ev := validShift()
		ev.StaffID = staffID
		ev.Date = monday
		ev.Slot = slot
		if specialty != "" {
			ev.Specialty = &specialty
		} else {
			ev.Specialty = nil
		}
		repo.Create(context.Background(), ev)
		return ev
	}
	seed(anaID, SlotMorning, "")
	seed(beaID, SlotNight, "Trauma")
	seed(uuid.New(), SlotNight, "")

	// Meetings and shifts with unrecognized slots stay off the board.
	meeting := validMeeting()
	meeting.Date = monday
	repo.Create(context.Background(), meeting)
	odd := validShift()
	odd.Date = monday
	odd.Slot = ShiftSlot("twilight")
	repo.Create(context.Background(), odd)

	roster, err := svc.GetDailyShiftRoster(context.Background(), monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster.Slots) != 3 {
		t.Fatalf("slots = %d, want morning, afternoon and night", len(roster.Slots))
	}
	if entries, ok := roster.Slots[SlotAfternoon]; !ok || entries == nil || len(entries) != 0 {
		t.Errorf("afternoon = %v, want present and empty", entries)
	}

	morning := roster.Slots[SlotMorning]
	if len(morning) != 1 {
		t.Fatalf("morning entries = %d, want 1", len(morning))
	}
	if morning[0].StaffName != "Ana Silva" || morning[0].Specialty != "Cardiology" {
		t.Errorf("morning entry = %s/%s, want Ana Silva/Cardiology", morning[0].StaffName, morning[0].Specialty)
	}

	night := roster.Slots[SlotNight]
	if len(night) != 2 {
		t.Fatalf("night entries = %d, want 2", len(night))
	}
	// Bea has no member specialty; the shift's own specialty fills in.
	if night[0].StaffName != "Bea Costa" || night[0].Specialty != "Trauma" {
		t.Errorf("night[0] = %s/%s, want Bea Costa/Trauma", night[0].StaffName, night[0].Specialty)
	}
	// The third shift belongs to nobody the directory knows.
	if night[1].StaffName != "Unknown" || night[1].Specialty != "General" {
		t.Errorf("night[1] = %s/%s, want Unknown/General", night[1].StaffName, night[1].Specialty)
	}
}

func TestGetDailyShiftRoster_EventSpecialtyOverridesMember(t *testing.T) {
	svc, repo, dir := newTestService()
	anaID := dir.add(staff.RolePhysician, "Ana", "Silva", "Cardiology")

	ev := validShift()
	ev.StaffID = anaID
	ev.Date = monday
	override := "Emergency Medicine"
	ev.Specialty = &override
	repo.Create(context.Background(), ev)

	roster, err := svc.GetDailyShiftRoster(context.Background(), monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	morning := roster.Slots[SlotMorning]
	if len(morning) != 1 || morning[0].Specialty != "Emergency Medicine" {
		t.Errorf("roster = %v, want the shift's specialty over the member's", morning)
	}
}

func TestGetDailyShiftRoster_EmptyDay(t *testing.T) {
	svc, _, _ := newTestService()
	roster, err := svc.GetDailyShiftRoster(context.Background(), monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, slot := range []ShiftSlot{SlotMorning, SlotAfternoon, SlotNight} {
		entries, ok := roster.Slots[slot]
		if !ok || len(entries) != 0 {
			t.Errorf("slot %s = %v, want present and empty", slot, entries)
		}
	}
}

func TestGetActiveEmergencies(t *testing.T) {
	svc, repo, dir := newTestService()
	anaID := dir.add(staff.RolePhysician, "Ana", "Silva", "")

	now := time.Now().UTC()
	seed := func(priority Priority, createdAt time.Time, status Status, staffID uuid.UUID) *Event {
		ev := validEmergency()
		ev.StaffID = staffID
		ev.Priority = priority
		ev.Status = status
		ev.CreatedAt = createdAt
		repo.Create(context.Background(), ev)
		return ev
	}
	older := seed(PriorityCritical, now.Add(-3*time.Hour), StatusScheduled, anaID)
	newer := seed(PriorityCritical, now.Add(-10*time.Minute), StatusInProgress, anaID)
	high := seed(PriorityHigh, now.Add(-26*time.Hour), StatusScheduled, uuid.New())
	seed(PriorityCritical, now.Add(-time.Hour), StatusCompleted, anaID)
	seed(PriorityCritical, now.Add(-time.Hour), StatusCancelled, anaID)

	board, err := svc.GetActiveEmergencies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(board) != 3 {
		t.Fatalf("board rows = %d, want 3 active", len(board))
	}

	// Priority labels sort as strings, so "critical" rows lead "high" ones
	// even though high came in first; equal labels fall back to creation time.
	if board[0].Event.ID != older.ID || board[1].Event.ID != newer.ID || board[2].Event.ID != high.ID {
		t.Errorf("board order = %v, %v, %v", board[0].Event.Priority, board[1].Event.Priority, board[2].Event.Priority)
	}

	if board[0].ReportedBy != "Ana Silva" {
		t.Errorf("reported_by = %q, want Ana Silva", board[0].ReportedBy)
	}
	if board[2].ReportedBy != "Unassigned" {
		t.Errorf("reported_by = %q, want Unassigned for unknown staff", board[2].ReportedBy)
	}

	if board[0].Elapsed != "3 hours" {
		t.Errorf("elapsed = %q, want 3 hours", board[0].Elapsed)
	}
	if board[2].Elapsed != "1 days" {
		t.Errorf("elapsed = %q, want 1 days", board[2].Elapsed)
	}
}

func TestElapsedLabel(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 minutes"},
		{30 * time.Second, "0 minutes"},
		{59 * time.Minute, "59 minutes"},
		{60 * time.Minute, "1 hours"},
		{90 * time.Minute, "1 hours"},
		{23 * time.Hour, "23 hours"},
		{24 * time.Hour, "1 days"},
		{49 * time.Hour, "2 days"},
		{-5 * time.Minute, "0 minutes"},
	}
	for _, tt := range tests {
		if got := elapsedLabel(tt.d); got != tt.want {
			t.Errorf("elapsedLabel(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
