package scheduling

import (
	"bytes"
	"strings"
	"testing"
)

func TestICalStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusScheduled, "CONFIRMED"},
		{StatusInProgress, "CONFIRMED"},
		{StatusCompleted, "CONFIRMED"},
		{StatusCancelled, "CANCELLED"},
		{StatusRescheduled, "TENTATIVE"},
	}
	for _, tt := range tests {
		if got := icalStatus(tt.status); got != tt.want {
			t.Errorf("icalStatus(%s) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestEncodeICalendar(t *testing.T) {
	shift := validShift()
	cancelled := validMeeting()
	cancelled.Status = StatusCancelled
	loc := "Conference room B"
	cancelled.Location = &loc

	var buf bytes.Buffer
	if err := EncodeICalendar(&buf, []*Event{shift, cancelled}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"END:VCALENDAR",
		"PRODID:-//medsched//calendar//EN",
		"VERSION:2.0",
		"SUMMARY:" + shift.Title,
		"UID:" + shift.ID.String() + "@medsched",
		"CATEGORIES:shift",
		"STATUS:CONFIRMED",
		"STATUS:CANCELLED",
		"LOCATION:Conference room B",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if got := strings.Count(out, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("VEVENT count = %d, want 2", got)
	}
}

func TestEncodeICalendar_NightShiftSpansDates(t *testing.T) {
	shift := validShift()
	shift.Slot = SlotNight
	shift.RequiresSupervisor = true
	shift.StartTime = NewTimeOfDay(22, 0)
	shift.EndTime = NewTimeOfDay(6, 0)

	var buf bytes.Buffer
	if err := EncodeICalendar(&buf, []*Event{shift}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "20250310T220000Z") {
		t.Error("start instant not on the shift date")
	}
	// The shift runs past midnight, so it ends on the following day.
	if !strings.Contains(out, "20250311T060000Z") {
		t.Error("end instant not on the following day")
	}
}

func TestEncodeICalendar_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeICalendar(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "BEGIN:VCALENDAR") {
		t.Error("empty calendar still needs an envelope")
	}
}
