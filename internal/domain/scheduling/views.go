package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RosterEntry pairs a shift with the display fields a ward printout needs.
type RosterEntry struct {
	Event     *Event `json:"event"`
	StaffName string `json:"staff_name"`
	Specialty string `json:"specialty"`
}

// DailyRoster groups one day's shifts by coverage block. Every slot key is
// present, empty blocks included.
type DailyRoster struct {
	Date  time.Time                   `json:"date"`
	Slots map[ShiftSlot][]RosterEntry `json:"slots"`
}

// ActiveEmergency is one row on the live emergency board.
type ActiveEmergency struct {
	Event      *Event `json:"event"`
	ReportedBy string `json:"reported_by"`
	Elapsed    string `json:"elapsed"`
}

// GetDailyShiftRoster builds the per-slot shift roster for one date. Staff
// members that can no longer be resolved show as "Unknown" with specialty
// "General" rather than dropping the shift from the board.
func (s *Service) GetDailyShiftRoster(ctx context.Context, date time.Time) (*DailyRoster, error) {
	events, err := s.events.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	roster := &DailyRoster{
		Date: DateOnly(date),
		Slots: map[ShiftSlot][]RosterEntry{
			SlotMorning:   {},
			SlotAfternoon: {},
			SlotNight:     {},
		},
	}
	for _, ev := range events {
		if ev.Type != TypeShift {
			continue
		}
		if _, ok := roster.Slots[ev.Slot]; !ok {
			continue
		}
		entry := RosterEntry{Event: ev, StaffName: "Unknown", Specialty: "General"}
		member, err := s.staff.FindByID(ctx, ev.StaffID)
		if err != nil {
			return nil, fmt.Errorf("find staff: %w", err)
		}
		if member != nil {
			entry.StaffName = member.FullName()
			if member.Specialty != nil && *member.Specialty != "" {
				entry.Specialty = *member.Specialty
			}
		}
		if ev.Specialty != nil && *ev.Specialty != "" {
			entry.Specialty = *ev.Specialty
		}
		roster.Slots[ev.Slot] = append(roster.Slots[ev.Slot], entry)
	}
	return roster, nil
}

// GetActiveEmergencies returns the emergency board: every scheduled or
// in-progress emergency with its reporter and elapsed time. Rows sort by the
// priority label's lexical order, then by creation time, so "critical" sorts
// ahead of "high". Reporters that cannot be resolved show as "Unassigned".
func (s *Service) GetActiveEmergencies(ctx context.Context) ([]ActiveEmergency, error) {
	events, err := s.events.ListActiveEmergencies(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	board := make([]ActiveEmergency, 0, len(events))
	for _, ev := range events {
		row := ActiveEmergency{
			Event:      ev,
			ReportedBy: "Unassigned",
			Elapsed:    elapsedLabel(now.Sub(ev.CreatedAt)),
		}
		member, err := s.staff.FindByID(ctx, ev.StaffID)
		if err != nil {
			return nil, fmt.Errorf("find staff: %w", err)
		}
		if member != nil {
			row.ReportedBy = member.FullName()
		}
		board = append(board, row)
	}

	sort.SliceStable(board, func(i, j int) bool {
		pi, pj := string(board[i].Event.Priority), string(board[j].Event.Priority)
		if pi != pj {
			return pi < pj
		}
		return board[i].Event.CreatedAt.Before(board[j].Event.CreatedAt)
	})
	return board, nil
}

// elapsedLabel renders a duration as its largest non-zero unit: days, then
// hours, then minutes. Durations under a minute come out as "0 minutes".
func elapsedLabel(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if days := int(d.Hours()) / 24; days > 0 {
		return fmt.Sprintf("%d days", days)
	}
	if hours := int(d.Hours()); hours > 0 {
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
