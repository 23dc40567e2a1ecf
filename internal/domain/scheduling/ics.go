package scheduling

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
)

// icalStatus maps event lifecycle states onto the three iCalendar statuses.
func icalStatus(s Status) string {
	switch s {
	case StatusCancelled:
		return "CANCELLED"
	case StatusRescheduled:
		return "TENTATIVE"
	default:
		return "CONFIRMED"
	}
}

// NewICalendar builds an iCalendar feed from events so staff can subscribe
// to their schedule from a phone or desktop calendar.
func NewICalendar(events []*Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//medsched//calendar//EN")

	for _, e := range events {
		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, e.ID.String()+"@medsched")
		ve.Props.SetText(ical.PropSummary, e.Title)
		ve.Props.SetText(ical.PropStatus, icalStatus(e.Status))
		ve.Props.SetText(ical.PropCategories, string(e.Type))
		if e.Description != nil {
			ve.Props.SetText(ical.PropDescription, *e.Description)
		}
		if e.Location != nil {
			ve.Props.SetText(ical.PropLocation, *e.Location)
		}
		ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
		ve.Props.SetDateTime(ical.PropDateTimeStart, e.StartInstant())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, e.EndInstant())
		cal.Children = append(cal.Children, ve)
	}
	return cal
}

// EncodeICalendar writes the events to w in iCalendar format.
func EncodeICalendar(w io.Writer, events []*Event) error {
	if err := ical.NewEncoder(w).Encode(NewICalendar(events)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
