package scheduling

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsched/medsched/internal/platform/auth"
	"github.com/medsched/medsched/internal/platform/cache"
	"github.com/medsched/medsched/internal/platform/notification"
	"github.com/medsched/medsched/pkg/pagination"
)

const (
	cacheKeyEmergencies = "emergencies:active"
	cacheKeyRoster      = "roster:"
)

// OperationRecorder counts completed scheduling operations for metrics.
type OperationRecorder interface {
	ScheduleOperationCounter(eventType, operation string)
}

// Handler handles scheduling HTTP requests.
type Handler struct {
	svc      *Service
	cache    *cache.Cache
	notifier *notification.Enqueuer
	metrics  OperationRecorder
}

// NewHandler creates a scheduling handler. cache, notifier, and metrics may
// be nil when the backing infrastructure is not configured.
func NewHandler(svc *Service, c *cache.Cache, n *notification.Enqueuer, m OperationRecorder) *Handler {
	return &Handler{svc: svc, cache: c, notifier: n, metrics: m}
}

func (h *Handler) count(eventType, operation string) {
	if h.metrics != nil {
		h.metrics.ScheduleOperationCounter(eventType, operation)
	}
}

// RegisterRoutes registers scheduling routes on the API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/shifts", h.ScheduleShift, auth.RequireRole("physician", "resident"))
	g.GET("/shifts", h.ListShiftsBySlot)
	g.POST("/emergencies", h.ReportEmergency, auth.RequireRole("physician"))
	g.GET("/emergencies/active", h.ActiveEmergencies)
	g.POST("/meetings", h.ScheduleMeeting)

	g.GET("/events", h.ListEvents)
	g.GET("/events/:id", h.GetEvent)
	g.DELETE("/events/:id", h.DeleteEvent, auth.RequireRole("administrator"))
	g.POST("/events/:id/start", h.StartEvent)
	g.POST("/events/:id/complete", h.CompleteEvent)
	g.POST("/events/:id/cancel", h.CancelEvent)
	g.POST("/events/:id/reschedule", h.RescheduleEvent)
	g.PUT("/events/:id/team", h.AssignTeam, auth.RequireRole("physician"))
	g.POST("/events/:id/participants", h.AddParticipant)

	g.GET("/roster/:date", h.DailyRoster)
	g.GET("/staff/:id/calendar", h.StaffCalendar)
	g.GET("/staff/:id/calendar.ics", h.StaffCalendarICS)
	g.GET("/staff/:id/availability", h.Availability)
}

type shiftRequest struct {
	StaffID            string `json:"staff_id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	Date               string `json:"date"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	Slot               string `json:"slot"`
	Specialty          string `json:"specialty"`
	Location           string `json:"location"`
	Notes              string `json:"notes"`
	WeekendShift       *bool  `json:"weekend_shift"`
	RequiresSupervisor bool   `json:"requires_supervisor"`
}

// ScheduleShift creates a shift for a staff member.
func (h *Handler) ScheduleShift(c echo.Context) error {
	var req shiftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid staff_id")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	start, err := ParseTimeOfDay(req.StartTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := ParseTimeOfDay(req.EndTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ev, err := h.svc.ScheduleShift(c.Request().Context(), staffID, ShiftInput{
		Title:              req.Title,
		Description:        req.Description,
		Date:               date,
		StartTime:          start,
		EndTime:            end,
		Slot:               ShiftSlot(req.Slot),
		Specialty:          req.Specialty,
		Location:           req.Location,
		Notes:              req.Notes,
		WeekendShift:       req.WeekendShift,
		RequiresSupervisor: req.RequiresSupervisor,
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateRoster(c, ev.Date)
	h.count("shift", "schedule")
	h.notify(c, notification.TypeEmail, ev.StaffID.String(), "shift-scheduled", map[string]string{
		"title": ev.Title,
		"date":  ev.Date.Format("2006-01-02"),
		"start": ev.StartTime.String(),
		"end":   ev.EndTime.String(),
	})
	return c.JSON(http.StatusCreated, ev)
}

type emergencyRequest struct {
	ReporterID        string   `json:"reporter_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Date              string   `json:"date"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	Priority          string   `json:"priority"`
	Code              string   `json:"code"`
	PatientInfo       string   `json:"patient_info"`
	MedicalTeam       []string `json:"medical_team"`
	RequiredResources []string `json:"required_resources"`
	Location          string   `json:"location"`
	Notes             string   `json:"notes"`
}

// ReportEmergency records a new emergency.
func (h *Handler) ReportEmergency(c echo.Context) error {
	var req emergencyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	reporterID, err := uuid.Parse(req.ReporterID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reporter_id")
	}
	in := EmergencyInput{
		Title:             req.Title,
		Description:       req.Description,
		EndTime:           0,
		Priority:          Priority(req.Priority),
		Code:              req.Code,
		PatientInfo:       req.PatientInfo,
		MedicalTeam:       req.MedicalTeam,
		RequiredResources: req.RequiredResources,
		Location:          req.Location,
		Notes:             req.Notes,
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		in.Date = date
	}
	if req.StartTime != "" {
		start, err := ParseTimeOfDay(req.StartTime)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		in.StartTime = &start
	}
	end, err := ParseTimeOfDay(req.EndTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.EndTime = end

	ev, err := h.svc.ReportEmergency(c.Request().Context(), reporterID, in)
	if err != nil {
		return httpError(err)
	}

	h.invalidate(c, cacheKeyEmergencies)
	h.count("emergency", "report")
	h.notify(c, notification.TypeSMS, ev.StaffID.String(), "emergency-reported", map[string]string{
		"code":  stringOrEmpty(ev.EmergencyCode),
		"title": ev.Title,
	})
	return c.JSON(http.StatusCreated, ev)
}

type meetingRequest struct {
	OrganizerID          string   `json:"organizer_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Date                 string   `json:"date"`
	StartTime            string   `json:"start_time"`
	EndTime              string   `json:"end_time"`
	MainTopic            string   `json:"main_topic"`
	Participants         []string `json:"participants"`
	CasesToReview        []string `json:"cases_to_review"`
	RequiresPresentation bool     `json:"requires_presentation"`
	Location             string   `json:"location"`
	Notes                string   `json:"notes"`
}

// ScheduleMeeting creates a clinical meeting.
func (h *Handler) ScheduleMeeting(c echo.Context) error {
	var req meetingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	organizerID, err := uuid.Parse(req.OrganizerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organizer_id")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	start, err := ParseTimeOfDay(req.StartTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := ParseTimeOfDay(req.EndTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ev, err := h.svc.ScheduleMeeting(c.Request().Context(), organizerID, MeetingInput{
		Title:                req.Title,
		Description:          req.Description,
		Date:                 date,
		StartTime:            start,
		EndTime:              end,
		MainTopic:            req.MainTopic,
		Participants:         req.Participants,
		CasesToReview:        req.CasesToReview,
		RequiresPresentation: req.RequiresPresentation,
		Location:             req.Location,
		Notes:                req.Notes,
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateRoster(c, ev.Date)
	h.count("meeting", "schedule")
	for _, participant := range ev.Participants {
		h.notify(c, notification.TypeEmail, participant, "meeting-invitation", map[string]string{
			"title": ev.Title,
			"topic": stringOrEmpty(ev.MainTopic),
			"date":  ev.Date.Format("2006-01-02"),
		})
	}
	return c.JSON(http.StatusCreated, ev)
}

// ListEvents lists events with filters and pagination.
func (h *Handler) ListEvents(c echo.Context) error {
	params := map[string]string{}
	for _, key := range []string{"type", "status", "priority"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	if v := c.QueryParam("staff_id"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid staff_id")
		}
		params["staff_id"] = v
	}
	for _, key := range []string{"date", "from", "to"} {
		if v := c.QueryParam(key); v != "" {
			if _, err := parseDate(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			params[key] = v
		}
	}

	p := pagination.FromContext(c)
	events, total, err := h.svc.ListEvents(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, p.Limit, p.Offset))
}

// GetEvent returns a single event.
func (h *Handler) GetEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	ev, err := h.svc.GetEvent(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ev)
}

// DeleteEvent removes an event record outright.
func (h *Handler) DeleteEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	if err := h.svc.DeleteEvent(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	h.invalidate(c, cacheKeyEmergencies)
	return c.NoContent(http.StatusNoContent)
}

// StartEvent moves an event into progress.
func (h *Handler) StartEvent(c echo.Context) error {
	return h.transition(c, "start", h.svc.StartEvent)
}

// CompleteEvent finishes an event.
func (h *Handler) CompleteEvent(c echo.Context) error {
	return h.transition(c, "complete", h.svc.CompleteEvent)
}

func (h *Handler) transition(c echo.Context, operation string, apply func(ctx context.Context, id uuid.UUID) (*Event, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	ev, err := apply(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	h.invalidateRoster(c, ev.Date)
	h.invalidate(c, cacheKeyEmergencies)
	h.count(string(ev.Type), operation)
	return c.JSON(http.StatusOK, ev)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelEvent cancels an event with a reason.
func (h *Handler) CancelEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ev, err := h.svc.CancelEvent(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	h.invalidateRoster(c, ev.Date)
	h.invalidate(c, cacheKeyEmergencies)
	h.count(string(ev.Type), "cancel")
	h.notify(c, notification.TypeEmail, ev.StaffID.String(), "event-cancelled", map[string]string{
		"title":  ev.Title,
		"reason": req.Reason,
	})
	return c.JSON(http.StatusOK, ev)
}

type rescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// RescheduleEvent moves an event to a new window.
func (h *Handler) RescheduleEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	start, err := ParseTimeOfDay(req.StartTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := ParseTimeOfDay(req.EndTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var oldDate time.Time
	if prev, err := h.svc.GetEvent(c.Request().Context(), id); err == nil {
		oldDate = prev.Date
	}
	ev, err := h.svc.RescheduleEvent(c.Request().Context(), id, date, start, end)
	if err != nil {
		return httpError(err)
	}
	if !oldDate.IsZero() && !oldDate.Equal(ev.Date) {
		h.invalidateRoster(c, oldDate)
	}
	h.invalidateRoster(c, ev.Date)
	h.count(string(ev.Type), "reschedule")
	h.notify(c, notification.TypeEmail, ev.StaffID.String(), "event-rescheduled", map[string]string{
		"title": ev.Title,
		"date":  ev.Date.Format("2006-01-02"),
		"start": ev.StartTime.String(),
		"end":   ev.EndTime.String(),
	})
	return c.JSON(http.StatusOK, ev)
}

type teamRequest struct {
	Team []string `json:"team"`
}

// AssignTeam replaces the medical team on an emergency.
func (h *Handler) AssignTeam(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	var req teamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ev, err := h.svc.AssignEmergencyTeam(c.Request().Context(), id, req.Team)
	if err != nil {
		return httpError(err)
	}
	h.invalidate(c, cacheKeyEmergencies)
	return c.JSON(http.StatusOK, ev)
}

type participantRequest struct {
	Name string `json:"name"`
}

// AddParticipant adds a participant to a clinical meeting.
func (h *Handler) AddParticipant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	var req participantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ev, err := h.svc.AddMeetingParticipant(c.Request().Context(), id, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ev)
}

// ListShiftsBySlot lists the shifts in one coverage block on a date.
func (h *Handler) ListShiftsBySlot(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	shifts, err := h.svc.ListShiftsBySlot(c.Request().Context(), ShiftSlot(c.QueryParam("slot")), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, shifts)
}

// DailyRoster returns the per-slot shift roster for one date.
func (h *Handler) DailyRoster(c echo.Context) error {
	date, err := parseDate(c.Param("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	key := cacheKeyRoster + date.Format("2006-01-02")

	var cached DailyRoster
	if hit, err := h.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return c.JSON(http.StatusOK, &cached)
	}

	roster, err := h.svc.GetDailyShiftRoster(ctx, date)
	if err != nil {
		return httpError(err)
	}
	if err := h.cache.SetJSON(ctx, key, roster); err != nil {
		c.Logger().Warnf("cache roster: %v", err)
	}
	return c.JSON(http.StatusOK, roster)
}

// ActiveEmergencies returns the live emergency board.
func (h *Handler) ActiveEmergencies(c echo.Context) error {
	ctx := c.Request().Context()

	var cached []ActiveEmergency
	if hit, err := h.cache.GetJSON(ctx, cacheKeyEmergencies, &cached); err == nil && hit {
		return c.JSON(http.StatusOK, cached)
	}

	board, err := h.svc.GetActiveEmergencies(ctx)
	if err != nil {
		return httpError(err)
	}
	if err := h.cache.SetJSON(ctx, cacheKeyEmergencies, board); err != nil {
		c.Logger().Warnf("cache emergencies: %v", err)
	}
	return c.JSON(http.StatusOK, board)
}

// StaffCalendar returns a staff member's events in a date range.
func (h *Handler) StaffCalendar(c echo.Context) error {
	staffID, from, to, err := calendarParams(c)
	if err != nil {
		return err
	}
	events, err := h.svc.GetStaffCalendar(c.Request().Context(), staffID, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, events)
}

// StaffCalendarICS returns a staff member's events as an iCalendar feed.
func (h *Handler) StaffCalendarICS(c echo.Context) error {
	staffID, from, to, err := calendarParams(c)
	if err != nil {
		return err
	}
	events, err := h.svc.GetStaffCalendar(c.Request().Context(), staffID, from, to)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/calendar; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="calendar.ics"`)
	c.Response().WriteHeader(http.StatusOK)
	return EncodeICalendar(c.Response(), events)
}

// Availability reports whether a staff member is free for a window.
func (h *Handler) Availability(c echo.Context) error {
	staffID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid staff id")
	}
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	start, err := ParseTimeOfDay(c.QueryParam("start"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := ParseTimeOfDay(c.QueryParam("end"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	available, err := h.svc.CheckAvailability(c.Request().Context(), staffID, date, start, end)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"available": available})
}

func calendarParams(c echo.Context) (uuid.UUID, time.Time, time.Time, error) {
	staffID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid staff id")
	}
	from, err := parseDate(c.QueryParam("from"))
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, err := parseDate(c.QueryParam("to"))
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return staffID, from, to, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.New("invalid date: expected YYYY-MM-DD")
	}
	return d, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// notify enqueues a notification, logging on failure. Delivery problems never
// fail the request that triggered them.
func (h *Handler) notify(c echo.Context, typ notification.Type, recipient, template string, data map[string]string) {
	h.notifier.EnqueueFromTemplate(c.Request().Context(), typ, recipient, template, data)
}

func (h *Handler) invalidateRoster(c echo.Context, date time.Time) {
	h.invalidate(c, cacheKeyRoster+date.Format("2006-01-02"))
}

func (h *Handler) invalidate(c echo.Context, keys ...string) {
	if err := h.cache.Delete(c.Request().Context(), keys...); err != nil {
		c.Logger().Warnf("cache invalidate: %v", err)
	}
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrStaffNotFound), errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrSchedulingConflict), errors.Is(err, ErrWeeklyCapExceeded), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
