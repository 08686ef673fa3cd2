package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"clinicdesk/backend/internal/domain"
	"clinicdesk/backend/internal/service/scheduling"
	"clinicdesk/backend/internal/store"
)

type schedulingService interface {
	Check(ctx context.Context, in scheduling.CheckInput) ([]domain.ConflictFinding, error)
	Book(ctx context.Context, in scheduling.BookInput) (scheduling.BookOutcome, error)
	BookRecurring(ctx context.Context, in scheduling.BookRecurringInput) (scheduling.RecurringOutcome, error)
	PreviewOccurrences(in scheduling.PreviewInput) (domain.Expansion, error)
	ListForProviderOnDate(ctx context.Context, providerID uuid.UUID, date domain.Date) ([]domain.Appointment, error)
	ListForProviderBetween(ctx context.Context, providerID uuid.UUID, from, to domain.Date) ([]domain.Appointment, error)
	UpdateStatus(ctx context.Context, providerID, appointmentID uuid.UUID, status domain.AppointmentStatus) error
	Delete(ctx context.Context, providerID, appointmentID uuid.UUID) error
	CreateProvider(ctx context.Context, name, specialty string) (domain.Provider, error)
	GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error)
	GetWorkingHours(ctx context.Context, providerID uuid.UUID) (domain.WeeklyWorkingHours, error)
	SetWorkingHours(ctx context.Context, providerID uuid.UUID, hours domain.WeeklyWorkingHours) error
}

type SchedulingHandler struct {
	svc schedulingService
	log *slog.Logger
}

func NewSchedulingHandler(svc schedulingService, log *slog.Logger) *SchedulingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingHandler{
		svc: svc,
		log: log.With(slog.String("component", "http.scheduling")),
	}
}

func (h *SchedulingHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/providers", h.CreateProvider)
	g.GET("/providers/:id", h.GetProvider)
	g.GET("/providers/:id/working-hours", h.GetWorkingHours)
	g.PUT("/providers/:id/working-hours", h.PutWorkingHours)
	g.GET("/providers/:id/appointments", h.ListAppointments)

	g.POST("/appointments", h.BookAppointment)
	g.POST("/appointments/check", h.CheckAppointment)
	g.POST("/appointments/recurring", h.BookRecurring)
	g.PATCH("/appointments/:id/status", h.UpdateAppointmentStatus)
	g.DELETE("/appointments/:id", h.DeleteAppointment)

	g.POST("/recurrences/preview", h.PreviewRecurrence)
}

type dayHoursRequest struct {
	Start     domain.TimeOfDay `json:"start"`
	End       domain.TimeOfDay `json:"end"`
	Available bool             `json:"available"`
}

type bookRequest struct {
	ProviderID      uuid.UUID        `json:"provider_id"`
	PatientID       uuid.UUID        `json:"patient_id"`
	Date            domain.Date      `json:"date"`
	StartTime       domain.TimeOfDay `json:"start_time"`
	DurationMinutes int              `json:"duration_minutes"`
	Reason          string           `json:"reason"`
	Notes           string           `json:"notes"`
	AllowConflicts  bool             `json:"allow_conflicts"`
}

type patternRequest struct {
	Frequency  string       `json:"frequency"`
	Interval   int          `json:"interval"`
	ByWeekday  []int16      `json:"by_weekday,omitempty"`
	DayOfMonth int          `json:"day_of_month,omitempty"`
	Until      *domain.Date `json:"until,omitempty"`
	Count      *int         `json:"count,omitempty"`
}

func (p patternRequest) toDomain() domain.RecurrencePattern {
	return domain.RecurrencePattern{
		Frequency:  domain.Frequency(p.Frequency),
		Interval:   p.Interval,
		ByWeekday:  p.ByWeekday,
		DayOfMonth: p.DayOfMonth,
		Until:      p.Until,
		Count:      p.Count,
	}
}

type appointmentResponse struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"provider_id"`
	PatientID       string    `json:"patient_id"`
	Reason          string    `json:"reason"`
	Notes           string    `json:"notes,omitempty"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:              a.ID.String(),
		ProviderID:      a.ProviderID.String(),
		PatientID:       a.PatientID.String(),
		Reason:          a.Reason,
		Notes:           a.Notes,
		Date:            a.Day().String(),
		StartTime:       a.Start().String(),
		EndTime:         a.End().String(),
		DurationMinutes: a.EndMinute - a.StartMinute,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []domain.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func (h *SchedulingHandler) CheckAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	findings, err := h.svc.Check(c.Request().Context(), scheduling.CheckInput{
		ProviderID:      req.ProviderID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return h.httpError(c, "CheckAppointment", err)
	}

	if findings == nil {
		findings = []domain.ConflictFinding{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"bookable": len(findings) == 0,
		"findings": findings,
	})
}

func (h *SchedulingHandler) BookAppointment(c echo.Context) error {
	log := h.log.With(slog.String("route", "BookAppointment"))

	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, err := h.svc.Book(c.Request().Context(), scheduling.BookInput{
		ProviderID:      req.ProviderID,
		PatientID:       req.PatientID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Notes:           req.Notes,
		AllowConflicts:  req.AllowConflicts,
		IdempotencyKey:  idempotencyKey(c),
	})
	if err != nil {
		return h.httpError(c, "BookAppointment", err)
	}

	if !out.Booked {
		return c.JSON(http.StatusConflict, echo.Map{
			"booked":   false,
			"findings": out.Findings,
		})
	}

	log.Info("appointment booked",
		slog.String("appointment_id", out.Appointment.ID.String()),
		slog.String("provider_id", out.Appointment.ProviderID.String()),
		slog.String("date", out.Appointment.Day().String()),
		slog.Int("findings", len(out.Findings)),
	)

	if out.Findings == nil {
		out.Findings = []domain.ConflictFinding{}
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booked":      true,
		"appointment": toAppointmentResponse(out.Appointment),
		"findings":    out.Findings,
	})
}

func (h *SchedulingHandler) BookRecurring(c echo.Context) error {
	log := h.log.With(slog.String("route", "BookRecurring"))

	var req struct {
		bookRequest
		Pattern patternRequest `json:"pattern"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, err := h.svc.BookRecurring(c.Request().Context(), scheduling.BookRecurringInput{
		ProviderID:      req.ProviderID,
		PatientID:       req.PatientID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Pattern:         req.Pattern.toDomain(),
		AllowConflicts:  req.AllowConflicts,
	})
	if err != nil {
		return h.httpError(c, "BookRecurring", err)
	}

	body := echo.Map{
		"booked":              out.Booked,
		"default_cap_applied": out.DefaultCapApplied,
		"findings":            occurrenceFindingsResponse(out.Findings),
	}
	if !out.Booked {
		return c.JSON(http.StatusConflict, body)
	}

	log.Info("recurring appointments booked",
		slog.String("provider_id", req.ProviderID.String()),
		slog.Int("occurrences", len(out.Appointments)),
		slog.Bool("default_cap_applied", out.DefaultCapApplied),
	)

	body["appointments"] = toAppointmentResponses(out.Appointments)
	return c.JSON(http.StatusCreated, body)
}

type occurrenceFindings struct {
	Index    int                      `json:"index"`
	Date     string                   `json:"date"`
	Findings []domain.ConflictFinding `json:"findings"`
}

func occurrenceFindingsResponse(in []scheduling.OccurrenceFindings) []occurrenceFindings {
	out := make([]occurrenceFindings, 0, len(in))
	for _, of := range in {
		out = append(out, occurrenceFindings{
			Index:    of.Index,
			Date:     of.Date.String(),
			Findings: of.Findings,
		})
	}
	return out
}

func (h *SchedulingHandler) PreviewRecurrence(c echo.Context) error {
	var req struct {
		ProviderID      uuid.UUID        `json:"provider_id"`
		Date            domain.Date      `json:"date"`
		StartTime       domain.TimeOfDay `json:"start_time"`
		DurationMinutes int              `json:"duration_minutes"`
		Pattern         patternRequest   `json:"pattern"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	expansion, err := h.svc.PreviewOccurrences(scheduling.PreviewInput{
		ProviderID:      req.ProviderID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Pattern:         req.Pattern.toDomain(),
	})
	if err != nil {
		return h.httpError(c, "PreviewRecurrence", err)
	}

	type occurrence struct {
		Index     int    `json:"index"`
		Date      string `json:"date"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	occs := make([]occurrence, 0, len(expansion.Occurrences))
	for _, o := range expansion.Occurrences {
		occs = append(occs, occurrence{
			Index:     o.Index,
			Date:      o.Date.String(),
			StartTime: o.Start.String(),
			EndTime:   o.End().String(),
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"occurrences":         occs,
		"default_cap_applied": expansion.DefaultCapApplied,
	})
}

func (h *SchedulingHandler) ListAppointments(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}

	ctx := c.Request().Context()
	var appts []domain.Appointment

	if dateStr := c.QueryParam("date"); dateStr != "" {
		date, err := domain.ParseDate(dateStr)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		appts, err = h.svc.ListForProviderOnDate(ctx, providerID, date)
		if err != nil {
			return h.httpError(c, "ListAppointments", err)
		}
	} else {
		from, err := domain.ParseDate(c.QueryParam("from"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from: "+err.Error())
		}
		to, err := domain.ParseDate(c.QueryParam("to"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to: "+err.Error())
		}
		appts, err = h.svc.ListForProviderBetween(ctx, providerID, from, to)
		if err != nil {
			return h.httpError(c, "ListAppointments", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"appointments": toAppointmentResponses(appts)})
}

func (h *SchedulingHandler) UpdateAppointmentStatus(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	var req struct {
		ProviderID uuid.UUID `json:"provider_id"`
		Status     string    `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = h.svc.UpdateStatus(c.Request().Context(), req.ProviderID, appointmentID, domain.AppointmentStatus(req.Status))
	if err != nil {
		return h.httpError(c, "UpdateAppointmentStatus", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SchedulingHandler) DeleteAppointment(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	providerID, err := uuid.Parse(c.QueryParam("provider_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
	}

	if err := h.svc.Delete(c.Request().Context(), providerID, appointmentID); err != nil {
		return h.httpError(c, "DeleteAppointment", err)
	}
	return c.NoContent(http.StatusNoContent)
}

type providerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProviderResponse(p domain.Provider) providerResponse {
	return providerResponse{
		ID:        p.ID.String(),
		Name:      p.Name,
		Specialty: p.Specialty,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *SchedulingHandler) CreateProvider(c echo.Context) error {
	var req struct {
		Name      string `json:"name"`
		Specialty string `json:"specialty"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.svc.CreateProvider(c.Request().Context(), req.Name, req.Specialty)
	if err != nil {
		return h.httpError(c, "CreateProvider", err)
	}
	return c.JSON(http.StatusCreated, toProviderResponse(p))
}

func (h *SchedulingHandler) GetProvider(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	p, err := h.svc.GetProvider(c.Request().Context(), providerID)
	if err != nil {
		return h.httpError(c, "GetProvider", err)
	}
	return c.JSON(http.StatusOK, toProviderResponse(p))
}

func (h *SchedulingHandler) GetWorkingHours(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	hours, err := h.svc.GetWorkingHours(c.Request().Context(), providerID)
	if err != nil {
		return h.httpError(c, "GetWorkingHours", err)
	}
	return c.JSON(http.StatusOK, workingHoursResponse(hours))
}

func (h *SchedulingHandler) PutWorkingHours(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}

	var req map[string]dayHoursRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	hours, err := workingHoursFromRequest(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.svc.SetWorkingHours(c.Request().Context(), providerID, hours); err != nil {
		return h.httpError(c, "PutWorkingHours", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func workingHoursResponse(hours domain.WeeklyWorkingHours) map[string]dayHoursRequest {
	out := make(map[string]dayHoursRequest, len(hours))
	for wd, dh := range hours {
		out[strings.ToLower(wd.String())] = dayHoursRequest{
			Start:     dh.Start,
			End:       dh.End,
			Available: dh.Available,
		}
	}
	return out
}

func workingHoursFromRequest(req map[string]dayHoursRequest) (domain.WeeklyWorkingHours, error) {
	hours := make(domain.WeeklyWorkingHours, len(req))
	for name, dh := range req {
		wd, err := parseWeekdayName(name)
		if err != nil {
			return nil, err
		}
		hours[wd] = domain.DayHours{Start: dh.Start, End: dh.End, Available: dh.Available}
	}
	return hours, nil
}

func parseWeekdayName(name string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(name, wd.String()) {
			return wd, nil
		}
	}
	return 0, errors.New("invalid weekday " + name)
}

func idempotencyKey(c echo.Context) string {
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = c.Request().Header.Get("X-Idempotency-Key")
	}
	return strings.TrimSpace(key)
}

func (h *SchedulingHandler) httpError(c echo.Context, route string, err error) error {
	log := h.log.With(slog.String("route", route))

	var vErr *scheduling.ValidationError
	var candErr *domain.InvalidCandidateError
	var cfgErr *domain.ScheduleConfigError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return echo.NewHTTPError(http.StatusBadRequest, vErr.Error())
	case errors.As(err, &candErr):
		log.Warn("invalid candidate", slog.Any("err", err))
		return echo.NewHTTPError(http.StatusBadRequest, candErr.Error())
	case errors.As(err, &cfgErr):
		log.Warn("schedule misconfigured", slog.Any("err", err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, cfgErr.Error())
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict")
		return echo.NewHTTPError(http.StatusConflict, "This request key was already used for a different appointment. Try again.")
	default:
		log.Error("request failed", slog.Any("err", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
