package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dental/clinic/internal/platform/auth"
	"github.com/dental/clinic/pkg/pagination"
)

const (
	defaultAvailabilityDays = 30
	maxAvailabilityDays     = 92
)

type Handler struct {
	svc      *Service
	sessions *SessionManager
	loc      *time.Location
	now      func() time.Time
}

// NewHandler returns the schedule API. loc is the clinic's timezone, used to
// resolve "today" for availability queries without an explicit range.
func NewHandler(svc *Service, sessions *SessionManager, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, sessions: sessions, loc: loc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, doctor, staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	readGroup.GET("/schedules", h.ListSchedules)
	readGroup.GET("/schedules/:id", h.GetSchedule)

	// Write endpoints – admin, doctor
	writeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor))
	writeGroup.POST("/schedules", h.CreateSchedule)
	writeGroup.PUT("/schedules/:id", h.UpdateSchedule)
	writeGroup.DELETE("/schedules/:id", h.DeleteSchedule)

	// Review workflow – admin, staff; doctors may cancel their own
	reviewGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleDoctor))
	reviewGroup.POST("/schedules/:id/status", h.SetStatus)

	// Availability – every role
	availGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff, auth.RolePatient))
	availGroup.GET("/availability", h.GetAvailability)
	availGroup.GET("/availability/:date/doctors", h.GetAvailableDoctors)
	availGroup.GET("/availability/:date/slots", h.GetAvailableSlots)
	availGroup.GET("/availability/:date/booking", h.GetBookingOptions)

	// Draft editing sessions – admin, doctor
	draftGroup := api.Group("/drafts", auth.RequireRole(auth.RoleDoctor))
	draftGroup.POST("", h.OpenDraft)
	draftGroup.GET("/:id", h.GetDraft)
	draftGroup.DELETE("/:id", h.DiscardDraft)
	draftGroup.POST("/:id/edit", h.BeginEdit)
	draftGroup.DELETE("/:id/edit", h.CancelEdit)
	draftGroup.PUT("/:id/slots", h.PutSlot)
	draftGroup.DELETE("/:id/slots/:date/:key", h.RemoveSlot)
	draftGroup.POST("/:id/submit", h.SubmitDraft)
}

// httpError maps domain errors onto HTTP responses.
func httpError(err error) error {
	var (
		ve *ValidationError
		oe *OverlapError
		he *echo.HTTPError
	)
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &oe):
		return echo.NewHTTPError(http.StatusConflict, oe.Error())
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrReasonRequired):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrScheduleNotFound), errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrEntryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSaveInProgress), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyDraft), errors.Is(err, ErrMultiDateUpdate):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	he.Internal = err
	return he
}

// ownDoctor returns the doctor a caller is confined to. Admins and staff
// are not confined. A doctor token without a valid doctor id confines the
// caller to uuid.Nil, which owns nothing.
func ownDoctor(c echo.Context) (uuid.UUID, bool) {
	ctx := c.Request().Context()
	if auth.HasRole(ctx, auth.RoleStaff) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(auth.DoctorIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, true
	}
	return id, true
}

func checkOwner(c echo.Context, doctorID uuid.UUID) error {
	if own, confined := ownDoctor(c); confined && own != doctorID {
		return echo.NewHTTPError(http.StatusForbidden, "schedule belongs to another doctor")
	}
	return nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func parseDoctorQuery(c echo.Context) (uuid.UUID, error) {
	raw := c.QueryParam("doctor_id")
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	return id, nil
}

func parseDateParam(c echo.Context) (string, error) {
	date, err := NormalizeDate(c.Param("date"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return date, nil
}

// -- Schedule Handlers --

func (h *Handler) CreateSchedule(c echo.Context) error {
	var sched DoctorSchedule
	if err := c.Bind(&sched); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := checkOwner(c, sched.DoctorID); err != nil {
		return err
	}
	if err := h.svc.CreateSchedule(c.Request().Context(), &sched); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sched)
}

func (h *Handler) GetSchedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sched, err := h.svc.GetSchedule(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := checkOwner(c, sched.DoctorID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) ListSchedules(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	var err error
	if f.DoctorID, err = parseDoctorQuery(c); err != nil {
		return err
	}
	if own, confined := ownDoctor(c); confined {
		f.DoctorID = own
	}
	if s := c.QueryParam("status"); s != "" {
		if f.Status, err = ParseStatus(s); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	for param, dst := range map[string]*string{"date": &f.Date, "from": &f.From, "to": &f.To} {
		if v := c.QueryParam(param); v != "" {
			if *dst, err = NormalizeDate(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, param+": "+err.Error())
			}
		}
	}

	items, total, err := h.svc.ListSchedules(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, total)
	return c.JSON(http.StatusOK, resp)
}

type updateScheduleRequest struct {
	Date      string     `json:"date"`
	TimeSlots []TimeSlot `json:"timeSlots"`
}

func (h *Handler) UpdateSchedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	existing, err := h.svc.GetSchedule(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if err := checkOwner(c, existing.DoctorID); err != nil {
		return err
	}
	if req.Date == "" {
		req.Date = existing.Date
	}
	sched, err := h.svc.UpdateSchedule(ctx, id, req.Date, req.TimeSlots)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) DeleteSchedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	existing, err := h.svc.GetSchedule(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if err := checkOwner(c, existing.DoctorID); err != nil {
		return err
	}
	if err := h.svc.DeleteSchedule(ctx, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	to, err := ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if _, confined := ownDoctor(c); confined {
		if to != StatusCancelled {
			return echo.NewHTTPError(http.StatusForbidden, "doctors may only cancel their schedules")
		}
		existing, err := h.svc.GetSchedule(ctx, id)
		if err != nil {
			return httpError(err)
		}
		if err := checkOwner(c, existing.DoctorID); err != nil {
			return err
		}
	}
	sched, err := h.svc.SetStatus(ctx, id, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sched)
}

// -- Availability Handlers --

type availabilityResponse struct {
	From  string                   `json:"from"`
	To    string                   `json:"to"`
	Days  []DayCount               `json:"days"`
	Slots map[string][]IndexedSlot `json:"slotsByDate"`
}

func (h *Handler) today() time.Time {
	t := h.now().In(h.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	from, to := c.QueryParam("from"), c.QueryParam("to")
	if from == "" {
		from = h.today().Format(DateLayout)
	}
	start, err := ParseDate(from)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from: "+err.Error())
	}
	if to == "" {
		to = start.AddDate(0, 0, defaultAvailabilityDays).Format(DateLayout)
	}
	end, err := ParseDate(to)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to: "+err.Error())
	}
	if end.Sub(start) > maxAvailabilityDays*24*time.Hour {
		return echo.NewHTTPError(http.StatusBadRequest, "availability range is limited to 92 days")
	}

	ix, err := h.svc.Availability(c.Request().Context(), from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, availabilityResponse{
		From:  start.Format(DateLayout),
		To:    end.Format(DateLayout),
		Days:  ix.Calendar(),
		Slots: ix.SlotsByDate,
	})
}

func (h *Handler) GetAvailableDoctors(c echo.Context) error {
	date, err := parseDateParam(c)
	if err != nil {
		return err
	}
	ix, err := h.svc.AvailabilityOn(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ix.CandidateDoctors(date))
}

type slotLabelsResponse struct {
	Date      string    `json:"date"`
	DoctorID  uuid.UUID `json:"doctorId"`
	TimeSlots []string  `json:"timeSlots"`
}

func (h *Handler) GetAvailableSlots(c echo.Context) error {
	date, err := parseDateParam(c)
	if err != nil {
		return err
	}
	doctorID, err := parseDoctorQuery(c)
	if err != nil {
		return err
	}
	ix, err := h.svc.AvailabilityOn(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slotLabelsResponse{
		Date:      date,
		DoctorID:  doctorID,
		TimeSlots: ix.SlotLabels(date, doctorID),
	})
}

func (h *Handler) GetBookingOptions(c echo.Context) error {
	date, err := parseDateParam(c)
	if err != nil {
		return err
	}
	doctorID, err := parseDoctorQuery(c)
	if err != nil {
		return err
	}
	ix, err := h.svc.AvailabilityOn(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	sel := BookingSelection{Date: date, DoctorID: doctorID, TimeSlot: c.QueryParam("time_slot")}
	return c.JSON(http.StatusOK, sel.Refresh(ix))
}

// -- Draft Handlers --

type draftView struct {
	ID             string      `json:"id"`
	DoctorID       uuid.UUID   `json:"doctorId"`
	DoctorName     string      `json:"doctorName,omitempty"`
	Specialty      string      `json:"specialty,omitempty"`
	ScheduleID     *uuid.UUID  `json:"scheduleId,omitempty"`
	Mode           SubmitMode  `json:"mode"`
	Saving         bool        `json:"saving"`
	Editing        *EditTarget `json:"editing,omitempty"`
	EditingSlot    *TimeSlot   `json:"editingSlot,omitempty"`
	ReasonRequired bool        `json:"reasonRequired"`
	Review         Review      `json:"review"`
}

func newDraftView(s *Session) draftView {
	v := draftView{
		ID:             s.ID,
		DoctorID:       s.DoctorID,
		DoctorName:     s.DoctorName,
		Specialty:      s.Specialty,
		ScheduleID:     s.ScheduleID,
		Mode:           s.target().Mode(),
		Saving:         s.Saving,
		Editing:        s.Editor.Editing,
		ReasonRequired: s.Editor.ReasonRequired(),
		Review:         ReviewDraft(s.Editor.Draft),
	}
	if ed := s.Editor.Editing; ed != nil {
		if sl, ok := s.Editor.Draft.Find(ed.Date, ed.Key); ok {
			v.EditingSlot = &sl
		}
	}
	return v
}

// session loads a draft session the caller may work on.
func (h *Handler) session(c echo.Context) (*Session, error) {
	sess, err := h.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, httpError(err)
	}
	if err := checkOwner(c, sess.DoctorID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (h *Handler) OpenDraft(c echo.Context) error {
	var req OpenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if _, confined := ownDoctor(c); confined {
		if req.ScheduleID != nil {
			existing, err := h.svc.GetSchedule(ctx, *req.ScheduleID)
			if err != nil {
				return httpError(err)
			}
			if err := checkOwner(c, existing.DoctorID); err != nil {
				return err
			}
		} else if err := checkOwner(c, req.DoctorID); err != nil {
			return err
		}
	}
	sess, err := h.sessions.Open(ctx, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newDraftView(sess))
}

func (h *Handler) GetDraft(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDraftView(sess))
}

func (h *Handler) DiscardDraft(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Discard(c.Request().Context(), sess.ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) BeginEdit(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var target EditTarget
	if err := c.Bind(&target); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if target.Date, err = NormalizeDate(target.Date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err = h.sessions.BeginEdit(c.Request().Context(), sess.ID, target.Date, target.Key)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newDraftView(sess))
}

func (h *Handler) CancelEdit(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	sess, err = h.sessions.CancelEdit(c.Request().Context(), sess.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newDraftView(sess))
}

type putSlotResponse struct {
	Slot  TimeSlot  `json:"slot"`
	Draft draftView `json:"draft"`
}

func (h *Handler) PutSlot(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var in SlotInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slot, sess, err := h.sessions.PutSlot(c.Request().Context(), sess.ID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, putSlotResponse{Slot: slot, Draft: newDraftView(sess)})
}

func (h *Handler) RemoveSlot(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	date, err := parseDateParam(c)
	if err != nil {
		return err
	}
	sess, err = h.sessions.RemoveSlot(c.Request().Context(), sess.ID, date, c.Param("key"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newDraftView(sess))
}

type submitFailure struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

type submitResponse struct {
	Result   *SubmitResult   `json:"result"`
	Failures []submitFailure `json:"failures,omitempty"`
	Draft    *draftView      `json:"draft,omitempty"`
}

func (h *Handler) SubmitDraft(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	res, remaining, err := h.sessions.Submit(c.Request().Context(), sess.ID)
	var se *SubmitError
	if errors.As(err, &se) {
		resp := submitResponse{Result: res}
		for _, f := range se.Failures {
			resp.Failures = append(resp.Failures, submitFailure{Date: f.Date, Error: f.Err.Error()})
		}
		if remaining != nil {
			v := newDraftView(remaining)
			resp.Draft = &v
		}
		return c.JSON(http.StatusMultiStatus, resp)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, submitResponse{Result: res})
}
