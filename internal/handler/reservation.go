package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/service"
)

// ReservationHandler exposes the booking engine to authenticated users.
// Authorization rules live in the engine; handlers only translate.
type ReservationHandler struct {
	Engine *service.BookingEngine
	Log    *zap.Logger
}

func NewReservationHandler(engine *service.BookingEngine, log *zap.Logger) *ReservationHandler {
	if engine == nil {
		panic("nil booking engine passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: engine, Log: orNop(log)}
}

type createReservationReq struct {
	StationIDs []uint64  `json:"station_ids" validate:"omitempty,dive,gt=0"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	EndsAt     time.Time `json:"ends_at" validate:"required"`
	Comment    string    `json:"comment" validate:"max=2000"`
}

type stationsReq struct {
	StationIDs []uint64 `json:"station_ids" validate:"omitempty,dive,gt=0"`
}

type commentReq struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type outcomeResp struct {
	Outcome string `json:"outcome"`
}

// ListMonth handles GET /v1/reservations?month=YYYY-MM.  Without a month
// the current UTC month is listed.
func (h *ReservationHandler) ListMonth(c echo.Context) error {
	month := time.Now().UTC()
	if v := c.QueryParam("month"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			return badRequest(c, "month must be YYYY-MM")
		}
		month = t
	}
	list, err := h.Engine.ListMonth(c.Request().Context(), month.Year(), month.Month())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Engine.ListForPerson(c.Request().Context(), a.PersonID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	res, err := h.Engine.GetReservation(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req createReservationReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	res, err := h.Engine.CreateReservation(c.Request().Context(), a, service.CreateInput{
		StationIDs: req.StationIDs,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Comment:    req.Comment,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Join handles POST /v1/reservations/:id/participants: the caller joins.
func (h *ReservationHandler) Join(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	res, err := h.Engine.AddParticipant(c.Request().Context(), a, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Leave handles DELETE /v1/reservations/:id/participants/me.
func (h *ReservationHandler) Leave(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	out, err := h.Engine.RemoveParticipant(c.Request().Context(), a, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, outcomeResp{Outcome: out.String()})
}

// UpdateStations handles PUT /v1/reservations/:id/stations.
func (h *ReservationHandler) UpdateStations(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req stationsReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	res, err := h.Engine.UpdateSessionStations(c.Request().Context(), a, id, req.StationIDs)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Comment handles POST /v1/reservations/:id/comments.
func (h *ReservationHandler) Comment(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req commentReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	entry, err := h.Engine.AppendCommentEntry(c.Request().Context(), a, id, req.Text)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// Delete handles DELETE /v1/reservations/:id.  An administrator deletes
// the reservation; anyone else is taken off it.
func (h *ReservationHandler) Delete(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	out, err := h.Engine.DeleteReservation(c.Request().Context(), a, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, outcomeResp{Outcome: out.String()})
}
