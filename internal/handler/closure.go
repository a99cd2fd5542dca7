package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/service"
)

// ClosureHandler exposes the closure ledger.  Reads are public, writes are
// for administrators.
type ClosureHandler struct {
	Closures *service.ClosureService
	Finder   notify.AffectedFinder
	Log      *zap.Logger
	now      func() time.Time
}

func NewClosureHandler(closures *service.ClosureService, finder notify.AffectedFinder, log *zap.Logger) *ClosureHandler {
	if closures == nil || finder == nil {
		panic("nil dependency passed to NewClosureHandler")
	}
	return &ClosureHandler{Closures: closures, Finder: finder, Log: orNop(log), now: time.Now}
}

type closureReq struct {
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	Reason   string    `json:"reason" validate:"max=255"`
	Category string    `json:"category"`
}

func (r closureReq) input() service.ClosureInput {
	return service.ClosureInput{StartsAt: r.StartsAt, EndsAt: r.EndsAt, Reason: r.Reason, Category: r.Category}
}

// window reads ?from=&to= as RFC 3339.  Missing bounds default to the
// next 90 days.
func (h *ClosureHandler) window(c echo.Context) (time.Time, time.Time, bool) {
	from := h.now().UTC()
	to := from.AddDate(0, 0, 90)
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, false
		}
		from = t
		if c.QueryParam("to") == "" {
			to = from.AddDate(0, 0, 90)
		}
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, false
		}
		to = t
	}
	return from, to, true
}

// List handles GET /v1/closures?from=&to=.
func (h *ClosureHandler) List(c echo.Context) error {
	from, to, ok := h.window(c)
	if !ok {
		return badRequest(c, "from and to must be RFC 3339 timestamps")
	}
	list, err := h.Closures.List(c.Request().Context(), from, to)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get handles GET /v1/closures/:id.
func (h *ClosureHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid closure id")
	}
	cl, err := h.Closures.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, cl)
}

// Create handles POST /v1/admin/closures.  The response lists the affected
// participants and, under the cancel policy, the cancelled reservations.
func (h *ClosureHandler) Create(c echo.Context) error {
	var req closureReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	res, err := h.Closures.Create(c.Request().Context(), req.input())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Update handles PUT /v1/admin/closures/:id.
func (h *ClosureHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid closure id")
	}
	var req closureReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	res, err := h.Closures.Update(c.Request().Context(), id, req.input())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /v1/admin/closures/:id.
func (h *ClosureHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid closure id")
	}
	if err := h.Closures.Delete(c.Request().Context(), id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Preview handles GET /v1/admin/closures/preview?from=&to=: the
// participants a closure over that window would affect, without writing
// anything.  Both bounds are required.
func (h *ClosureHandler) Preview(c echo.Context) error {
	if c.QueryParam("from") == "" || c.QueryParam("to") == "" {
		return badRequest(c, "from and to are required")
	}
	from, to, ok := h.window(c)
	if !ok {
		return badRequest(c, "from and to must be RFC 3339 timestamps")
	}
	w := model.NewInterval(from, to)
	if !w.Valid() {
		return fail(c, h.Log, service.ErrInvalidInterval)
	}
	list, err := h.Finder.UsersAffectedByFacilityClosure(c.Request().Context(), w)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}
