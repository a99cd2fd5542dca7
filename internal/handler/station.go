package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/service"
)

// StationHandler exposes the station registry.  Listing active stations is
// public; everything else is for administrators.
type StationHandler struct {
	Facility *service.FacilityService
	Finder   notify.AffectedFinder
	Log      *zap.Logger
}

func NewStationHandler(facility *service.FacilityService, finder notify.AffectedFinder, log *zap.Logger) *StationHandler {
	if facility == nil || finder == nil {
		panic("nil dependency passed to NewStationHandler")
	}
	return &StationHandler{Facility: facility, Finder: finder, Log: orNop(log)}
}

type createStationReq struct {
	Name string `json:"name" validate:"required,max=100"`
}

type updateStationReq struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	IsActive *bool   `json:"is_active"`
}

type reorderReq struct {
	StationIDs []uint64 `json:"station_ids" validate:"required,min=1,dive,gt=0"`
}

// List handles GET /v1/stations.
func (h *StationHandler) List(c echo.Context) error {
	list, err := h.Facility.ListActive(c.Request().Context())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// ListAll handles GET /v1/admin/stations, inactive stations included.
func (h *StationHandler) ListAll(c echo.Context) error {
	list, err := h.Facility.ListAll(c.Request().Context())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Create handles POST /v1/admin/stations.
func (h *StationHandler) Create(c echo.Context) error {
	var req createStationReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	st, err := h.Facility.Create(c.Request().Context(), req.Name)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, st)
}

// Update handles PATCH /v1/admin/stations/:id.  Either field may be
// omitted; a rename is applied before an activation change.
func (h *StationHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid station id")
	}
	var req updateStationReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	if req.Name == nil && req.IsActive == nil {
		return badRequest(c, "nothing to update")
	}
	ctx := c.Request().Context()
	if req.Name != nil {
		if _, err := h.Facility.Rename(ctx, id, *req.Name); err != nil {
			return fail(c, h.Log, err)
		}
	}
	if req.IsActive != nil {
		var err error
		if *req.IsActive {
			err = h.Facility.Activate(ctx, id)
		} else {
			err = h.Facility.Deactivate(ctx, id)
		}
		if err != nil {
			return fail(c, h.Log, err)
		}
	}
	st, err := h.Facility.Get(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Deactivate handles DELETE /v1/admin/stations/:id.  Stations are never
// removed, only deactivated.
func (h *StationHandler) Deactivate(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid station id")
	}
	if err := h.Facility.Deactivate(c.Request().Context(), id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reorder handles PUT /v1/admin/stations/order.
func (h *StationHandler) Reorder(c echo.Context) error {
	var req reorderReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	list, err := h.Facility.Reorder(c.Request().Context(), req.StationIDs)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Affected handles GET /v1/admin/stations/:id/affected: who would be told
// if the station were deactivated now.
func (h *StationHandler) Affected(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid station id")
	}
	ctx := c.Request().Context()
	if _, err := h.Facility.Get(ctx, id); err != nil {
		return fail(c, h.Log, err)
	}
	list, err := h.Finder.UsersAffectedByStationClosure(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}
