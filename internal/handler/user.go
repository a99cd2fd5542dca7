package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/service"
)

// UserHandler lets administrators manage club accounts.
type UserHandler struct {
	Users *service.UserService
	Log   *zap.Logger
}

func NewUserHandler(users *service.UserService, log *zap.Logger) *UserHandler {
	if users == nil {
		panic("nil user service passed to NewUserHandler")
	}
	return &UserHandler{Users: users, Log: orNop(log)}
}

type createUserReq struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        string `json:"role" validate:"max=20"`
}

type updateUserReq struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// Create handles POST /v1/admin/users.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	u, err := h.Users.Create(c.Request().Context(), service.NewUser{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Role:        req.Role,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// List handles GET /v1/admin/users.
func (h *UserHandler) List(c echo.Context) error {
	list, err := h.Users.List(c.Request().Context())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Update handles PATCH /v1/admin/users/:id (activation only).
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	u, err := h.Users.SetActive(c.Request().Context(), id, *req.IsActive)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}
