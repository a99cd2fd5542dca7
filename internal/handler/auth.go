package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/service"
)

// AuthHandler opens, rotates and closes sessions and reports the current
// user.
type AuthHandler struct {
	Sessions *service.SessionService
	Users    *service.UserService
	Log      *zap.Logger
}

func NewAuthHandler(sessions *service.SessionService, users *service.UserService, log *zap.Logger) *AuthHandler {
	if sessions == nil || users == nil {
		panic("nil service passed to NewAuthHandler")
	}
	return &AuthHandler{Sessions: sessions, Users: users, Log: orNop(log)}
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login handles POST /v1/auth/login.  Unknown, inactive and wrong-password
// accounts all answer 401 with the same body.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	sess, err := h.Sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if _, ok := service.AsError(err); ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "InvalidCredentials", "message": "invalid credentials"})
		}
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Refresh handles POST /v1/auth/refresh.  The presented refresh token is
// spent; the response carries its replacement.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	sess, err := h.Sessions.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		if se, ok := service.AsError(err); ok && se.Kind == service.KindAuthorization {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "InvalidRefreshToken", "message": se.Message})
		}
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Logout handles POST /v1/auth/logout.  Logging out with an unknown or
// already revoked token still answers 204.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return fail(c, h.Log, err)
	}
	if err := h.Sessions.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		if se, ok := service.AsError(err); !ok || se.Kind != service.KindAuthorization {
			return fail(c, h.Log, err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll handles POST /v1/auth/logout-all for the authenticated caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.Sessions.LogoutAll(c.Request().Context(), a.PersonID); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me handles GET /v1/me.
func (h *AuthHandler) Me(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	u, err := h.Users.Get(c.Request().Context(), a.PersonID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}
