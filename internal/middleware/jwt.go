package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/utils"
)

// Context keys set by JWTAuth.
const (
	ctxActor  = "actor"
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the caller in the request context: the model.Actor under
// "actor", the user id under "user_id" and the account role under "role".
// Tokens carrying an unknown role are rejected.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthenticated", "message": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			uid, roleName, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthenticated", "message": "invalid token"})
			}
			role, ok := model.ParseRole(roleName)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthenticated", "message": "invalid role claim"})
			}

			c.Set(ctxActor, model.ActorFor(uid, role))
			c.Set(ctxUserID, uid)
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}

// ActorFrom returns the actor stored by JWTAuth.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(ctxActor).(model.Actor)
	return a, ok
}

// RoleFrom returns the account role stored by JWTAuth.
func RoleFrom(c echo.Context) (model.Role, bool) {
	r, ok := c.Get(ctxRole).(model.Role)
	return r, ok
}
