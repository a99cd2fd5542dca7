package middleware

// identity.go holds the caller identity used to namespace rate-limit
// buckets.  Requests that have not passed JWTAuth yet are "anon".

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

func currentUserID(c echo.Context) string {
	if id, ok := c.Get(ctxUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
