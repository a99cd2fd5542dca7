package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/middleware"
	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/service"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bind decodes the request body into dst and runs struct validation.
// The returned error is a *service.Error of kind validation.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return &service.Error{Kind: service.KindValidation, Code: service.ErrInvalidInput.Code, Message: "invalid request body"}
	}
	if err := validate.Struct(dst); err != nil {
		return &service.Error{Kind: service.KindValidation, Code: service.ErrInvalidInput.Code, Message: validationMessage(err)}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

// statusFor maps a business-rule kind to an HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict, service.KindAlreadyExists:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error body.  Business-rule errors carry their
// code; anything else is logged and reported as an internal error.
func fail(c echo.Context, log *zap.Logger, err error) error {
	if e, ok := service.AsError(err); ok {
		return c.JSON(statusFor(e.Kind), echo.Map{"error": e.Code, "message": e.Message})
	}
	log.Error("request failed", zap.String("route", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal", "message": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": service.ErrInvalidInput.Code, "message": msg})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// actor returns the authenticated caller set by JWTAuth.
func actor(c echo.Context) (model.Actor, bool) {
	return middleware.ActorFrom(c)
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthenticated", "message": "unauthorized"})
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
