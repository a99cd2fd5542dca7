package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/service"
)

func TestFailMapsKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrInvalidInterval, http.StatusBadRequest, "InvalidInterval"},
		{service.ErrNotAuthorized, http.StatusForbidden, "NotAuthorized"},
		{service.ErrNotJoined, http.StatusNotFound, "NotJoined"},
		{service.ErrStationAlreadyBooked, http.StatusConflict, "StationAlreadyBooked"},
		{service.ErrAlreadyJoined, http.StatusConflict, "AlreadyJoined"},
		{errors.New("connection reset"), http.StatusInternalServerError, "Internal"},
	}
	e := echo.New()
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := fail(c, zap.NewNop(), tt.err); err != nil {
			t.Fatal(err)
		}
		if rec.Code != tt.status || !strings.Contains(rec.Body.String(), `"error":"`+tt.code+`"`) {
			t.Errorf("%v: %d %s", tt.err, rec.Code, rec.Body.String())
		}
	}
	// Storage details never reach the client.
	rec := httptest.NewRecorder()
	_ = fail(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), zap.NewNop(), errors.New("dial tcp 10.0.0.5:3306"))
	if strings.Contains(rec.Body.String(), "3306") {
		t.Fatalf("leaked: %s", rec.Body.String())
	}
}

func TestBindValidates(t *testing.T) {
	e := echo.New()
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"malformed", `{"email":`, "invalid request body"},
		{"missing fields", `{}`, "email failed required"},
		{"bad email", `{"email":"nope","password":"x"}`, "email failed email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			c := e.NewContext(req, httptest.NewRecorder())
			var dst loginReq
			err := bind(c, &dst)
			se, ok := service.AsError(err)
			if !ok || se.Kind != service.KindValidation || !strings.Contains(se.Message, tt.msg) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	e := echo.New()
	for raw, want := range map[string]bool{"12": true, "0": false, "-1": false, "x": false} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(raw)
		if _, ok := pathID(c, "id"); ok != want {
			t.Errorf("pathID(%q) ok = %v", raw, ok)
		}
	}
}
