package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/config"
	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/utils"
)

const testSecret = "test-secret"

func bearer(t *testing.T, id uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, id, role, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func newProtected() *echo.Echo {
	e := echo.New()
	g := e.Group("/v1", JWTAuth(testSecret))
	g.GET("/whoami", func(c echo.Context) error {
		a, ok := ActorFrom(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": a.PersonID, "admin": a.IsAdmin(), "instructor": a.IsInstructor()})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole(model.RoleAdmin))
	return e
}

func TestJWTAuth(t *testing.T) {
	e := newProtected()
	expired, _ := utils.NewAccessToken(testSecret, 1, "MEMBER", time.Minute, time.Now().Add(-time.Hour))
	forged, _ := utils.NewAccessToken("other-secret", 1, "MEMBER", time.Hour, time.Now())

	tests := []struct {
		name   string
		auth   string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing bearer token"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + expired.Token, http.StatusUnauthorized, "invalid token"},
		{"wrong secret", "Bearer " + forged.Token, http.StatusUnauthorized, "invalid token"},
		{"unknown role", bearer(t, 1, "OWNER"), http.StatusUnauthorized, "invalid role claim"},
		{"member", bearer(t, 7, "MEMBER"), http.StatusOK, `"instructor":false`},
		{"instructor", bearer(t, 8, "INSTRUCTOR"), http.StatusOK, `"instructor":true`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.status || !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := newProtected()
	for role, want := range map[string]int{"MEMBER": http.StatusForbidden, "INSTRUCTOR": http.StatusForbidden, "ADMIN": http.StatusNoContent} {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin", nil)
		req.Header.Set("Authorization", bearer(t, 1, role))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status %d, want %d", role, rec.Code, want)
		}
	}
}

func TestRequestLogger_WritesHandlerErrorOnce(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(zap.NewNop()))
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "short and stout") })
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusTeapot || strings.Count(rec.Body.String(), "short and stout") != 1 {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil, nil))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
			t.Fatalf("request %d: %d %v", i, rec.Code, rec.Header())
		}
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"ok":true}` {
		t.Fatalf("decoded %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:6]); ok {
		t.Fatal("short payload decoded")
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/stations", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/stations")
	c.Set(ctxUserID, uint64(42))

	tests := map[string]string{
		"ip":            "rl:ip:10.0.0.1",
		"user":          "rl:user:42",
		"ip_user":       "rl:ip:10.0.0.1:user:42",
		"ip_user_route": "rl:ip:10.0.0.1:user:42:route:GET /v1/stations",
	}
	for strategy, want := range tests {
		if got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c); got != want {
			t.Errorf("%s: %q, want %q", strategy, got, want)
		}
	}
}
