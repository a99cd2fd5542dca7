package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/config"
	"github.com/iliyamo/range-booking/internal/handler"
	"github.com/iliyamo/range-booking/internal/middleware"
	"github.com/iliyamo/range-booking/internal/model"
)

// Deps carries everything the routes need.  Redis may be nil; rate
// limiting and response caching are then disabled.
type Deps struct {
	JWTSecret    string
	Log          *zap.Logger
	Redis        *redis.Client
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	Auth         *handler.AuthHandler
	Stations     *handler.StationHandler
	Closures     *handler.ClosureHandler
	Reservations *handler.ReservationHandler
	Users        *handler.UserHandler
}

// New builds the Echo instance with the global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))

	RegisterRoutes(e)
	RegisterAuth(e, d)
	RegisterPublic(e, d)
	RegisterMember(e, d)
	RegisterAdmin(e, d)
	return e
}

// RegisterRoutes registers routes that need no authentication and no API
// version: currently only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session endpoints and the current-user
// endpoint.
func RegisterAuth(e *echo.Echo, d Deps) {
	e.POST("/v1/auth/login", d.Auth.Login)
	e.POST("/v1/auth/refresh", d.Auth.Refresh)
	e.POST("/v1/auth/logout", d.Auth.Logout)
	e.POST("/v1/auth/logout-all", d.Auth.LogoutAll, middleware.JWTAuth(d.JWTSecret))
	e.GET("/v1/me", d.Auth.Me, middleware.JWTAuth(d.JWTSecret))
}

// RegisterPublic registers the cached, unauthenticated browse endpoints.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.NewRedisCache(d.Cache, d.Redis, d.Log))
	g.GET("/stations", d.Stations.List)
	g.GET("/closures", d.Closures.List)
	g.GET("/closures/:id", d.Closures.Get)
}

// RegisterMember registers the booking endpoints.  Any authenticated
// account may call them; the booking engine decides per reservation what
// the caller is allowed to do.
func RegisterMember(e *echo.Echo, d Deps) {
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleMember, model.RoleInstructor, model.RoleAdmin),
	)
	g.GET("/reservations", d.Reservations.ListMonth)
	g.GET("/my-reservations", d.Reservations.ListMine)
	g.GET("/reservations/:id", d.Reservations.Get)
	g.POST("/reservations", d.Reservations.Create)
	g.POST("/reservations/:id/participants", d.Reservations.Join)
	g.DELETE("/reservations/:id/participants/me", d.Reservations.Leave)
	g.PUT("/reservations/:id/stations", d.Reservations.UpdateStations)
	g.POST("/reservations/:id/comments", d.Reservations.Comment)
	g.DELETE("/reservations/:id", d.Reservations.Delete)
}

// RegisterAdmin registers facility and account management under
// /v1/admin.  Successful writes flush the public response cache.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
		middleware.NewCacheInvalidator(d.Cache, d.Redis, d.Log),
	)
	g.GET("/stations", d.Stations.ListAll)
	g.POST("/stations", d.Stations.Create)
	g.PUT("/stations/order", d.Stations.Reorder)
	g.PATCH("/stations/:id", d.Stations.Update)
	g.DELETE("/stations/:id", d.Stations.Deactivate)
	g.GET("/stations/:id/affected", d.Stations.Affected)

	g.GET("/closures/preview", d.Closures.Preview)
	g.POST("/closures", d.Closures.Create)
	g.PUT("/closures/:id", d.Closures.Update)
	g.DELETE("/closures/:id", d.Closures.Delete)

	g.GET("/users", d.Users.List)
	g.POST("/users", d.Users.Create)
	g.PATCH("/users/:id", d.Users.Update)
}
