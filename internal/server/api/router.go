package api

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"photovault/internal/server/config"
)

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	validate *validator.Validate
}

// Validate runs struct validation on the bound request.
func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// SetupRouter configures the echo instance with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &Validator{validate: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(RequestLogger())

	e.GET("/health", handler.HandleHealth)

	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	apiGroup := e.Group("/api")
	apiGroup.POST("/register", handler.HandleRegister)

	accounts := apiGroup.Group("/accounts/:external_id")
	accounts.POST("/photos", handler.HandleUploadPhoto, rateLimiter.Middleware())
	accounts.GET("/photos/random", handler.HandleRandomPhoto)
	accounts.GET("/stats", handler.HandleAccountStats)
	accounts.POST("/leave", handler.HandleLeave)

	admin := apiGroup.Group("", AdminAuth(cfg.AdminTokenHash))
	admin.GET("/stats", handler.HandleStats)
	admin.POST("/admin/accounts/:external_id/reconcile", handler.HandleReconcile)

	return e
}
