package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/mobistudy/mobistudy-api/internal/api/handler"
	"github.com/mobistudy/mobistudy-api/internal/api/middleware"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/http/handlers"
)

// RouterDeps are the services and settings the HTTP layer is built from.
type RouterDeps struct {
	Auth         ports.AuthService
	Participants ports.ParticipantService
	HealthData   ports.HealthDataService
	Incidents    ports.IncidentReporter
	Readiness    map[string]handlers.Check
	JWTSecret    string

	// Registerer receives the HTTP request metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps RouterDeps, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log, deps.Incidents)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(log))
	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "mobistudy",
		Registerer: reg,
	}))

	// --- Ops routes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	participantHandler := handler.NewParticipantHandler(deps.Participants)
	healthDataHandler := handler.NewHealthDataHandler(deps.HealthData)

	api := e.Group("/api")

	// --- Auth routes ---
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("", middleware.Auth(deps.JWTSecret))
	participantOnly := middleware.RBAC(domain.RoleParticipant)
	staffOnly := middleware.RBAC(domain.RoleResearcher, domain.RoleAdmin)

	// --- Participant routes ---
	authed.GET("/participants", participantHandler.List)
	authed.POST("/participants", participantHandler.Create, participantOnly)
	authed.GET("/participants/statusStats/:studyKey", participantHandler.StatusStats, staffOnly)
	authed.GET("/participants/byuserkey/:userKey", participantHandler.GetByUserKey)
	authed.PATCH("/participants/byuserkey/:userKey", participantHandler.UpdateProfile)
	authed.DELETE("/participants/byuserkey/:userKey", participantHandler.DeleteByUserKey)
	authed.PATCH("/participants/byuserkey/:userKey/studies/:studyKey", participantHandler.UpdateEnrollment)
	authed.PATCH("/participants/studies/:studyKey/taskItemsConsent/:taskId", participantHandler.UpdateTaskConsent, participantOnly)
	authed.GET("/participants/:participant_key", participantHandler.Get)
	authed.DELETE("/participants/:participant_key", participantHandler.Delete)

	// --- Health data routes ---
	authed.GET("/healthStoreData", healthDataHandler.List)
	authed.POST("/healthStoreData", healthDataHandler.Create, participantOnly)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
