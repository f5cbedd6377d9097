package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vorth-network/vigil/screener/engine"
	"github.com/vorth-network/vigil/screener/policy"
	"github.com/vorth-network/vigil/screener/registry"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	echo     *echo.Echo
	httpd    *http.Server
	logger   *slog.Logger
	stack    *Stack
	eng      *engine.Engine
	registry *registry.Registry
	policies *policy.Manager

	adminToken string
}

type ServerConfig struct {
	Bind string
	// when empty, /v1 routes are not authenticated
	AdminToken string
	// HTTP metrics are registered here; defaults to the prometheus default registerer
	Registerer prometheus.Registerer
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewServer(st *Stack, config ServerConfig) *Server {
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		echo:       e,
		logger:     st.Logger.With("component", "api"),
		stack:      st,
		eng:        st.Engine,
		registry:   st.Registry,
		policies:   st.Policies,
		adminToken: config.AdminToken,
	}
	srv.httpd = &http.Server{
		Handler:        otelhttp.NewHandler(srv, "vigil-api"),
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "vigil",
		Registerer: config.Registerer,
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)

	v1 := e.Group("/v1", srv.checkAdminAuth)
	v1.GET("/check", srv.HandleCheckName)
	v1.POST("/reload", srv.HandleReload)
	v1.POST("/join", srv.HandleJoin)

	v1.GET("/policies", srv.HandleListPolicies)
	v1.GET("/policies/:server", srv.HandleGetPolicy)
	v1.PUT("/policies/:server/screening", srv.HandleSetScreening)
	v1.PUT("/policies/:server/action", srv.HandleSetAction)
	v1.PUT("/policies/:server/channel", srv.HandleSetChannel)
	v1.POST("/policies/:server/exemptions", srv.HandleAddExemption)
	v1.DELETE("/policies/:server/exemptions/:member", srv.HandleRemoveExemption)
	v1.POST("/policies/:server/reset", srv.HandleResetPolicy)
	v1.GET("/policies/:server/stats", srv.HandleStats)
	v1.GET("/policies/:server/members/:member/flags", srv.HandleGetMemberFlags)
	v1.DELETE("/policies/:server/members/:member/flags", srv.HandleClearMemberFlags)

	v1.GET("/registry", srv.HandleListRegistry)
	v1.POST("/registry", srv.HandleAddIdentity)
	v1.DELETE("/registry/:id", srv.HandleRemoveIdentity)

	return srv
}

func (srv *Server) checkAdminAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if srv.adminToken == "" {
			return next(c)
		}
		authheader := c.Request().Header.Get("Authorization")
		pref := "Bearer "
		if !strings.HasPrefix(authheader, pref) {
			return echo.NewHTTPError(http.StatusUnauthorized, "admin token required")
		}
		token := authheader[len(pref):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(srv.adminToken)) != 1 {
			return echo.NewHTTPError(http.StatusForbidden, "invalid admin token")
		}
		return next(c)
	}
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	case errors.Is(err, policy.ErrInvalidAction), errors.Is(err, policy.ErrInvalidState):
		code = http.StatusBadRequest
	case errors.Is(err, registry.ErrNotAuditor):
		code = http.StatusForbidden
	case errors.Is(err, registry.ErrNotFound):
		code = http.StatusNotFound
	}
	if code >= 500 {
		srv.logger.Warn("vigil-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	if err := c.JSON(code, GenericError{Error: errorName(code), Message: msg}); err != nil {
		srv.logger.Error("failed to write error response", "err", err)
	}
}

func errorName(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "BadRequest"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusRequestEntityTooLarge:
		return "PayloadTooLarge"
	}
	if code >= 500 {
		return "InternalError"
	}
	return strings.ReplaceAll(http.StatusText(code), " ", "")
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Blocks serving HTTP until the server is shut down.
func (srv *Server) RunAPI() error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}
