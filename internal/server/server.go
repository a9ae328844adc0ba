// Package server assembles the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/auth"
	"github.com/jimdaga/mediecho/internal/billing"
	"github.com/jimdaga/mediecho/internal/briefings"
	"github.com/jimdaga/mediecho/internal/config"
	"github.com/jimdaga/mediecho/internal/database"
	"github.com/jimdaga/mediecho/internal/health"
	"github.com/jimdaga/mediecho/internal/logs"
	"gorm.io/gorm"
)

const sessionName = "mediecho_session"

// Deps are the services the router exposes
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Tokens  *auth.TokenService
	Briefs  *briefings.Service
	Billing *billing.Service
	Logger  *slog.Logger
}

// NewRouter builds the gin engine with every API route registered
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(RequestID(), RequestLogger(logger), Recovery(logger), SecurityHeaders(cfg.IsProduction()))
	r.NoRoute(notFound)

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.RefreshExpiry.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	errs := apierror.Responder{Production: cfg.IsProduction(), Logger: logger}
	requireAuth := auth.RequireAuth(d.DB, d.Tokens, errs)
	requirePaid := billing.RequirePlan(errs, billing.PaidPlans...)

	healthHandler := health.Handler(cfg.Env, func(ctx context.Context) error {
		return database.Ping(ctx, d.DB)
	})
	r.GET("/health", healthHandler)

	api := r.Group("/api")
	api.GET("/health", healthHandler)

	authH := auth.NewHandler(d.DB, d.Tokens, errs)
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authH.Register)
		authRoutes.POST("/login", authH.Login)
		authRoutes.POST("/refresh", authH.Refresh)
		authRoutes.POST("/logout", authH.Logout)
		authRoutes.GET("/me", requireAuth, authH.Me)
	}
	api.PUT("/users/me", requireAuth, authH.UpdateProfile)

	logsH := logs.NewHandler(logs.NewStore(d.DB), errs)
	logRoutes := api.Group("/logs", requireAuth)
	{
		logRoutes.POST("", logsH.Create)
		logRoutes.GET("", logsH.List)
		logRoutes.GET("/stats/summary", logsH.Stats)
		logRoutes.GET("/:id", logsH.Get)
		logRoutes.PUT("/:id", logsH.Update)
		logRoutes.DELETE("/:id", logsH.Delete)
	}

	billingH := billing.NewHandler(d.Billing, errs)
	subRoutes := api.Group("/subscription")
	{
		subRoutes.GET("/plans", billingH.Plans)
		subRoutes.GET("/verify-session", billingH.VerifySession)
		subRoutes.POST("/checkout", requireAuth, billingH.Checkout)
		subRoutes.POST("/portal", requireAuth, billingH.Portal)
		subRoutes.GET("", requireAuth, billingH.Subscription)
	}
	api.POST("/webhooks/stripe", billing.NewWebhookHandler(d.Billing, cfg.StripeWebhookSecret).Handle)

	briefsH := briefings.NewHandler(d.Briefs, errs)
	briefRoutes := api.Group("/briefs", requireAuth)
	{
		briefRoutes.POST("/generate", requirePaid, briefsH.Generate)
		briefRoutes.GET("", briefsH.List)
		briefRoutes.GET("/:id", briefsH.Get)
		briefRoutes.GET("/:id/download", requirePaid, briefsH.Download)
		briefRoutes.GET("/:id/summary", requirePaid, briefsH.Summary)
		briefRoutes.DELETE("/:id", briefsH.Delete)
	}

	return r
}

// Serve runs handler on addr until ctx is canceled, then drains in-flight requests
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
