package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/observability"
	obsmiddleware "github.com/smallbiznis/payhook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payhook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payhook/internal/observability/tracing"
	userdomain "github.com/smallbiznis/payhook/internal/user/domain"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultMaxBodyBytes = 1 << 20
	webhookRoutePrefix  = "/webhook/"

	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics
	Registry    *prometheus.Registry `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(recoverPanic))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if p.Registry != nil {
		gatherers = append(gatherers, p.Registry)
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	port := strings.TrimSpace(cfg.HTTPPort)
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Engine(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	log = log.Named("http")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	webhookSvc   webhookdomain.Service
	userSvc      userdomain.Service
	maxBodyBytes int64
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	WebhookSvc webhookdomain.Service
	UserSvc    userdomain.Service
}

func NewServer(p ServerParams) *Server {
	maxBody := p.Cfg.Webhook.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		webhookSvc:   p.WebhookSvc,
		userSvc:      p.UserSvc,
		maxBodyBytes: maxBody,
	}

	svc.registerWebhookRoutes()
	svc.registerUserRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST(webhookRoutePrefix+":provider", s.HandleWebhook)
}

func (s *Server) registerUserRoutes() {
	s.engine.GET("/users/:user_id/webhooks", s.ListUserWebhooks)
	s.engine.GET("/webhooks/users/:user_id", s.ListWebhooksByUser)

	internal := s.engine.Group("/internal")
	internal.GET("/users/by-customer/:customer_id", s.GetUserByCustomer)
}
