package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditlogdomain "github.com/kassaflow/kassaflow/internal/auditlog/domain"
	"github.com/kassaflow/kassaflow/internal/clock"
	"github.com/kassaflow/kassaflow/internal/config"
	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
	"github.com/kassaflow/kassaflow/internal/ingest"
	receiptdomain "github.com/kassaflow/kassaflow/internal/receipt/domain"
	taskdomain "github.com/kassaflow/kassaflow/internal/task/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	genID  *snowflake.Node

	ingestSvc *ingest.Service
	auditSvc  auditlogdomain.Service
	events    eventdomain.Repository
	tasks     taskdomain.Repository
	receipts  receiptdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node

	IngestSvc *ingest.Service
	AuditSvc  auditlogdomain.Service
	Events    eventdomain.Repository
	Tasks     taskdomain.Repository
	Receipts  receiptdomain.Repository
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		db:        p.DB,
		log:       p.Log.Named("server"),
		clock:     p.Clock,
		genID:     p.GenID,
		ingestSvc: p.IngestSvc,
		auditSvc:  p.AuditSvc,
		events:    p.Events,
		tasks:     p.Tasks,
		receipts:  p.Receipts,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.POST("/webhook/:store_path", s.handleWebhook)

	api.GET("/queue", s.listQueue)
	api.GET("/stats", s.queueStats)
	api.POST("/queue/retry", s.retryTask)

	api.GET("/events", s.listEvents)
	api.GET("/receipts", s.listReceipts)
	api.GET("/logs", s.listLogs)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
