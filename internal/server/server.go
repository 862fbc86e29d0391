package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/madaris/dq/internal/audit"
	auditdomain "github.com/madaris/dq/internal/audit/domain"
	"github.com/madaris/dq/internal/batch"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	"github.com/madaris/dq/internal/config"
	"github.com/madaris/dq/internal/dashboard"
	dashboarddomain "github.com/madaris/dq/internal/dashboard/domain"
	"github.com/madaris/dq/internal/export"
	exportdomain "github.com/madaris/dq/internal/export/domain"
	"github.com/madaris/dq/internal/ingest"
	ingestdomain "github.com/madaris/dq/internal/ingest/domain"
	"github.com/madaris/dq/internal/injection"
	injectiondomain "github.com/madaris/dq/internal/injection/domain"
	"github.com/madaris/dq/internal/issue"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	"github.com/madaris/dq/internal/matching"
	matchingdomain "github.com/madaris/dq/internal/matching/domain"
	"github.com/madaris/dq/internal/pipeline"
	pipelinedomain "github.com/madaris/dq/internal/pipeline/domain"
	"github.com/madaris/dq/internal/registry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	registry.Module,
	batch.Module,
	issue.Module,
	audit.Module,
	matching.Module,
	injection.Module,
	ingest.Module,
	pipeline.Module,
	export.Module,
	dashboard.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	batchSvc     batchdomain.Service
	issueSvc     issuedomain.Service
	auditSvc     auditdomain.Service
	matchingSvc  matchingdomain.Service
	injectionSvc injectiondomain.Service
	ingestSvc    ingestdomain.Service
	pipelineSvc  pipelinedomain.Service
	exportSvc    exportdomain.Service
	dashboardSvc dashboarddomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	BatchSvc     batchdomain.Service
	IssueSvc     issuedomain.Service
	AuditSvc     auditdomain.Service
	MatchingSvc  matchingdomain.Service
	InjectionSvc injectiondomain.Service
	IngestSvc    ingestdomain.Service
	PipelineSvc  pipelinedomain.Service
	ExportSvc    exportdomain.Service
	DashboardSvc dashboarddomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		batchSvc:     p.BatchSvc,
		issueSvc:     p.IssueSvc,
		auditSvc:     p.AuditSvc,
		matchingSvc:  p.MatchingSvc,
		injectionSvc: p.InjectionSvc,
		ingestSvc:    p.IngestSvc,
		pipelineSvc:  p.PipelineSvc,
		exportSvc:    p.ExportSvc,
		dashboardSvc: p.DashboardSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/batch", s.ListBatches)
	api.GET("/batch/:id", s.GetBatch)
	api.POST("/batch/:id/match", s.RunMatching)
	api.GET("/matching/:entityType/:sourceId/candidates", s.MatchCandidates)
	api.GET("/batch/:id/impact", s.GetImpact)
	api.POST("/batch/:id/inject", s.Inject)

	api.POST("/ingest/:source", s.IngestFile)

	api.GET("/exceptions", s.ExceptionQueue)
	api.GET("/exceptions/statistics", s.ExceptionStatistics)
	api.GET("/exceptions/:id", s.GetException)
	api.POST("/exceptions/:id/resolve", s.ResolveException)
	api.POST("/exceptions/:id/action", s.ExceptionAction)

	api.GET("/audit", s.ListAudit)

	api.GET("/dashboard/kpis", s.DashboardKPIs)
	api.GET("/dashboard/trends", s.DashboardTrends)
	api.GET("/dashboard/regional", s.DashboardRegional)

	api.POST("/pipeline/run", s.RunPipeline)
	api.GET("/pipeline/:jobId/exports/:name", s.DownloadExport)
}
