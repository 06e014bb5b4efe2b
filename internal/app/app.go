package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/db"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	cancel       context.CancelFunc
	traceCleanup func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := pg.Seed(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres seed: %w", err)
	}
	theDB := pg.DB()

	metrics := observability.Init(log)

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, reposet, clientset)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, reposet, serviceset, clientset)
	middleware := wireMiddleware(log, cfg)
	router := wireRouter(log, metrics, handlerset, middleware)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Clients:  clientset,
		Services: serviceset,
		Metrics:  metrics,
	}, nil
}

// Start launches the background pieces: traces, metrics endpoints and
// collectors, the invariant scanner, and the job worker when this process
// runs one. Safe to call once; Close stops everything Start began.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.traceCleanup = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "taxonomy-backend",
		Environment: a.Cfg.Environment,
		Version:     a.Cfg.Version,
	})

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
		if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
			a.Metrics.StartRedisCollector(ctx, a.Log, addr)
		}
		a.Metrics.StartSLOEvaluator(ctx, a.Log)
	}
	observability.StartInvariantScanner(ctx, a.Log, a.DB)

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.traceCleanup != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.traceCleanup(shutdownCtx)
		cancelShutdown()
		a.traceCleanup = nil
	}
	a.Clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
