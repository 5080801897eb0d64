package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"brandkit-backend/internal/assets"
	"brandkit-backend/internal/formats"
	"brandkit-backend/internal/imageconv"
	"brandkit-backend/internal/queue"
	"brandkit-backend/internal/shared/config"
	"brandkit-backend/internal/shared/metrics"
	"brandkit-backend/internal/shared/server"
	"brandkit-backend/internal/shared/storage/db"
	"brandkit-backend/internal/shared/storage/docstore"
	"brandkit-backend/internal/shared/storage/object"
	localstore "brandkit-backend/internal/shared/storage/object/local"
	s3store "brandkit-backend/internal/shared/storage/object/s3"
	"brandkit-backend/internal/shared/telemetry"
)

// App holds shared dependencies for the API, the worker and the CLI.
type App struct {
	Config         config.Config
	Router         *gin.Engine
	DB             *sql.DB
	Docs           docstore.Store
	Store          object.ObjectStore
	Queue          queue.Client
	AssetsRepo     *assets.Repo
	AssetsService  *assets.Service
	Formats        *formats.Manager
	AssetsHandler  *assets.Handler
	FormatsHandler *formats.Handler

	background sync.WaitGroup
}

// Build prepares every dependency and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}
	if sqlDB != nil {
		app.Docs = docstore.NewPGStore(sqlDB)
	} else {
		app.Docs = docstore.NewMemoryStore()
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	var files object.ObjectStore
	if cfg.ObjectStoreType == "local" {
		files = store
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:         app.Config,
		AssetsHandler:  app.AssetsHandler,
		FormatsHandler: app.FormatsHandler,
		Files:          files,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if config.IsDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory document store")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if config.IsDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory document store: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if config.IsDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, s3store.Options{
			Region:        cfg.AWSRegion,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			KMSKeyID:      cfg.SSEKMSKeyID,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	default:
		return localstore.New(cfg.LocalStoreDir, cfg.PublicBaseURL), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.PrewarmQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.PrewarmQueueURL, cfg.AWSRegion)
}

func buildServices(app *App) error {
	fetcher, err := formats.NewSourceFetcher(formats.FetcherOptions{
		Store:      app.Store,
		Timeout:    app.Config.FetchTimeout,
		CacheSize:  app.Config.FetchCacheSize,
		CacheBytes: app.Config.FetchCacheBytes,
	})
	if err != nil {
		return err
	}
	observer, err := metrics.NewFormatObserver("", nil)
	if err != nil {
		return err
	}

	repo := assets.NewRepo(app.Docs)
	manager := formats.NewManager(formats.Options{
		Assets:    repo,
		Blobs:     app.Store,
		Converter: imageconv.New(),
		Fetcher:   fetcher,
		Observer:  observer,
	})

	var enqueuer formats.PrewarmEnqueuer
	if app.Queue != nil {
		enqueuer = queue.NewPrewarmer(app.Queue)
	}

	svc := &assets.Service{
		Repo:  repo,
		Blobs: app.Store,
	}
	if app.Config.PrewarmOnUpload {
		svc.PrewarmFormats = app.Config.PrewarmFormats
		switch {
		case enqueuer != nil:
			svc.Prewarm = enqueuer
		case db.IsLambdaRuntime():
			log.Printf("bootstrap: PREWARM_ON_UPLOAD needs PREWARM_QUEUE_URL on Lambda; formats will be generated on first request")
		default:
			svc.Prewarm = backgroundPrewarm{manager: manager, inflight: &app.background}
		}
	}

	app.AssetsRepo = repo
	app.AssetsService = svc
	app.Formats = manager
	app.AssetsHandler = assets.NewHandler(svc)
	app.FormatsHandler = formats.NewHandler(manager, enqueuer, app.Config.PrewarmFormats)
	return nil
}

// Drain waits for in-process prewarms started by uploads, or until ctx ends.
func (a *App) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backgroundPrewarm runs prewarm in-process when no queue is configured.
// Jobs outlive the upload request; App.Drain waits for them.
type backgroundPrewarm struct {
	manager  *formats.Manager
	inflight *sync.WaitGroup
}

func (b backgroundPrewarm) EnqueuePrewarm(ctx context.Context, assetID string, wanted []string, requestID string) error {
	jobCtx := context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		if _, err := b.manager.Prewarm(jobCtx, assetID, wanted); err != nil {
			telemetry.Warn("bootstrap.prewarm_failed", map[string]any{
				"asset_id":   assetID,
				"request_id": requestID,
				"error":      err,
			})
		}
	}()
	return nil
}
