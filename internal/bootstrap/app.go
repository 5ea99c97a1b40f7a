package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/accounts"
	"voterlist-backend/internal/credentials"
	"voterlist-backend/internal/documents"
	"voterlist-backend/internal/events"
	"voterlist-backend/internal/extraction"
	"voterlist-backend/internal/queue"
	"voterlist-backend/internal/search"
	"voterlist-backend/internal/session"
	"voterlist-backend/internal/shared/config"
	"voterlist-backend/internal/shared/server"
	"voterlist-backend/internal/shared/storage/db"
	"voterlist-backend/internal/shared/storage/kv"
	"voterlist-backend/internal/shared/storage/object"
	gcsstore "voterlist-backend/internal/shared/storage/object/gcs"
	localstore "voterlist-backend/internal/shared/storage/object/local"
	s3store "voterlist-backend/internal/shared/storage/object/s3"
	"voterlist-backend/internal/shared/util"
)

const eventBuffer = 64

// App holds shared dependencies.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	KV               kv.Store
	Queue            queue.Client
	Events           *events.Broker
	AccountsRepo     accounts.Repo
	AccountsService  *accounts.Service
	DocumentsRepo    documents.Repo
	DocumentsService *documents.Service
	Scheduler        *extraction.Scheduler
	SearchEngine     search.Engine
	Sessions         *session.Manager

	closers []func() error
}

// Build prepares every dependency in order: storage, accounts (seeded before
// any login is accepted), documents and the scheduler, then HTTP.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		app.DB = sqlDB
		app.closers = append(app.closers, sqlDB.Close)
	}

	if err := app.buildStore(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if app.DB == nil {
		fileStore, err := kv.OpenFileStore(cfg.StateDir)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open state dir: %w", err)
		}
		app.KV = fileStore
	}

	if strings.TrimSpace(cfg.SQSQueueURL) != "" {
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Queue = client
	}

	if err := app.buildServices(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		CORSAllowOrigin: cfg.CORSAllowOrigin,
		Resolver:        app.Sessions,
		Public:          []server.RouteRegistrar{session.NewHandler(app.Sessions)},
		User: []server.RouteRegistrar{
			documents.NewHandler(app.DocumentsService, app.Events, cfg.MaxUploadBytes, cfg.CORSAllowOrigin),
			search.NewHandler(app.DocumentsService, app.SearchEngine),
		},
		Admin:  []server.RouteRegistrar{accounts.NewHandler(app.AccountsService)},
		Health: app.Ping,
	})

	return app, nil
}

// BuildWorker prepares the background worker: the shared Postgres pool, the
// document repository and the scheduler. It seeds no accounts and builds no
// HTTP surface, so the API stays the only owner of the admin credential.
// A database that cannot be reached is an error in every environment.
func BuildWorker(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	sqlDB, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	app := newWorkerApp(cfg, sqlDB)
	app.closers = append(app.closers, sqlDB.Close)
	return app, nil
}

func newWorkerApp(cfg config.Config, sqlDB *sql.DB) *App {
	app := &App{Config: cfg, DB: sqlDB}
	app.DocumentsRepo = &documents.PGRepo{DB: sqlDB}
	app.Scheduler = extraction.New(app.DocumentsRepo, nil, schedulerConfig(cfg))
	return app
}

func schedulerConfig(cfg config.Config) extraction.Config {
	return extraction.Config{
		InitialDelay:  cfg.ExtractionInitialDelay,
		MinProcessing: cfg.ExtractionMinDelay,
		MaxProcessing: cfg.ExtractionMaxDelay,
		Tick:          cfg.ExtractionTick,
		PendingStage:  cfg.ExtractionPendingStage,
		PendingDelay:  cfg.ExtractionPendingDelay,
	}
}

// Ping checks the database when one is configured.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

// Close releases the database pool and object store clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("bootstrap: DATABASE_URL empty; persisting state under %s", cfg.StateDir)
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: database connect failed; persisting state under %s: %v", cfg.StateDir, err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func (a *App) buildStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return err
		}
		a.Store = store
	case "gcs":
		if strings.TrimSpace(cfg.GCSBucket) == "" {
			return fmt.Errorf("OBJECT_STORE=gcs requires GCS_BUCKET")
		}
		store, err := gcsstore.New(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	default:
		a.Store = localstore.New(cfg.LocalStoreDir)
	}
	return nil
}

func (a *App) buildServices(ctx context.Context) error {
	cfg := a.Config

	hasher, err := credentials.New(cfg.PasswordHasher)
	if err != nil {
		return err
	}

	if a.DB != nil {
		a.AccountsRepo = &accounts.PGRepo{DB: a.DB}
		a.DocumentsRepo = &documents.PGRepo{DB: a.DB}
	} else {
		accountsRepo, err := accounts.NewKVRepo(ctx, a.KV)
		if err != nil {
			return err
		}
		docsRepo, err := documents.NewKVRepo(ctx, a.KV)
		if err != nil {
			return err
		}
		a.AccountsRepo = accountsRepo
		a.DocumentsRepo = docsRepo
	}

	adminSecret, err := resolveAdminSecret(cfg)
	if err != nil {
		return err
	}
	a.AccountsService = accounts.NewService(a.AccountsRepo, hasher, cfg.AdminUsername)
	if err := a.AccountsService.Initialize(ctx, adminSecret); err != nil {
		return fmt.Errorf("initialize accounts: %w", err)
	}

	a.Events = events.NewBroker(eventBuffer)
	a.Scheduler = extraction.New(a.DocumentsRepo, a.Events, schedulerConfig(cfg))

	a.DocumentsService = &documents.Service{
		Store:     a.Store,
		Repo:      a.DocumentsRepo,
		Scheduler: a.Scheduler,
		Queue:     a.Queue,
		Events:    a.Events,
	}
	a.SearchEngine = search.NewMockEngine(cfg.SearchLatency, uint64(time.Now().UnixNano()))

	sessionKey, err := resolveSessionKey(cfg)
	if err != nil {
		return err
	}
	a.Sessions = session.NewManager(a.AccountsService, a.AccountsRepo, sessionKey, cfg.SessionTTL, !cfg.IsDevLike())
	return nil
}

// resolveAdminSecret returns the configured admin password. Outside dev a
// missing password is fatal; in dev a one-off password is generated.
func resolveAdminSecret(cfg config.Config) (string, error) {
	if secret := strings.TrimSpace(cfg.AdminPassword); secret != "" {
		return secret, nil
	}
	if !cfg.IsDevLike() {
		return "", errors.New("ADMIN_PASSWORD is required")
	}
	secret := util.RandomID()[:12]
	log.Printf("bootstrap: ADMIN_PASSWORD empty; generated dev password for %s: %s", cfg.AdminUsername, secret)
	return secret, nil
}

func resolveSessionKey(cfg config.Config) ([]byte, error) {
	if secret := strings.TrimSpace(cfg.SessionSecret); secret != "" {
		return []byte(secret), nil
	}
	if !cfg.IsDevLike() {
		return nil, errors.New("SESSION_SECRET is required")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	return key, nil
}
