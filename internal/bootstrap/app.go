package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/documents"
	"storygen-backend/internal/generation"
	"storygen-backend/internal/llm"
	openai "storygen-backend/internal/llm/openai"
	"storygen-backend/internal/prompts"
	"storygen-backend/internal/queue"
	"storygen-backend/internal/scheduler"
	"storygen-backend/internal/services/health"
	"storygen-backend/internal/shared/config"
	"storygen-backend/internal/shared/server"
	"storygen-backend/internal/shared/server/middleware"
	"storygen-backend/internal/shared/storage/db"
	"storygen-backend/internal/shared/storage/object"
	localstore "storygen-backend/internal/shared/storage/object/local"
	s3store "storygen-backend/internal/shared/storage/object/s3"
	"storygen-backend/internal/shared/telemetry"
	"storygen-backend/internal/stages"
	"storygen-backend/internal/subjects"
)

// App holds shared dependencies.
type App struct {
	Config            config.Config
	Router            *gin.Engine
	DB                *sql.DB
	Store             object.Blobs
	Queue             *queue.SQS
	Scheduler         generation.Scheduler
	Timer             *scheduler.Timer
	LLM               llm.Client
	Prompts           *prompts.Assembler
	SubjectsService   *subjects.Service
	DocumentsService  *documents.Service
	Machine           *generation.Machine
	SubjectHandler    *subjects.Handler
	GenerationHandler *generation.Handler
	DocumentHandler   *documents.Handler
	Health            *health.Service
}

// Build wires every dependency from cfg.
func Build(cfg config.Config) (*App, error) {
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		LLM:    buildLLM(cfg),
	}

	if err := buildScheduler(ctx, app); err != nil {
		return nil, err
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	var pinger health.Pinger
	if app.DB != nil {
		pinger = app.DB
	}
	app.Health = health.NewService(pinger, cfg.SchedulerType, cfg.OpenAIAPIKey != "")

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            cfg,
		SubjectHandler:    app.SubjectHandler,
		GenerationHandler: app.GenerationHandler,
		DocumentHandler:   app.DocumentHandler,
		Health:            app.Health,
		Buckets:           middleware.NewBuckets(nil),
	})

	return app, nil
}

// Close stops pending in-process continuations and closes the database.
func (a *App) Close() {
	if a.Timer != nil {
		a.Timer.Stop()
	}
	if a.DB != nil && !db.InLambda() {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.InLambda() {
		sqlDB, err = db.Shared(ctx, cfg.DatabaseURL, db.OptionsFor(db.ProfileLambda).WithEnv())
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFor(db.ProfileServer).WithEnv())
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}

	if cfg.IsDevLike() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Blobs, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			KMSKeyID: cfg.SSEKMSKeyID,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLLM(cfg config.Config) llm.Client {
	if cfg.OpenAIAPIKey == "" {
		telemetry.Warn("bootstrap.llm.unconfigured", map[string]any{"reason": "OPENAI_API_KEY empty"})
		return llm.UnconfiguredClient{}
	}
	return openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMTimeout)
}

func buildScheduler(ctx context.Context, app *App) error {
	if app.Config.SchedulerType == "sqs" {
		client, err := queue.NewSQS(ctx, queue.SQSConfig{
			Region:     app.Config.AWSRegion,
			QueueURL:   app.Config.SQSQueueURL,
			Visibility: app.Config.SQSVisibility,
		})
		if err != nil {
			return err
		}
		app.Queue = client
		app.Scheduler = scheduler.NewQueue(client)
		return nil
	}

	// Machine is assigned by buildServices before any continuation can fire.
	app.Timer = scheduler.NewTimer(context.Background(), func(ctx context.Context, subjectID string) error {
		_, err := app.Machine.Advance(ctx, subjectID)
		return err
	})
	app.Scheduler = app.Timer
	return nil
}

func buildServices(app *App) error {
	var (
		subjectRepo    subjects.Repo
		generationRepo generation.Repo
		documentRepo   documents.Repo
	)
	if app.DB != nil {
		subjectRepo = &subjects.PGRepo{DB: app.DB}
		generationRepo = &generation.PGRepo{DB: app.DB}
		documentRepo = &documents.PGRepo{DB: app.DB}
	} else {
		subjectRepo = subjects.NewMemoryRepo()
		generationRepo = generation.NewMemoryRepo()
		documentRepo = documents.NewMemoryRepo()
	}

	docSvc, err := documents.NewService(app.Store, documentRepo, app.Config.DocumentCacheSize)
	if err != nil {
		return fmt.Errorf("documents service: %w", err)
	}

	assembler, err := prompts.New()
	if err != nil {
		return fmt.Errorf("prompt assembler: %w", err)
	}
	processors, err := stages.NewSet(app.LLM, assembler)
	if err != nil {
		return fmt.Errorf("stage processors: %w", err)
	}

	machine := generation.NewMachine(generationRepo, subjectRepo, processors, docSvc, app.Scheduler, generation.Settings{
		MaxRateLimitRetries: app.Config.MaxRateLimitRetries,
		LeaseStaleAfter:     app.Config.LeaseStaleAfter,
	})
	subjectSvc := subjects.NewService(subjectRepo, machine)

	app.Prompts = assembler
	app.DocumentsService = docSvc
	app.Machine = machine
	app.SubjectsService = subjectSvc
	app.SubjectHandler = subjects.NewHandler(subjectSvc)
	app.GenerationHandler = generation.NewHandler(machine)
	app.DocumentHandler = documents.NewHandler(docSvc)
	return nil
}
