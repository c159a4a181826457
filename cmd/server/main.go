package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storyreel/api/internal/auth"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/credential"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/logger"
	"github.com/storyreel/api/internal/metrics"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/playback"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/store"
	ws "github.com/storyreel/api/internal/websocket"
	"github.com/storyreel/api/internal/worker"
	"github.com/storyreel/api/pkg/response"
)

const credentialTTL = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the queue, rate limits and credential selection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", zap.Error(err))
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	validate := validator.New()

	// Clip storage
	storage, memStorage, err := newClipStorage(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("clip storage ready", zap.String("backend", cfg.Storage.Backend))

	// Render boundary
	var veo client.VideoGenerator
	if cfg.Veo.Mock {
		log.Warn("using mock video generator")
		veo = client.NewMockVeoClient(2)
	} else {
		veo = client.NewVeoClient(&cfg.Gemini, &cfg.Veo, log)
	}

	storyboards := newStoryboardService(cfg, m, log)

	// Studio state and live updates
	hub := ws.NewHub(log)
	registry := store.NewRegistry()
	registry.OnCreate(func(_ string, st *store.Store) {
		st.Subscribe(hub.Listen)
	})

	credentials := credential.NewRedisSelector(redisClient, cfg.Gemini.APIKey, credentialTTL)

	renderer := service.NewSceneRenderer(veo, storage, &cfg.Veo, service.SystemClock, m, log)
	orchestrator := service.NewOrchestrator(renderer, credentials, hub, m, log)
	studio := service.NewStudioService(registry, storyboards, credentials, asynqClient,
		playback.StubMerger{Delay: cfg.Merge.Delay}, cfg.Worker.TaskTimeout, cfg.Veo.MaxWait, log)

	// Auth
	authenticator, err := newAuthenticator(cfg, log)
	if err != nil {
		return err
	}
	defer authenticator.Close()

	studioHandler := handler.NewStudioHandler(studio, validate)
	credentialHandler := handler.NewCredentialHandler(studio, validate)
	authHandler := handler.NewAuthHandler(authenticator)
	authMiddleware := middleware.NewAuthMiddleware(authenticator)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler(log),
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"storyboard": cfg.Storyboard.Provider,
				"storage":    cfg.Storage.Backend,
				"veoMock":    cfg.Veo.Mock,
				"redis":      redisClient.Ping(c.UserContext()).Err() == nil,
			},
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	app.Get("/auth/verify", authHandler.Verify)
	if memStorage != nil {
		app.Get("/clips/*", handler.NewClipsHandler(memStorage).Get)
	}

	var identify fiber.Handler = authMiddleware.Authenticate()
	if cfg.Gateway.Enabled {
		identify = middleware.GatewayAuthMiddleware()
	}

	api := app.Group("/api", identify)
	api.Get("/options", studioHandler.Options)
	api.Get("/studio", studioHandler.Studio)

	api.Get("/credentials", credentialHandler.Status)
	api.Post("/credentials", rateLimiter.CredentialLimit(cfg.RateLimit.CredentialPerHour), credentialHandler.Select)
	api.Delete("/credentials", credentialHandler.Drop)

	api.Post("/projects", rateLimiter.StoryboardLimit(cfg.RateLimit.StoryboardPerMin), studioHandler.CreateProject)
	projects := api.Group("/projects")
	projects.Get("/history", studioHandler.History)
	projects.Get("/current", studioHandler.Current)
	projects.Delete("/current", studioHandler.Reset)
	projects.Patch("/current/scenes/:sceneId", studioHandler.UpdateScene)
	projects.Post("/current/scenes/:sceneId/regenerate", rateLimiter.RegenerateLimit(cfg.RateLimit.RegeneratePerHour), studioHandler.Regenerate)
	projects.Post("/current/render", rateLimiter.RenderLimit(cfg.RateLimit.RenderPerHour), studioHandler.Render)
	projects.Get("/current/playlist", studioHandler.Playlist)
	projects.Post("/current/merge", studioHandler.Merge)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/projects/:projectId", authMiddleware.AuthenticateQuery(), websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("projectId"))
	}))

	// Worker server
	renderWorker := worker.NewRenderWorker(orchestrator, registry, log)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:  cfg.Worker.Concurrency,
		Queues:       map[string]int{service.QueueRender: 1},
		Logger:       log.Named("asynq").Sugar(),
		IsFailure:    worker.IsFailure,
		ErrorHandler: renderWorker,
	})
	mux := asynq.NewServeMux()
	renderWorker.Register(mux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(mux); err != nil {
			return fmt.Errorf("asynq worker: %w", err)
		}
		<-gctx.Done()
		srv.Shutdown()
		return nil
	})
	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		log.Info("server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newClipStorage(ctx context.Context, cfg *config.Config) (client.ClipStorage, *client.MemoryStorage, error) {
	switch cfg.Storage.Backend {
	case "r2":
		r2, err := client.NewR2Client(ctx, &cfg.R2)
		if err != nil {
			return nil, nil, fmt.Errorf("init r2 storage: %w", err)
		}
		return r2, nil, nil
	case "minio":
		mc, err := client.NewMinIOClient(ctx, &cfg.MinIO)
		if err != nil {
			return nil, nil, fmt.Errorf("init minio storage: %w", err)
		}
		return mc, nil, nil
	case "memory", "":
		mem := client.NewMemoryStorage(cfg.Storage.PublicBaseURL)
		return mem, mem, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func newStoryboardService(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *service.StoryboardService {
	switch cfg.Storyboard.Provider {
	case "openai":
		chat := client.NewOpenAIClient(&cfg.OpenAI)
		if chat.IsConfigured() {
			return service.NewStoryboardService(nil, chat, m, log)
		}
		log.Warn("openai storyboard provider not configured, using planner")
	case "gemini":
		gemini := client.NewGeminiClient(&cfg.Gemini, log)
		if gemini.IsConfigured() {
			return service.NewStoryboardService(gemini, nil, m, log)
		}
		log.Warn("gemini storyboard provider not configured, using planner")
	}
	return service.NewStoryboardService(nil, nil, m, log)
}

func newAuthenticator(cfg *config.Config, log *zap.Logger) (*auth.Authenticator, error) {
	if cfg.Zitadel.Issuer == "" {
		return auth.NewAuthenticator(nil, cfg.JWT.Secret), nil
	}
	verifier, err := auth.NewJWKSVerifier(&cfg.Zitadel)
	if err != nil {
		if cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("init jwks verifier: %w", err)
		}
		log.Warn("jwks verifier unavailable, legacy tokens only", zap.Error(err))
		return auth.NewAuthenticator(nil, cfg.JWT.Secret), nil
	}
	return auth.NewAuthenticator(verifier, cfg.JWT.Secret), nil
}

func customErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		} else {
			log.Error("unhandled request error", zap.String("path", c.Path()), zap.Error(err))
		}

		return response.Error(c, code, response.CodeServiceError, message, nil)
	}
}
