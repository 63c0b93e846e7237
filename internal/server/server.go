// Package server contains the HTTP handlers for the PatchDB API.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"patchdb/internal/bootstrap"
	"patchdb/internal/config"
	"patchdb/internal/featureflags"
	"patchdb/internal/middleware"
	"patchdb/internal/models"
	"patchdb/internal/notifications"
	"patchdb/internal/observability"
	"patchdb/internal/patchindex"
	"patchdb/internal/repository"
	"patchdb/internal/service"
	"patchdb/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the infrastructure handles a Server is built from.
type Deps struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Store        storage.Store
	Index        patchindex.Client
	Universities *service.UniversityDirectory
	Tokens       *service.TokenIssuer
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	featureFlags   *featureflags.Manager
	tokens         *service.TokenIssuer
	store          storage.Store
	universities   *service.UniversityDirectory
	notifier       *notifications.Notifier
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	authService       *service.AuthService
	userService       *service.UserService
	followingService  *service.FollowingService
	patchService      *service.PatchService
	submissionService *service.PatchSubmissionService
	userPatchService  *service.UserPatchService
	fileService       *service.FileService
	linker            *service.CollectionLinker
	rateLimiter       *middleware.RateLimiter
}

// NewServer connects to every backing service named in cfg and builds a Server.
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}

	store, err := storage.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("storage initialization failed: %w", err)
	}

	index, err := patchindex.New(patchindex.Config{
		BaseURL: cfg.PatchIndexURL,
		Timeout: cfg.PatchIndexTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("patch index client initialization failed: %w", err)
	}

	universities, err := config.LoadUniversities(cfg.UniversitiesFile)
	if err != nil {
		return nil, err
	}

	tokens, err := service.NewTokenIssuerFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("token issuer initialization failed: %w", err)
	}

	return NewServerWithDeps(cfg, Deps{
		DB:           db,
		Redis:        rdb,
		Store:        store,
		Index:        index,
		Universities: service.NewUniversityDirectory(universities),
		Tokens:       tokens,
	})
}

// NewServerWithDeps creates a Server from already constructed dependencies.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	if deps.Store == nil || deps.Index == nil || deps.Tokens == nil {
		return nil, errors.New("store, patch index and token issuer are required")
	}
	if deps.Universities == nil {
		deps.Universities = service.NewUniversityDirectory(nil)
	}

	maxImageBytes := int64(cfg.UploadMaxSizeMB) << 20
	flags := featureflags.NewManager(cfg.FeatureFlags)
	notifier := notifications.NewNotifier(deps.Redis)

	userRepo := repository.NewUserRepository(deps.DB)
	followingRepo := repository.NewFollowingRepository(deps.DB)
	userPatchService := service.NewUserPatchService(deps.DB, deps.Store, deps.Index, flags, notifier, maxImageBytes)

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("patchdb-api"),
		featureFlags:   flags,
		tokens:         deps.Tokens,
		store:          deps.Store,
		universities:   deps.Universities,
		notifier:       notifier,
		rateLimiter:    middleware.NewRateLimiter(deps.Redis, cfg.Env),

		authService:      service.NewAuthService(userRepo, deps.Tokens),
		userService:      service.NewUserService(userRepo, followingRepo, deps.Universities, deps.Store),
		followingService: service.NewFollowingService(followingRepo, userRepo, notifier, deps.Store),
		patchService: service.NewPatchService(
			repository.NewPatchRepository(deps.DB),
			repository.NewUserPatchRepository(deps.DB),
			deps.Store,
		),
		submissionService: service.NewPatchSubmissionService(
			deps.DB, deps.Store, deps.Index, deps.Universities, notifier, maxImageBytes,
		),
		userPatchService: userPatchService,
		fileService:      service.NewFileService(deps.Store, maxImageBytes),
		linker: service.NewCollectionLinker(
			repository.NewLinkJobRepository(deps.DB),
			userPatchService,
			service.CollectionLinkerConfig{
				PollInterval: time.Duration(cfg.LinkWorkerPollMillis) * time.Millisecond,
				MaxAttempts:  cfg.LinkJobMaxAttempts,
			},
		),
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "PatchDB API",
		BodyLimit:    int(maxImageBytes) + 1<<20,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)

	return s, nil
}

// App returns the configured Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Linker returns the collection-link worker.
func (s *Server) Linker() *service.CollectionLinker {
	return s.linker
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so that rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.NewTooManyRequestsError("Too many requests, please try again later.")
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", s.rateLimiter.Limit("register", 5, 10*time.Minute), s.Register)
	auth.Post("/login", s.rateLimiter.Limit("login", 10, 5*time.Minute), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	universities := api.Group("/universities")
	universities.Get("/", s.GetUniversities)
	universities.Get("/:code", s.GetUniversity)

	patches := api.Group("/patches", s.OptionalAuth())
	patches.Get("/", s.GetPatches)
	patches.Get("/search", s.SearchPatches)
	patches.Get("/:number", s.GetPatch)

	submissions := api.Group("/patch-submission", s.AuthRequired())
	submissions.Post("/upload",
		s.rateLimiter.Limit("patch_submission_upload", 30, time.Hour),
		s.UploadPatchSubmission)
	submissions.Patch("/update", s.UpdatePatchSubmission)
	submissions.Get("/unpublished", s.RoleRequired(models.RoleModerator), s.GetUnpublishedSubmissions)
	submissions.Get("/mine", s.GetMySubmissions)
	submissions.Get("/:id", s.GetPatchSubmission)

	userPatches := api.Group("/user-patches", s.AuthRequired())
	userPatches.Post("/upload/:fileId",
		s.rateLimiter.Limit("user_patch_upload", 60, time.Hour),
		s.UploadUserPatch)
	userPatches.Patch("/:uploadId/matching-patch-number/:number", s.UpdatePatchUploadMatch)
	userPatches.Patch("/:userPatchId/favorite", s.SetUserPatchFavorite)
	userPatches.Get("/", s.GetMyUserPatches)
	userPatches.Get("/unmatched", s.GetUnmatchedUploads)
	userPatches.Get("/:userId", s.GetUserPatches)

	user := api.Group("/user")
	user.Get("/me", s.AuthRequired(), s.GetMe)
	user.Patch("/profile", s.AuthRequired(), s.UpdateProfile)
	user.Patch("/university-info", s.AuthRequired(), s.UpdateUniversityInfo)
	user.Get("/:id", s.OptionalAuth(), s.GetUser)
	user.Post("/:id/follow", s.AuthRequired(),
		s.rateLimiter.Limit("follow", 120, time.Hour),
		s.Follow)
	user.Delete("/:id/follow", s.AuthRequired(), s.Unfollow)
	user.Get("/:id/followers", s.OptionalAuth(), s.GetFollowers)
	user.Get("/:id/following", s.OptionalAuth(), s.GetFollowing)

	files := api.Group("/file-service", s.AuthRequired())
	files.Get("/upload-url", s.GetUploadURL)
	files.Get("/upload-url/patch", s.GetPatchUploadURL)
	files.Get("/download-url/:fileId", s.GetDownloadURL)
	files.Post("/upload",
		s.rateLimiter.Limit("file_upload", 60, time.Hour),
		s.UploadFile)

	admin := api.Group("/admin", s.AuthRequired(), s.RoleRequired(models.RoleAdmin))
	admin.Get("/feature-flags", s.GetFeatureFlags)
	admin.Get("/link-jobs/failed", s.GetFailedLinkJobs)
	admin.Post("/link-jobs/retry", s.RetryFailedLinkJobs)
}

// errorHandler is the global fault boundary: every error returned by a handler
// or middleware is logged and written as an ErrorResponse.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{
			Message: fe.Message,
			ErrorID: httpErrorID(fe.Code),
		})
	}

	status, response := models.BuildErrorResponse(err, !s.config.IsProduction())
	if status >= fiber.StatusInternalServerError {
		observability.RecordErrorInContext(c.UserContext(), err)
		middleware.Logger.ErrorContext(c.UserContext(), "Unhandled error",
			"error", err,
			"method", c.Method(),
			"path", c.Path(),
		)
	}
	return c.Status(status).JSON(response)
}

// Start starts the link worker and serves HTTP until the listener stops.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	if s.config.LinkWorkerEnabled {
		s.linker.Start(s.shutdownCtx)
	}

	middleware.Logger.Info("Server starting", "port", s.config.Port, "env", s.config.Env)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops the link worker
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		middleware.Logger.Error("error shutting down HTTP server", "error", err)
	}

	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			middleware.Logger.Error("error closing object store", "error", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr)
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
