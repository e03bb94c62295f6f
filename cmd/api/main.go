package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tuition-center-api/api/swagger"
	"github.com/noah-isme/tuition-center-api/internal/handler"
	"github.com/noah-isme/tuition-center-api/internal/middleware"
	"github.com/noah-isme/tuition-center-api/internal/realtime"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	"github.com/noah-isme/tuition-center-api/internal/scanner"
	"github.com/noah-isme/tuition-center-api/internal/service"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	"github.com/noah-isme/tuition-center-api/pkg/config"
	"github.com/noah-isme/tuition-center-api/pkg/database"
	"github.com/noah-isme/tuition-center-api/pkg/jobs"
	"github.com/noah-isme/tuition-center-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tuition-center-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tuition-center-api/pkg/middleware/requestid"
	"github.com/noah-isme/tuition-center-api/pkg/qrcodec"
	"github.com/noah-isme/tuition-center-api/pkg/storage"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

// @title Tuition Center API
// @version 1.0.0
// @description Attendance sessions, QR scanning, enrollment and notifications for a tuition center
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()

	backend, checks, closeStore, err := openStore(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer closeStore()
	records := store.Instrument(backend, metrics)

	school := validation.School{Grades: cfg.School.Grades, Subjects: cfg.School.Subjects}
	if len(school.Grades) == 0 || len(school.Subjects) == 0 {
		school = validation.DefaultSchool
	}
	validate := validation.New(school)

	students := repository.NewStudentRepository(records, validate)
	teachers := repository.NewTeacherRepository(records, validate)
	parents := repository.NewParentRepository(records, validate)
	attendance := repository.NewAttendanceRepository(records, validate)
	notifications := repository.NewNotificationRepository(records, validate)
	announcements := repository.NewAnnouncementRepository(records, validate)
	payments := repository.NewPaymentRepository(records, validate)
	materials := repository.NewMaterialRepository(records, validate)
	reportJobs := repository.NewReportRepository(records, validate)
	marks := repository.NewMarkRepository(records, validate)
	chats := repository.NewChatRepository(records, validate)

	authService, err := service.NewAuthService(teachers, parents, validate, logr, service.AuthConfig{
		Secret:            cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		AccessTokenExpiry: cfg.JWT.Expiration,
		AdminID:           cfg.Admin.ID,
		AdminName:         cfg.Admin.Name,
		AdminEmail:        cfg.Admin.Email,
		AdminPassword:     cfg.Admin.Password,
		AdminPasswordHash: cfg.Admin.PasswordHash,
	})
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	if cfg.Seed {
		if _, err := service.SeedDemoTeachers(ctx, teachers, logr); err != nil {
			return fmt.Errorf("seed teachers: %w", err)
		}
	}

	corsPolicy := corsmiddleware.NewPolicy(cfg.CORS.AllowedOrigins)
	hub := realtime.NewHub(corsPolicy.CheckRequest, logr.Named("realtime"))
	codec := qrcodec.New(cfg.QR.ImageSize, school.Grades)

	notificationService := service.NewNotificationService(students, teachers, notifications, announcements, school, metrics, logr)
	enrollmentService := service.NewEnrollmentService(students, payments, codec, notificationService, school, validate, logr)
	paymentService := service.NewPaymentService(payments, notificationService, logr)
	materialService := service.NewMaterialService(materials, notificationService, school, validate, logr)
	markService := service.NewMarkService(marks, students, notificationService, validate, logr)
	chatService := service.NewChatService(chats, students, teachers, parents, notificationService, logr)
	adminService := service.NewAdminService(teachers, students, school, validate, logr)
	sessionService := service.NewSessionService(students, attendance, codec, school, hub, metrics, logr)
	scanService := service.NewScanService(sessionService, frameSources(cfg.Scanner), scanner.Options{
		Interval:      cfg.Scanner.FrameInterval,
		Cooldown:      cfg.Scanner.Cooldown,
		MaxFrameWidth: cfg.Scanner.MaxFrameWidth,
		Logger:        logr.Named("scanner"),
	}, hub, metrics, logr)

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	signer := storage.NewSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	reportCfg := service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
		DownloadBaseURL: cfg.APIPrefix + "/export/",
	}
	reportService := service.NewReportService(students, attendance, reportJobs, files, signer, validate, metrics, logr, reportCfg)
	worker := service.NewReportWorker(reportJobs, attendance, files, signer, metrics, logr, reportCfg)
	queue := jobs.NewQueue[string]("attendance-exports", worker.Handle, jobs.Options{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	queue.OnGiveUp = func(task jobs.Task[string], err error) {
		logr.Error("attendance export failed", zap.String("job_id", task.Payload), zap.Int("attempts", task.Attempt), zap.Error(err))
	}
	queue.Start(ctx)
	reportService.SetQueue(queue)
	reportService.StartCleanup(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsPolicy.Middleware())
	r.Use(middleware.Metrics(metrics))

	handler.RegisterProbes(r, handler.NewMetricsHandler(metrics.Handler(), checks))
	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		Sessions:      handler.NewSessionHandler(sessionService, scanService, hub),
		Notifications: handler.NewNotificationHandler(notificationService),
		Enrollment:    handler.NewEnrollmentHandler(enrollmentService),
		Payments:      handler.NewPaymentHandler(paymentService),
		Materials:     handler.NewMaterialHandler(materialService),
		Reports:       handler.NewReportHandler(reportService),
		Marks:         handler.NewMarkHandler(markService),
		Chats:         handler.NewChatHandler(chatService),
		Admin:         handler.NewAdminHandler(adminService),
	}, authService, logr.Named("audit"))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// End sessions first so their camera loops stop and watchers get the
	// session_ended event before the hub closes.
	sessionService.EndAll(shutdownCtx)
	scanService.StopAll()
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("forced shutdown", zap.Error(err))
	}
	queue.Stop()
	return nil
}

// openStore builds the configured record store together with its readiness
// checks and a close func.
func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (store.Store, map[string]handler.ReadinessCheck, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		client, err := store.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		checks := map[string]handler.ReadinessCheck{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}
		return store.NewRedisStore(client, cfg.Redis.KeyPrefix), checks, func() { _ = client.Close() }, nil
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := store.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
		return pg, checks, func() { _ = db.Close() }, nil
	case config.StoreMemory, "":
		logr.Warn("using in-memory store, records are lost on restart")
		return store.NewMemoryStore(), nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// frameSources picks the camera feed for scan loops. A snapshot URL wins
// over a frames directory; with neither, camera scanning is unavailable.
func frameSources(cfg config.ScannerConfig) service.FrameSourceFactory {
	switch {
	case cfg.SnapshotURL != "":
		return func(string) scanner.FrameSource {
			return scanner.NewSnapshotSource(cfg.SnapshotURL, nil)
		}
	case cfg.FramesDir != "":
		return func(string) scanner.FrameSource {
			return scanner.NewDirectorySource(cfg.FramesDir)
		}
	default:
		return func(string) scanner.FrameSource { return nil }
	}
}
