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

	_ "github.com/dabestan-dev/dabestan-api/api/swagger"
	"github.com/dabestan-dev/dabestan-api/internal/handler"
	"github.com/dabestan-dev/dabestan-api/internal/identity"
	"github.com/dabestan-dev/dabestan-api/internal/middleware"
	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	"github.com/dabestan-dev/dabestan-api/internal/service"
	"github.com/dabestan-dev/dabestan-api/pkg/cache"
	"github.com/dabestan-dev/dabestan-api/pkg/config"
	"github.com/dabestan-dev/dabestan-api/pkg/database"
	"github.com/dabestan-dev/dabestan-api/pkg/jobs"
	"github.com/dabestan-dev/dabestan-api/pkg/logger"
	corsmiddleware "github.com/dabestan-dev/dabestan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/dabestan-dev/dabestan-api/pkg/middleware/requestid"
	"github.com/dabestan-dev/dabestan-api/pkg/storage"
)

// @title Dabestan API
// @version 1.0.0
// @description School administration backend
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rate limiting and response cache disabled", "error", err)
		redisClient = nil
	}

	validate := service.NewValidator()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	classSubjectRepo := repository.NewClassSubjectRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	disciplineRepo := repository.NewDisciplineRepository(db)
	reportRepo := repository.NewReportRepository(db)

	noteStore, err := storage.NewLocalStorage(cfg.Attachments.StorageDir, cfg.Attachments.PublicBaseURL)
	if err != nil {
		logr.Sugar().Fatalw("attachment storage init failed", "error", err)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "dabestan-api",
	})
	userSvc := service.NewUserService(userRepo, logr)

	var limiter *service.RateLimiter
	if redisClient != nil {
		limiter = service.NewRateLimiter(redisClient, "provisioning", cfg.Provisioning.RateLimitCount, cfg.Provisioning.RateLimitWindow)
	}
	provisioningSvc := service.NewProvisioningService(
		identity.NewStoreAdmin(db),
		userRepo,
		teacherRepo,
		studentRepo,
		limiter,
		validate,
		logr,
		service.ProvisioningConfig{MaxBatchSize: cfg.Provisioning.MaxBatchSize},
	)
	provisioningSvc.SetMetrics(metricsSvc)

	classSvc := service.NewClassService(classRepo, classSubjectRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, classSubjectRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, classRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, classSubjectRepo, studentRepo, teacherRepo, noteStore, validate, logr)
	evaluationSvc := service.NewEvaluationService(evaluationRepo, studentRepo, validate, logr)
	disciplineSvc := service.NewDisciplineService(disciplineRepo, studentRepo, validate, logr)
	importSvc := service.NewImportService(provisioningSvc, studentSvc, service.ImportConfig{
		SessionTTL:  cfg.Imports.SessionTTL,
		PreviewRows: cfg.Imports.PreviewRows,
	}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	provisioningHandler := handler.NewProvisioningHandler(provisioningSvc)
	classHandler := handler.NewClassHandler(classSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	evaluationHandler := handler.NewEvaluationHandler(evaluationSvc)
	disciplineHandler := handler.NewDisciplineHandler(disciplineSvc)
	importHandler := handler.NewImportHandler(importSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/me", userHandler.Me)

	listCache := middleware.CacheResponse(redisClient, metricsSvc, time.Minute)

	admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/users", userHandler.List)
	admin.GET("/users/:id", userHandler.Get)
	admin.POST("/admin/provisioning/bulk",
		middleware.Audit(userRepo, "provisioning.bulk", "users"), provisioningHandler.BulkProvision)
	admin.POST("/admin/teachers",
		middleware.Audit(userRepo, "provisioning.teacher", "teachers"), provisioningHandler.CreateTeacher)
	admin.GET("/admin/metrics", metricsHandler.Snapshot)

	admin.POST("/classes", middleware.Audit(userRepo, "class.create", "classes"), classHandler.Create)
	admin.PUT("/classes/:id", middleware.Audit(userRepo, "class.update", "classes"), classHandler.Update)
	admin.DELETE("/classes/:id", middleware.Audit(userRepo, "class.delete", "classes"), classHandler.Delete)
	admin.POST("/classes/:id/subjects", classHandler.AssignSubject)
	admin.PUT("/class-subjects/:assignmentId", classHandler.ReassignSubject)
	admin.DELETE("/class-subjects/:assignmentId", classHandler.RemoveSubject)

	admin.POST("/subjects", subjectHandler.Create)
	admin.PUT("/subjects/:id", subjectHandler.Update)
	admin.DELETE("/subjects/:id", subjectHandler.Delete)

	admin.PUT("/teachers/:id", teacherHandler.Update)
	admin.GET("/teachers/:id/assignments", teacherHandler.Assignments)

	admin.POST("/students", middleware.Audit(userRepo, "student.create", "students"), studentHandler.Create)
	admin.PUT("/students/:id", studentHandler.Update)
	admin.PUT("/students/:id/parent", middleware.Audit(userRepo, "student.link_parent", "students"), studentHandler.LinkParent)
	admin.DELETE("/students/:id", middleware.Audit(userRepo, "student.delete", "students"), studentHandler.Delete)

	imports := admin.Group("/imports")
	imports.GET("/fields/:target", importHandler.Fields)
	imports.GET("/template/:target", importHandler.Template)
	imports.POST("", importHandler.Upload)
	imports.GET("/sessions/:id", importHandler.Get)
	imports.PUT("/sessions/:id/mapping", importHandler.SetMapping)
	imports.GET("/sessions/:id/preview", importHandler.Preview)
	imports.POST("/sessions/:id/commit", middleware.Audit(userRepo, "import.commit", "imports"), importHandler.Commit)
	imports.POST("/sessions/:id/back", importHandler.Back)
	imports.DELETE("/sessions/:id", importHandler.Discard)

	staff := authed.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
	staff.GET("/classes", listCache, classHandler.List)
	staff.GET("/classes/:id", classHandler.Get)
	staff.GET("/classes/:id/subjects", classHandler.Subjects)
	staff.GET("/subjects", listCache, subjectHandler.List)
	staff.GET("/subjects/:id", subjectHandler.Get)
	staff.GET("/teachers", listCache, teacherHandler.List)
	staff.GET("/teachers/:id", teacherHandler.Get)
	staff.GET("/students", studentHandler.List)
	staff.GET("/students/:id", studentHandler.Get)
	staff.GET("/attendance/report", attendanceHandler.Summary)
	staff.GET("/evaluations", evaluationHandler.List)

	teachers := authed.Group("", middleware.RequireRoles(models.RoleTeacher))
	teachers.GET("/me/assignments", teacherHandler.MyAssignments)
	teachers.PUT("/attendance/sessions",
		middleware.Audit(userRepo, "attendance.record", "attendance"), attendanceHandler.RecordSession)
	teachers.GET("/attendance/sessions", attendanceHandler.GetSession)
	teachers.PUT("/evaluations/batch", evaluationHandler.SaveBatch)
	teachers.GET("/evaluations/sheet", evaluationHandler.Sheet)
	teachers.POST("/discipline", middleware.Audit(userRepo, "discipline.create", "discipline"), disciplineHandler.Create)
	teachers.PUT("/discipline/:id", disciplineHandler.Update)
	teachers.DELETE("/discipline/:id", disciplineHandler.Delete)

	parents := authed.Group("", middleware.RequireRoles(models.RoleParent))
	parents.GET("/me/children", studentHandler.Children)
	parents.POST("/attendance/:id/justification",
		middleware.Audit(userRepo, "attendance.justify", "attendance"), attendanceHandler.Justify)

	authed.GET("/attendance", attendanceHandler.List)
	authed.GET("/discipline", disciplineHandler.List)
	authed.GET("/discipline/:id", disciplineHandler.Get)

	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir, "")
		if err != nil {
			logr.Sugar().Fatalw("report storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(attendanceSvc, disciplineSvc, evaluationSvc, reportStore, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr)

		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)

		reportSvc := service.NewReportService(reportRepo, teacherRepo, classSubjectRepo, reportQueue, exportSvc, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		}, logr)
		reportSvc.RecoverPendingJobs(ctx)
		go reportSvc.StartCleanup(ctx)

		reportHandler := handler.NewReportHandler(reportSvc)
		api.GET("/reports/download/:token", reportHandler.Download)
		staff.POST("/reports/generate", reportHandler.Generate)
		staff.GET("/reports/status/:id", reportHandler.Status)
		staff.GET("/reports", reportHandler.List)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
}
