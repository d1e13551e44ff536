package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/acadrec-api/api/swagger"
	"github.com/noah-isme/acadrec-api/internal/handler"
	"github.com/noah-isme/acadrec-api/internal/middleware"
	"github.com/noah-isme/acadrec-api/internal/repository"
	"github.com/noah-isme/acadrec-api/internal/service"
	"github.com/noah-isme/acadrec-api/pkg/cache"
	"github.com/noah-isme/acadrec-api/pkg/config"
	"github.com/noah-isme/acadrec-api/pkg/database"
	"github.com/noah-isme/acadrec-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/acadrec-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/acadrec-api/pkg/middleware/requestid"
)

// @title Academic Records API
// @version 1.0.0
// @description Course registration, transcripts and catalog management
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Transcripts.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, transcript cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Transcripts.CacheTTL, logr, true)
		}
	}

	registrationRepo := repository.NewRegistrationRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	programRepo := repository.NewProgramRepository(db)

	validate := validator.New()

	prerequisites := service.NewPrerequisiteChecker(registrationRepo, logr)
	capacity := service.NewCapacityGate(registrationRepo, classRepo)
	registrationSvc := service.NewRegistrationService(
		registrationRepo, studentRepo, classRepo, courseRepo,
		prerequisites, capacity,
		cacheSvc, metricsSvc, validate, logr, cfg.Enrollment.TxTimeout,
	)
	transcriptSvc := service.NewTranscriptService(registrationRepo, studentRepo, cacheSvc, cfg.Transcripts.CacheTTL, logr)
	courseSvc := service.NewCourseService(courseRepo, programRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, courseRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, programRepo, validate, logr)
	facultySvc := service.NewFacultyService(facultyRepo, validate, logr)
	programSvc := service.NewProgramService(programRepo, facultyRepo, validate, logr)

	registrationHandler := handler.NewRegistrationHandler(registrationSvc)
	transcriptHandler := handler.NewTranscriptHandler(transcriptSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	classHandler := handler.NewClassHandler(classSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	facultyHandler := handler.NewFacultyHandler(facultySvc)
	programHandler := handler.NewProgramHandler(programSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		registrations := api.Group("/registrations")
		{
			registrations.GET("", registrationHandler.List)
			registrations.POST("", registrationHandler.Create)
			registrations.GET("/:id", registrationHandler.Get)
			registrations.DELETE("/:id", registrationHandler.Cancel)
			registrations.POST("/:id/grade", registrationHandler.AssignGrade)
			registrations.PUT("/:id/grade", registrationHandler.UpdateGrade)
			registrations.PUT("/:id/reactivate", registrationHandler.Reactivate)
		}

		classes := api.Group("/classes")
		{
			classes.GET("", classHandler.List)
			classes.POST("", classHandler.Create)
			classes.GET("/:id", classHandler.Get)
			classes.PUT("/:id", classHandler.Update)
			classes.GET("/:id/registrations/count", registrationHandler.ActiveCount)
		}

		courses := api.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.POST("", courseHandler.Create)
			courses.GET("/:id", courseHandler.Get)
			courses.PUT("/:id", courseHandler.Update)
			courses.PUT("/:id/prerequisites", courseHandler.SetPrerequisites)
		}

		students := api.Group("/students")
		{
			students.GET("", studentHandler.List)
			students.POST("", studentHandler.Create)
			students.GET("/:id", studentHandler.Get)
			students.PUT("/:id", studentHandler.Update)
			students.GET("/:id/transcript", transcriptHandler.Get)
		}

		faculties := api.Group("/faculties")
		{
			faculties.GET("", facultyHandler.List)
			faculties.POST("", facultyHandler.Create)
			faculties.PUT("/:id", facultyHandler.Update)
		}

		programs := api.Group("/programs")
		{
			programs.GET("", programHandler.List)
			programs.POST("", programHandler.Create)
			programs.PUT("/:id", programHandler.Update)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
