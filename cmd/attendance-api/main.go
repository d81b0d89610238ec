package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/dualsign/attendance-api/api/swagger"
	"github.com/dualsign/attendance-api/internal/handler"
	"github.com/dualsign/attendance-api/internal/middleware"
	"github.com/dualsign/attendance-api/internal/models"
	"github.com/dualsign/attendance-api/internal/repository"
	"github.com/dualsign/attendance-api/internal/service"
	"github.com/dualsign/attendance-api/pkg/cache"
	"github.com/dualsign/attendance-api/pkg/config"
	"github.com/dualsign/attendance-api/pkg/database"
	"github.com/dualsign/attendance-api/pkg/logger"
	corsmiddleware "github.com/dualsign/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/dualsign/attendance-api/pkg/middleware/requestid"
)

// @title Course Attendance API
// @version 1.0.0
// @description Session lifecycle, dual-verification sign-in and attendance statistics
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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	statsCacheClient := redisClient
	if !cfg.Stats.CacheEnabled {
		statsCacheClient = nil
	}
	cacheRepo := repository.NewCacheRepository(statsCacheClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	classroomSvc := service.NewClassroomService(classroomRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, classroomRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, validate, logr)

	statsSvc := service.NewStatsService(recordRepo, userRepo, sessionRepo, courseRepo, cacheRepo, cfg.Stats.CacheTTL, logr)
	signInSvc := service.NewSignInService(sessionRepo, sessionSvc, courseRepo, userRepo, recordRepo, statsSvc, validate, logr)
	exportSvc := service.NewExportService(statsSvc, userRepo, nil, nil, service.ExportConfig{
		MaxRows:  cfg.Exports.MaxRows,
		PDFTitle: cfg.Exports.PDFTitle,
	}, logr)
	metricsSvc := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classroomHandler := handler.NewClassroomHandler(classroomSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(signInSvc, statsSvc, metricsSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/verify-password", middleware.JWT(authSvc), authHandler.VerifyPassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	users := authed.Group("/users")
	users.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.POST("/:id/reset-password", userHandler.ResetPassword)
		users.DELETE("/:id", userHandler.Delete)
	}

	classrooms := authed.Group("/classrooms")
	{
		classrooms.GET("", classroomHandler.List)
		classrooms.POST("", middleware.RequireRoles(models.RoleAdmin), classroomHandler.Create)
		classrooms.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), classroomHandler.Delete)
	}

	courses := authed.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", middleware.RequireRoles(models.RoleAdmin), courseHandler.Create)
	}

	sessions := authed.Group("/sessions")
	sessions.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
	{
		sessions.GET("", sessionHandler.List)
		sessions.POST("", sessionHandler.Create)
		sessions.POST("/:id/close", sessionHandler.Close)
	}

	attendance := api.Group("/attendance")
	{
		// Direct sign-in stays open: students authenticate in the payload
		// with password and signature rather than a bearer token.
		attendance.POST("/signin/:sessionID", attendanceHandler.SignIn)

		authedAttendance := attendance.Group("")
		authedAttendance.Use(middleware.JWT(authSvc))
		{
			authedAttendance.POST("/courses/:courseID/signin", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.SignInForCourse)
			authedAttendance.GET("/records/:sessionID", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.Records)
			authedAttendance.GET("/stats/:sessionID", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.Stats)
			authedAttendance.GET("/signatures/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.Signature)
		}
	}

	if cfg.Exports.Enabled {
		exports := authed.Group("/exports")
		exports.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
		{
			exports.GET("/records/:sessionID/csv", exportHandler.RecordsCSV)
			exports.GET("/records/:sessionID/pdf", exportHandler.RecordsPDF)
			exports.GET("/users/csv", middleware.RequireRoles(models.RoleAdmin), exportHandler.UsersCSV)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
