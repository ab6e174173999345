package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/handler"
	"github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

type dependencies struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *service.MetricsService
	auth    *service.AuthService
	audit   middleware.AuditWriter

	teachers   *service.TeacherService
	subjects   *service.SubjectService
	yearGroups *service.YearGroupService
	students   *service.StudentService
	schedules  *service.ScheduleService
	sessions   *service.EditSessionService
	timetable  *service.TimetableService
	exports    *service.ExportJobService
}

func newRouter(d dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	metricsHandler := handler.NewMetricsHandler(d.metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	authHandler := handler.NewAuthHandler(d.auth)
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(d.auth))
	secured.POST("/auth/logout", authHandler.Logout)
	secured.GET("/auth/me", authHandler.Me)
	secured.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	admin := middleware.RequireRoles(models.RoleAdmin)
	editors := middleware.RequireRoles(middleware.Editors...)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(d.audit, action, resource)
	}

	teacherHandler := handler.NewTeacherHandler(d.teachers)
	teachers := secured.Group("/teachers")
	teachers.GET("", teacherHandler.List)
	teachers.GET("/:id", teacherHandler.Get)
	teachers.POST("", admin, audit(models.AuditActionCreate, "teacher"), teacherHandler.Create)
	teachers.PUT("/:id", admin, audit(models.AuditActionUpdate, "teacher"), teacherHandler.Update)
	teachers.DELETE("/:id", admin, audit(models.AuditActionDelete, "teacher"), teacherHandler.Delete)

	subjectHandler := handler.NewSubjectHandler(d.subjects)
	subjects := secured.Group("/subjects")
	subjects.GET("", subjectHandler.List)
	subjects.GET("/grouped", subjectHandler.Grouped)
	subjects.GET("/:id", subjectHandler.Get)
	subjects.POST("", admin, audit(models.AuditActionCreate, "subject"), subjectHandler.Create)
	subjects.PUT("/:id", admin, audit(models.AuditActionUpdate, "subject"), subjectHandler.Update)
	subjects.DELETE("/:id", admin, audit(models.AuditActionDelete, "subject"), subjectHandler.Delete)

	yearGroupHandler := handler.NewYearGroupHandler(d.yearGroups)
	yearGroups := secured.Group("/year-groups")
	yearGroups.GET("", yearGroupHandler.List)
	yearGroups.POST("", admin, audit(models.AuditActionCreate, "year_group"), yearGroupHandler.Create)
	yearGroups.DELETE("/:id", admin, audit(models.AuditActionDelete, "year_group"), yearGroupHandler.Delete)

	studentHandler := handler.NewStudentHandler(d.students)
	students := secured.Group("/students")
	students.GET("", studentHandler.List)
	students.GET("/:id", studentHandler.Get)
	students.POST("", admin, audit(models.AuditActionCreate, "student"), studentHandler.Create)
	students.DELETE("/:id", admin, audit(models.AuditActionDelete, "student"), studentHandler.Delete)

	scheduleHandler := handler.NewScheduleHandler(d.schedules)
	schedules := secured.Group("/schedules")
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.Get)
	schedules.POST("", editors, audit(models.AuditActionCreate, "schedule"), scheduleHandler.Create)
	schedules.PUT("/:id", editors, audit(models.AuditActionUpdate, "schedule"), scheduleHandler.Update)
	schedules.DELETE("/:id", editors, audit(models.AuditActionDelete, "schedule"), scheduleHandler.Delete)

	timetableHandler := handler.NewTimetableHandler(d.timetable)
	timetable := secured.Group("/timetable")
	timetable.GET("/periods", timetableHandler.Periods)
	timetable.GET("/board", timetableHandler.Board)
	timetable.GET("/grid", timetableHandler.Grid)
	timetable.POST("/drops/resolve", editors, timetableHandler.ResolveDrop)
	timetable.POST("/drops", editors, audit(models.AuditActionDrop, "schedule"), timetableHandler.Drop)

	sessionHandler := handler.NewSessionHandler(d.sessions)
	session := timetable.Group("/session", editors)
	session.GET("", sessionHandler.State)
	session.POST("", sessionHandler.Enter)
	session.DELETE("", sessionHandler.Cancel)
	session.GET("/mutations", sessionHandler.Pending)
	session.POST("/mutations", sessionHandler.Stage)
	session.POST("/commit", audit(models.AuditActionBatchCommit, "schedule"), sessionHandler.Commit)

	if d.exports != nil {
		exportHandler := handler.NewExportHandler(d.exports)
		// The download link is the credential; browsers follow it without a bearer token.
		api.GET("/timetable/exports/download", exportHandler.Download)
		timetable.POST("/exports", audit(models.AuditActionExport, "export"), exportHandler.Create)
		timetable.GET("/exports/:id", exportHandler.Get)
	}

	return r
}
