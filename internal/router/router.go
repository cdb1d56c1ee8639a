package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/handler"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	StudentMgmt   *handler.StudentManagementHandler
	Exam          *handler.ExamHandler
	Question      *handler.QuestionHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	catalog *service.CatalogService,
	loginLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Every response carries request metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(response.AccessLogMiddleware(log))
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Quality:   middleware.DefaultBrotliConfig.Quality,
		SkipPaths: []string{"/ws/"},
	}))

	router.GET("/health", handlers.System.Health)

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/school", handlers.System.GetSchool)
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/student/login", loginLimiter.Middleware(), handlers.Auth.StudentLogin)
		auth.POST("/admin/login", loginLimiter.Middleware(), handlers.Auth.AdminLogin)

		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me",
			middleware.RequireStudentJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
			middleware.LoadStudent(catalog),
			handlers.Auth.GetStudentProfile,
		)
	}

	studentChain := []gin.HandlerFunc{
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.LoadStudent(catalog),
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(studentChain...)
	{
		studentAPI.GET("/exam", handlers.StudentPortal.GetExam)
		studentAPI.POST("/exam/token", handlers.StudentPortal.EnterToken)
		studentAPI.POST("/exam/confirm", handlers.StudentPortal.Confirm)
		studentAPI.POST("/exam/back", handlers.StudentPortal.Back)
		studentAPI.GET("/exam/state", handlers.StudentPortal.GetState)
	}

	// ─── 3. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(studentChain...)
	{
		ws.GET("/student/exam/stream", handlers.WS.ExamStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Active exam
		adminAPI.GET("/exam", handlers.Exam.GetExam)
		adminAPI.POST("/exam/activate", handlers.Exam.Activate)
		adminAPI.POST("/exam/deactivate", handlers.Exam.Deactivate)
		adminAPI.POST("/exam/token/regenerate", handlers.Exam.RegenerateToken)
		adminAPI.GET("/exam/sessions", handlers.Exam.ListSessions)
		adminAPI.GET("/exam/monitor", handlers.Monitor.MonitorSSE)

		// Question bank
		adminAPI.GET("/questions", handlers.Question.ListQuestions)
		adminAPI.PUT("/questions", handlers.Question.SaveQuestion)
		adminAPI.DELETE("/questions/:id", handlers.Question.DeleteQuestion)

		// Results
		adminAPI.GET("/results", handlers.Question.ListResults)

		// Roster
		adminAPI.GET("/students", handlers.StudentMgmt.ListStudents)
		adminAPI.POST("/students/:id/reset-session", handlers.StudentMgmt.ResetStudentSession)
		adminAPI.POST("/catalog/refresh", handlers.StudentMgmt.RefreshCatalog)

		// System Monitoring
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
