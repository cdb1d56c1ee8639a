package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

// StudentManagementHandler handles the admin roster view, login resets and
// reloading the cached school data.
type StudentManagementHandler struct {
	catalog      *service.CatalogService
	authService  *service.AuthService
	examSessions *service.ExamSessionService
	log          zerolog.Logger
}

// NewStudentManagementHandler creates a new StudentManagementHandler.
func NewStudentManagementHandler(
	catalog *service.CatalogService,
	authService *service.AuthService,
	examSessions *service.ExamSessionService,
	log zerolog.Logger,
) *StudentManagementHandler {
	return &StudentManagementHandler{
		catalog:      catalog,
		authService:  authService,
		examSessions: examSessions,
		log:          log.With().Str("component", "student_management_handler").Logger(),
	}
}

// ListStudents godoc
// GET /api/v1/admin/students?class=&page=&per_page=
// Lists the roster with pagination, optionally for one class.
func (h *StudentManagementHandler) ListStudents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 50
	}

	var students []model.Student
	if class := strings.TrimSpace(c.Query("class")); class != "" {
		students = h.catalog.StudentsInClass(class)
	} else {
		students = h.catalog.Students()
	}

	total := len(students)
	from := min((page-1)*perPage, total)
	to := min(from+perPage, total)

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students[from:to]},
		response.NewPagination(page, perPage, total))
}

// ResetStudentSession godoc
// POST /api/v1/admin/students/:id/reset-session
// Clears a student's login so they can sign in on another device. A live
// exam session is dropped with it.
func (h *StudentManagementHandler) ResetStudentSession(c *gin.Context) {
	studentID := strings.TrimSpace(c.Param("id"))
	if _, ok := h.catalog.StudentByID(studentID); !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	h.examSessions.Close(studentID)
	if err := h.authService.ResetStudentSession(c.Request.Context(), studentID); err != nil {
		h.log.Error().Err(err).Str("student_id", studentID).Msg("Failed to reset student login")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("student_id", studentID).Msg("Student login reset by admin")
	response.Success(c, http.StatusOK, gin.H{"message": "student session reset successfully"})
}

// RefreshCatalog godoc
// POST /api/v1/admin/catalog/refresh
// Reloads school data, roster, subjects, questions and results from the store.
func (h *StudentManagementHandler) RefreshCatalog(c *gin.Context) {
	if err := h.catalog.Refresh(c.Request.Context()); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"loadedAt": h.catalog.LoadedAt(),
		"students": len(h.catalog.Students()),
		"subjects": len(h.catalog.Subjects()),
	})
}
