package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/validator"
)

// StudentPortalHandler drives the token entry and identity confirmation
// screens. The exam itself runs over the WebSocket stream.
type StudentPortalHandler struct {
	sessions *service.ExamSessionService
	catalog  *service.CatalogService
	log      zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	sessions *service.ExamSessionService,
	catalog *service.CatalogService,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessions: sessions,
		catalog:  catalog,
		log:      log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetExam godoc
// GET /api/v1/student/exam
// Returns the exam the student's class is sitting, without the token.
func (h *StudentPortalHandler) GetExam(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	active := h.catalog.ActiveExam()
	if !active.IsActive() {
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveExam)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam": gin.H{
			"subjectId":    active.SubjectID,
			"subjectName":  active.SubjectName,
			"subjectClass": active.SubjectClass,
			"startTime":    active.StartTime,
			"endTime":      active.EndTime,
		},
		"forYourClass": active.SubjectClass == "" || active.SubjectClass == student.Class,
	})
}

// EnterToken godoc
// POST /api/v1/student/exam/token
// Checks the token against the active exam and moves to identity confirmation.
func (h *StudentPortalHandler) EnterToken(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.EnterTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessions.EnterToken(c.Request.Context(), student, req.Token)
	if err != nil {
		h.log.Debug().Err(err).Str("nis", student.NIS).Msg("Token rejected")
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// Confirm godoc
// POST /api/v1/student/exam/confirm
// Confirms identity, draws the question set and starts the countdown.
func (h *StudentPortalHandler) Confirm(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.sessions.Confirm(c.Request.Context(), student.ID)
	if err != nil {
		failWith(c, err)
		return
	}

	h.log.Info().Str("nis", student.NIS).Int("questions", view.Total).Msg("Exam started")
	response.Success(c, http.StatusOK, view)
}

// Back godoc
// POST /api/v1/student/exam/back
// Returns from identity confirmation to token entry.
func (h *StudentPortalHandler) Back(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.sessions.Back(student.ID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetState godoc
// GET /api/v1/student/exam/state
// Returns the current session view, used to resume after a page reload.
func (h *StudentPortalHandler) GetState(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.sessions.View(student)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}
