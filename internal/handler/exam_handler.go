package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/validator"
)

// ExamHandler is the admin side of the active exam: activation, token
// rotation and the session roster.
type ExamHandler struct {
	tokenService   *service.TokenService
	monitorService *service.MonitorService
	catalog        *service.CatalogService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	tokenService *service.TokenService,
	monitorService *service.MonitorService,
	catalog *service.CatalogService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		tokenService:   tokenService,
		monitorService: monitorService,
		catalog:        catalog,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// GetExam godoc
// GET /api/v1/admin/exam
// Returns the active exam including its token, plus the subjects an exam
// can be opened for.
func (h *ExamHandler) GetExam(c *gin.Context) {
	current, err := h.tokenService.Current(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Exam status refresh failed, serving cached exam")
		current = h.catalog.ActiveExam()
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam":     current,
		"subjects": h.catalog.Subjects(),
	})
}

// Activate godoc
// POST /api/v1/admin/exam/activate
func (h *ExamHandler) Activate(c *gin.Context) {
	var req model.ActivateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	active, err := h.tokenService.Activate(c.Request.Context(), req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": active})
}

// Deactivate godoc
// POST /api/v1/admin/exam/deactivate
func (h *ExamHandler) Deactivate(c *gin.Context) {
	if err := h.tokenService.Deactivate(c.Request.Context()); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": h.catalog.ActiveExam()})
}

// RegenerateToken godoc
// POST /api/v1/admin/exam/token/regenerate
func (h *ExamHandler) RegenerateToken(c *gin.Context) {
	active, err := h.tokenService.RegenerateToken(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": active})
}

// ListSessions godoc
// GET /api/v1/admin/exam/sessions
// One-shot roster of the class sitting the active exam with each
// student's latest status.
func (h *ExamHandler) ListSessions(c *gin.Context) {
	snap, err := h.monitorService.Snapshot(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}
