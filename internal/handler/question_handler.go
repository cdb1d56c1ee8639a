package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/validator"
)

// QuestionHandler handles question bank and result endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
	resultService   *service.ResultService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, resultService *service.ResultService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		resultService:   resultService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// ListQuestions godoc
// GET /api/v1/admin/questions?subjectId=
// Lists the bank, optionally narrowed to one subject.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	questions, err := h.questionService.List(c.Request.Context(), strings.TrimSpace(c.Query("subjectId")))
	if err != nil {
		failWith(c, err)
		return
	}

	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// SaveQuestion godoc
// PUT /api/v1/admin/questions
// Creates a question, or replaces it when the payload carries an id.
func (h *QuestionHandler) SaveQuestion(c *gin.Context) {
	var req model.SaveQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Save(c.Request.Context(), req)
	if err != nil {
		h.log.Warn().Err(err).Str("subject_id", req.SubjectID).Msg("Question rejected")
		failWith(c, err)
		return
	}

	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"question": question})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/questions/:id
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id})
}

// ListResults godoc
// GET /api/v1/admin/results?token=
// Lists graded results, optionally for one exam token.
func (h *QuestionHandler) ListResults(c *gin.Context) {
	results, err := h.resultService.List(c.Request.Context(), strings.TrimSpace(c.Query("token")))
	if err != nil {
		failWith(c, err)
		return
	}

	if results == nil {
		results = []model.ExamResult{}
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}
