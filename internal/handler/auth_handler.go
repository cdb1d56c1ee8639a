package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService  *service.AuthService
	catalog      *service.CatalogService
	examSessions *service.ExamSessionService
	log          zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	catalog *service.CatalogService,
	examSessions *service.ExamSessionService,
	log zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		catalog:      catalog,
		examSessions: examSessions,
		log:          log.With().Str("component", "auth_handler").Logger(),
	}
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// Validates NIS + password against the roster and returns a JWT. A second
// concurrent login for the same student is rejected.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, ok := h.catalog.StudentByNIS(req.NIS)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(student.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateStudentToken(c.Request.Context(), student)
	if err != nil {
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
			return
		}
		h.log.Error().Err(err).Str("nis", student.NIS).Msg("Failed to issue student token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("nis", student.NIS).Str("class", student.Class).Msg("Student logged in")

	response.Success(c, http.StatusOK, model.StudentLoginResponse{
		Token:   token,
		Student: student,
	})
}

// GetStudentProfile godoc
// GET /api/v1/auth/student/me
func (h *AuthHandler) GetStudentProfile(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"student": student,
		"school":  h.catalog.SchoolData().Public(),
	})
}

// StudentLogout godoc
// POST /api/v1/auth/student/logout
// Ends the login and drops the exam session. An attempt still in progress
// is abandoned without a result.
func (h *AuthHandler) StudentLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.examSessions.Close(claims.UserID)

	if err := h.authService.ResetStudentSession(c.Request.Context(), claims.UserID); err != nil {
		h.log.Error().Err(err).Str("student_id", claims.UserID).Msg("Failed to reset student login")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates the admin credentials kept in the school data.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	school := h.catalog.SchoolData()
	if err := h.authService.CheckAdmin(school, req.Username, req.Password); err != nil {
		h.log.Warn().Str("username", req.Username).Str("ip", c.ClientIP()).Msg("Admin login rejected")
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateAdminToken(req.Username)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	name := school.AdminName
	if name == "" {
		name = service.DefaultAdminUsername
	}

	response.Success(c, http.StatusOK, model.AdminLoginResponse{
		Token: token,
		Name:  name,
	})
}
