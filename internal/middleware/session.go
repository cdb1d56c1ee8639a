package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

// CheckSingleDeviceSession rejects student requests whose JTI is no longer
// the active login, which happens after a logout, an admin reset or a
// proctoring forfeit.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.TokenType != service.TokenTypeStudent {
			c.Next()
			return
		}

		if err := authService.ValidateStudentSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}

// LoadStudent resolves the authenticated student against the roster so
// handlers work with the current name and class rather than token claims.
func LoadStudent(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		student, ok := catalog.StudentByID(claims.UserID)
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Set(ContextKeyStudent, student)
		c.Next()
	}
}

// GetStudent returns the student placed in the context by LoadStudent.
func GetStudent(c *gin.Context) (model.Student, bool) {
	val, exists := c.Get(ContextKeyStudent)
	if !exists {
		return model.Student{}, false
	}
	student, ok := val.(model.Student)
	return student, ok
}
