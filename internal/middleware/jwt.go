package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
	// ContextKeyStudent holds the roster entry of an authenticated student.
	ContextKeyStudent = "student"
)

var errNoBearer = errors.New("authorization header or token query required")

// RequireStudentJWT accepts only student tokens. The token may come from the
// Authorization header or the ?token= query used by EventSource and WebSocket
// clients.
func RequireStudentJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireRole(authService, service.TokenTypeStudent, response.ErrStudentAccessOnly)
}

// RequireAdminJWT accepts only admin tokens.
func RequireAdminJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireRole(authService, service.TokenTypeAdmin, response.ErrAdminAccessOnly)
}

func requireRole(authService *service.AuthService, want service.TokenType, forbidden response.ErrCode) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := bearerToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != want {
			response.AbortFail(c, http.StatusForbidden, forbidden)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return strings.TrimSpace(parts[1]), nil
		}
	}

	if tokenStr := c.Query("token"); tokenStr != "" {
		return tokenStr, nil
	}
	return "", errNoBearer
}
