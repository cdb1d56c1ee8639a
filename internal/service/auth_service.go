package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("another session is already active, please contact admin to reset")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionInvalidated   = errors.New("session invalidated")
)

// Fallback admin credentials used while the school data has none configured.
const (
	DefaultAdminUsername = "admin"
	defaultAdminPassword = "123"
)

// TokenType distinguishes student vs admin tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeAdmin   TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    string    `json:"user_id"`
	NIS       string    `json:"nis,omitempty"`   // Student only
	Class     string    `json:"class,omitempty"` // Student only
}

// AuthService handles authentication, JWT, and session management.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CheckAdmin verifies admin credentials against the school data. When no
// username or password is configured the defaults apply.
func (s *AuthService) CheckAdmin(school model.SchoolData, username, password string) error {
	want := strings.TrimSpace(school.AdminUsername)
	if want == "" {
		want = DefaultAdminUsername
	}
	if !strings.EqualFold(strings.TrimSpace(username), want) {
		return ErrInvalidCredentials
	}
	if school.AdminPasswordHash == "" {
		if subtle.ConstantTimeCompare([]byte(password), []byte(defaultAdminPassword)) != 1 {
			return ErrInvalidCredentials
		}
		return nil
	}
	return s.CheckPassword(school.AdminPasswordHash, password)
}

// GenerateStudentToken creates a JWT for a student and registers the session in Redis.
// Returns an error if a session already exists (new logins are rejected).
func (s *AuthService) GenerateStudentToken(ctx context.Context, student model.Student) (string, error) {
	sessionKey := config.CacheKey.StudentSessionKey(student.ID)

	jti := uuid.New().String()
	signed, err := s.sign(jti, Claims{
		TokenType: TokenTypeStudent,
		UserID:    student.ID,
		NIS:       student.NIS,
		Class:     student.Class,
	})
	if err != nil {
		return "", err
	}

	// SetNX so two devices racing to log in cannot both win.
	ok, err := s.rdb.SetNX(ctx, sessionKey, jti, s.cfg.JWTExpiry).Result()
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return "", ErrSessionAlreadyActive
	}

	return signed, nil
}

// GenerateAdminToken creates a JWT for the administrator.
func (s *AuthService) GenerateAdminToken(username string) (string, error) {
	return s.sign(uuid.New().String(), Claims{
		TokenType: TokenTypeAdmin,
		UserID:    username,
	})
}

func (s *AuthService) sign(jti string, claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateStudentSession checks that the token's JTI matches the active session in Redis.
func (s *AuthService) ValidateStudentSession(ctx context.Context, studentID, jti string) error {
	sessionKey := config.CacheKey.StudentSessionKey(studentID)
	stored, err := s.rdb.Get(ctx, sessionKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// ResetStudentSession removes a student's session from Redis, allowing a new login.
func (s *AuthService) ResetStudentSession(ctx context.Context, studentID string) error {
	sessionKey := config.CacheKey.StudentSessionKey(studentID)
	return s.rdb.Del(ctx, sessionKey).Err()
}
