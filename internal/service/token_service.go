package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/exam"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/store"
)

// Exam token errors.
var (
	ErrExamAlreadyActive = errors.New("an exam is already active")
	ErrSubjectNotFound   = errors.New("subject not found")
	ErrInvalidExamWindow = errors.New("exam end time must be after start time")
)

// Token alphabet and length for exam join tokens.
const (
	TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	TokenLength   = 6
)

// GenerateExamToken draws a TokenLength token from TokenAlphabet using r.
func GenerateExamToken(r io.Reader) (string, error) {
	size := big.NewInt(int64(len(TokenAlphabet)))
	buf := make([]byte, TokenLength)
	for i := range buf {
		n, err := rand.Int(r, size)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = TokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// TokenService opens, closes and re-keys the single active exam.
type TokenService struct {
	store   store.DataStore
	catalog *CatalogService
	rand    io.Reader
	now     func() time.Time
	log     zerolog.Logger

	mu sync.Mutex
}

// NewTokenService creates a new TokenService.
func NewTokenService(st store.DataStore, catalog *CatalogService, log zerolog.Logger) *TokenService {
	return &TokenService{
		store:   st,
		catalog: catalog,
		rand:    rand.Reader,
		now:     time.Now,
		log:     log.With().Str("component", "token_service").Logger(),
	}
}

// Current returns the exam as the store sees it, nil when none.
func (s *TokenService) Current(ctx context.Context) (*model.ActiveExam, error) {
	current, err := s.store.FetchExamStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch exam status: %w", err)
	}
	s.catalog.SetActiveExam(current)
	return current, nil
}

// Activate opens an exam for the subject with a fresh token.
func (s *TokenService) Activate(ctx context.Context, req model.ActivateExamRequest) (*model.ActiveExam, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, ErrInvalidExamWindow
	}
	subject, ok := s.catalog.Subject(req.SubjectID)
	if !ok {
		return nil, ErrSubjectNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current.IsActive() {
		return nil, ErrExamAlreadyActive
	}

	token, err := GenerateExamToken(s.rand)
	if err != nil {
		return nil, err
	}

	active := model.ActiveExam{
		SubjectID:        subject.ID,
		SubjectName:      subject.Name,
		SubjectClass:     subject.Class,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Status:           model.ExamStatusActive,
		Token:            token,
		TokenGeneratedAt: s.now(),
	}
	if err := s.store.ActivateExam(ctx, active); err != nil {
		return nil, fmt.Errorf("activate exam: %w", err)
	}
	s.catalog.SetActiveExam(&active)

	s.log.Info().
		Str("subject_id", subject.ID).
		Str("class", subject.Class).
		Time("end_time", active.EndTime).
		Msg("Exam activated")
	return &active, nil
}

// Deactivate closes the active exam. Closing an already closed exam is a no-op.
func (s *TokenService) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateExam(ctx); err != nil {
		return fmt.Errorf("deactivate exam: %w", err)
	}
	if current != nil {
		closed := *current
		closed.Status = model.ExamStatusInactive
		s.catalog.SetActiveExam(&closed)
	}

	s.log.Info().Msg("Exam deactivated")
	return nil
}

// RegenerateToken replaces the token of the active exam. Students already
// admitted keep their session; new students need the new token.
func (s *TokenService) RegenerateToken(ctx context.Context) (*model.ActiveExam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, exam.ErrNoActiveExam
	}

	token, err := GenerateExamToken(s.rand)
	if err != nil {
		return nil, err
	}
	for token == current.Token {
		if token, err = GenerateExamToken(s.rand); err != nil {
			return nil, err
		}
	}

	next := *current
	next.Token = token
	next.TokenGeneratedAt = s.now()
	if err := s.store.ActivateExam(ctx, next); err != nil {
		return nil, fmt.Errorf("store regenerated token: %w", err)
	}
	s.catalog.SetActiveExam(&next)

	s.log.Info().Msg("Exam token regenerated")
	return &next, nil
}
