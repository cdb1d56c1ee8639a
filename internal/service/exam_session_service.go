package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/exam"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/store"
)

// ErrNoSession is returned when a student has no live exam session.
var ErrNoSession = errors.New("no exam session for student")

// SessionResetter ends a student's login session.
type SessionResetter interface {
	ResetStudentSession(ctx context.Context, studentID string) error
}

// ExamSessionOptions tunes the sessions created by ExamSessionService.
type ExamSessionOptions struct {
	Duration      time.Duration
	QuestionLimit int
	ReportTimeout time.Duration
	Clock         exam.Clock
	Shuffler      exam.Shuffler
}

// OptionsFromConfig maps the environment config onto session options.
func OptionsFromConfig(cfg *config.Config) ExamSessionOptions {
	return ExamSessionOptions{
		Duration:      cfg.ExamDuration,
		QuestionLimit: cfg.ExamQuestionCap,
		ReportTimeout: cfg.ReportTimeout,
	}
}

type liveSession struct {
	session *exam.Session
	proctor *exam.Monitor
}

// ExamSessionService owns one exam session per logged-in student.
type ExamSessionService struct {
	store   store.DataStore
	catalog *CatalogService
	auth    SessionResetter
	draws   exam.DrawRecorder
	opts    ExamSessionOptions
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession
	// stopping tracks sessions evicted from the map whose pending writes
	// are still draining.
	stopping sync.WaitGroup
}

// NewExamSessionService creates a new ExamSessionService. Draws are
// archived when the store supports it.
func NewExamSessionService(
	st store.DataStore,
	catalog *CatalogService,
	auth SessionResetter,
	opts ExamSessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	s := &ExamSessionService{
		store:    st,
		catalog:  catalog,
		auth:     auth,
		opts:     opts,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		sessions: make(map[string]*liveSession),
	}
	if rec, ok := st.(store.DrawRecorder); ok {
		s.draws = rec
	}
	return s
}

// resultSink forwards results to the store and keeps the catalog's
// result list current for the admin view.
type resultSink struct {
	store   store.DataStore
	catalog *CatalogService
}

func (r resultSink) SubmitResult(ctx context.Context, res model.ExamResult) error {
	r.catalog.AddResult(res)
	return r.store.SubmitResult(ctx, res)
}

// Open returns the student's session, creating it in TOKEN_ENTRY.
func (s *ExamSessionService) Open(student model.Student) *exam.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if live, ok := s.sessions[student.ID]; ok {
		return live.session
	}

	cfg := exam.Config{
		Student:       student,
		Exam:          s.catalog.ActiveExam(),
		Current:       s.catalog.ActiveExam,
		Fetcher:       s.store,
		Bank:          s.catalog,
		Reporter:      s.store,
		Results:       resultSink{store: s.store, catalog: s.catalog},
		Shuffler:      s.opts.Shuffler,
		Clock:         s.opts.Clock,
		Duration:      s.opts.Duration,
		QuestionLimit: s.opts.QuestionLimit,
		ReportTimeout: s.opts.ReportTimeout,
		Logger:        s.log,
	}
	if s.draws != nil {
		cfg.Draws = s.draws
	}

	sess := exam.NewSession(cfg)
	studentID := student.ID
	live := &liveSession{session: sess}
	live.proctor = exam.NewMonitor(sess, func(sig exam.Signal) {
		// The callback runs on a proctor subscription, which Close waits on.
		go s.forfeit(studentID, sess, sig)
	})
	s.sessions[student.ID] = live

	s.log.Debug().Str("student_id", student.ID).Msg("Exam session opened")
	return sess
}

// Get returns the live session of a student.
func (s *ExamSessionService) Get(studentID string) (*exam.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.sessions[studentID]
	if !ok {
		return nil, ErrNoSession
	}
	return live.session, nil
}

// EnterToken opens the student's session if needed and submits the token.
func (s *ExamSessionService) EnterToken(ctx context.Context, student model.Student, token string) (exam.View, error) {
	sess := s.Open(student)
	if err := sess.EnterToken(ctx, token); err != nil {
		return exam.View{}, err
	}
	return sess.Snapshot()
}

// Confirm confirms identity and starts the exam.
func (s *ExamSessionService) Confirm(ctx context.Context, studentID string) (exam.View, error) {
	sess, err := s.Get(studentID)
	if err != nil {
		return exam.View{}, err
	}
	if err := sess.Start(ctx); err != nil {
		return exam.View{}, err
	}
	return sess.Snapshot()
}

// Back returns from identity confirmation to token entry.
func (s *ExamSessionService) Back(studentID string) (exam.View, error) {
	sess, err := s.Get(studentID)
	if err != nil {
		return exam.View{}, err
	}
	if err := sess.BackToToken(); err != nil {
		return exam.View{}, err
	}
	return sess.Snapshot()
}

// View returns the current session state, opening a fresh session when
// the student has none.
func (s *ExamSessionService) View(student model.Student) (exam.View, error) {
	return s.Open(student).Snapshot()
}

// Answer records an answer given in displayed option positions.
func (s *ExamSessionService) Answer(studentID string, position int, value json.RawMessage) error {
	sess, err := s.Get(studentID)
	if err != nil {
		return err
	}
	return sess.RecordAnswer(position, value)
}

// Proctor feeds focus signals from one client connection into the
// student's session. The returned func detaches the feed.
func (s *ExamSessionService) Proctor(ctx context.Context, studentID string, signals <-chan exam.Signal) (context.CancelFunc, error) {
	s.mu.Lock()
	live, ok := s.sessions[studentID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNoSession
	}
	return live.proctor.Subscribe(ctx, signals), nil
}

// forfeit evicts a session that ended in a violation and logs the student
// out. The login is reset before the session drains its pending reports,
// so the student can log in again at once. sess guards against evicting a
// newer session.
func (s *ExamSessionService) forfeit(studentID string, sess *exam.Session, sig exam.Signal) {
	s.log.Warn().
		Str("student_id", studentID).
		Str("signal", string(sig)).
		Msg("Exam forfeited, resetting student login")

	s.mu.Lock()
	live, ok := s.sessions[studentID]
	if ok && live.session == sess {
		delete(s.sessions, studentID)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if s.auth != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.resetTimeout())
		if err := s.auth.ResetStudentSession(ctx, studentID); err != nil {
			s.log.Error().Err(err).Str("student_id", studentID).Msg("Failed to reset student login after violation")
		}
		cancel()
	}

	if ok {
		s.drain(live)
	}
}

// drain stops an evicted session in the background. Shutdown waits for it.
func (s *ExamSessionService) drain(live *liveSession) {
	s.stopping.Add(1)
	go func() {
		defer s.stopping.Done()
		live.proctor.Stop()
		live.session.Stop()
	}()
}

func (s *ExamSessionService) resetTimeout() time.Duration {
	if s.opts.ReportTimeout > 0 {
		return s.opts.ReportTimeout
	}
	return 5 * time.Second
}

// Close drops the student's session, e.g. on logout. An attempt still in
// progress is abandoned without a result. It returns once the session is
// unregistered; pending reports drain in the background.
func (s *ExamSessionService) Close(studentID string) {
	s.mu.Lock()
	live, ok := s.sessions[studentID]
	delete(s.sessions, studentID)
	s.mu.Unlock()

	if !ok {
		return
	}
	s.drain(live)
	s.log.Debug().Str("student_id", studentID).Msg("Exam session closed")
}

// Active returns the number of live sessions.
func (s *ExamSessionService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops every session and waits for their pending writes.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*liveSession)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, live := range all {
		wg.Add(1)
		go func(l *liveSession) {
			defer wg.Done()
			l.proctor.Stop()
			l.session.Stop()
		}(live)
	}
	wg.Wait()
	s.stopping.Wait()
	s.log.Info().Int("sessions", len(all)).Msg("Exam sessions stopped")
}
