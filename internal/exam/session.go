package exam

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
)

// State is the stage of one student's exam attempt.
type State string

const (
	StateTokenEntry      State = "TOKEN_ENTRY"
	StateIdentityConfirm State = "IDENTITY_CONFIRM"
	StateInProgress      State = "IN_PROGRESS"
	StateSubmitted       State = "SUBMITTED"
)

// DefaultDuration is the countdown used when no duration is configured.
const DefaultDuration = 120 * time.Minute

// Session errors.
var (
	ErrNoActiveExam    = errors.New("no active exam")
	ErrTokenMismatch   = errors.New("exam token mismatch")
	ErrWrongState      = errors.New("operation not allowed in the current exam state")
	ErrSessionClosed   = errors.New("exam already submitted")
	ErrInvalidPosition = errors.New("question position out of range")
	ErrNoQuestions     = errors.New("no questions for the active exam")
	ErrSessionStopped  = errors.New("exam session stopped")
)

// ExamStatusFetcher reads the current active exam from the store.
type ExamStatusFetcher interface {
	FetchExamStatus(ctx context.Context) (*model.ActiveExam, error)
}

// QuestionBank supplies the full question bank to draw from.
type QuestionBank interface {
	Questions(ctx context.Context) ([]model.Question, error)
}

// StatusReporter publishes student progress for the admin monitor.
type StatusReporter interface {
	ReportStudentStatus(ctx context.Context, st model.StudentStatus) error
}

// ResultSubmitter persists a sealed result.
type ResultSubmitter interface {
	SubmitResult(ctx context.Context, r model.ExamResult) error
}

// DrawRecorder optionally archives the per-student question order.
type DrawRecorder interface {
	RecordDraw(ctx context.Context, d model.ExamDraw) error
}

// Ticker is the subset of *time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts time for the countdown.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

type realTicker struct{ t *time.Ticker }

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }
func (r realTicker) C() <-chan time.Time           { return r.t.C }
func (r realTicker) Stop()                         { r.t.Stop() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }

// EventType names a push notification from a session.
type EventType string

const (
	EventTick          EventType = "tick"
	EventSubmitPending EventType = "submit_pending"
	EventSubmitResumed EventType = "submit_cancelled"
	EventFinished      EventType = "finished"
)

// Event is pushed to subscribers. Result is set only on a graded finish.
type Event struct {
	Type      EventType
	Remaining int
	Reason    model.EndReason
	Result    *model.ExamResult
}

// Config wires a session to its collaborators.
type Config struct {
	Student       model.Student
	Exam          *model.ActiveExam
	// Current returns the latest cached active exam. When set, it replaces
	// Exam at every token check.
	Current       func() *model.ActiveExam
	Fetcher       ExamStatusFetcher
	Bank          QuestionBank
	Reporter      StatusReporter
	Results       ResultSubmitter
	Draws         DrawRecorder
	Shuffler      Shuffler
	Clock         Clock
	Duration      time.Duration
	QuestionLimit int
	ReportTimeout time.Duration
	Logger        zerolog.Logger
}

// Session runs one student's attempt. All state is owned by a single
// goroutine; methods, countdown ticks and proctor signals are messages to it.
type Session struct {
	cfg      Config
	log      zerolog.Logger
	cmds     chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	tasks    sync.WaitGroup

	state      State
	exam       *model.ActiveExam
	questions  []PresentedQuestion
	answers    map[int]json.RawMessage
	entered    map[int]json.RawMessage
	position   int
	remaining  int
	confirming bool
	finishing  bool
	reason     model.EndReason
	result     *model.ExamResult
	startedAt  time.Time
	endedAt    time.Time
	ticker     Ticker
	tickC      <-chan time.Time
	subs       map[int]chan Event
	nextSub    int
}

// NewSession starts the session loop in TOKEN_ENTRY.
func NewSession(cfg Config) *Session {
	if cfg.Shuffler == nil {
		cfg.Shuffler = DefaultShuffler()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.QuestionLimit <= 0 {
		cfg.QuestionLimit = DefaultQuestionLimit
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 5 * time.Second
	}

	s := &Session{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "exam_session").Str("student_id", cfg.Student.ID).Logger(),
		cmds:    make(chan func()),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   StateTokenEntry,
		exam:    cfg.Exam,
		answers: make(map[int]json.RawMessage),
		entered: make(map[int]json.RawMessage),
		subs:    make(map[int]chan Event),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.tickC:
			s.onTick()
		case <-s.stop:
			s.stopTicker()
			s.closeSubscribers()
			return
		}
	}
}

// call executes fn on the session goroutine and returns its error.
func (s *Session) call(fn func() error) error {
	var err error
	ran := make(chan struct{})
	select {
	case s.cmds <- func() { err = fn(); close(ran) }:
	case <-s.done:
		return ErrSessionStopped
	}
	<-ran
	return err
}

// Stop terminates the loop without ending the attempt and waits for
// pending reports and submissions. It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.tasks.Wait()
}

// ─── Admission ──────────────────────────────────────────────────────────

// EnterToken admits the student when input matches the current active exam
// token. On a mismatch the exam status is fetched once more before
// rejecting, in case the token was regenerated elsewhere. A failed fetch
// rejects the token.
func (s *Session) EnterToken(ctx context.Context, input string) error {
	admitted := false
	err := s.call(func() error {
		if s.state != StateTokenEntry {
			return ErrWrongState
		}
		if strings.TrimSpace(input) == "" {
			return ErrTokenMismatch
		}
		if s.cfg.Current != nil {
			s.exam = s.cfg.Current()
		}
		if s.exam.IsActive() && s.exam.MatchesToken(input) {
			s.admit()
			admitted = true
		}
		return nil
	})
	if err != nil || admitted {
		return err
	}

	var fresh *model.ActiveExam
	var fetchErr error
	if s.cfg.Fetcher != nil {
		fresh, fetchErr = s.cfg.Fetcher.FetchExamStatus(ctx)
		if fetchErr != nil {
			s.log.Warn().Err(fetchErr).Msg("Exam status refresh failed during token check")
		}
	}

	return s.call(func() error {
		if s.state != StateTokenEntry {
			if s.state == StateIdentityConfirm {
				return nil
			}
			return ErrWrongState
		}
		if fetchErr != nil {
			return ErrTokenMismatch
		}
		if s.cfg.Fetcher != nil {
			s.exam = fresh
		}
		if !s.exam.IsActive() {
			return ErrNoActiveExam
		}
		if !s.exam.MatchesToken(input) {
			return ErrTokenMismatch
		}
		s.admit()
		return nil
	})
}

func (s *Session) admit() {
	s.state = StateIdentityConfirm
	s.report(model.StatusLogin)
}

// BackToToken leaves identity confirmation without starting.
func (s *Session) BackToToken() error {
	return s.call(func() error {
		if s.state != StateIdentityConfirm {
			return ErrWrongState
		}
		s.state = StateTokenEntry
		return nil
	})
}

// Start confirms identity, draws the question set once and starts the countdown.
func (s *Session) Start(ctx context.Context) error {
	if err := s.call(func() error {
		if s.state != StateIdentityConfirm {
			return ErrWrongState
		}
		return nil
	}); err != nil {
		return err
	}

	var bank []model.Question
	if s.cfg.Bank != nil {
		var err error
		if bank, err = s.cfg.Bank.Questions(ctx); err != nil {
			return err
		}
	}

	return s.call(func() error {
		if s.state != StateIdentityConfirm {
			return ErrWrongState
		}
		drawn := Draw(s.cfg.Shuffler, bank, s.exam.SubjectID, s.exam.SubjectClass, s.cfg.QuestionLimit)
		if len(drawn) == 0 {
			return ErrNoQuestions
		}

		now := s.cfg.Clock.Now()
		s.questions = drawn
		s.startedAt = now
		s.position = 0
		s.remaining = s.countdownSeconds(now)
		s.state = StateInProgress

		s.ticker = s.cfg.Clock.NewTicker(time.Second)
		s.tickC = s.ticker.C()

		s.report(model.StatusWorking)
		s.recordDraw(now)
		return nil
	})
}

// countdownSeconds is the configured duration, shortened when the exam
// window closes sooner.
func (s *Session) countdownSeconds(now time.Time) int {
	d := s.cfg.Duration
	if end := s.exam.EndTime; !end.IsZero() && end.After(now) && end.Sub(now) < d {
		d = end.Sub(now)
	}
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ─── In progress ────────────────────────────────────────────────────────

// RecordAnswer stores the answer for a drawn question. value uses displayed
// option positions and is stored in original indices.
func (s *Session) RecordAnswer(position int, value json.RawMessage) error {
	return s.call(func() error {
		if err := s.requireInProgress(); err != nil {
			return err
		}
		if position < 0 || position >= len(s.questions) {
			return ErrInvalidPosition
		}
		raw := append(json.RawMessage(nil), value...)
		s.entered[position] = raw
		s.answers[position] = s.questions[position].ToOriginal(raw)
		return nil
	})
}

// Navigate moves the current question pointer.
func (s *Session) Navigate(position int) error {
	return s.call(func() error {
		if err := s.requireInProgress(); err != nil {
			return err
		}
		if position < 0 || position >= len(s.questions) {
			return ErrInvalidPosition
		}
		s.position = position
		return nil
	})
}

// BeginSubmit opens the submit confirmation. Proctoring is suspended until
// the student confirms or cancels.
func (s *Session) BeginSubmit() error {
	return s.call(func() error {
		if err := s.requireInProgress(); err != nil {
			return err
		}
		s.confirming = true
		s.broadcast(Event{Type: EventSubmitPending, Remaining: s.remaining})
		return nil
	})
}

// CancelSubmit closes the confirmation and resumes proctoring.
func (s *Session) CancelSubmit() error {
	return s.call(func() error {
		if err := s.requireInProgress(); err != nil {
			return err
		}
		s.confirming = false
		s.broadcast(Event{Type: EventSubmitResumed, Remaining: s.remaining})
		return nil
	})
}

// Submit finishes the attempt and grades it.
func (s *Session) Submit() error {
	return s.call(func() error {
		if err := s.requireInProgress(); err != nil {
			return err
		}
		s.finish(model.EndReasonCompleted)
		return nil
	})
}

// Violate forfeits the attempt when proctoring is armed. It reports
// whether the signal ended the session.
func (s *Session) Violate(sig Signal) bool {
	ended := false
	_ = s.call(func() error {
		if s.state != StateInProgress || s.finishing || s.confirming {
			return nil
		}
		s.log.Warn().Str("signal", string(sig)).Msg("Proctoring violation")
		s.finish(model.EndReasonViolation)
		ended = true
		return nil
	})
	return ended
}

func (s *Session) requireInProgress() error {
	switch {
	case s.state == StateSubmitted || s.finishing:
		return ErrSessionClosed
	case s.state != StateInProgress:
		return ErrWrongState
	}
	return nil
}

func (s *Session) onTick() {
	if s.state != StateInProgress || s.finishing {
		return
	}
	s.remaining--
	if s.remaining <= 0 {
		s.remaining = 0
		s.finish(model.EndReasonTimeout)
		return
	}
	s.broadcast(Event{Type: EventTick, Remaining: s.remaining})
}

// finish is the single terminal transition. Later calls are no-ops.
func (s *Session) finish(reason model.EndReason) {
	if s.finishing {
		return
	}
	s.finishing = true
	s.confirming = false
	s.stopTicker()

	now := s.cfg.Clock.Now()
	s.state = StateSubmitted
	s.reason = reason
	s.endedAt = now

	if reason == model.EndReasonViolation {
		s.report(model.StatusViolation)
		s.broadcast(Event{Type: EventFinished, Reason: reason})
		s.closeSubscribers()
		return
	}

	result := NewResult(ResultInput{
		ID:        uuid.New().String(),
		Student:   s.cfg.Student,
		Exam:      *s.exam,
		Questions: s.questions,
		Answers:   s.answers,
		Reason:    reason,
		At:        now,
	})
	s.result = &result

	s.submit(result)
	s.report(model.StatusFinished)
	s.broadcast(Event{Type: EventFinished, Reason: reason, Result: &result})
	s.closeSubscribers()
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.tickC = nil
}

// ─── Fire-and-forget side effects ───────────────────────────────────────

func (s *Session) report(status model.StudentStatusValue) {
	if s.cfg.Reporter == nil || s.exam == nil {
		return
	}
	st := model.StudentStatus{
		Token:     s.exam.Token,
		NIS:       s.cfg.Student.NIS,
		Name:      s.cfg.Student.Name,
		Status:    status,
		Timestamp: s.cfg.Clock.Now(),
	}
	s.detach("report_status", func(ctx context.Context) error {
		return s.cfg.Reporter.ReportStudentStatus(ctx, st)
	})
}

func (s *Session) submit(r model.ExamResult) {
	if s.cfg.Results == nil {
		return
	}
	s.detach("submit_result", func(ctx context.Context) error {
		return s.cfg.Results.SubmitResult(ctx, r)
	})
}

func (s *Session) recordDraw(at time.Time) {
	if s.cfg.Draws == nil {
		return
	}
	d := model.ExamDraw{
		Token:       s.exam.Token,
		StudentID:   s.cfg.Student.ID,
		SubjectID:   s.exam.SubjectID,
		QuestionIDs: make([]string, len(s.questions)),
		OptionOrder: make([][]int, len(s.questions)),
		DrawnAt:     at,
	}
	for i, pq := range s.questions {
		d.QuestionIDs[i] = pq.Question.ID
		d.OptionOrder[i] = pq.OptionOrder()
	}
	s.detach("record_draw", func(ctx context.Context) error {
		return s.cfg.Draws.RecordDraw(ctx, d)
	})
}

func (s *Session) detach(op string, fn func(ctx context.Context) error) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReportTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Error().Err(err).Str("op", op).Msg("Background store write failed")
		}
	}()
}

// ─── Subscriptions ──────────────────────────────────────────────────────

// Subscribe returns a channel of session events and a cancel func. The
// channel is closed when the attempt ends or the session stops. Slow
// readers miss tick events rather than blocking the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	id := -1
	err := s.call(func() error {
		if s.state == StateSubmitted {
			close(ch)
			return nil
		}
		id = s.nextSub
		s.nextSub++
		s.subs[id] = ch
		return nil
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = s.call(func() error {
				if c, ok := s.subs[id]; ok {
					delete(s.subs, id)
					close(c)
				}
				return nil
			})
		})
	}
	return ch, cancel
}

func (s *Session) broadcast(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) closeSubscribers() {
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// ─── Read model ─────────────────────────────────────────────────────────

// ExamInfo is the part of the active exam shown to students.
type ExamInfo struct {
	SubjectID    string    `json:"subjectId"`
	SubjectName  string    `json:"subjectName"`
	SubjectClass string    `json:"subjectClass"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
}

// View is a consistent copy of the session state.
type View struct {
	State      State                   `json:"state"`
	Student    model.Student           `json:"student"`
	Exam       *ExamInfo               `json:"exam,omitempty"`
	Position   int                     `json:"position"`
	Remaining  int                     `json:"remainingSeconds"`
	Total      int                     `json:"totalQuestions"`
	Answered   []int                   `json:"answered"`
	Answers    map[int]json.RawMessage `json:"answers,omitempty"`
	Confirming bool                    `json:"confirming"`
	Questions  []StudentQuestion       `json:"questions,omitempty"`
	EndReason  model.EndReason         `json:"endReason,omitempty"`
	Result     *model.ExamResult       `json:"result,omitempty"`
	StartedAt  *time.Time              `json:"startedAt,omitempty"`
	EndedAt    *time.Time              `json:"endedAt,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() (View, error) {
	var v View
	err := s.call(func() error {
		v = View{
			State:      s.state,
			Student:    s.cfg.Student,
			Position:   s.position,
			Remaining:  s.remaining,
			Total:      len(s.questions),
			Confirming: s.confirming,
			EndReason:  s.reason,
			Result:     s.result,
		}
		if s.exam != nil {
			v.Exam = &ExamInfo{
				SubjectID:    s.exam.SubjectID,
				SubjectName:  s.exam.SubjectName,
				SubjectClass: s.exam.SubjectClass,
				StartTime:    s.exam.StartTime,
				EndTime:      s.exam.EndTime,
			}
		}
		if !s.startedAt.IsZero() {
			t := s.startedAt
			v.StartedAt = &t
		}
		if !s.endedAt.IsZero() {
			t := s.endedAt
			v.EndedAt = &t
		}

		v.Answered = make([]int, 0, len(s.entered))
		v.Answers = make(map[int]json.RawMessage, len(s.entered))
		for pos, raw := range s.entered {
			v.Answered = append(v.Answered, pos)
			v.Answers[pos] = append(json.RawMessage(nil), raw...)
		}
		slices.Sort(v.Answered)

		if s.state == StateInProgress {
			v.Questions = make([]StudentQuestion, len(s.questions))
			for i, pq := range s.questions {
				v.Questions[i] = pq.StudentView()
			}
		}
		return nil
	})
	return v, err
}

// State returns the current stage.
func (s *Session) State() State {
	st := State("")
	_ = s.call(func() error {
		st = s.state
		return nil
	})
	return st
}
