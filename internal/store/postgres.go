package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
)

// activeExamTTL bounds how stale the cached active exam can get if a
// write ever bypasses this store.
const activeExamTTL = 10 * time.Minute

// PostgresStore keeps the source of truth in PostgreSQL and the hot path
// (active exam, live statuses, write queues) in Redis.
type PostgresStore struct {
	rdb       *redis.Client
	settings  *repository.SettingRepository
	classes   *repository.ClassRepository
	students  *repository.StudentRepository
	subjects  *repository.SubjectRepository
	questions *repository.QuestionRepository
	exams     *repository.ExamRepository
	results   *repository.ResultRepository
	monitor   *repository.MonitorRepository
	log       zerolog.Logger
}

// NewPostgresStore builds the store and its repositories.
func NewPostgresStore(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		rdb:       rdb,
		settings:  repository.NewSettingRepository(pool),
		classes:   repository.NewClassRepository(pool),
		students:  repository.NewStudentRepository(pool),
		subjects:  repository.NewSubjectRepository(pool),
		questions: repository.NewQuestionRepository(pool),
		exams:     repository.NewExamRepository(pool),
		results:   repository.NewResultRepository(pool),
		monitor:   repository.NewMonitorRepository(pool, rdb),
		log:       log.With().Str("component", "postgres_store").Logger(),
	}
}

// FetchAllData loads the full snapshot.
func (s *PostgresStore) FetchAllData(ctx context.Context) (*model.Snapshot, error) {
	school, err := s.settings.GetSchoolData(ctx)
	if err != nil {
		return nil, fmt.Errorf("load school data: %w", err)
	}
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	questions, err := s.questions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	results, err := s.results.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	exam, err := s.FetchExamStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &model.Snapshot{
		SchoolData: school,
		Classes:    classes,
		Students:   students,
		Subjects:   subjects,
		Questions:  questions,
		Results:    results,
		ActiveExam: exam,
	}, nil
}

// FetchExamStatus reads the active exam through the Redis cache.
func (s *PostgresStore) FetchExamStatus(ctx context.Context) (*model.ActiveExam, error) {
	key := config.CacheKey.ActiveExamKey()

	cached, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var exam model.ActiveExam
		if jsonErr := json.Unmarshal(cached, &exam); jsonErr == nil {
			return &exam, nil
		}
		s.log.Warn().Msg("Discarding undecodable active exam cache entry")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Msg("Active exam cache read failed, falling back to PostgreSQL")
	}

	exam, err := s.exams.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active exam: %w", err)
	}
	if exam != nil {
		s.cacheExam(ctx, *exam)
	}
	return exam, nil
}

func (s *PostgresStore) cacheExam(ctx context.Context, exam model.ActiveExam) {
	data, _ := json.Marshal(exam)
	if err := s.rdb.Set(ctx, config.CacheKey.ActiveExamKey(), data, activeExamTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache active exam")
	}
}

// ActivateExam stores exam as the active exam. Regenerating the token goes
// through here too.
func (s *PostgresStore) ActivateExam(ctx context.Context, exam model.ActiveExam) error {
	if err := s.exams.Save(ctx, exam); err != nil {
		return fmt.Errorf("save active exam: %w", err)
	}
	s.cacheExam(ctx, exam)
	return nil
}

// DeactivateExam closes the active exam.
func (s *PostgresStore) DeactivateExam(ctx context.Context) error {
	if err := s.exams.Deactivate(ctx); err != nil {
		return fmt.Errorf("deactivate exam: %w", err)
	}
	if err := s.rdb.Del(ctx, config.CacheKey.ActiveExamKey()).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to evict active exam cache")
	}
	return nil
}

// FetchSessionStatuses returns the latest status of each student under token.
func (s *PostgresStore) FetchSessionStatuses(ctx context.Context, token string) ([]model.StudentStatus, error) {
	return s.monitor.GetStatuses(ctx, token)
}

// ReportStudentStatus updates the live view and queues the status for the log.
func (s *PostgresStore) ReportStudentStatus(ctx context.Context, st model.StudentStatus) error {
	if err := s.monitor.PutStatus(ctx, st); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return s.enqueue(ctx, config.WorkerKey.PersistStatusQueue, st)
}

// SubmitResult queues a result for the result worker.
func (s *PostgresStore) SubmitResult(ctx context.Context, r model.ExamResult) error {
	return s.enqueue(ctx, config.WorkerKey.PersistResultQueue, r)
}

// RecordDraw queues a draw record for the draw worker.
func (s *PostgresStore) RecordDraw(ctx context.Context, d model.ExamDraw) error {
	return s.enqueue(ctx, config.WorkerKey.PersistDrawQueue, d)
}

func (s *PostgresStore) enqueue(ctx context.Context, queue string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// SaveQuestion upserts a question, assigning an ID to new ones.
func (s *PostgresStore) SaveQuestion(ctx context.Context, q model.Question) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	} else if _, err := uuid.Parse(q.ID); err != nil {
		return fmt.Errorf("question id %q: %w", q.ID, ErrNotFound)
	}
	return s.questions.Upsert(ctx, &q)
}

// DeleteQuestion removes a question.
func (s *PostgresStore) DeleteQuestion(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	err := s.questions.Delete(ctx, id)
	if errors.Is(err, repository.ErrQuestionNotFound) {
		return ErrNotFound
	}
	return err
}

// ListResults returns stored results, optionally for one token.
func (s *PostgresStore) ListResults(ctx context.Context, token string) ([]model.ExamResult, error) {
	return s.results.List(ctx, token)
}

// WatchStatuses signals on every status published for token.
func (s *PostgresStore) WatchStatuses(ctx context.Context, token string) <-chan struct{} {
	out := make(chan struct{}, 1)
	pubsub := s.monitor.Subscribe(ctx, token)

	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
