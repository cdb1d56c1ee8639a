package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

// ResultWorker persists graded results queued by the store.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ExamResult, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistResultQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var r model.ExamResult
			if err := json.Unmarshal([]byte(item[1]), &r); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			if _, err := uuid.Parse(r.ID); err != nil {
				w.log.Error().Str("result_id", r.ID).Msg("Dropping result with invalid UUID")
				continue
			}
			batch = append(batch, &r)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ExamResult) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("bulk result insert failed, using fallback")

		for _, r := range batch {
			if err := w.persistSingle(ctx, r); err != nil {
				w.log.Error().Err(err).Str("student_id", r.StudentID).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(r)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("count", len(batch)).Msg("Results persisted")
}

// resultColumns flattens a result into the column values of exam_results.
func resultColumns(r *model.ExamResult) (answers, ids []byte) {
	answers, _ = json.Marshal(r.Answers)
	if r.Answers == nil {
		answers = []byte("{}")
	}
	ids, _ = json.Marshal(r.QuestionIDs)
	if r.QuestionIDs == nil {
		ids = []byte("[]")
	}
	return answers, ids
}

// ----------------------------------------------------------------
// BULK PostgreSQL INSERT using UNNEST
// ----------------------------------------------------------------

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*model.ExamResult) error {
	n := len(batch)
	var (
		ids          = make([]uuid.UUID, 0, n)
		studentIDs   = make([]string, 0, n)
		names        = make([]string, 0, n)
		classes      = make([]string, 0, n)
		subjectIDs   = make([]string, 0, n)
		subjects     = make([]string, 0, n)
		tokens       = make([]string, 0, n)
		scores       = make([]float64, 0, n)
		rounded      = make([]int32, 0, n)
		correct      = make([]int32, 0, n)
		totals       = make([]int32, 0, n)
		reasons      = make([]string, 0, n)
		submittedAts = make([]time.Time, 0, n)
		answerSets   = make([]string, 0, n)
		questionSets = make([]string, 0, n)
	)

	for _, r := range batch {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return err
		}
		answers, qids := resultColumns(r)

		ids = append(ids, id)
		studentIDs = append(studentIDs, r.StudentID)
		names = append(names, r.StudentName)
		classes = append(classes, r.StudentClass)
		subjectIDs = append(subjectIDs, r.SubjectID)
		subjects = append(subjects, r.Subject)
		tokens = append(tokens, r.Token)
		scores = append(scores, r.Score)
		rounded = append(rounded, int32(r.ScoreRounded))
		correct = append(correct, int32(r.CorrectCount))
		totals = append(totals, int32(r.TotalQuestions))
		reasons = append(reasons, string(r.EndReason))
		submittedAts = append(submittedAts, r.Date)
		answerSets = append(answerSets, string(answers))
		questionSets = append(questionSets, string(qids))
	}

	query := `
		INSERT INTO exam_results (
			id, student_id, student_name, student_class, subject_id, subject, token,
			score, score_rounded, correct_count, total_questions, end_reason,
			submitted_at, answers, question_ids
		)
		SELECT u.id, u.student_id, u.student_name, u.student_class, u.subject_id, u.subject, u.token,
		       u.score, u.score_rounded, u.correct_count, u.total_questions, u.end_reason,
		       u.submitted_at, u.answers::jsonb, u.question_ids::jsonb
		FROM UNNEST(
			$1::uuid[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[],
			$8::float8[], $9::int4[], $10::int4[], $11::int4[], $12::text[],
			$13::timestamptz[], $14::text[], $15::text[]
		) AS u (
			id, student_id, student_name, student_class, subject_id, subject, token,
			score, score_rounded, correct_count, total_questions, end_reason,
			submitted_at, answers, question_ids
		)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := w.pool.Exec(ctx, query,
		ids, studentIDs, names, classes, subjectIDs, subjects, tokens,
		scores, rounded, correct, totals, reasons,
		submittedAts, answerSets, questionSets,
	)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single insert
// ----------------------------------------------------------------

func (w *ResultWorker) persistSingle(ctx context.Context, r *model.ExamResult) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return err
	}
	answers, qids := resultColumns(r)

	_, err = w.pool.Exec(ctx,
		`INSERT INTO exam_results (
			id, student_id, student_name, student_class, subject_id, subject, token,
			score, score_rounded, correct_count, total_questions, end_reason,
			submitted_at, answers, question_ids
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		id, r.StudentID, r.StudentName, r.StudentClass, r.SubjectID, r.Subject, r.Token,
		r.Score, r.ScoreRounded, r.CorrectCount, r.TotalQuestions, string(r.EndReason),
		r.Date, string(answers), string(qids),
	)
	return err
}
