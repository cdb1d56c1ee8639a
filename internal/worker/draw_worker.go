package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

// DrawWorker archives the question and option order each student drew.
type DrawWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewDrawWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *DrawWorker {
	return &DrawWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "draw_worker").Logger(),
	}
}

func (w *DrawWorker) Start(ctx context.Context) {
	w.log.Info().Msg("DrawWorker started")

	batch := make([]*model.ExamDraw, 0, BatchSize)
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
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistDrawQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var d model.ExamDraw
			if err := json.Unmarshal([]byte(item[1]), &d); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, &d)
		}
	}
}

func (w *DrawWorker) flushSafe(ctx context.Context, batch []*model.ExamDraw) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk draw upsert failed, using fallback")

		for _, d := range batch {
			if err := w.persistSingle(ctx, d); err != nil {
				w.log.Error().Err(err).Str("student_id", d.StudentID).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(d)
				w.rdb.RPush(ctx, config.WorkerKey.PersistDrawQueue, raw)
			}
		}
	}
}

// dedupeDraws keeps the last draw per (token, student), since one INSERT
// cannot touch the same conflict key twice.
func dedupeDraws(batch []*model.ExamDraw) []*model.ExamDraw {
	type key struct{ token, student string }
	idx := make(map[key]int, len(batch))
	out := make([]*model.ExamDraw, 0, len(batch))
	for _, d := range batch {
		k := key{d.Token, d.StudentID}
		if i, ok := idx[k]; ok {
			out[i] = d
			continue
		}
		idx[k] = len(out)
		out = append(out, d)
	}
	return out
}

func (w *DrawWorker) bulkUpsert(ctx context.Context, batch []*model.ExamDraw) error {
	batch = dedupeDraws(batch)
	n := len(batch)

	tokens := make([]string, 0, n)
	students := make([]string, 0, n)
	subjects := make([]string, 0, n)
	questionIDs := make([]string, 0, n)
	optionOrders := make([]string, 0, n)
	drawnAts := make([]time.Time, 0, n)

	for _, d := range batch {
		qb, _ := json.Marshal(d.QuestionIDs)
		ob, _ := json.Marshal(d.OptionOrder)

		tokens = append(tokens, d.Token)
		students = append(students, d.StudentID)
		subjects = append(subjects, d.SubjectID)
		questionIDs = append(questionIDs, string(qb))
		optionOrders = append(optionOrders, string(ob))
		drawnAts = append(drawnAts, d.DrawnAt)
	}

	query := `
		INSERT INTO exam_draws (token, student_id, subject_id, question_ids, option_order, drawn_at)
		SELECT u.token, u.student_id, u.subject_id, u.qids::jsonb, u.oo::jsonb, u.drawn_at
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::text[],
			$6::timestamptz[]
		) AS u (token, student_id, subject_id, qids, oo, drawn_at)
		ON CONFLICT (token, student_id) DO UPDATE
		SET subject_id = EXCLUDED.subject_id,
		    question_ids = EXCLUDED.question_ids,
		    option_order = EXCLUDED.option_order,
		    drawn_at = EXCLUDED.drawn_at
	`

	_, err := w.pool.Exec(ctx, query, tokens, students, subjects, questionIDs, optionOrders, drawnAts)
	return err
}

func (w *DrawWorker) persistSingle(ctx context.Context, d *model.ExamDraw) error {
	qb, _ := json.Marshal(d.QuestionIDs)
	ob, _ := json.Marshal(d.OptionOrder)

	_, err := w.pool.Exec(ctx,
		`INSERT INTO exam_draws (token, student_id, subject_id, question_ids, option_order, drawn_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6)
		 ON CONFLICT (token, student_id) DO UPDATE
		 SET subject_id = EXCLUDED.subject_id, question_ids = EXCLUDED.question_ids,
		     option_order = EXCLUDED.option_order, drawn_at = EXCLUDED.drawn_at`,
		d.Token, d.StudentID, d.SubjectID, string(qb), string(ob), d.DrawnAt,
	)
	return err
}
