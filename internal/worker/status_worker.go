package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// StatusWorker appends student status reports to student_status_log.
type StatusWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewStatusWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *StatusWorker {
	return &StatusWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "status_worker").Logger(),
	}
}

func (w *StatusWorker) Start(ctx context.Context) {
	w.log.Info().Msg("StatusWorker started")

	buffer := make([]*model.StudentStatus, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistStatusQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var st model.StudentStatus
		if err := json.Unmarshal([]byte(result[1]), &st); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed status")
			continue
		}
		if st.Token == "" || st.NIS == "" {
			w.log.Error().Str("data", result[1]).Msg("Discarding status without token or nis")
			continue
		}
		buffer = append(buffer, &st)
	}
}

// flushSafe attempts a COPY, then row-by-row inserts, then requeue.
func (w *StatusWorker) flushSafe(ctx context.Context, batch []*model.StudentStatus) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *StatusWorker) bulkInsert(ctx context.Context, batch []*model.StudentStatus) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, st := range batch {
		rows = append(rows, []interface{}{st.Token, st.NIS, st.Name, string(st.Status), recordedAt(st)})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"student_status_log"},
		[]string{"token", "nis", "name", "status", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *StatusWorker) fallbackInsert(ctx context.Context, batch []*model.StudentStatus) {
	requeueList := make([]*model.StudentStatus, 0)

	for _, st := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO student_status_log (token, nis, name, status, recorded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			st.Token, st.NIS, st.Name, string(st.Status), recordedAt(st),
		)
		if err != nil {
			w.log.Error().Err(err).Str("nis", st.NIS).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, st)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *StatusWorker) requeue(ctx context.Context, items []*model.StudentStatus) {
	pipe := w.rdb.Pipeline()
	for _, st := range items {
		data, _ := json.Marshal(st)
		pipe.RPush(ctx, config.WorkerKey.PersistStatusQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue statuses to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed statuses back to Redis")
	// Back off so a database outage does not turn into a hot loop.
	time.Sleep(2 * time.Second)
}

func (w *StatusWorker) shutdown(buffer []*model.StudentStatus) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

func recordedAt(st *model.StudentStatus) time.Time {
	if st.Timestamp.IsZero() {
		return time.Now()
	}
	return st.Timestamp
}
