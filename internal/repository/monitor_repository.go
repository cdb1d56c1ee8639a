package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

// MonitorRepository provides data access for the live exam monitor.
// Redis holds the latest status per student; PostgreSQL keeps the full
// status log written by the status worker.
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// PutStatus records the latest status of a student and notifies monitor subscribers.
func (r *MonitorRepository) PutStatus(ctx context.Context, st model.StudentStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, config.CacheKey.ExamStatusesKey(st.Token), st.NIS, data)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(st.Token), data)
	_, err = pipe.Exec(ctx)
	return err
}

// GetStatuses returns the latest status of every student seen under token.
// When the live hash is gone (Redis flushed) it rebuilds it from the log.
func (r *MonitorRepository) GetStatuses(ctx context.Context, token string) ([]model.StudentStatus, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.ExamStatusesKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("read live statuses: %w", err)
	}
	if len(raw) > 0 {
		statuses := make([]model.StudentStatus, 0, len(raw))
		for _, v := range raw {
			var st model.StudentStatus
			if err := json.Unmarshal([]byte(v), &st); err != nil {
				continue
			}
			statuses = append(statuses, st)
		}
		return statuses, nil
	}

	return r.latestFromLog(ctx, token)
}

func (r *MonitorRepository) latestFromLog(ctx context.Context, token string) ([]model.StudentStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (nis) token, nis, name, status, recorded_at
		 FROM student_status_log
		 WHERE token = $1
		 ORDER BY nis, recorded_at DESC`,
		token,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []model.StudentStatus
	for rows.Next() {
		var st model.StudentStatus
		if err := rows.Scan(&st.Token, &st.NIS, &st.Name, &st.Status, &st.Timestamp); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// Subscribe returns a Redis subscription to live status changes for token.
func (r *MonitorRepository) Subscribe(ctx context.Context, token string) *redis.PubSub {
	return r.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(token))
}
