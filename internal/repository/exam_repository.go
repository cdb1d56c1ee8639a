package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// ExamRepository persists the single active exam row.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetActive returns the stored exam, or nil when none was ever activated.
func (r *ExamRepository) GetActive(ctx context.Context) (*model.ActiveExam, error) {
	e := &model.ActiveExam{}
	var genAt *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT subject_id::text, subject_name, subject_class, start_time, end_time,
		        status, token, token_generated_at
		 FROM active_exam WHERE id = 1`,
	).Scan(&e.SubjectID, &e.SubjectName, &e.SubjectClass, &e.StartTime, &e.EndTime,
		&e.Status, &e.Token, &genAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if genAt != nil {
		e.TokenGeneratedAt = *genAt
	}
	return e, nil
}

// Save replaces the active exam row.
func (r *ExamRepository) Save(ctx context.Context, e model.ActiveExam) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO active_exam (id, subject_id, subject_name, subject_class, start_time, end_time,
		                          status, token, token_generated_at, updated_at)
		 VALUES (1, $1::bigint, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET subject_id = EXCLUDED.subject_id, subject_name = EXCLUDED.subject_name,
		     subject_class = EXCLUDED.subject_class, start_time = EXCLUDED.start_time,
		     end_time = EXCLUDED.end_time, status = EXCLUDED.status, token = EXCLUDED.token,
		     token_generated_at = EXCLUDED.token_generated_at, updated_at = NOW()`,
		e.SubjectID, e.SubjectName, e.SubjectClass, e.StartTime, e.EndTime,
		string(e.Status), e.Token, e.TokenGeneratedAt,
	)
	return err
}

// Deactivate flips the stored exam to INACTIVE, keeping its details.
func (r *ExamRepository) Deactivate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE active_exam SET status = $1, updated_at = NOW() WHERE id = 1`,
		string(model.ExamStatusInactive))
	return err
}
