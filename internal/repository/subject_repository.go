package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// SubjectRepository handles subject data access.
type SubjectRepository struct {
	pool *pgxpool.Pool
}

// NewSubjectRepository creates a new SubjectRepository.
func NewSubjectRepository(pool *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{pool: pool}
}

// List returns every subject.
func (r *SubjectRepository) List(ctx context.Context) ([]model.Subject, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, name, code, class_name FROM subjects ORDER BY class_name, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		var s model.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Class); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// Upsert inserts a subject or updates it, keyed by code.
func (r *SubjectRepository) Upsert(ctx context.Context, s *model.Subject) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO subjects (name, code, class_name) VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, class_name = EXCLUDED.class_name
		 RETURNING id::text`,
		s.Name, s.Code, s.Class,
	).Scan(&s.ID)
}
