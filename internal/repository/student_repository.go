package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByNIS retrieves a student by their unique NIS.
func (r *StudentRepository) GetByNIS(ctx context.Context, nis string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, nis, name, class_name, password_hash FROM students WHERE nis = $1`, nis,
	).Scan(&s.ID, &s.NIS, &s.Name, &s.Class, &s.PasswordHash)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List returns every student ordered by class then name.
func (r *StudentRepository) List(ctx context.Context) ([]model.Student, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, nis, name, class_name, password_hash FROM students ORDER BY class_name, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.NIS, &s.Name, &s.Class, &s.PasswordHash); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// Upsert inserts a student or refreshes name, class and password, keyed by NIS.
func (r *StudentRepository) Upsert(ctx context.Context, s *model.Student) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO students (nis, name, class_name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (nis) DO UPDATE
		 SET name = EXCLUDED.name, class_name = EXCLUDED.class_name,
		     password_hash = EXCLUDED.password_hash, updated_at = NOW()
		 RETURNING id::text`,
		s.NIS, s.Name, s.Class, s.PasswordHash,
	).Scan(&s.ID)
}
