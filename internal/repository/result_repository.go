package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// ResultRepository reads persisted exam results. Writes go through the
// result worker.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// List returns results, newest first, optionally narrowed to one token.
func (r *ResultRepository) List(ctx context.Context, token string) ([]model.ExamResult, error) {
	query := `SELECT id::text, student_id::text, student_name, student_class, subject_id::text, subject,
	                 token, score, score_rounded, correct_count, total_questions, end_reason,
	                 submitted_at, answers, question_ids
	          FROM exam_results`
	var args []interface{}
	if token != "" {
		query += ` WHERE token = $1`
		args = append(args, token)
	}
	query += ` ORDER BY submitted_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		var (
			res     model.ExamResult
			answers []byte
			ids     []byte
		)
		if err := rows.Scan(&res.ID, &res.StudentID, &res.StudentName, &res.StudentClass, &res.SubjectID,
			&res.Subject, &res.Token, &res.Score, &res.ScoreRounded, &res.CorrectCount, &res.TotalQuestions,
			&res.EndReason, &res.Date, &answers, &ids); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of result %s: %w", res.ID, err)
		}
		if err := json.Unmarshal(ids, &res.QuestionIDs); err != nil {
			return nil, fmt.Errorf("decode question ids of result %s: %w", res.ID, err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
