package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// ErrQuestionNotFound is returned when a delete targets a missing question.
var ErrQuestionNotFound = errors.New("question not found")

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id::text, type, text, COALESCE(stimulus, ''), options, correct,
	subject_id::text, class_name, tags`

// List returns the whole bank.
func (r *QuestionRepository) List(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions ORDER BY subject_id, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			options []byte
			correct []byte
		)
		if err := rows.Scan(&q.ID, &q.Type, &q.Text, &q.Stimulus, &options, &correct,
			&q.SubjectID, &q.Class, &q.Tags); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
		}
		q.Correct = json.RawMessage(correct)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Upsert inserts or replaces a question by ID.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO questions (id, type, text, stimulus, options, correct, subject_id, class_name, tags)
		 VALUES ($1::uuid, $2, $3, NULLIF($4, ''), $5, $6, $7::bigint, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET type = EXCLUDED.type, text = EXCLUDED.text, stimulus = EXCLUDED.stimulus,
		     options = EXCLUDED.options, correct = EXCLUDED.correct,
		     subject_id = EXCLUDED.subject_id, class_name = EXCLUDED.class_name,
		     tags = EXCLUDED.tags, updated_at = NOW()`,
		q.ID, string(q.Kind()), q.Text, q.Stimulus, options, []byte(q.Correct), q.SubjectID, q.Class, tags,
	)
	return err
}

// Delete removes a question by ID.
func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1::uuid`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuestionNotFound
	}
	return nil
}
