package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/cbt-backend/internal/exam"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/store"
)

// QuestionService handles question bank edits. Reads come from the catalog;
// writes go to the store and then update the catalog.
type QuestionService struct {
	store   store.DataStore
	catalog *CatalogService
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(st store.DataStore, catalog *CatalogService) *QuestionService {
	return &QuestionService{store: st, catalog: catalog}
}

// List returns the bank, optionally restricted to one subject.
func (s *QuestionService) List(ctx context.Context, subjectID string) ([]model.Question, error) {
	all, err := s.catalog.Questions(ctx)
	if err != nil {
		return nil, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return all, nil
	}
	out := make([]model.Question, 0, len(all))
	for _, q := range all {
		if strings.TrimSpace(q.SubjectID) == subjectID {
			out = append(out, q)
		}
	}
	return out, nil
}

// Save validates and upserts a question. New questions get an id.
func (s *QuestionService) Save(ctx context.Context, req model.SaveQuestionRequest) (*model.Question, error) {
	if _, ok := s.catalog.Subject(req.SubjectID); !ok {
		return nil, ErrSubjectNotFound
	}

	q := model.Question{
		ID:        strings.TrimSpace(req.ID),
		Type:      req.Type,
		Text:      req.Text,
		Stimulus:  req.Stimulus,
		Options:   req.Options,
		Correct:   req.Correct,
		SubjectID: strings.TrimSpace(req.SubjectID),
		Class:     req.Class,
		Tags:      model.WithSubjectTag(req.Tags, strings.TrimSpace(req.SubjectID)),
	}
	if q.Type == "" {
		q.Type = model.QuestionTypeSingle
	}
	if err := exam.ValidateQuestion(q); err != nil {
		return nil, err
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}

	if err := s.store.SaveQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}
	s.catalog.PutQuestion(q)
	return &q, nil
}

// Delete removes a question.
func (s *QuestionService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.catalog.RemoveQuestion(id)
	return nil
}

// ResultLister is implemented by stores that can query results directly.
type ResultLister interface {
	ListResults(ctx context.Context, token string) ([]model.ExamResult, error)
}

// ResultService serves graded results to the admin.
type ResultService struct {
	store   store.DataStore
	catalog *CatalogService
}

// NewResultService creates a new ResultService.
func NewResultService(st store.DataStore, catalog *CatalogService) *ResultService {
	return &ResultService{store: st, catalog: catalog}
}

// List returns results, optionally for one exam token. Stores without a
// query path are served from the snapshot.
func (s *ResultService) List(ctx context.Context, token string) ([]model.ExamResult, error) {
	if lister, ok := s.store.(ResultLister); ok {
		results, err := lister.ListResults(ctx, strings.ToUpper(strings.TrimSpace(token)))
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		return results, nil
	}
	results := s.catalog.Results()
	token = strings.TrimSpace(token)
	if token == "" {
		return results, nil
	}
	out := make([]model.ExamResult, 0, len(results))
	for _, r := range results {
		if strings.EqualFold(r.Token, token) {
			out = append(out, r)
		}
	}
	return out, nil
}
