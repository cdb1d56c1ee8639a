package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/stemsi/cbt-backend/internal/exam"
	"github.com/stemsi/cbt-backend/internal/model"
)

func TestQuestionService_Save(t *testing.T) {
	st, cat := newFixture(t, nil)
	svc := NewQuestionService(st, cat)
	ctx := context.Background()

	q, err := svc.Save(ctx, model.SaveQuestionRequest{
		Text:      "Pilih bilangan prima",
		Type:      model.QuestionTypeMulti,
		Options:   []string{"2", "3", "4"},
		Correct:   json.RawMessage(`[0,1]`),
		SubjectID: "1",
		Class:     fixtureClass,
		Tags:      []string{"bilangan"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if q.ID == "" {
		t.Error("new question has no id")
	}
	if !slices.Contains(q.Tags, model.SubjectTagPrefix+"1") {
		t.Errorf("tags = %v, want subject tag", q.Tags)
	}
	if len(st.saved) != 1 {
		t.Errorf("store saw %d saves", len(st.saved))
	}

	listed, _ := svc.List(ctx, "1")
	if len(listed) != 4 {
		t.Errorf("List(1) = %d questions, want 4", len(listed))
	}

	if err := svc.Delete(ctx, q.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	listed, _ = svc.List(ctx, "")
	if len(listed) != 3 {
		t.Errorf("List after delete = %d questions, want 3", len(listed))
	}
}

func TestQuestionService_SaveRejects(t *testing.T) {
	tests := []struct {
		name string
		req  model.SaveQuestionRequest
		want error
	}{
		{
			name: "unknown subject",
			req:  model.SaveQuestionRequest{Text: "x", Options: []string{"a"}, Correct: json.RawMessage(`0`), SubjectID: "9"},
			want: ErrSubjectNotFound,
		},
		{
			name: "key out of range",
			req:  model.SaveQuestionRequest{Text: "x", Options: []string{"a", "b"}, Correct: json.RawMessage(`5`), SubjectID: "1"},
			want: exam.ErrMalformedQuestion,
		},
		{
			name: "matrix length mismatch",
			req: model.SaveQuestionRequest{
				Text: "x", Type: model.QuestionTypeComplex, Options: []string{"a", "b"},
				Correct: json.RawMessage(`[true]`), SubjectID: "1",
			},
			want: exam.ErrMalformedQuestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, cat := newFixture(t, nil)
			_, err := NewQuestionService(st, cat).Save(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(st.saved) != 0 {
				t.Error("rejected question reached the store")
			}
		})
	}
}

func TestResultService_FiltersSnapshotByToken(t *testing.T) {
	st, cat := newFixture(t, nil)
	cat.AddResult(model.ExamResult{ID: "r1", Token: "ABC123"})
	cat.AddResult(model.ExamResult{ID: "r2", Token: "XYZ789"})

	got, err := NewResultService(st, cat).List(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("results = %+v", got)
	}
}
