package exam

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/stemsi/cbt-backend/internal/model"
)

func TestParseKey(t *testing.T) {
	opts := []string{"A", "B", "C", "D"}

	tests := []struct {
		name    string
		q       model.Question
		want    AnswerKey
		wantErr bool
	}{
		{
			name: "single",
			q:    model.Question{Type: model.QuestionTypeSingle, Options: opts, Correct: json.RawMessage(`2`)},
			want: SingleKey{Index: 2},
		},
		{
			name: "missing type defaults to single",
			q:    model.Question{Options: opts, Correct: json.RawMessage(`0`)},
			want: SingleKey{Index: 0},
		},
		{
			name:    "single out of range",
			q:       model.Question{Type: model.QuestionTypeSingle, Options: opts, Correct: json.RawMessage(`4`)},
			wantErr: true,
		},
		{
			name:    "single fractional",
			q:       model.Question{Type: model.QuestionTypeSingle, Options: opts, Correct: json.RawMessage(`1.5`)},
			wantErr: true,
		},
		{
			name: "multi is sorted and deduplicated",
			q:    model.Question{Type: model.QuestionTypeMulti, Options: opts, Correct: json.RawMessage(`[3,0,3]`)},
			want: MultiKey{Indices: []int{0, 3}},
		},
		{
			name:    "multi empty",
			q:       model.Question{Type: model.QuestionTypeMulti, Options: opts, Correct: json.RawMessage(`[]`)},
			wantErr: true,
		},
		{
			name: "matrix",
			q:    model.Question{Type: model.QuestionTypeComplex, Options: []string{"s1", "s2"}, Correct: json.RawMessage(`[true,false]`)},
			want: MatrixKey{Values: []bool{true, false}},
		},
		{
			name:    "matrix length mismatch",
			q:       model.Question{Type: model.QuestionTypeComplex, Options: []string{"s1", "s2"}, Correct: json.RawMessage(`[true]`)},
			wantErr: true,
		},
		{
			name:    "unknown type",
			q:       model.Question{Type: "essay", Options: opts, Correct: json.RawMessage(`0`)},
			wantErr: true,
		},
		{
			name:    "null key",
			q:       model.Question{Type: model.QuestionTypeSingle, Options: opts, Correct: json.RawMessage(`null`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.q)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedQuestion) {
					t.Fatalf("expected ErrMalformedQuestion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestValidateQuestion(t *testing.T) {
	valid := model.Question{
		ID:      "q1",
		Type:    model.QuestionTypeSingle,
		Text:    "Ibu kota Indonesia adalah ....",
		Options: []string{"Jakarta", "Bandung"},
		Correct: json.RawMessage(`0`),
	}
	if err := ValidateQuestion(valid); err != nil {
		t.Fatalf("valid question rejected: %v", err)
	}

	blank := valid
	blank.Text = "   "
	if err := ValidateQuestion(blank); !errors.Is(err, ErrMalformedQuestion) {
		t.Errorf("blank text: expected ErrMalformedQuestion, got %v", err)
	}

	emptyOption := valid
	emptyOption.Options = []string{"Jakarta", ""}
	if err := ValidateQuestion(emptyOption); !errors.Is(err, ErrMalformedQuestion) {
		t.Errorf("empty option: expected ErrMalformedQuestion, got %v", err)
	}
}
