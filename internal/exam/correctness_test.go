package exam

import (
	"encoding/json"
	"testing"

	"github.com/stemsi/cbt-backend/internal/model"
)

func TestIsAnswerCorrect(t *testing.T) {
	single := model.Question{ID: "s", Type: model.QuestionTypeSingle, Options: []string{"A", "B", "C"}, Correct: json.RawMessage(`1`)}
	multi := model.Question{ID: "m", Type: model.QuestionTypeMulti, Options: []string{"A", "B", "C", "D"}, Correct: json.RawMessage(`[0,2]`)}
	matrix := model.Question{ID: "x", Type: model.QuestionTypeComplex, Options: []string{"p", "q", "r"}, Correct: json.RawMessage(`[true,false,true]`)}
	broken := model.Question{ID: "b", Type: model.QuestionTypeMulti, Options: []string{"A"}, Correct: json.RawMessage(`"zero"`)}

	tests := []struct {
		name   string
		q      model.Question
		answer string
		want   bool
	}{
		{"single match", single, `1`, true},
		{"single float form", single, `1.0`, true},
		{"single wrong", single, `2`, false},
		{"single string is not a number", single, `"1"`, false},
		{"single missing", single, ``, false},
		{"single null", single, `null`, false},
		{"single given as array", single, `[1]`, false},

		{"multi exact", multi, `[0,2]`, true},
		{"multi order independent", multi, `[2,0]`, true},
		{"multi duplicates collapse", multi, `[2,0,2]`, true},
		{"multi partial gets nothing", multi, `[0]`, false},
		{"multi superset", multi, `[0,1,2]`, false},
		{"multi empty", multi, `[]`, false},
		{"multi scalar", multi, `0`, false},

		{"matrix exact", matrix, `[true,false,true]`, true},
		{"matrix one wrong", matrix, `[true,true,true]`, false},
		{"matrix unanswered position", matrix, `[true,null,true]`, false},
		{"matrix short", matrix, `[true,false]`, false},
		{"matrix long", matrix, `[true,false,true,false]`, false},

		{"malformed question never correct", broken, `0`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.answer != "" {
				raw = json.RawMessage(tt.answer)
			}
			if got := IsAnswerCorrect(tt.q, raw); got != tt.want {
				t.Errorf("IsAnswerCorrect(%s, %s) = %v, want %v", tt.q.ID, tt.answer, got, tt.want)
			}
		})
	}
}
