package worker

import (
	"encoding/json"
	"testing"

	"github.com/stemsi/cbt-backend/internal/model"
)

func TestDedupeDraws(t *testing.T) {
	batch := []*model.ExamDraw{
		{Token: "T", StudentID: "1", QuestionIDs: []string{"a"}},
		{Token: "T", StudentID: "2", QuestionIDs: []string{"b"}},
		{Token: "T", StudentID: "1", QuestionIDs: []string{"c"}},
		{Token: "U", StudentID: "1", QuestionIDs: []string{"d"}},
	}

	got := dedupeDraws(batch)
	if len(got) != 3 {
		t.Fatalf("got %d draws, want 3", len(got))
	}
	if got[0].QuestionIDs[0] != "c" {
		t.Errorf("later draw for the same student should win, got %v", got[0].QuestionIDs)
	}
	if got[1].StudentID != "2" || got[2].Token != "U" {
		t.Errorf("order not kept: %+v %+v", got[1], got[2])
	}
}

func TestResultColumns(t *testing.T) {
	answers, ids := resultColumns(&model.ExamResult{})
	if string(answers) != "{}" || string(ids) != "[]" {
		t.Errorf("empty result columns = %s, %s", answers, ids)
	}

	r := &model.ExamResult{
		Answers:     map[int]json.RawMessage{0: json.RawMessage(`2`), 3: json.RawMessage(`[0,1]`)},
		QuestionIDs: []string{"q1", "q2"},
	}
	answers, ids = resultColumns(r)
	var back map[int]json.RawMessage
	if err := json.Unmarshal(answers, &back); err != nil {
		t.Fatalf("answers column is not valid JSON: %v", err)
	}
	if string(back[3]) != "[0,1]" {
		t.Errorf("answers column = %s", answers)
	}
	if string(ids) != `["q1","q2"]` {
		t.Errorf("question ids column = %s", ids)
	}
}
