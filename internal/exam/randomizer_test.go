package exam

import (
	"encoding/json"
	"fmt"
	"slices"
	"testing"

	"github.com/stemsi/cbt-backend/internal/model"
)

func bankFor(subjectID, class string, n int) []model.Question {
	out := make([]model.Question, n)
	for i := range out {
		out[i] = model.Question{
			ID:        fmt.Sprintf("%s-%d", subjectID, i),
			Type:      model.QuestionTypeSingle,
			Text:      fmt.Sprintf("Soal %d", i),
			Options:   []string{"A", "B", "C", "D", "E"},
			Correct:   json.RawMessage(`0`),
			SubjectID: subjectID,
			Class:     class,
		}
	}
	return out
}

func TestShuffleIsPermutation(t *testing.T) {
	tests := []struct {
		name string
		in   []int
	}{
		{"nil", nil},
		{"empty", []int{}},
		{"single", []int{42}},
		{"pair", []int{1, 2}},
		{"eight", []int{1, 2, 3, 4, 5, 6, 7, 8}},
		{"duplicates", []int{3, 3, 1, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := slices.Clone(tt.in)

			out := Shuffle(NewSeededShuffler(7, 11), tt.in)

			if !slices.Equal(tt.in, orig) {
				t.Fatalf("input mutated: %v", tt.in)
			}
			if out == nil || len(out) != len(tt.in) {
				t.Fatalf("output = %v, want %d elements", out, len(tt.in))
			}
			sorted := slices.Clone(out)
			slices.Sort(sorted)
			want := slices.Clone(orig)
			slices.Sort(want)
			if !slices.Equal(sorted, want) {
				t.Fatalf("output %v is not a permutation of %v", out, orig)
			}
		})
	}
}

func TestShuffleIsUniform(t *testing.T) {
	const trials = 6000
	// Six orderings of three elements, 1000 expected each.
	const tolerance = 200

	tests := []struct {
		name string
		src  Shuffler
	}{
		{"seeded", NewSeededShuffler(21, 8)},
		{"default", DefaultShuffler()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := map[string]int{}
			for i := 0; i < trials; i++ {
				counts[fmt.Sprint(Shuffle(tt.src, []int{0, 1, 2}))]++
			}
			if len(counts) != 6 {
				t.Fatalf("saw %d orderings, want 6: %v", len(counts), counts)
			}
			for order, n := range counts {
				if n < trials/6-tolerance || n > trials/6+tolerance {
					t.Errorf("ordering %s drawn %d times, want about %d", order, n, trials/6)
				}
			}
		})
	}
}

func TestSelectExamSetFiltersAndLimits(t *testing.T) {
	all := append(bankFor("1", "XII MIPA 1", 40), bankFor("2", "XII MIPA 1", 5)...)
	all = append(all, bankFor("1", "XI IPS 1", 5)...)

	got := SelectExamSet(NewSeededShuffler(1, 2), all, "1", "XII MIPA 1", 0)
	if len(got) != DefaultQuestionLimit {
		t.Fatalf("expected %d questions, got %d", DefaultQuestionLimit, len(got))
	}
	seen := map[string]bool{}
	for _, q := range got {
		if q.SubjectID != "1" || q.Class != "XII MIPA 1" {
			t.Errorf("question %s does not belong to the exam", q.ID)
		}
		if seen[q.ID] {
			t.Errorf("question %s drawn twice", q.ID)
		}
		seen[q.ID] = true
	}

	small := SelectExamSet(NewSeededShuffler(1, 2), all, "2", "XII MIPA 1", 30)
	if len(small) != 5 {
		t.Errorf("expected every question when fewer than the limit, got %d", len(small))
	}

	none := SelectExamSet(NewSeededShuffler(1, 2), all, "9", "XII MIPA 1", 30)
	if len(none) != 0 {
		t.Errorf("expected empty set, got %d", len(none))
	}
}

func TestSelectExamSetRecoversSubjectFromTag(t *testing.T) {
	q := bankFor("", "X MIPA 1", 1)[0]
	q.Tags = []string{"C3", "__sid:4"}

	got := SelectExamSet(NewSeededShuffler(1, 2), []model.Question{q}, "4", "X MIPA 1", 30)
	if len(got) != 1 || got[0].SubjectID != "4" {
		t.Fatalf("expected recovered subject 4, got %+v", got)
	}
}

func TestShuffleOptionsTracksOriginalIndex(t *testing.T) {
	q := model.Question{
		ID:      "q",
		Type:    model.QuestionTypeMulti,
		Options: []string{"zero", "one", "two", "three", "four"},
		Correct: json.RawMessage(`[1,3]`),
	}

	pq := ShuffleOptions(NewSeededShuffler(3, 5), q)

	if len(pq.Options) != len(q.Options) {
		t.Fatalf("option count changed: %d", len(pq.Options))
	}
	for _, o := range pq.Options {
		if q.Options[o.OriginalIndex] != o.Text {
			t.Errorf("option %q points at original %d (%q)", o.Text, o.OriginalIndex, q.Options[o.OriginalIndex])
		}
	}
	order := pq.OptionOrder()
	slices.Sort(order)
	if !slices.Equal(order, []int{0, 1, 2, 3, 4}) {
		t.Errorf("option order is not a permutation: %v", pq.OptionOrder())
	}
}

func TestShuffleOptionsKeepsMatrixOrder(t *testing.T) {
	q := model.Question{
		Type:    model.QuestionTypeComplex,
		Options: []string{"p", "q", "r", "s"},
		Correct: json.RawMessage(`[true,false,true,false]`),
	}
	for seed := uint64(0); seed < 10; seed++ {
		pq := ShuffleOptions(NewSeededShuffler(seed, seed+1), q)
		if !slices.Equal(pq.OptionOrder(), []int{0, 1, 2, 3}) {
			t.Fatalf("matrix statements reordered: %v", pq.OptionOrder())
		}
	}
}

func TestToOriginal(t *testing.T) {
	pq := PresentedQuestion{
		Question: model.Question{Type: model.QuestionTypeMulti, Options: []string{"a", "b", "c"}},
		Options: []PresentedOption{
			{Text: "c", OriginalIndex: 2},
			{Text: "a", OriginalIndex: 0},
			{Text: "b", OriginalIndex: 1},
		},
	}

	if got := string(pq.ToOriginal(json.RawMessage(`[0,1]`))); got != `[2,0]` {
		t.Errorf("multi translation = %s, want [2,0]", got)
	}
	if got := string(pq.ToOriginal(json.RawMessage(`[0,7]`))); got != `[0,7]` {
		t.Errorf("untranslatable answer should stay raw, got %s", got)
	}

	pq.Question.Type = model.QuestionTypeSingle
	if got := string(pq.ToOriginal(json.RawMessage(`0`))); got != `2` {
		t.Errorf("single translation = %s, want 2", got)
	}
}

func TestStudentViewHidesKeyAndInternalTags(t *testing.T) {
	q := model.Question{
		ID:       "q9",
		Text:     "Pilih satu",
		Stimulus: "data:image/png;base64,AAAA",
		Options:  []string{"x", "y"},
		Correct:  json.RawMessage(`1`),
		Tags:     []string{"C2", "__sid:3"},
	}
	view := ShuffleOptions(NewSeededShuffler(1, 1), q).StudentView()

	if view.ID != "q9" || view.Text != "Pilih satu" || view.Stimulus != q.Stimulus {
		t.Errorf("identity fields not copied: %+v", view)
	}
	if view.Type != model.QuestionTypeSingle {
		t.Errorf("type = %q, want single", view.Type)
	}
	if !slices.Equal(view.Tags, []string{"C2"}) {
		t.Errorf("tags = %v, want [C2]", view.Tags)
	}
	raw, _ := json.Marshal(view)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if _, ok := decoded["correct"]; ok {
		t.Error("student view leaks the answer key")
	}
}
