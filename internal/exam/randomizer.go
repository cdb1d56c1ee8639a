package exam

import (
	"encoding/json"
	"math/rand/v2"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/stemsi/cbt-backend/internal/model"
)

// DefaultQuestionLimit caps how many questions a student draws.
const DefaultQuestionLimit = 30

// Shuffler permutes n elements through swap. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type globalShuffler struct{}

func (globalShuffler) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultShuffler draws from the runtime-seeded global generator, so
// sessions never share a sequence.
func DefaultShuffler() Shuffler { return globalShuffler{} }

// NewSeededShuffler returns a deterministic shuffler for replays and tests.
func NewSeededShuffler(seed1, seed2 uint64) Shuffler {
	return rand.New(rand.NewPCG(seed1, seed2))
}

// Shuffle returns a uniformly permuted copy of in. The input is untouched.
func Shuffle[T any](src Shuffler, in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	src.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SelectExamSet filters the bank to the exam subject and class, shuffles
// it and keeps at most limit questions.
func SelectExamSet(src Shuffler, all []model.Question, subjectID, class string, limit int) []model.Question {
	if limit <= 0 {
		limit = DefaultQuestionLimit
	}
	subjectID = strings.TrimSpace(subjectID)

	relevant := make([]model.Question, 0, len(all))
	for _, q := range all {
		q = q.Hydrate()
		if strings.TrimSpace(q.SubjectID) != subjectID || q.Class != class {
			continue
		}
		relevant = append(relevant, q)
	}

	shuffled := Shuffle(src, relevant)
	if len(shuffled) > limit {
		shuffled = shuffled[:limit]
	}
	return shuffled
}

// PresentedOption is an option as displayed, remembering where it came from.
type PresentedOption struct {
	Text          string `json:"text"`
	OriginalIndex int    `json:"originalIndex"`
}

// PresentedQuestion is a drawn question with its per-student option order.
// Question keeps the untouched bank item, including its key.
type PresentedQuestion struct {
	Question model.Question
	Options  []PresentedOption
}

// ShuffleOptions fixes the display order of a question's options. Only
// single and multi choice options move; matrix statements keep their order.
func ShuffleOptions(src Shuffler, q model.Question) PresentedQuestion {
	opts := make([]PresentedOption, len(q.Options))
	for i, text := range q.Options {
		opts[i] = PresentedOption{Text: text, OriginalIndex: i}
	}

	switch q.Kind() {
	case model.QuestionTypeSingle, model.QuestionTypeMulti:
		opts = Shuffle(src, opts)
	}

	return PresentedQuestion{Question: q, Options: opts}
}

// Draw runs the full randomization for one student: question selection
// followed by an option shuffle per question.
func Draw(src Shuffler, all []model.Question, subjectID, class string, limit int) []PresentedQuestion {
	selected := SelectExamSet(src, all, subjectID, class, limit)
	out := make([]PresentedQuestion, len(selected))
	for i, q := range selected {
		out[i] = ShuffleOptions(src, q)
	}
	return out
}

// OptionOrder lists the original index behind every displayed option.
func (p PresentedQuestion) OptionOrder() []int {
	order := make([]int, len(p.Options))
	for i, o := range p.Options {
		order[i] = o.OriginalIndex
	}
	return order
}

// ToOriginal translates an answer given in displayed positions into
// original option indices. Values that cannot be translated are returned
// unchanged and will simply score as incorrect.
func (p PresentedQuestion) ToOriginal(raw json.RawMessage) json.RawMessage {
	switch p.Question.Kind() {
	case model.QuestionTypeSingle:
		pos, ok := decodeIndex(raw)
		if !ok || pos < 0 || pos >= len(p.Options) {
			return raw
		}
		out, _ := json.Marshal(p.Options[pos].OriginalIndex)
		return out

	case model.QuestionTypeMulti:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return raw
		}
		mapped := make([]int, 0, len(items))
		for _, item := range items {
			pos, ok := decodeIndex(item)
			if !ok || pos < 0 || pos >= len(p.Options) {
				return raw
			}
			mapped = append(mapped, p.Options[pos].OriginalIndex)
		}
		out, _ := json.Marshal(mapped)
		return out
	}

	return raw
}

// StudentQuestion is the student-facing view of a drawn question: options
// in display order and no answer key.
type StudentQuestion struct {
	ID       string             `json:"id"`
	Type     model.QuestionType `json:"type"`
	Text     string             `json:"text"`
	Stimulus string             `json:"stimulus,omitempty"`
	Options  []string           `json:"options"`
	Tags     []string           `json:"tags,omitempty"`
}

// StudentView strips the key and internal tags from a drawn question.
func (p PresentedQuestion) StudentView() StudentQuestion {
	var view StudentQuestion
	_ = copier.Copy(&view, &p.Question)

	view.Type = p.Question.Kind()
	view.Tags = p.Question.PublicTags()
	view.Options = make([]string, len(p.Options))
	for i, o := range p.Options {
		view.Options[i] = o.Text
	}
	return view
}
