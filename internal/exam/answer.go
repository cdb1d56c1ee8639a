package exam

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/stemsi/cbt-backend/internal/model"
)

// ErrMalformedQuestion marks a question whose stored key does not fit its type.
var ErrMalformedQuestion = errors.New("malformed question")

// AnswerKey is the decoded correct answer of a question. It is one of
// SingleKey, MultiKey or MatrixKey.
type AnswerKey interface {
	isAnswerKey()
}

// SingleKey is the index of the one correct option.
type SingleKey struct {
	Index int
}

// MultiKey is the set of correct option indices, sorted and deduplicated.
type MultiKey struct {
	Indices []int
}

// MatrixKey holds the expected true/false value of every statement.
type MatrixKey struct {
	Values []bool
}

func (SingleKey) isAnswerKey() {}
func (MultiKey) isAnswerKey()  {}
func (MatrixKey) isAnswerKey() {}

// ParseKey decodes the stored correct answer according to the question type.
func ParseKey(q model.Question) (AnswerKey, error) {
	n := len(q.Options)
	if isNull(q.Correct) {
		return nil, fmt.Errorf("%w: question %s has no answer key", ErrMalformedQuestion, q.ID)
	}

	switch q.Kind() {
	case model.QuestionTypeSingle:
		idx, ok := decodeIndex(q.Correct)
		if !ok || idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: question %s single key out of range", ErrMalformedQuestion, q.ID)
		}
		return SingleKey{Index: idx}, nil

	case model.QuestionTypeMulti:
		set, ok := decodeIndexSet(q.Correct)
		if !ok || len(set) == 0 {
			return nil, fmt.Errorf("%w: question %s multi key must be a non-empty index list", ErrMalformedQuestion, q.ID)
		}
		for _, idx := range set {
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("%w: question %s multi key index %d out of range", ErrMalformedQuestion, q.ID, idx)
			}
		}
		return MultiKey{Indices: set}, nil

	case model.QuestionTypeComplex:
		var values []bool
		if err := json.Unmarshal(q.Correct, &values); err != nil {
			return nil, fmt.Errorf("%w: question %s matrix key: %v", ErrMalformedQuestion, q.ID, err)
		}
		if len(values) == 0 || len(values) != n {
			return nil, fmt.Errorf("%w: question %s matrix key has %d values for %d statements",
				ErrMalformedQuestion, q.ID, len(values), n)
		}
		return MatrixKey{Values: values}, nil

	default:
		return nil, fmt.Errorf("%w: question %s has unknown type %q", ErrMalformedQuestion, q.ID, q.Type)
	}
}

// ValidateQuestion checks the shape invariants of a bank question.
func ValidateQuestion(q model.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is empty", ErrMalformedQuestion)
	}
	if len(q.Options) == 0 {
		return fmt.Errorf("%w: question has no options", ErrMalformedQuestion)
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrMalformedQuestion, i)
		}
	}
	if _, err := ParseKey(q); err != nil {
		return err
	}
	return nil
}

// decodeIndex accepts a JSON number holding a whole value.
func decodeIndex(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// decodeIndexSet decodes a JSON array of indices into a sorted set.
func decodeIndexSet(raw json.RawMessage) ([]int, bool) {
	if isNull(raw) {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	set := make([]int, 0, len(items))
	for _, item := range items {
		idx, ok := decodeIndex(item)
		if !ok {
			return nil, false
		}
		set = append(set, idx)
	}
	slices.Sort(set)
	return slices.Compact(set), true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
