package exam

import (
	"encoding/json"
	"slices"

	"github.com/stemsi/cbt-backend/internal/model"
)

// IsAnswerCorrect judges one answer against the question key. Answers are
// expected in original option indices. Missing or ill-shaped answers and
// malformed questions are simply incorrect.
func IsAnswerCorrect(q model.Question, answer json.RawMessage) bool {
	key, err := ParseKey(q)
	if err != nil || isNull(answer) {
		return false
	}

	switch k := key.(type) {
	case SingleKey:
		idx, ok := decodeIndex(answer)
		return ok && idx == k.Index

	case MultiKey:
		set, ok := decodeIndexSet(answer)
		return ok && slices.Equal(set, k.Indices)

	case MatrixKey:
		var values []*bool
		if err := json.Unmarshal(answer, &values); err != nil {
			return false
		}
		if len(values) != len(k.Values) {
			return false
		}
		for i, v := range values {
			if v == nil || *v != k.Values[i] {
				return false
			}
		}
		return true
	}

	return false
}
