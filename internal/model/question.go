package model

import (
	"encoding/json"
	"strings"
)

// QuestionType enumerates the supported answer shapes.
type QuestionType string

const (
	QuestionTypeSingle  QuestionType = "single"
	QuestionTypeMulti   QuestionType = "mcma"
	QuestionTypeComplex QuestionType = "complex"
)

// SubjectTagPrefix marks the tag that carries a backup copy of the subject id.
const SubjectTagPrefix = "__sid:"

// Question is one bank item. Correct is kept raw because its JSON shape
// depends on Type: an index, a set of indices, or one bool per statement.
type Question struct {
	ID        string          `json:"id"`
	Type      QuestionType    `json:"type"`
	Text      string          `json:"text"`
	Stimulus  string          `json:"stimulus,omitempty"`
	Options   []string        `json:"options"`
	Correct   json.RawMessage `json:"correct"`
	SubjectID string          `json:"subjectId"`
	Class     string          `json:"class"`
	Tags      []string        `json:"tags"`
}

// Kind returns the question type, treating a missing type as single choice.
func (q Question) Kind() QuestionType {
	if q.Type == "" {
		return QuestionTypeSingle
	}
	return q.Type
}

// Hydrate recovers SubjectID from a "__sid:<id>" tag when it is missing.
func (q Question) Hydrate() Question {
	if strings.TrimSpace(q.SubjectID) != "" {
		return q
	}
	for _, t := range q.Tags {
		if id, ok := strings.CutPrefix(strings.TrimSpace(t), SubjectTagPrefix); ok && id != "" {
			q.SubjectID = id
			return q
		}
	}
	return q
}

// PublicTags returns the tags without internal bookkeeping entries.
func (q Question) PublicTags() []string {
	out := make([]string, 0, len(q.Tags))
	for _, t := range q.Tags {
		if strings.HasPrefix(t, SubjectTagPrefix) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// WithSubjectTag returns tags guaranteed to contain the subject backup tag.
func WithSubjectTag(tags []string, subjectID string) []string {
	if subjectID == "" {
		return tags
	}
	want := SubjectTagPrefix + subjectID
	out := make([]string, 0, len(tags)+1)
	for _, t := range tags {
		if strings.HasPrefix(t, SubjectTagPrefix) {
			continue
		}
		out = append(out, t)
	}
	return append(out, want)
}

// SaveQuestionRequest is the admin payload for creating or updating a question.
type SaveQuestionRequest struct {
	ID        string          `json:"id"`
	Type      QuestionType    `json:"type" binding:"omitempty,oneof=single mcma complex"`
	Text      string          `json:"text" binding:"required,notblank,max=5000"`
	Stimulus  string          `json:"stimulus"`
	Options   []string        `json:"options" binding:"required,min=1,dive,required"`
	Correct   json.RawMessage `json:"correct" binding:"required"`
	SubjectID string          `json:"subjectId" binding:"required,notblank"`
	Class     string          `json:"class" binding:"required,notblank"`
	Tags      []string        `json:"tags"`
}
