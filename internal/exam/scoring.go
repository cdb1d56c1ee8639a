package exam

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stemsi/cbt-backend/internal/model"
)

// Outcome is the tally of a graded attempt. Score is the raw percentage.
type Outcome struct {
	Correct int
	Total   int
	Score   float64
}

// Score grades answers keyed by position in the drawn set. Every drawn
// question counts toward the total whether answered or not, and an empty
// set scores 0.
func Score(questions []PresentedQuestion, answers map[int]json.RawMessage) Outcome {
	out := Outcome{Total: len(questions)}
	if out.Total == 0 {
		return out
	}
	for i, pq := range questions {
		if IsAnswerCorrect(pq.Question, answers[i]) {
			out.Correct++
		}
	}
	out.Score = float64(out.Correct) / float64(out.Total) * 100
	return out
}

// RoundScore rounds a percentage to a whole number, halves going up.
func RoundScore(score float64) int {
	return int(decimal.NewFromFloat(score).Round(0).IntPart())
}

// ResultInput carries everything needed to seal a result.
type ResultInput struct {
	ID        string
	Student   model.Student
	Exam      model.ActiveExam
	Questions []PresentedQuestion
	Answers   map[int]json.RawMessage
	Reason    model.EndReason
	At        time.Time
}

// NewResult grades the attempt and builds its immutable result record.
func NewResult(in ResultInput) model.ExamResult {
	outcome := Score(in.Questions, in.Answers)

	answers := make(map[int]json.RawMessage, len(in.Answers))
	for k, v := range in.Answers {
		answers[k] = append(json.RawMessage(nil), v...)
	}
	ids := make([]string, len(in.Questions))
	for i, pq := range in.Questions {
		ids[i] = pq.Question.ID
	}

	return model.ExamResult{
		ID:             in.ID,
		StudentID:      in.Student.ID,
		StudentName:    in.Student.Name,
		StudentClass:   in.Student.Class,
		SubjectID:      in.Exam.SubjectID,
		Subject:        in.Exam.SubjectName,
		Token:          in.Exam.Token,
		Score:          outcome.Score,
		ScoreRounded:   RoundScore(outcome.Score),
		CorrectCount:   outcome.Correct,
		TotalQuestions: outcome.Total,
		EndReason:      in.Reason,
		Date:           in.At,
		Answers:        answers,
		QuestionIDs:    ids,
	}
}
