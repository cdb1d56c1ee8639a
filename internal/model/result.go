package model

import (
	"encoding/json"
	"time"
)

// EndReason records why an exam attempt ended.
type EndReason string

const (
	EndReasonCompleted EndReason = "COMPLETED"
	EndReasonTimeout   EndReason = "TIMEOUT"
	EndReasonViolation EndReason = "VIOLATION"
)

// ExamResult is the immutable outcome of one finished attempt.
// Answers are keyed by position in the student's drawn set and hold
// original option indices.
type ExamResult struct {
	ID             string                  `json:"id"`
	StudentID      string                  `json:"studentId"`
	StudentName    string                  `json:"studentName"`
	StudentClass   string                  `json:"studentClass"`
	SubjectID      string                  `json:"subjectId"`
	Subject        string                  `json:"subject"`
	Token          string                  `json:"token"`
	Score          float64                 `json:"score"`
	ScoreRounded   int                     `json:"scoreRounded"`
	CorrectCount   int                     `json:"correctCount"`
	TotalQuestions int                     `json:"totalQuestions"`
	EndReason      EndReason               `json:"endReason"`
	Date           time.Time               `json:"date"`
	Answers        map[int]json.RawMessage `json:"answers"`
	QuestionIDs    []string                `json:"questionIds"`
}
