package model

import (
	"strings"
	"time"
)

// ExamStatus is the lifecycle flag of the active exam.
type ExamStatus string

const (
	ExamStatusActive   ExamStatus = "ACTIVE"
	ExamStatusInactive ExamStatus = "INACTIVE"
)

// ActiveExam is the single exam currently open to students.
type ActiveExam struct {
	SubjectID        string     `json:"subjectId"`
	SubjectName      string     `json:"subjectName"`
	SubjectClass     string     `json:"subjectClass"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          time.Time  `json:"endTime"`
	Status           ExamStatus `json:"status"`
	Token            string     `json:"token"`
	TokenGeneratedAt time.Time  `json:"tokenGeneratedAt"`
}

// IsActive reports whether students may join the exam.
func (e *ActiveExam) IsActive() bool {
	return e != nil && e.Status == ExamStatusActive
}

// MatchesToken compares a student-entered token against the exam token,
// ignoring surrounding whitespace and letter case. A blank input never matches.
func (e *ActiveExam) MatchesToken(input string) bool {
	if e == nil {
		return false
	}
	in := strings.TrimSpace(input)
	if in == "" {
		return false
	}
	return strings.EqualFold(in, strings.TrimSpace(e.Token))
}

// ActivateExamRequest is the admin payload for opening an exam session.
type ActivateExamRequest struct {
	SubjectID string    `json:"subjectId" binding:"required,notblank"`
	StartTime time.Time `json:"startTime" binding:"required"`
	EndTime   time.Time `json:"endTime" binding:"required,gtfield=StartTime"`
}
