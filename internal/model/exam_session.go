package model

import "time"

// ExamDraw records the question and option order one student received,
// so a disputed score can be replayed.
type ExamDraw struct {
	Token       string    `json:"token"`
	StudentID   string    `json:"studentId"`
	SubjectID   string    `json:"subjectId"`
	QuestionIDs []string  `json:"questionIds"`
	OptionOrder [][]int   `json:"optionOrder"`
	DrawnAt     time.Time `json:"drawnAt"`
}

// EnterTokenRequest is the payload of the token entry screen.
type EnterTokenRequest struct {
	Token string `json:"token" binding:"required,notblank,max=32"`
}
