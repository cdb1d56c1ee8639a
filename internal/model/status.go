package model

import "time"

// StudentStatusValue is the progress marker shown on the admin monitor.
type StudentStatusValue string

const (
	StatusNotLoggedIn StudentStatusValue = "NOT_LOGGED_IN"
	StatusLogin       StudentStatusValue = "LOGIN"
	StatusWorking     StudentStatusValue = "WORKING"
	StatusFinished    StudentStatusValue = "FINISHED"
	StatusViolation   StudentStatusValue = "VIOLATION"
)

// StudentStatus is one progress report for a student under an exam token.
type StudentStatus struct {
	Token     string             `json:"token"`
	NIS       string             `json:"nis"`
	Name      string             `json:"name"`
	Status    StudentStatusValue `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
}

// MonitorRow is a roster entry merged with its latest reported status.
type MonitorRow struct {
	NIS       string             `json:"nis"`
	Name      string             `json:"name"`
	Class     string             `json:"class"`
	Status    StudentStatusValue `json:"status"`
	UpdatedAt *time.Time         `json:"updatedAt,omitempty"`
}

// MonitorSnapshot is the payload pushed to admin live views.
type MonitorSnapshot struct {
	Exam      *ActiveExam                `json:"exam"`
	Rows      []MonitorRow               `json:"rows"`
	Counts    map[StudentStatusValue]int `json:"counts"`
	Timestamp time.Time                  `json:"timestamp"`
}
