// Package store defines the data store the exam portal runs against and
// its Postgres + Redis implementation.
package store

import (
	"context"
	"errors"

	"github.com/stemsi/cbt-backend/internal/model"
)

// Store errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrNotSupported = errors.New("operation not supported by this store")
)

// DataStore is every read and write the portal needs from persistence.
// Writes may be asynchronous; callers treat them as fire-and-forget.
type DataStore interface {
	FetchAllData(ctx context.Context) (*model.Snapshot, error)
	FetchExamStatus(ctx context.Context) (*model.ActiveExam, error)
	FetchSessionStatuses(ctx context.Context, token string) ([]model.StudentStatus, error)
	ReportStudentStatus(ctx context.Context, st model.StudentStatus) error
	ActivateExam(ctx context.Context, exam model.ActiveExam) error
	DeactivateExam(ctx context.Context) error
	SubmitResult(ctx context.Context, r model.ExamResult) error
	SaveQuestion(ctx context.Context, q model.Question) error
	DeleteQuestion(ctx context.Context, id string) error
}

// DrawRecorder is implemented by stores that archive per-student draws.
type DrawRecorder interface {
	RecordDraw(ctx context.Context, d model.ExamDraw) error
}

// StatusWatcher is implemented by stores that can push status changes.
// The returned channel receives a value per change and closes with ctx.
type StatusWatcher interface {
	WatchStatuses(ctx context.Context, token string) <-chan struct{}
}
