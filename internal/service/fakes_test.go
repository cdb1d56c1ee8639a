package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	snap     model.Snapshot
	exam     *model.ActiveExam
	statuses []model.StudentStatus
	results  []model.ExamResult
	saved    []model.Question
	deleted  []string
	fetchErr error

	// Reports of holdStatus block until release is closed or their
	// context expires.
	holdStatus model.StudentStatusValue
	release    chan struct{}
}

var _ store.DataStore = (*fakeStore)(nil)

func (f *fakeStore) FetchAllData(context.Context) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	snap := f.snap
	snap.ActiveExam = f.exam
	return &snap, nil
}

func (f *fakeStore) FetchExamStatus(context.Context) (*model.ActiveExam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.exam == nil {
		return nil, nil
	}
	e := *f.exam
	return &e, nil
}

func (f *fakeStore) FetchSessionStatuses(_ context.Context, token string) ([]model.StudentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StudentStatus
	for _, st := range f.statuses {
		if st.Token == token {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) ReportStudentStatus(ctx context.Context, st model.StudentStatus) error {
	f.mu.Lock()
	hold, release := f.holdStatus, f.release
	f.mu.Unlock()

	if release != nil && st.Status == hold {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, st)
	return nil
}

// holdReports makes reports of status block until the returned func is
// called.
func (f *fakeStore) holdReports(status model.StudentStatusValue) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.holdStatus, f.release = status, ch
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeStore) ActivateExam(_ context.Context, e model.ActiveExam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exam = &e
	return nil
}

func (f *fakeStore) DeactivateExam(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exam != nil {
		f.exam.Status = model.ExamStatusInactive
	}
	return nil
}

func (f *fakeStore) SubmitResult(_ context.Context, r model.ExamResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func (f *fakeStore) SaveQuestion(_ context.Context, q model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, q)
	return nil
}

func (f *fakeStore) DeleteQuestion(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) statusValues(nis string) []model.StudentStatusValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StudentStatusValue
	for _, st := range f.statuses {
		if st.NIS == nis {
			out = append(out, st.Status)
		}
	}
	return out
}

func (f *fakeStore) resultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

const fixtureClass = "XII MIPA 1"

func fixtureSnapshot() model.Snapshot {
	q := func(id string, correct int) model.Question {
		return model.Question{
			ID:        id,
			Type:      model.QuestionTypeSingle,
			Text:      "Soal " + id,
			Options:   []string{"A", "B", "C", "D"},
			Correct:   json.RawMessage(jsonInt(correct)),
			SubjectID: "1",
			Class:     fixtureClass,
		}
	}
	return model.Snapshot{
		SchoolData: model.SchoolData{Name: "SMA Negeri 1"},
		Students: []model.Student{
			{ID: "s1", NIS: "12345", Name: "Ahmad Dahlan", Class: fixtureClass},
			{ID: "s2", NIS: "12346", Name: "Siti Aminah", Class: fixtureClass},
			{ID: "s3", NIS: "99999", Name: "Budi", Class: "X IPS 2"},
		},
		Subjects: []model.Subject{
			{ID: "1", Name: "Matematika", Code: "MTK", Class: fixtureClass},
		},
		Questions: []model.Question{q("q1", 0), q("q2", 1), q("q3", 2)},
	}
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func activeFixtureExam() *model.ActiveExam {
	now := time.Now()
	return &model.ActiveExam{
		SubjectID:    "1",
		SubjectName:  "Matematika",
		SubjectClass: fixtureClass,
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(2 * time.Hour),
		Status:       model.ExamStatusActive,
		Token:        "ABC123",
	}
}

func newFixture(t *testing.T, exam *model.ActiveExam) (*fakeStore, *CatalogService) {
	t.Helper()
	st := &fakeStore{snap: fixtureSnapshot(), exam: exam}
	cat := NewCatalogService(st, zerolog.Nop())
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return st, cat
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
