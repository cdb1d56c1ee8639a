package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/exam"
	"github.com/stemsi/cbt-backend/internal/model"
)

type identityShuffler struct{}

func (identityShuffler) Shuffle(int, func(i, j int)) {}

type fakeResetter struct {
	mu    sync.Mutex
	reset []string
}

func (f *fakeResetter) ResetStudentSession(_ context.Context, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = append(f.reset, studentID)
	return nil
}

func (f *fakeResetter) wasReset(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.reset, id)
}

func newSessionService(t *testing.T) (*ExamSessionService, *fakeStore, *CatalogService, *fakeResetter) {
	t.Helper()
	st, cat := newFixture(t, activeFixtureExam())
	rs := &fakeResetter{}
	svc := NewExamSessionService(st, cat, rs, ExamSessionOptions{
		Duration: time.Hour,
		Shuffler: identityShuffler{},
	}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	return svc, st, cat, rs
}

func TestExamSessionService_FullAttempt(t *testing.T) {
	svc, st, cat, _ := newSessionService(t)
	ctx := context.Background()
	student, _ := cat.StudentByNIS("12345")

	v, err := svc.EnterToken(ctx, student, " abc123 ")
	if err != nil {
		t.Fatalf("EnterToken: %v", err)
	}
	if v.State != exam.StateIdentityConfirm {
		t.Fatalf("state = %s, want IDENTITY_CONFIRM", v.State)
	}

	v, err = svc.Confirm(ctx, student.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if v.State != exam.StateInProgress || len(v.Questions) != 3 {
		t.Fatalf("view = %s with %d questions", v.State, len(v.Questions))
	}

	// Identity shuffle keeps displayed positions equal to original indices.
	keys := map[string]int{"q1": 0, "q2": 1, "q3": 2}
	for pos, q := range v.Questions {
		ans := keys[q.ID]
		if pos == 2 {
			ans = 3
		}
		if err := svc.Answer(student.ID, pos, json.RawMessage(jsonInt(ans))); err != nil {
			t.Fatalf("Answer %d: %v", pos, err)
		}
	}

	sess, err := svc.Get(student.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := sess.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	v, err = svc.View(student)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.State != exam.StateSubmitted || v.Result == nil {
		t.Fatalf("view after submit = %+v", v)
	}
	if v.Result.CorrectCount != 2 || v.Result.ScoreRounded != 67 {
		t.Errorf("result = %d correct, rounded %d", v.Result.CorrectCount, v.Result.ScoreRounded)
	}

	waitFor(t, "result to reach the store", func() bool { return st.resultCount() == 1 })
	if len(cat.Results()) != 1 {
		t.Error("catalog result list was not updated")
	}
	waitFor(t, "FINISHED status", func() bool {
		return slices.Contains(st.statusValues("12345"), model.StatusFinished)
	})
}

func TestExamSessionService_OpenReusesSession(t *testing.T) {
	svc, _, cat, _ := newSessionService(t)
	student, _ := cat.StudentByNIS("12345")

	a := svc.Open(student)
	b := svc.Open(student)
	if a != b {
		t.Error("Open created a second session for the same student")
	}
	if svc.Active() != 1 {
		t.Errorf("Active = %d, want 1", svc.Active())
	}

	svc.Close(student.ID)
	if _, err := svc.Get(student.ID); !errors.Is(err, ErrNoSession) {
		t.Errorf("Get after Close err = %v, want ErrNoSession", err)
	}
}

func TestExamSessionService_ViolationForfeitsAndLogsOut(t *testing.T) {
	svc, st, cat, rs := newSessionService(t)
	ctx := context.Background()
	student, _ := cat.StudentByNIS("12346")

	if _, err := svc.EnterToken(ctx, student, "ABC123"); err != nil {
		t.Fatalf("EnterToken: %v", err)
	}
	if _, err := svc.Confirm(ctx, student.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	sess, _ := svc.Get(student.ID)
	events, cancelSub := sess.Subscribe()
	defer cancelSub()

	signals := make(chan exam.Signal, 1)
	stop, err := svc.Proctor(ctx, student.ID, signals)
	if err != nil {
		t.Fatalf("Proctor: %v", err)
	}
	defer stop()

	signals <- exam.SignalVisibilityHidden

	var last exam.Event
	for ev := range events {
		last = ev
	}
	if last.Type != exam.EventFinished || last.Reason != model.EndReasonViolation {
		t.Fatalf("last event = %+v, want finished/VIOLATION", last)
	}

	waitFor(t, "session eviction", func() bool { return svc.Active() == 0 })
	waitFor(t, "login reset", func() bool { return rs.wasReset(student.ID) })

	if st.resultCount() != 0 {
		t.Error("a forfeited attempt produced a result")
	}
	waitFor(t, "VIOLATION status", func() bool {
		return slices.Contains(st.statusValues("12346"), model.StatusViolation)
	})
}

func TestExamSessionService_ProctorWithoutSession(t *testing.T) {
	svc, _, _, _ := newSessionService(t)
	if _, err := svc.Proctor(context.Background(), "nobody", make(chan exam.Signal)); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestExamSessionService_WrongToken(t *testing.T) {
	svc, _, cat, _ := newSessionService(t)
	student, _ := cat.StudentByNIS("12345")

	_, err := svc.EnterToken(context.Background(), student, "ZZZ999")
	if !errors.Is(err, exam.ErrTokenMismatch) {
		t.Fatalf("err = %v, want ErrTokenMismatch", err)
	}
	v, _ := svc.View(student)
	if v.State != exam.StateTokenEntry {
		t.Errorf("state = %s, want TOKEN_ENTRY", v.State)
	}
}

func TestExamSessionService_RevokedTokenRejected(t *testing.T) {
	t.Run("regenerated", func(t *testing.T) {
		svc, st, cat, _ := newSessionService(t)
		tokens := NewTokenService(st, cat, zerolog.Nop())
		ctx := context.Background()
		student, _ := cat.StudentByNIS("12345")

		// The session is opened while ABC123 is still current.
		if _, err := svc.View(student); err != nil {
			t.Fatalf("View: %v", err)
		}
		next, err := tokens.RegenerateToken(ctx)
		if err != nil {
			t.Fatalf("RegenerateToken: %v", err)
		}

		if _, err := svc.EnterToken(ctx, student, "ABC123"); !errors.Is(err, exam.ErrTokenMismatch) {
			t.Fatalf("old token err = %v, want ErrTokenMismatch", err)
		}
		v, err := svc.EnterToken(ctx, student, next.Token)
		if err != nil {
			t.Fatalf("new token: %v", err)
		}
		if v.State != exam.StateIdentityConfirm {
			t.Errorf("state = %s, want IDENTITY_CONFIRM", v.State)
		}
	})

	t.Run("deactivated", func(t *testing.T) {
		svc, st, cat, _ := newSessionService(t)
		tokens := NewTokenService(st, cat, zerolog.Nop())
		ctx := context.Background()
		student, _ := cat.StudentByNIS("12346")

		if _, err := svc.View(student); err != nil {
			t.Fatalf("View: %v", err)
		}
		if err := tokens.Deactivate(ctx); err != nil {
			t.Fatalf("Deactivate: %v", err)
		}

		if _, err := svc.EnterToken(ctx, student, "ABC123"); !errors.Is(err, exam.ErrNoActiveExam) {
			t.Fatalf("err = %v, want ErrNoActiveExam", err)
		}
		v, _ := svc.View(student)
		if v.State != exam.StateTokenEntry {
			t.Errorf("state = %s, want TOKEN_ENTRY", v.State)
		}
	})
}

func TestExamSessionService_ForfeitResetsLoginBeforeReportLands(t *testing.T) {
	svc, st, cat, rs := newSessionService(t)
	release := st.holdReports(model.StatusViolation)
	t.Cleanup(release)

	ctx := context.Background()
	student, _ := cat.StudentByNIS("12346")
	if _, err := svc.EnterToken(ctx, student, "ABC123"); err != nil {
		t.Fatalf("EnterToken: %v", err)
	}
	if _, err := svc.Confirm(ctx, student.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	signals := make(chan exam.Signal, 1)
	stop, err := svc.Proctor(ctx, student.ID, signals)
	if err != nil {
		t.Fatalf("Proctor: %v", err)
	}
	defer stop()

	signals <- exam.SignalWindowBlur

	waitFor(t, "login reset", func() bool { return rs.wasReset(student.ID) })
	if svc.Active() != 0 {
		t.Error("forfeited session still registered")
	}
	if slices.Contains(st.statusValues("12346"), model.StatusViolation) {
		t.Fatal("VIOLATION report landed while held")
	}

	// A fresh login opens a new session straight away.
	if v, err := svc.View(student); err != nil || v.State != exam.StateTokenEntry {
		t.Errorf("new session = %s, %v", v.State, err)
	}

	release()
	waitFor(t, "VIOLATION status", func() bool {
		return slices.Contains(st.statusValues("12346"), model.StatusViolation)
	})
}

func TestExamSessionService_CloseDoesNotWaitForReports(t *testing.T) {
	svc, st, cat, _ := newSessionService(t)
	release := st.holdReports(model.StatusLogin)
	t.Cleanup(release)

	student, _ := cat.StudentByNIS("12345")
	if _, err := svc.EnterToken(context.Background(), student, "ABC123"); err != nil {
		t.Fatalf("EnterToken: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		svc.Close(student.ID)
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a pending LOGIN report")
	}
	if _, err := svc.Get(student.ID); !errors.Is(err, ErrNoSession) {
		t.Errorf("Get after Close err = %v, want ErrNoSession", err)
	}
}
