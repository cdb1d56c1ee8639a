package service

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
)

func TestMergeRoster(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	roster := []model.Student{
		{NIS: "1", Name: "A", Class: "K"},
		{NIS: "2", Name: "B", Class: "K"},
		{NIS: "3", Name: "C", Class: "K"},
	}
	statuses := []model.StudentStatus{
		{NIS: "1", Status: model.StatusLogin, Timestamp: t0},
		{NIS: "1", Status: model.StatusFinished, Timestamp: t0.Add(2 * time.Minute)},
		{NIS: "1", Status: model.StatusWorking, Timestamp: t0.Add(time.Minute)},
		{NIS: " 2 ", Status: model.StatusViolation, Timestamp: t0},
		{NIS: "77", Status: model.StatusWorking, Timestamp: t0},
	}

	rows := MergeRoster(roster, statuses)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	want := []model.StudentStatusValue{model.StatusFinished, model.StatusViolation, model.StatusNotLoggedIn}
	for i, w := range want {
		if rows[i].NIS != roster[i].NIS {
			t.Errorf("row %d nis = %s, roster order not kept", i, rows[i].NIS)
		}
		if rows[i].Status != w {
			t.Errorf("row %d status = %s, want %s", i, rows[i].Status, w)
		}
	}
	if rows[2].UpdatedAt != nil {
		t.Error("student without a report has an update time")
	}
	if rows[0].UpdatedAt == nil || !rows[0].UpdatedAt.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("row 0 updated at = %v", rows[0].UpdatedAt)
	}
}

func TestMonitorService_Snapshot(t *testing.T) {
	st, cat := newFixture(t, activeFixtureExam())
	st.statuses = []model.StudentStatus{
		{Token: "ABC123", NIS: "12345", Status: model.StatusWorking, Timestamp: time.Now()},
		{Token: "OLD999", NIS: "12346", Status: model.StatusFinished, Timestamp: time.Now()},
	}
	svc := NewMonitorService(st, cat, zerolog.Nop())

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("rows = %+v, want the two students of the exam class", snap.Rows)
	}
	if snap.Counts[model.StatusWorking] != 1 || snap.Counts[model.StatusNotLoggedIn] != 1 {
		t.Errorf("counts = %v", snap.Counts)
	}
}

func TestMonitorService_SnapshotWithoutExam(t *testing.T) {
	st, cat := newFixture(t, nil)
	svc := NewMonitorService(st, cat, zerolog.Nop())

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Exam != nil || len(snap.Rows) != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
}

func TestMonitorService_PollStopsWithContext(t *testing.T) {
	st, cat := newFixture(t, activeFixtureExam())
	svc := NewMonitorService(st, cat, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan *model.MonitorSnapshot, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Poll(ctx, 10*time.Millisecond, func(s *model.MonitorSnapshot) {
			select {
			case calls <- s:
			default:
			}
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("poll %d never delivered", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not return after cancel")
	}
}

// watchingStore records status subscriptions on top of fakeStore.
type watchingStore struct {
	*fakeStore

	mu      sync.Mutex
	watched []string
	live    map[string]bool
}

func (w *watchingStore) WatchStatuses(ctx context.Context, token string) <-chan struct{} {
	w.mu.Lock()
	w.watched = append(w.watched, token)
	w.live[token] = true
	w.mu.Unlock()

	ch := make(chan struct{})
	go func() {
		<-ctx.Done()
		w.mu.Lock()
		w.live[token] = false
		w.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (w *watchingStore) state() ([]string, map[string]bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	live := make(map[string]bool, len(w.live))
	for k, v := range w.live {
		live[k] = v
	}
	return slices.Clone(w.watched), live
}

func TestMonitorService_PollFollowsToken(t *testing.T) {
	regenerated := activeFixtureExam()
	regenerated.Token = "XYZ789"

	tests := []struct {
		name        string
		start       *model.ActiveExam
		change      func(st *fakeStore)
		wantWatched []string
		wantLive    map[string]bool
	}{
		{
			name:  "regenerated token",
			start: activeFixtureExam(),
			change: func(st *fakeStore) {
				_ = st.ActivateExam(context.Background(), *regenerated)
			},
			wantWatched: []string{"ABC123", "XYZ789"},
			wantLive:    map[string]bool{"ABC123": false, "XYZ789": true},
		},
		{
			name:  "deactivated",
			start: activeFixtureExam(),
			change: func(st *fakeStore) {
				_ = st.DeactivateExam(context.Background())
			},
			wantWatched: []string{"ABC123"},
			wantLive:    map[string]bool{"ABC123": false},
		},
		{
			name:  "activated after start",
			start: nil,
			change: func(st *fakeStore) {
				_ = st.ActivateExam(context.Background(), *activeFixtureExam())
			},
			wantWatched: []string{"ABC123"},
			wantLive:    map[string]bool{"ABC123": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, cat := newFixture(t, tt.start)
			watcher := &watchingStore{fakeStore: fs, live: make(map[string]bool)}
			svc := NewMonitorService(watcher, cat, zerolog.Nop())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				svc.Poll(ctx, 10*time.Millisecond, func(*model.MonitorSnapshot) {})
			}()
			defer func() {
				cancel()
				<-done
			}()

			if tt.start != nil {
				waitFor(t, "first watch", func() bool {
					watched, _ := watcher.state()
					return len(watched) > 0
				})
			}
			tt.change(fs)

			waitFor(t, "watch to follow the exam", func() bool {
				watched, live := watcher.state()
				if !slices.Equal(watched, tt.wantWatched) {
					return false
				}
				for token, want := range tt.wantLive {
					if live[token] != want {
						return false
					}
				}
				return true
			})
		})
	}
}
