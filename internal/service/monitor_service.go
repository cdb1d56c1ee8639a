package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/store"
)

// DefaultMonitorInterval is the admin live-view refresh period.
const DefaultMonitorInterval = 10 * time.Second

// MonitorService builds the admin live view of who is where in the exam.
type MonitorService struct {
	store   store.DataStore
	catalog *CatalogService
	log     zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(st store.DataStore, catalog *CatalogService, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		store:   st,
		catalog: catalog,
		log:     log.With().Str("component", "monitor_service").Logger(),
	}
}

// MergeRoster pairs every student in roster with their latest status.
// Students with no report are NOT_LOGGED_IN. Reports for students outside
// the roster are ignored. Roster order is kept.
func MergeRoster(roster []model.Student, statuses []model.StudentStatus) []model.MonitorRow {
	latest := make(map[string]model.StudentStatus, len(statuses))
	for _, st := range statuses {
		nis := strings.TrimSpace(st.NIS)
		if prev, ok := latest[nis]; ok && prev.Timestamp.After(st.Timestamp) {
			continue
		}
		latest[nis] = st
	}

	rows := make([]model.MonitorRow, 0, len(roster))
	for _, student := range roster {
		row := model.MonitorRow{
			NIS:    student.NIS,
			Name:   student.Name,
			Class:  student.Class,
			Status: model.StatusNotLoggedIn,
		}
		if st, ok := latest[strings.TrimSpace(student.NIS)]; ok && st.Status != "" {
			row.Status = st.Status
			if !st.Timestamp.IsZero() {
				ts := st.Timestamp
				row.UpdatedAt = &ts
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Snapshot returns the live view for the current exam. Without an exam
// the rows are empty.
func (s *MonitorService) Snapshot(ctx context.Context) (*model.MonitorSnapshot, error) {
	current, err := s.store.FetchExamStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch exam status: %w", err)
	}

	snap := &model.MonitorSnapshot{
		Exam:      current,
		Rows:      []model.MonitorRow{},
		Counts:    make(map[model.StudentStatusValue]int),
		Timestamp: time.Now(),
	}
	if current == nil || current.Token == "" {
		return snap, nil
	}

	statuses, err := s.store.FetchSessionStatuses(ctx, current.Token)
	if err != nil {
		return nil, fmt.Errorf("fetch session statuses: %w", err)
	}

	snap.Rows = MergeRoster(s.catalog.StudentsInClass(current.SubjectClass), statuses)
	for _, row := range snap.Rows {
		snap.Counts[row.Status]++
	}
	return snap, nil
}

// Poll calls fn with a fresh snapshot immediately, every interval and,
// when the store can push, on every status change. The push subscription
// follows the token of the latest snapshot, so a regenerated or newly
// activated exam is watched from the next refresh on. It returns when ctx
// is done. Failed refreshes are logged and skipped.
func (s *MonitorService) Poll(ctx context.Context, interval time.Duration, fn func(*model.MonitorSnapshot)) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	watcher, _ := s.store.(store.StatusWatcher)
	var (
		pushes    <-chan struct{}
		watched   string
		stopWatch context.CancelFunc = func() {}
	)
	defer func() { stopWatch() }()

	watch := func(token string) {
		if watcher == nil || token == watched {
			return
		}
		stopWatch()
		stopWatch, pushes, watched = func() {}, nil, token
		if token == "" {
			return
		}
		watchCtx, cancel := context.WithCancel(ctx)
		stopWatch = cancel
		pushes = watcher.WatchStatuses(watchCtx, token)
		s.log.Debug().Str("token", token).Msg("Monitor watching status changes")
	}

	refresh := func() {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("Monitor refresh failed")
			}
			return
		}
		token := ""
		if snap.Exam.IsActive() {
			token = snap.Exam.Token
		}
		watch(token)
		fn(snap)
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		case _, ok := <-pushes:
			if !ok {
				// Resubscribe on the next refresh.
				pushes, watched = nil, ""
				continue
			}
			refresh()
		}
	}
}
