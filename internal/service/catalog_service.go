package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/store"
)

// CatalogService holds the snapshot loaded from the store: school data,
// roster, subjects and the question bank. Reads are served from memory.
type CatalogService struct {
	store store.DataStore
	log   zerolog.Logger

	mu       sync.RWMutex
	snap     model.Snapshot
	loadedAt time.Time
}

// NewCatalogService creates an empty catalog. Call Refresh to load it.
func NewCatalogService(st store.DataStore, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		store: st,
		log:   log.With().Str("component", "catalog").Logger(),
	}
}

// Refresh reloads the snapshot. On failure the previous snapshot is kept
// and the error is returned for the caller to log or ignore.
func (s *CatalogService) Refresh(ctx context.Context) error {
	snap, err := s.store.FetchAllData(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Snapshot fetch failed, keeping previous data")
		return err
	}

	for i := range snap.Questions {
		snap.Questions[i] = snap.Questions[i].Hydrate()
	}

	s.mu.Lock()
	s.snap = *snap
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Int("students", len(snap.Students)).
		Int("subjects", len(snap.Subjects)).
		Int("questions", len(snap.Questions)).
		Bool("exam_active", snap.ActiveExam.IsActive()).
		Msg("Snapshot loaded")
	return nil
}

// LoadedAt reports when the snapshot was last refreshed.
func (s *CatalogService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// SchoolData returns the school identity and admin credentials.
func (s *CatalogService) SchoolData() model.SchoolData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.SchoolData
}

// StudentByNIS finds a student by NIS, ignoring surrounding whitespace.
func (s *CatalogService) StudentByNIS(nis string) (model.Student, bool) {
	nis = strings.TrimSpace(nis)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.snap.Students {
		if strings.TrimSpace(st.NIS) == nis {
			return st, true
		}
	}
	return model.Student{}, false
}

// StudentByID finds a student by id.
func (s *CatalogService) StudentByID(id string) (model.Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.snap.Students {
		if st.ID == id {
			return st, true
		}
	}
	return model.Student{}, false
}

// Students returns the whole roster.
func (s *CatalogService) Students() []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Students)
}

// StudentsInClass returns the roster of one class in snapshot order.
func (s *CatalogService) StudentsInClass(class string) []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Student, 0)
	for _, st := range s.snap.Students {
		if st.Class == class {
			out = append(out, st)
		}
	}
	return out
}

// Subjects returns every subject.
func (s *CatalogService) Subjects() []model.Subject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Subjects)
}

// Subject finds a subject by id.
func (s *CatalogService) Subject(id string) (model.Subject, bool) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.snap.Subjects {
		if sub.ID == id {
			return sub, true
		}
	}
	return model.Subject{}, false
}

// Questions returns the full question bank. It satisfies exam.QuestionBank.
func (s *CatalogService) Questions(_ context.Context) ([]model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Questions), nil
}

// Results returns the results present in the last snapshot.
func (s *CatalogService) Results() []model.ExamResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.Results)
}

// ActiveExam returns the cached active exam, nil when none.
func (s *CatalogService) ActiveExam() *model.ActiveExam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.ActiveExam == nil {
		return nil
	}
	e := *s.snap.ActiveExam
	return &e
}

// SetActiveExam replaces the cached active exam after an admin change.
func (s *CatalogService) SetActiveExam(exam *model.ActiveExam) {
	var cp *model.ActiveExam
	if exam != nil {
		e := *exam
		cp = &e
	}
	s.mu.Lock()
	s.snap.ActiveExam = cp
	s.mu.Unlock()
}

// PutQuestion inserts or replaces a question in the cached bank.
func (s *CatalogService) PutQuestion(q model.Question) {
	q = q.Hydrate()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snap.Questions {
		if s.snap.Questions[i].ID == q.ID {
			s.snap.Questions[i] = q
			return
		}
	}
	s.snap.Questions = append(s.snap.Questions, q)
}

// RemoveQuestion drops a question from the cached bank.
func (s *CatalogService) RemoveQuestion(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Questions = slices.DeleteFunc(s.snap.Questions, func(q model.Question) bool {
		return q.ID == id
	})
}

// AddResult appends a freshly graded result to the cached list.
func (s *CatalogService) AddResult(r model.ExamResult) {
	s.mu.Lock()
	s.snap.Results = append(s.snap.Results, r)
	s.mu.Unlock()
}
