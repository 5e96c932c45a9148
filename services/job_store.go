package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pubmed-loader/models"
)

// JobStore ist die Registry aller Jobs im Speicher.
//
// Die Map selbst ist durch ein RWMutex geschützt, der Zustand jedes Jobs liegt als
// unveränderlicher Snapshot hinter einem atomic.Pointer. Get liest nur den Pointer und
// blockiert weder den Schreiber noch Leser anderer Jobs. Update kopiert den Snapshot,
// verändert die Kopie und tauscht sie atomar aus. Pro Job gibt es genau einen Schreiber.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
	now  func() time.Time
}

type jobEntry struct {
	state atomic.Pointer[models.Job]
	// write serialisiert Updates, falls doch zwei Schreiber auftreten (z.B. Shutdown).
	write sync.Mutex
}

// NewJobStore erstellt einen leeren JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*jobEntry),
		now:  time.Now,
	}
}

// Create legt einen neuen Job im Zustand Pending an und gibt seine ID zurück.
// Die ID ist eine zufällige UUID und dient gleichzeitig als Zugriffsschlüssel.
func (s *JobStore) Create(q models.SearchQuery) string {
	now := s.now().UTC()
	job := &models.Job{
		ID:        uuid.NewString(),
		Status:    models.StatusPending,
		Query:     q,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := &jobEntry{}
	entry.state.Store(job)

	s.mu.Lock()
	s.jobs[job.ID] = entry
	s.mu.Unlock()
	return job.ID
}

// Get liefert eine Kopie des aktuellen Zustands.
func (s *JobStore) Get(id string) (models.Job, error) {
	entry, ok := s.entry(id)
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return *entry.state.Load(), nil
}

// Update wendet mutate auf eine Kopie des Jobs an und veröffentlicht das Ergebnis atomar.
// Jobs im Endzustand werden nicht mehr verändert.
func (s *JobStore) Update(id string, mutate func(*models.Job)) (models.Job, error) {
	entry, ok := s.entry(id)
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	entry.write.Lock()
	defer entry.write.Unlock()

	current := entry.state.Load()
	if current.Status.Terminal() {
		return *current, ErrJobFinished
	}
	next := *current
	mutate(&next)
	next.UpdatedAt = s.now().UTC()
	entry.state.Store(&next)
	return next, nil
}

// Sweep entfernt Jobs, die vor before beendet wurden, und gibt deren Anzahl zurück.
// Laufende und wartende Jobs bleiben immer erhalten.
func (s *JobStore) Sweep(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.jobs {
		job := entry.state.Load()
		if !job.Status.Terminal() || job.FinishedAt == nil {
			continue
		}
		if job.FinishedAt.Before(before) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Len gibt die Anzahl der gehaltenen Jobs zurück.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Clear verwirft alle Jobs, z.B. beim Beenden des Prozesses.
func (s *JobStore) Clear() {
	s.mu.Lock()
	s.jobs = make(map[string]*jobEntry)
	s.mu.Unlock()
}

func (s *JobStore) entry(id string) (*jobEntry, bool) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	s.mu.RUnlock()
	return entry, ok
}
