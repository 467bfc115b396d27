package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/navincodesalot/terascout/internal/scout"
)

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is a thread-safe in-memory Store used by engine and API tests
// that don't need a real PostgreSQL instance.
type MemoryStore struct {
	mutex     sync.RWMutex
	scouts    map[string]*scout.Scout
	snapshots map[string]*scout.Snapshot
	events    map[string]map[string]*scout.Event // scoutID -> eventID -> event
	counters  map[string]map[string]int          // scoutID -> dateKey -> count
	steps     map[string]map[string]stepRecord    // scoutID -> stepName -> record
}

type stepRecord struct {
	outcome  []byte
	deadline time.Time
	hasSleep bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scouts:    make(map[string]*scout.Scout),
		snapshots: make(map[string]*scout.Snapshot),
		events:    make(map[string]map[string]*scout.Event),
		counters:  make(map[string]map[string]int),
		steps:     make(map[string]map[string]stepRecord),
	}
}

func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

func (s *MemoryStore) PutScout(_ context.Context, sc *scout.Scout) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.scouts[sc.ScoutID]; exists {
		return ErrAlreadyExists
	}

	scoutCopy := *sc
	s.scouts[sc.ScoutID] = &scoutCopy

	return nil
}

func (s *MemoryStore) GetScout(_ context.Context, scoutID string) (*scout.Scout, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sc, exists := s.scouts[scoutID]
	if !exists {
		return nil, ErrNotFound
	}

	scoutCopy := *sc

	return &scoutCopy, nil
}

func (s *MemoryStore) DeleteScout(_ context.Context, scoutID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.scouts, scoutID)
	delete(s.snapshots, scoutID)
	delete(s.events, scoutID)
	delete(s.counters, scoutID)
	delete(s.steps, scoutID)

	return nil
}

func (s *MemoryStore) ListActiveScouts(_ context.Context, now time.Time) ([]*scout.Scout, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var active []*scout.Scout

	for _, sc := range s.scouts {
		if sc.ExpiresAt.After(now) {
			scoutCopy := *sc
			active = append(active, &scoutCopy)
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ScoutID < active[j].ScoutID })

	return active, nil
}

func (s *MemoryStore) RecordCycleOutcome(_ context.Context, scoutID string, checkedAt time.Time, failures int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sc, exists := s.scouts[scoutID]
	if !exists {
		return ErrNotFound
	}

	sc.ConsecutiveFailures = failures
	sc.LastCheckedAt = checkedAt

	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, scoutID string) (*scout.Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap, exists := s.snapshots[scoutID]
	if !exists {
		return nil, nil
	}

	snapCopy := *snap

	return &snapCopy, nil
}

func (s *MemoryStore) PutSnapshot(_ context.Context, scoutID string, snap *scout.Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapCopy := *snap
	s.snapshots[scoutID] = &snapCopy

	return nil
}

func (s *MemoryStore) RecordEvent(_ context.Context, scoutID string, e *scout.Event) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	byID, exists := s.events[scoutID]
	if !exists {
		byID = make(map[string]*scout.Event)
		s.events[scoutID] = byID
	}

	if _, exists := byID[e.EventID]; exists {
		return false, nil
	}

	eventCopy := *e
	byID[e.EventID] = &eventCopy

	return true, nil
}

func (s *MemoryStore) MarkNotified(_ context.Context, scoutID, eventID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	byID, exists := s.events[scoutID]
	if !exists {
		return nil
	}

	if e, exists := byID[eventID]; exists {
		e.Notified = true
	}

	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, scoutID string, limit int) ([]*scout.Event, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	byID := s.events[scoutID]

	events := make([]*scout.Event, 0, len(byID))

	for _, e := range byID {
		eventCopy := *e
		events = append(events, &eventCopy)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].DetectedAt.After(events[j].DetectedAt) })

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

func (s *MemoryStore) GetEmailCount(_ context.Context, scoutID, dateKey string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.counters[scoutID][dateKey], nil
}

func (s *MemoryStore) IncrementEmailCount(_ context.Context, scoutID, dateKey string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	byDate, exists := s.counters[scoutID]
	if !exists {
		byDate = make(map[string]int)
		s.counters[scoutID] = byDate
	}

	byDate[dateKey]++
	count := byDate[dateKey]

	// Only the current day's counter is retained per spec.md §4.1.
	for key := range byDate {
		if key != dateKey {
			delete(byDate, key)
		}
	}

	return count, nil
}

func (s *MemoryStore) GetStepOutcome(_ context.Context, scoutID, name string) ([]byte, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, exists := s.steps[scoutID][name]
	if !exists || rec.outcome == nil {
		return nil, false, nil
	}

	return rec.outcome, true, nil
}

func (s *MemoryStore) PutStepOutcome(_ context.Context, scoutID, name string, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	byName, exists := s.steps[scoutID]
	if !exists {
		byName = make(map[string]stepRecord)
		s.steps[scoutID] = byName
	}

	rec := byName[name]
	rec.outcome = value
	byName[name] = rec

	return nil
}

func (s *MemoryStore) GetSleepDeadline(_ context.Context, scoutID, name string) (time.Time, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, exists := s.steps[scoutID][name]
	if !exists || !rec.hasSleep {
		return time.Time{}, false, nil
	}

	return rec.deadline, true, nil
}

func (s *MemoryStore) PutSleepDeadline(_ context.Context, scoutID, name string, deadline time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	byName, exists := s.steps[scoutID]
	if !exists {
		byName = make(map[string]stepRecord)
		s.steps[scoutID] = byName
	}

	rec := byName[name]
	rec.deadline = deadline
	rec.hasSleep = true
	byName[name] = rec

	return nil
}

func (s *MemoryStore) ClearSteps(_ context.Context, scoutID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.steps, scoutID)

	return nil
}
