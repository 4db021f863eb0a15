// Package memory provides an in-memory URL and check store for development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

type clock interface {
	Now() time.Time
}

// Store keeps URLs and checks in process memory. Ids are assigned
// sequentially starting at 1.
type Store struct {
	mu        sync.RWMutex
	clock     clock
	urls      map[int64]analyzer.URLRecord
	byName    map[string]int64
	checks    map[int64][]analyzer.CheckRecord
	nextURL   int64
	nextCheck int64
}

// New constructs an empty Store. A nil clock falls back to time.Now in UTC.
func New(clk clock) *Store {
	return &Store{
		clock:  clk,
		urls:   make(map[int64]analyzer.URLRecord),
		byName: make(map[string]int64),
		checks: make(map[int64][]analyzer.CheckRecord),
	}
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

// CreateURL stores a new URL. Names are unique.
func (s *Store) CreateURL(_ context.Context, name string) (analyzer.URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[name]; exists {
		return analyzer.URLRecord{}, analyzer.ErrDuplicateURL
	}
	s.nextURL++
	rec := analyzer.URLRecord{ID: s.nextURL, Name: name, CreatedAt: s.now()}
	s.urls[rec.ID] = rec
	s.byName[name] = rec.ID
	return rec, nil
}

// FindURLByID returns the URL or nil when absent.
func (s *Store) FindURLByID(_ context.Context, id int64) (*analyzer.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.urls[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// FindURLByName returns the URL or nil when absent.
func (s *Store) FindURLByName(_ context.Context, name string) (*analyzer.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, nil
	}
	rec := s.urls[id]
	return &rec, nil
}

// ListURLs returns all URLs, newest first.
func (s *Store) ListURLs(_ context.Context) ([]analyzer.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedURLs(), nil
}

// ListURLsWithLatestCheck returns all URLs, newest first, with their latest check.
func (s *Store) ListURLsWithLatestCheck(_ context.Context) ([]analyzer.URLWithLatestCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := s.sortedURLs()
	out := make([]analyzer.URLWithLatestCheck, 0, len(urls))
	for _, u := range urls {
		out = append(out, analyzer.URLWithLatestCheck{URL: u, LatestCheck: s.latest(u.ID)})
	}
	return out, nil
}

// CreateCheck appends a check. The URL must exist.
func (s *Store) CreateCheck(_ context.Context, check analyzer.NewCheck) (analyzer.CheckRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[check.URLID]; !ok {
		return analyzer.CheckRecord{}, analyzer.ErrURLNotFound
	}
	s.nextCheck++
	rec := analyzer.CheckRecord{
		ID:          s.nextCheck,
		URLID:       check.URLID,
		StatusCode:  check.StatusCode,
		H1:          cloneString(check.H1),
		Title:       cloneString(check.Title),
		Description: cloneString(check.Description),
		CreatedAt:   s.now(),
	}
	s.checks[check.URLID] = append(s.checks[check.URLID], rec)
	return rec, nil
}

// ListChecksByURLID returns the URL's checks, newest first.
func (s *Store) ListChecksByURLID(_ context.Context, urlID int64) ([]analyzer.CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.checks[urlID]
	out := make([]analyzer.CheckRecord, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

// FindLatestCheckByURLID returns the check with the greatest id, or nil.
func (s *Store) FindLatestCheckByURLID(_ context.Context, urlID int64) (*analyzer.CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest(urlID), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Migrate is a no-op; the store has no schema.
func (s *Store) Migrate(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) sortedURLs() []analyzer.URLRecord {
	out := make([]analyzer.URLRecord, 0, len(s.urls))
	for _, u := range s.urls {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// checks are appended in id order, so the last one is the latest.
func (s *Store) latest(urlID int64) *analyzer.CheckRecord {
	list := s.checks[urlID]
	if len(list) == 0 {
		return nil
	}
	rec := list[len(list)-1]
	return &rec
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
