package usecase

import (
	"context"
	"sync"
	"time"

	"SignalGrid/internal/domain/models"
)

type fakeStore struct {
	mu      sync.Mutex
	puts    []models.PersistedRecord
	batches [][]models.PersistedRecord
	scan    []models.PersistedRecord
	scanErr error
	putErr  error
	// failBatch makes PutBatch fail for the given call index (0-based).
	failBatch map[int]bool
	putDelay  time.Duration
}

func (s *fakeStore) Put(ctx context.Context, rec models.PersistedRecord) error {
	if s.putDelay > 0 {
		time.Sleep(s.putDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts = append(s.puts, rec)
	return nil
}

func (s *fakeStore) PutBatch(ctx context.Context, recs []models.PersistedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.batches)
	cp := make([]models.PersistedRecord, len(recs))
	copy(cp, recs)
	s.batches = append(s.batches, cp)
	if s.failBatch[idx] {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *fakeStore) ScanAll(ctx context.Context) ([]models.PersistedRecord, error) {
	return s.scan, s.scanErr
}

func (s *fakeStore) Health(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                     { return nil }

func (s *fakeStore) Puts() []models.PersistedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PersistedRecord, len(s.puts))
	copy(out, s.puts)
	return out
}

type capturePersister struct {
	mu   sync.Mutex
	recs []models.PersistedRecord
}

func (p *capturePersister) Enqueue(rec models.PersistedRecord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return true
}

func (p *capturePersister) Close(context.Context) error { return nil }

// latest returns the last enqueued record per key.
func (p *capturePersister) latest() []models.PersistedRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]int)
	var out []models.PersistedRecord
	for _, r := range p.recs {
		if i, ok := seen[r.Key]; ok {
			out[i] = r
			continue
		}
		seen[r.Key] = len(out)
		out = append(out, r)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}
