package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
	now   func() time.Time

	// Updates counts successful Update calls; tests use it to assert "no write".
	Updates int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]Call{}, now: time.Now}
}

func (s *MemoryStore) Insert(ctx context.Context, c Call) (Call, error) {
	if c.AccountID == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.calls[c.ID] = c
	return c, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, p Patch) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	if p.ExpectStatus != nil && c.Status != *p.ExpectStatus {
		return Call{}, ErrStatusConflict
	}
	c = p.apply(c)
	c.UpdatedAt = s.now().UTC()
	s.calls[id] = c
	s.Updates++
	return c, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]Call, error) {
	s.mu.Lock()
	out := make([]Call, 0)
	for _, c := range s.calls {
		if f.matches(c) {
			out = append(out, c)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountOpenByVoiceAgent(ctx context.Context, voiceAgentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.VoiceAgentID == voiceAgentID && !c.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (p Patch) apply(c Call) Call {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Outcome != nil {
		c.Outcome = *p.Outcome
	}
	if p.StartTime != nil {
		c.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		t := p.EndTime.UTC()
		c.EndTime = &t
	}
	if p.Duration != nil {
		c.Duration = *p.Duration
	}
	if p.ContactName != nil {
		c.ContactName = *p.ContactName
	}
	if p.Timezone != nil {
		c.Timezone = *p.Timezone
	}
	if p.Transcription != nil {
		c.Transcription = *p.Transcription
	}
	if p.RecordingURL != nil {
		c.RecordingURL = *p.RecordingURL
	}
	if p.AppendNote != nil {
		c.Notes = AppendNote(c.Notes, *p.AppendNote)
	}
	return c
}
