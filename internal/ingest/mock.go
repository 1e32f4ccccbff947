package ingest

import (
	"context"
	"sync"
	"time"
)

// MockSource is an in-memory Source for testing.
type MockSource struct {
	mu sync.Mutex

	// Messages indexed by position. Missing positions read as empty.
	Messages map[int]Message

	// OnFetch, if set, is called with the requested ids before the
	// messages are returned.
	OnFetch func(ids []int)

	// Error injection. FetchErrors are returned in order, one per call,
	// before falling back to normal behaviour; a nil entry means success.
	FetchErrors []error

	// Call tracking for assertions
	FetchCalls [][]int
	LastChat   string
}

// NewMockSource creates a mock source with no messages.
func NewMockSource() *MockSource {
	return &MockSource{Messages: make(map[int]Message)}
}

// Fetch returns the stored messages for ids.
func (m *MockSource) Fetch(ctx context.Context, chat string, ids []int) ([]Message, error) {
	m.mu.Lock()
	m.FetchCalls = append(m.FetchCalls, append([]int(nil), ids...))
	m.LastChat = chat
	var injected error
	if len(m.FetchErrors) > 0 {
		injected = m.FetchErrors[0]
		m.FetchErrors = m.FetchErrors[1:]
	}
	hook := m.OnFetch
	m.mu.Unlock()

	if hook != nil {
		hook(ids)
	}
	if injected != nil {
		return nil, injected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := m.Messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Put stores a message at its position.
func (m *MockSource) Put(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[msg.ID] = msg
}

// PutMedia stores a media message of kind at id.
func (m *MockSource) PutMedia(id int, kind, fileID, name string) {
	m.Put(Message{
		ID:        id,
		MediaKind: kind,
		Media:     &Media{FileID: fileID, FileName: name, FileSize: 1 << 20},
	})
}

// PutText stores a message without media at id.
func (m *MockSource) PutText(id int, text string) {
	m.Put(Message{ID: id, Caption: text})
}

// Calls returns the number of Fetch calls so far.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.FetchCalls)
}

var _ Source = (*MockSource)(nil)

// RecordingSink records every snapshot it receives.
type RecordingSink struct {
	mu sync.Mutex

	// Errors are returned in order, one per call; a nil entry means
	// success.
	Errors []error

	Snapshots []Snapshot
}

// Notify records snap.
func (s *RecordingSink) Notify(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots = append(s.Snapshots, snap)
	if len(s.Errors) > 0 {
		err := s.Errors[0]
		s.Errors = s.Errors[1:]
		return err
	}
	return nil
}

// All returns a copy of the recorded snapshots.
func (s *RecordingSink) All() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.Snapshots...)
}

// Last returns the most recent snapshot, or the zero value.
func (s *RecordingSink) Last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Snapshots) == 0 {
		return Snapshot{}
	}
	return s.Snapshots[len(s.Snapshots)-1]
}

var _ ProgressSink = (*RecordingSink)(nil)

// FakeClock is a Clock whose waits complete immediately and are recorded.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	Waits []time.Duration
}

// NewFakeClock returns a clock starting at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock by d and returns an already-fired channel.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Waits = append(c.Waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ Clock = (*FakeClock)(nil)
