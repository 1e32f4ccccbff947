// Package scheduler runs index passes over configured chats on cron schedules.
//
// A chat has at most one pass in flight. The process has a single ingestion
// pipeline, so a pass that finds it busy with another chat (a CLI, API or
// bot run) is counted as skipped rather than failed; the next tick picks
// up where the stored floor left off.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mediavault/mediavault/internal/chatref"
	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/ingest"
)

// IndexFunc indexes chat from its stored floor. It is called with the
// canonical chat key.
type IndexFunc func(ctx context.Context, chat string) error

// SourceStatus is the schedule state of one chat.
type SourceStatus struct {
	Chat      string    `json:"chat"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"` // Last pass that returned without error
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	Skipped   int       `json:"skipped,omitempty"` // Passes dropped because the pipeline was busy
	LastError string    `json:"last_error,omitempty"`
}

type source struct {
	entry    cron.EntryID
	expr     string
	inFlight bool
	lastRun  time.Time
	lastErr  error
	skipped  int
}

// Scheduler manages cron-based index passes.
type Scheduler struct {
	cron    *cron.Cron
	index   IndexFunc
	logger  *slog.Logger
	mu      sync.RWMutex
	sources map[string]*source // canonical chat -> schedule state

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a Scheduler that calls index for each due chat.
func New(index IndexFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithParser(newParser())),
		index:   index,
		logger:  slog.Default(),
		sources: make(map[string]*source),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func newParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddSource schedules index passes for chat, replacing any existing
// schedule of the same chat under any spelling.
func (s *Scheduler) AddSource(chat, cronExpr string) error {
	key := chatref.Canonical(chat)
	if key == "" {
		return fmt.Errorf("invalid chat %q", chat)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.sources[key]
	if prev != nil {
		s.cron.Remove(prev.entry)
	}

	entry, err := s.cron.AddFunc(cronExpr, func() {
		if s.begin(key) {
			s.run(key)
		}
	})
	if err != nil {
		delete(s.sources, key)
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	src := &source{entry: entry, expr: cronExpr}
	if prev != nil {
		src.inFlight, src.lastRun, src.lastErr, src.skipped = prev.inFlight, prev.lastRun, prev.lastErr, prev.skipped
	}
	s.sources[key] = src
	s.logger.Info("scheduled index",
		"chat", key,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entry).Next)
	return nil
}

// AddSourcesFromConfig adds every enabled source with a schedule. Returns
// the number scheduled and any errors encountered.
func (s *Scheduler) AddSourcesFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0
	for _, src := range cfg.ScheduledSources() {
		if err := s.AddSource(src.Chat, src.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Chat, err))
			continue
		}
		scheduled++
	}
	return scheduled, errs
}

// RemoveSource removes the schedule for chat. A pass in flight finishes.
func (s *Scheduler) RemoveSource(chat string) {
	key := chatref.Canonical(chat)

	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[key]; ok {
		s.cron.Remove(src.entry)
		delete(s.sources, key)
		s.logger.Info("removed schedule", "chat", key)
	}
}

// Start begins executing scheduled passes.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.sources)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "sources", n)
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the cron loop and cancels passes in flight. The returned
// context is done once all of them have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// begin marks a pass for key as in flight. It returns false when the chat
// is unscheduled, already in flight, or the scheduler is stopped.
func (s *Scheduler) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[key]
	if s.stopped || !ok || src.inFlight {
		return false
	}
	src.inFlight = true
	s.wg.Add(1)
	return true
}

// run executes one pass for key. begin must have returned true.
func (s *Scheduler) run(key string) {
	defer s.wg.Done()

	start := time.Now()
	err := s.index(s.ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[key]
	if !ok {
		// Removed while running.
		src = &source{}
	}
	src.inFlight = false

	switch {
	case errors.Is(err, ingest.ErrConcurrentRun):
		src.skipped++
		s.logger.Info("scheduled index skipped, pipeline busy", "chat", key)
	case err != nil:
		src.lastErr = err
		s.logger.Error("scheduled index failed",
			"chat", key,
			"duration", time.Since(start),
			"error", err)
	default:
		src.lastRun = time.Now()
		src.lastErr = nil
		s.logger.Info("scheduled index completed",
			"chat", key,
			"duration", time.Since(start))
	}
}

// IsScheduled reports whether chat has a schedule.
func (s *Scheduler) IsScheduled(chat string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[chatref.Canonical(chat)]
	return ok
}

// TriggerIndex starts a pass for chat outside its schedule.
func (s *Scheduler) TriggerIndex(chat string) error {
	key := chatref.Canonical(chat)

	s.mu.RLock()
	stopped := s.stopped
	src, ok := s.sources[key]
	inFlight := ok && src.inFlight
	s.mu.RUnlock()

	switch {
	case stopped:
		return fmt.Errorf("scheduler is stopped")
	case !ok:
		return fmt.Errorf("chat %s is not scheduled", chat)
	case inFlight:
		return fmt.Errorf("index already running for %s", key)
	}
	if !s.begin(key) {
		return fmt.Errorf("index already running for %s", key)
	}
	go s.run(key)
	return nil
}

// Status returns the state of every scheduled chat, sorted by chat.
func (s *Scheduler) Status() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]SourceStatus, 0, len(s.sources))
	for key, src := range s.sources {
		st := SourceStatus{
			Chat:     key,
			Running:  src.inFlight,
			LastRun:  src.lastRun,
			NextRun:  s.cron.Entry(src.entry).Next,
			Schedule: src.expr,
			Skipped:  src.skipped,
		}
		if src.lastErr != nil {
			st.LastError = src.lastErr.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Chat < statuses[j].Chat })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := newParser().Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
