// Package ingest walks a chat's message history and commits the media it
// finds to the catalog in batches.
//
// Only one run may be active per Pipeline. A run is cancelled
// cooperatively: the flag is checked before each message and before each
// batch flush, buffered items are always flushed, and in-flight catalog
// writes complete.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mediavault/mediavault/internal/fileref"
	"github.com/mediavault/mediavault/internal/metrics"
	"github.com/mediavault/mediavault/internal/store"
)

// Catalog is the write side of the media catalog used by the pipeline.
type Catalog interface {
	ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error)
	InsertMediaBatch(ctx context.Context, entries []*store.MediaEntry) (inserted, skipped int, err error)
}

var _ Catalog = (*store.Store)(nil)

// Config tunes a Pipeline.
type Config struct {
	BatchSize     int // Entries per catalog write
	ProgressEvery int // Processed messages between progress snapshots
	FetchSize     int // Message ids requested from the source per call
	// FinalNotifyWait bounds how long the final snapshot waits out a
	// rate limit before its single retry.
	FinalNotifyWait time.Duration
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:       50,
		ProgressEvery:   100,
		FetchSize:       200,
		FinalNotifyWait: time.Minute,
	}
}

// Options describes one run.
type Options struct {
	Chat  string // Source chat identifier
	Last  int    // Last message id to visit (inclusive)
	Floor int    // Messages up to and including this id are skipped
}

func (o Options) validate() error {
	if o.Chat == "" {
		return fmt.Errorf("%w: empty chat", ErrInvalidRange)
	}
	if o.Last <= 0 {
		return fmt.Errorf("%w: last message id %d", ErrInvalidRange, o.Last)
	}
	if o.Floor < 0 {
		return fmt.Errorf("%w: negative floor %d", ErrInvalidRange, o.Floor)
	}
	return nil
}

// Pipeline runs index jobs against one catalog and message source.
type Pipeline struct {
	catalog Catalog
	source  Source
	cfg     Config
	logger  *slog.Logger
	sink    ProgressSink
	clock   Clock

	runLock sync.Mutex // held for the full duration of a run

	mu      sync.Mutex // guards current and status
	current *Job
	status  Snapshot
}

// New creates a pipeline.
func New(catalog Catalog, source Source, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = def.FetchSize
	}
	if cfg.FinalNotifyWait <= 0 {
		cfg.FinalNotifyWait = def.FinalNotifyWait
	}
	return &Pipeline{
		catalog: catalog,
		source:  source,
		cfg:     cfg,
		logger:  slog.Default(),
		sink:    NullSink{},
		clock:   realClock{},
		status:  Snapshot{Status: StatusIdle},
	}
}

// WithLogger sets the logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// WithProgress sets the default progress sink.
func (p *Pipeline) WithProgress(sink ProgressSink) *Pipeline {
	p.sink = sink
	return p
}

// WithClock sets the clock used for rate-limit waits.
func (p *Pipeline) WithClock(clock Clock) *Pipeline {
	p.clock = clock
	return p
}

// Run executes a run synchronously. It returns ErrConcurrentRun without
// side effects if another run is active. For a run that started, the
// result is always non-nil; the error is the run's failure, if any.
func (p *Pipeline) Run(ctx context.Context, opts Options, sink ProgressSink) (*Result, error) {
	job, err := p.acquire(opts)
	if err != nil {
		return nil, err
	}
	defer p.runLock.Unlock()

	res := p.execute(ctx, job, sink)
	return res, res.Err
}

// Start begins a run in the background and returns its job id. done, if
// non-nil, is called with the result after the run lock is released.
func (p *Pipeline) Start(ctx context.Context, opts Options, sink ProgressSink, done func(*Result)) (string, error) {
	job, err := p.acquire(opts)
	if err != nil {
		return "", err
	}
	go func() {
		res := p.execute(ctx, job, sink)
		p.runLock.Unlock()
		if done != nil {
			done(res)
		}
	}()
	return job.ID, nil
}

// Cancel requests cancellation of the active run. It reports whether a run
// was active.
func (p *Pipeline) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return false
	}
	p.current.requestCancel()
	return true
}

// Running reports whether a run is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Status returns a snapshot of the active run, or of the last finished run
// when idle.
func (p *Pipeline) Status() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pipeline) acquire(opts Options) (*Job, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if !p.runLock.TryLock() {
		metrics.IndexerRejectedTotal.Inc()
		return nil, ErrConcurrentRun
	}
	job := newJob(opts, p.clock.Now())

	p.mu.Lock()
	p.current = job
	p.status = job.snapshot(StatusRunning, job.StartedAt)
	p.mu.Unlock()
	return job, nil
}

// runner holds the state of one execution.
type runner struct {
	p      *Pipeline
	job    *Job
	sink   ProgressSink
	ctx    context.Context
	logger *slog.Logger
	buffer []*store.MediaEntry
}

func (p *Pipeline) execute(ctx context.Context, job *Job, sink ProgressSink) *Result {
	if sink == nil {
		sink = p.sink
	}
	r := &runner{
		p:      p,
		job:    job,
		sink:   sink,
		ctx:    ctx,
		logger: p.logger.With("job", job.ID, "chat", job.Chat),
		buffer: make([]*store.MediaEntry, 0, p.cfg.BatchSize),
	}

	metrics.IndexerIsRunning.Set(1)
	r.logger.Info("index run started", "floor", job.Floor, "last", job.Last)

	status, walkErr := r.walk()

	// Buffered items are flushed on every exit path.
	r.flush()

	res := &Result{Snapshot: job.snapshot(status, p.clock.Now())}
	if walkErr != nil {
		res.Err = walkErr
		res.Error = walkErr.Error()
	}
	res.Final = true
	r.publish(res.Snapshot)
	r.notifyFinal(res.Snapshot)

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	recordRun(res)
	if walkErr != nil {
		r.logger.Error("index run failed", "error", fmt.Sprintf("%+v", walkErr), "cursor", job.Cursor)
	} else {
		r.logger.Info("index run finished",
			"status", status,
			"saved", job.Counters.Saved,
			"duplicate", job.Counters.Duplicate,
			"deleted", job.Counters.Deleted,
			"non_media", job.Counters.NonMedia,
			"unsupported", job.Counters.Unsupported,
			"errors", job.Counters.Error,
			"elapsed", res.Elapsed,
		)
	}
	return res
}

// cancelled reports whether the run should stop.
func (r *runner) cancelled() bool {
	select {
	case <-r.job.cancelCh:
		return true
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// walk visits Floor+1 .. Last in ascending order.
func (r *runner) walk() (Status, error) {
	cfg := r.p.cfg
	for next := r.job.Floor + 1; next <= r.job.Last; {
		if r.cancelled() {
			return StatusCancelled, nil
		}

		end := next + cfg.FetchSize - 1
		if end > r.job.Last {
			end = r.job.Last
		}
		ids := make([]int, 0, end-next+1)
		for id := next; id <= end; id++ {
			ids = append(ids, id)
		}

		msgs, err := r.fetch(ids)
		if err != nil {
			return StatusFailed, err
		}
		if msgs == nil {
			// Cancelled while fetching.
			return StatusCancelled, nil
		}

		byID := make(map[int]Message, len(msgs))
		for _, m := range msgs {
			byID[m.ID] = m
		}

		for _, id := range ids {
			if r.cancelled() {
				return StatusCancelled, nil
			}
			msg, ok := byID[id]
			if !ok {
				msg = Message{ID: id, Empty: true}
			}
			r.process(msg)
		}
		next = end + 1
	}
	return StatusCompleted, nil
}

// fetch reads ids from the source. A rate limit is waited out once; a
// second failure, or any other error, is fatal to the run. A nil slice
// with a nil error means the run was cancelled meanwhile.
func (r *runner) fetch(ids []int) ([]Message, error) {
	msgs, err := r.p.source.Fetch(r.ctx, r.job.Chat, ids)
	if err == nil {
		return nonNil(msgs), nil
	}
	if r.cancelled() {
		return nil, nil
	}

	rl, ok := IsRateLimited(err)
	if !ok {
		return nil, r.walkError(ids[0], err)
	}
	metrics.IndexerRateLimitWaits.WithLabelValues("source").Inc()
	r.logger.Warn("source rate limited, waiting", "retry_after", rl.RetryAfter, "position", ids[0])

	if !r.wait(rl.RetryAfter) || r.cancelled() {
		return nil, nil
	}

	msgs, err = r.p.source.Fetch(r.ctx, r.job.Chat, ids)
	if err != nil {
		if r.cancelled() {
			return nil, nil
		}
		return nil, r.walkError(ids[0], err)
	}
	return nonNil(msgs), nil
}

func nonNil(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

func (r *runner) walkError(position int, err error) error {
	return eris.Wrapf(&SourceWalkError{Chat: r.job.Chat, Position: position, Err: err},
		"index run %s", r.job.ID)
}

// wait blocks for d. It returns false if the run was cancelled first.
func (r *runner) wait(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-r.p.clock.After(d):
		return true
	case <-r.job.cancelCh:
		return false
	case <-r.ctx.Done():
		return false
	}
}

// process classifies one message and buffers it if it is catalogable.
func (r *runner) process(msg Message) {
	job := r.job
	job.Cursor = msg.ID
	job.Processed++

	switch {
	case msg.Empty:
		job.Counters.Deleted++
	case msg.MediaKind == "":
		job.Counters.NonMedia++
	case !store.ValidKind(msg.MediaKind) || msg.Media == nil:
		job.Counters.Unsupported++
	default:
		entry, err := r.entryFor(msg)
		if err != nil {
			r.logger.Debug("skipping undecodable media", "message", msg.ID, "error", err)
			job.Counters.Unsupported++
			break
		}
		r.buffer = append(r.buffer, entry)
		if len(r.buffer) >= r.p.cfg.BatchSize {
			r.flush()
		}
	}

	snap := job.snapshot(StatusRunning, r.p.clock.Now())
	r.publish(snap)
	if job.Processed%int64(r.p.cfg.ProgressEvery) == 0 {
		r.notify(snap)
	}
}

func (r *runner) entryFor(msg Message) (*store.MediaEntry, error) {
	key, token, err := fileref.Unpack(msg.Media.FileID)
	if err != nil {
		return nil, err
	}
	e := &store.MediaEntry{
		ContentKey:  key,
		AccessToken: token,
		DisplayName: displayName(msg),
		SizeBytes:   msg.Media.FileSize,
		Kind:        msg.MediaKind,
	}
	if msg.Media.MimeType != "" {
		e.MimeType.String, e.MimeType.Valid = msg.Media.MimeType, true
	}
	if msg.Caption != "" {
		e.Caption.String, e.Caption.Valid = msg.Caption, true
	}
	e.SourceChat.String, e.SourceChat.Valid = r.job.Chat, true
	e.SourceMessageID.Int64, e.SourceMessageID.Valid = int64(msg.ID), true
	return e, nil
}

// displayName falls back to the first caption line, then to a generated
// name, for media sent without a file name.
func displayName(msg Message) string {
	if name := strings.TrimSpace(msg.Media.FileName); name != "" {
		return name
	}
	if line, _, _ := strings.Cut(strings.TrimSpace(msg.Caption), "\n"); strings.TrimSpace(line) != "" {
		return strings.TrimSpace(line)
	}
	return fmt.Sprintf("%s_%d", msg.MediaKind, msg.ID)
}

// flush commits the buffer. Repeats within the batch and keys already in
// the catalog count as duplicates; a failed write counts every new entry
// of the batch as an error.
func (r *runner) flush() {
	if len(r.buffer) == 0 {
		return
	}
	batch := r.buffer
	r.buffer = make([]*store.MediaEntry, 0, r.p.cfg.BatchSize)

	// In-flight writes complete even when the run is being cancelled.
	ctx := context.WithoutCancel(r.ctx)
	job := r.job

	seen := make(map[string]bool, len(batch))
	unique := make([]*store.MediaEntry, 0, len(batch))
	keys := make([]string, 0, len(batch))
	for _, e := range batch {
		if seen[e.ContentKey] {
			job.Counters.Duplicate++
			continue
		}
		seen[e.ContentKey] = true
		unique = append(unique, e)
		keys = append(keys, e.ContentKey)
	}

	existing, err := r.p.catalog.ExistingKeys(ctx, keys)
	if err != nil {
		r.logger.Warn("duplicate check failed", "batch", len(unique), "error", err)
		job.Counters.Error += int64(len(unique))
		return
	}

	fresh := unique[:0:0]
	for _, e := range unique {
		if existing[e.ContentKey] {
			job.Counters.Duplicate++
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return
	}

	inserted, skipped, err := r.p.catalog.InsertMediaBatch(ctx, fresh)
	if err != nil {
		r.logger.Warn("batch insert failed", "batch", len(fresh), "error", err)
		job.Counters.Error += int64(len(fresh))
		return
	}
	job.Counters.Saved += int64(inserted)
	// Keys committed by someone else since the existence check.
	job.Counters.Duplicate += int64(skipped)
	r.logger.Debug("batch committed", "saved", inserted, "skipped", skipped, "cursor", job.Cursor)
}

func (r *runner) publish(snap Snapshot) {
	r.p.mu.Lock()
	r.p.status = snap
	r.p.mu.Unlock()
}

// notify sends a progress snapshot. Failures never stop the run.
func (r *runner) notify(snap Snapshot) {
	err := r.sink.Notify(r.ctx, snap)
	if err == nil {
		return
	}
	if _, ok := IsRateLimited(err); ok {
		metrics.IndexerRateLimitWaits.WithLabelValues("progress").Inc()
		r.logger.Debug("progress update rate limited", "error", err)
		return
	}
	r.logger.Warn("progress update failed", "error", err)
}

// notifyFinal sends the final snapshot, waiting out one rate limit of at
// most FinalNotifyWait.
func (r *runner) notifyFinal(snap Snapshot) {
	ctx := context.WithoutCancel(r.ctx)
	err := r.sink.Notify(ctx, snap)
	if err == nil {
		return
	}
	rl, ok := IsRateLimited(err)
	if !ok {
		r.logger.Warn("final progress update failed", "error", err)
		return
	}
	metrics.IndexerRateLimitWaits.WithLabelValues("progress").Inc()
	if rl.RetryAfter > r.p.cfg.FinalNotifyWait {
		r.logger.Warn("final progress update dropped", "retry_after", rl.RetryAfter)
		return
	}
	<-r.p.clock.After(rl.RetryAfter)
	if err := r.sink.Notify(ctx, snap); err != nil {
		r.logger.Warn("final progress update failed after retry", "error", err)
	}
}

func recordRun(res *Result) {
	metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.IndexerLastRunDuration.Set(res.Elapsed.Seconds())
	metrics.IndexerLastRunTimestamp.Set(float64(res.StartedAt.Add(res.Elapsed).Unix()))

	c := res.Counters
	for outcome, n := range map[string]int64{
		"saved":       c.Saved,
		"duplicate":   c.Duplicate,
		"deleted":     c.Deleted,
		"non_media":   c.NonMedia,
		"unsupported": c.Unsupported,
		"error":       c.Error,
	} {
		metrics.IndexerItemsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}
