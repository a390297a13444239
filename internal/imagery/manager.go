package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/storefront-admin/backend/internal/models"
)

// Status represents the edit job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusApplying Status = "applying"
	StatusComplete Status = "complete"
	StatusCanceled Status = "canceled"
	StatusError    Status = "error"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusCanceled || s == StatusError
}

var (
	// ErrRateLimited is returned when a room submits edits too quickly.
	ErrRateLimited = errors.New("too many image edit requests")
	// ErrInvalidEdit is returned for edit requests missing a room or target.
	ErrInvalidEdit = errors.New("invalid image edit request")
)

// Job represents an async image edit.
type Job struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"roomId"`
	Target      EditTarget    `json:"target"`
	SourceRef   string        `json:"sourceRef,omitempty"`
	Status      Status        `json:"status"`
	Result      *models.Image `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

type jobEntry struct {
	job    Job
	req    EditRequest
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOptions tunes an EditManager. Zero values pick the defaults.
type ManagerOptions struct {
	// Timeout bounds a single edit. Default 2 minutes.
	Timeout time.Duration
	// RequestsPerMinute and Burst limit submissions per room. A zero
	// RequestsPerMinute disables limiting.
	RequestsPerMinute float64
	Burst             int
	// MaxConcurrent caps edits running at once. Default 2.
	MaxConcurrent int
}

// EditManager runs image edits as cancelable background jobs. A finished
// background edit replaces the room's background through the provider; a
// canceled or failed one writes nothing.
type EditManager struct {
	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	limiters map[string]*rate.Limiter
	service  EditService
	provider Provider
	opts     ManagerOptions
	sem      chan struct{}
	onUpdate func(Job)
	log      *slog.Logger
}

// NewEditManager creates an edit manager.
func NewEditManager(service EditService, provider Provider, opts ManagerOptions) *EditManager {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &EditManager{
		jobs:     make(map[string]*jobEntry),
		limiters: make(map[string]*rate.Limiter),
		service:  service,
		provider: provider,
		opts:     opts,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		log:      slog.With("component", "image-edit"),
	}
}

// OnUpdate registers a callback receiving a copy of the job after every
// status change. It runs on the job's goroutine and must not block.
func (m *EditManager) OnUpdate(fn func(Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

func (m *EditManager) allow(roomID string) bool {
	if m.opts.RequestsPerMinute <= 0 {
		return true
	}
	lim, ok := m.limiters[roomID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(m.opts.RequestsPerMinute/60), m.opts.Burst)
		m.limiters[roomID] = lim
	}
	return lim.Allow()
}

// Submit validates req and starts the edit.
func (m *EditManager) Submit(req EditRequest) (Job, error) {
	if req.RoomID == "" {
		return Job{}, fmt.Errorf("%w: room id is required", ErrInvalidEdit)
	}
	if !req.Target.Valid() {
		return Job{}, fmt.Errorf("%w: unknown edit target %q", ErrInvalidEdit, req.Target)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	e := &jobEntry{
		job: Job{
			ID:        uuid.New().String(),
			RoomID:    req.RoomID,
			Target:    req.Target,
			SourceRef: req.SourceRef,
			Status:    StatusPending,
			CreatedAt: time.Now(),
		},
		req:    req,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if !m.allow(req.RoomID) {
		m.mu.Unlock()
		cancel()
		return Job{}, fmt.Errorf("room %s: %w", req.RoomID, ErrRateLimited)
	}
	m.jobs[e.job.ID] = e
	job := e.job
	m.mu.Unlock()

	m.log.Info("edit submitted", "job", job.ID, "room", job.RoomID, "target", job.Target)
	go m.run(ctx, e)
	return job, nil
}

func (m *EditManager) run(ctx context.Context, e *jobEntry) {
	defer close(e.done)
	defer e.cancel()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.finish(e, ctx.Err())
		return
	}
	if !m.transition(e, StatusPending, StatusRunning) {
		return
	}

	var source []byte
	if e.req.SourceRef != "" {
		data, err := m.readSource(ctx, e.req.SourceRef)
		if err != nil {
			m.finish(e, err)
			return
		}
		source = data
	}

	asset, err := m.service.Generate(ctx, e.req, source)
	if err != nil {
		m.finish(e, err)
		return
	}
	// A cancel that lands after this point is ignored.
	if !m.transition(e, StatusRunning, StatusApplying) {
		return
	}

	img, err := m.provider.Upload(ctx, asset.Name, asset.ContentType, bytes.NewReader(asset.Data))
	if err == nil && e.req.Target == TargetBackground {
		img, err = m.provider.Replace(ctx, e.req.RoomID, img.Ref)
	}
	if err != nil {
		m.finish(e, err)
		return
	}

	m.mu.Lock()
	e.job.Result = &img
	m.mu.Unlock()
	m.finish(e, nil)
}

func (m *EditManager) readSource(ctx context.Context, ref string) ([]byte, error) {
	rc, err := m.provider.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("opening source image: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, MaxImageBytes))
}

// transition moves e from one status to the next. It fails when the job
// has left from, which happens only through Cancel.
func (m *EditManager) transition(e *jobEntry, from, to Status) bool {
	m.mu.Lock()
	if e.job.Status != from {
		m.mu.Unlock()
		return false
	}
	e.job.Status = to
	job, fn := e.job, m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(job)
	}
	return true
}

// finish marks the job complete or failed (thread-safe). A canceled job
// keeps its canceled status.
func (m *EditManager) finish(e *jobEntry, err error) {
	m.mu.Lock()
	if e.job.Status == StatusCanceled {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	e.job.CompletedAt = &now
	if err != nil {
		e.job.Status = StatusError
		e.job.Error = err.Error()
	} else {
		e.job.Status = StatusComplete
	}
	job, fn := e.job, m.onUpdate
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("edit failed", "job", job.ID, "room", job.RoomID, "error", err)
	} else {
		m.log.Info("edit complete", "job", job.ID, "room", job.RoomID, "asset", job.Result.Ref)
	}
	if fn != nil {
		fn(job)
	}
}

// Cancel stops a pending or running edit. Once the result is being
// applied, or the job has finished, Cancel does nothing.
func (m *EditManager) Cancel(id string) (Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return Job{}, fmt.Errorf("edit job %s: %w", id, models.ErrNotFound)
	}
	if e.job.Status != StatusPending && e.job.Status != StatusRunning {
		job := e.job
		m.mu.Unlock()
		return job, nil
	}
	now := time.Now()
	e.job.Status = StatusCanceled
	e.job.Error = models.ErrEditCanceled.Error()
	e.job.CompletedAt = &now
	job, fn := e.job, m.onUpdate
	m.mu.Unlock()

	e.cancel()
	m.log.Info("edit canceled", "job", id, "room", job.RoomID)
	if fn != nil {
		fn(job)
	}
	return job, nil
}

// Get retrieves a job by ID.
func (m *EditManager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// List returns the room's jobs, newest first. An empty roomID lists all.
func (m *EditManager) List(roomID string) []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		if roomID == "" || e.job.RoomID == roomID {
			out = append(out, e.job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Wait blocks until the job's goroutine has exited or ctx is done.
func (m *EditManager) Wait(ctx context.Context, id string) (Job, error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("edit job %s: %w", id, models.ErrNotFound)
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
	job, _ := m.Get(id)
	return job, nil
}

// CleanupOldJobs removes finished jobs older than maxAge and forgets rooms
// whose rate limit has fully recovered.
func (m *EditManager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, e := range m.jobs {
		if e.job.Status.Terminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	m.pruneLimitersLocked()
	return removed
}

// pruneLimitersLocked drops limiters that have refilled to a full burst.
// A fresh limiter behaves the same, so room ids do not accumulate.
func (m *EditManager) pruneLimitersLocked() {
	for roomID, lim := range m.limiters {
		if lim.Tokens() >= float64(m.opts.Burst) {
			delete(m.limiters, roomID)
		}
	}
}
