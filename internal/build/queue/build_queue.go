// Package queue serializes site rebuilds requested by the preview server.
package queue

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// BuildType represents what triggered a build job.
type BuildType string

const (
	BuildTypeInitial BuildType = "initial" // First build when the server starts
	BuildTypeWatch   BuildType = "watch"   // Source file change
	BuildTypeManual  BuildType = "manual"
)

// BuildStatus represents the current status of a build job.
type BuildStatus string

const (
	BuildStatusQueued    BuildStatus = "queued"
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusCompleted BuildStatus = "completed"
	BuildStatusFailed    BuildStatus = "failed"
)

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = stdErrors.New("build queue stopped")

// BuildJob represents a single build job in the queue.
type BuildJob struct {
	ID          string        `json:"id"`
	Type        BuildType     `json:"type"`
	Status      BuildStatus   `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
	Outcome     build.Outcome `json:"outcome,omitempty"`
}

// Runner executes one build.
type Runner interface {
	Run(ctx context.Context) (*build.Report, error)
}

// BuildQueue runs builds one at a time. While a build is running at most
// one further job waits; later requests are merged into the waiting job.
type BuildQueue struct {
	runner Runner

	mu          sync.RWMutex
	pending     *BuildJob
	active      *BuildJob
	history     []*BuildJob
	historySize int
	stopped     bool

	wake     chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup

	onComplete func(*BuildJob, *build.Report)
}

// New creates a queue executing jobs with runner.
func New(runner Runner) *BuildQueue {
	if runner == nil {
		panic("queue.New: runner is required")
	}
	return &BuildQueue{
		runner:      runner,
		historySize: 20,
		wake:        make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
}

// OnComplete registers a callback invoked after every job, from the worker goroutine.
func (bq *BuildQueue) OnComplete(fn func(*BuildJob, *build.Report)) {
	bq.mu.Lock()
	bq.onComplete = fn
	bq.mu.Unlock()
}

// Start begins processing jobs.
func (bq *BuildQueue) Start(ctx context.Context) {
	bq.wg.Add(1)
	go bq.worker(ctx)
}

// Stop waits for the running job to finish and discards the pending one.
func (bq *BuildQueue) Stop() {
	bq.mu.Lock()
	if bq.stopped {
		bq.mu.Unlock()
		return
	}
	bq.stopped = true
	bq.pending = nil
	bq.mu.Unlock()
	close(bq.stopChan)
	bq.wg.Wait()
}

// Enqueue requests a build. It returns the job that will serve the
// request, which is an already waiting job when one exists.
func (bq *BuildQueue) Enqueue(typ BuildType, reason string) (*BuildJob, error) {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	if bq.stopped {
		return nil, ErrStopped
	}
	if bq.pending != nil {
		slog.Debug("Build already queued, merging request", "job_id", bq.pending.ID, "reason", reason)
		cp := *bq.pending
		return &cp, nil
	}
	job := &BuildJob{
		ID:        uuid.NewString(),
		Type:      typ,
		Status:    BuildStatusQueued,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	bq.pending = job
	select {
	case bq.wake <- struct{}{}:
	default:
	}
	cp := *job
	return &cp, nil
}

// Active returns a copy of the running job, if any.
func (bq *BuildQueue) Active() (*BuildJob, bool) {
	bq.mu.RLock()
	defer bq.mu.RUnlock()
	if bq.active == nil {
		return nil, false
	}
	cp := *bq.active
	return &cp, true
}

// History returns copies of finished jobs, oldest first.
func (bq *BuildQueue) History() []BuildJob {
	bq.mu.RLock()
	defer bq.mu.RUnlock()
	out := make([]BuildJob, len(bq.history))
	for i, j := range bq.history {
		out[i] = *j
	}
	return out
}

func (bq *BuildQueue) worker(ctx context.Context) {
	defer bq.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-bq.stopChan:
			return
		case <-bq.wake:
			bq.mu.Lock()
			job := bq.pending
			bq.pending = nil
			bq.mu.Unlock()
			if job != nil {
				bq.processJob(ctx, job)
			}
		}
	}
}

func (bq *BuildQueue) processJob(ctx context.Context, job *BuildJob) {
	startTime := time.Now()
	bq.mu.Lock()
	job.StartedAt = &startTime
	job.Status = BuildStatusRunning
	bq.active = job
	bq.mu.Unlock()

	slog.Info("Rebuilding site", "job_id", job.ID, "type", string(job.Type), "reason", job.Reason)
	report, err := bq.runner.Run(ctx)

	endTime := time.Now()
	bq.mu.Lock()
	job.CompletedAt = &endTime
	job.Duration = endTime.Sub(startTime)
	if report != nil {
		job.Outcome = report.Outcome
	}
	if err != nil {
		job.Status = BuildStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = BuildStatusCompleted
	}
	bq.active = nil
	bq.addToHistory(job)
	onComplete := bq.onComplete
	bq.mu.Unlock()

	if err != nil {
		slog.Error("Rebuild failed", "job_id", job.ID, logfields.Error(err))
	}
	if onComplete != nil {
		onComplete(job, report)
	}
}

func (bq *BuildQueue) addToHistory(job *BuildJob) {
	bq.history = append(bq.history, job)
	if len(bq.history) > bq.historySize {
		copy(bq.history, bq.history[len(bq.history)-bq.historySize:])
		bq.history = bq.history[:bq.historySize]
	}
}
