package worker

import (
	"context"
	"sync"
	"time"

	"docuexplore/internal/apperr"
	"docuexplore/internal/models"
	"docuexplore/internal/session"
)

type jobKind int

const (
	jobUpload jobKind = iota
	jobAsk
	jobReset
)

func (k jobKind) String() string {
	switch k {
	case jobUpload:
		return "upload"
	case jobAsk:
		return "ask"
	case jobReset:
		return "reset"
	default:
		return "unknown"
	}
}

type job struct {
	kind     jobKind
	ctx      context.Context
	upload   session.UploadRequest
	question string
	resultCh chan jobResult
}

type jobResult struct {
	message models.Message
	err     error
}

// sessionWorker owns one orchestrator and runs its jobs in order.
type sessionWorker struct {
	id     string
	orch   *session.Orchestrator
	jobs   chan job
	stopCh chan struct{}
	once   sync.Once

	mu       sync.Mutex
	pending  int
	cancel   context.CancelFunc
	lastSeen time.Time
	stopped  bool

	// held while a snapshot is written; stop waits on it
	persistMu sync.Mutex
}

var errWorkerStopped = apperr.New(apperr.KindBusy, "the session was closed, please try again", nil)

func newSessionWorker(id string, orch *session.Orchestrator, queueLen int, now time.Time) *sessionWorker {
	return &sessionWorker{
		id:       id,
		orch:     orch,
		jobs:     make(chan job, queueLen),
		stopCh:   make(chan struct{}),
		lastSeen: now,
	}
}

// enqueue adds a job; exclusive jobs are refused while anything is outstanding.
func (w *sessionWorker) enqueue(j job, exclusive bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errWorkerStopped
	}
	if exclusive && w.pending > 0 {
		return apperr.New(apperr.KindBusy, "the previous request is still being processed", nil)
	}
	select {
	case w.jobs <- j:
		w.pending++
		return nil
	default:
		return apperr.New(apperr.KindBusy, "too many pending requests", nil)
	}
}

func (w *sessionWorker) begin(cancel context.CancelFunc) {
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
}

func (w *sessionWorker) finish(now time.Time) {
	w.mu.Lock()
	w.cancel = nil
	if w.pending > 0 {
		w.pending--
	}
	w.lastSeen = now
	w.mu.Unlock()
}

// cancelRunning aborts the job currently executing, if any.
func (w *sessionWorker) cancelRunning() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
}

func (w *sessionWorker) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// saveUnlessStopped runs save unless the worker was stopped first.
func (w *sessionWorker) saveUnlessStopped(save func()) bool {
	w.persistMu.Lock()
	defer w.persistMu.Unlock()
	if w.isStopped() {
		return false
	}
	save()
	return true
}

// drain fails every queued job so no caller waits on a stopped worker.
func (w *sessionWorker) drain() {
	for {
		select {
		case j := <-w.jobs:
			if j.resultCh != nil {
				j.resultCh <- jobResult{err: errWorkerStopped}
			}
		default:
			return
		}
	}
}

func (w *sessionWorker) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending > 0
}

func (w *sessionWorker) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *sessionWorker) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

func (w *sessionWorker) view() models.SessionView {
	v := w.orch.Snapshot()
	v.Pending = w.busy()
	return v
}

// stop cancels the running job and returns once no snapshot write is in
// flight; later writes are skipped.
func (w *sessionWorker) stop() {
	w.once.Do(func() {
		w.mu.Lock()
		w.stopped = true
		if w.cancel != nil {
			w.cancel()
		}
		w.mu.Unlock()
		close(w.stopCh)
		w.persistMu.Lock()
		w.persistMu.Unlock()
	})
}
