package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"docuexplore/internal/logger"
	"docuexplore/internal/models"
	"docuexplore/internal/redis"
	"docuexplore/internal/session"
)

const (
	defaultQueueLen  = 4
	defaultIdleTTL   = time.Hour
	storeTimeout     = 3 * time.Second
	defaultReapEvery = time.Minute
)

type Config struct {
	QueueSize int
	IdleTTL   time.Duration
}

// Manager keeps one worker per browser session.
type Manager struct {
	svc      session.Services
	store    session.Store
	queueLen int
	idleTTL  time.Duration
	nodeID   string
	log      *logger.Logger
	now      func() time.Time
	bus      *invalidationBus

	mu      sync.Mutex
	workers map[string]*sessionWorker
}

func NewManager(svc session.Services, store session.Store, cfg Config, log *logger.Logger) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueLen
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if store == nil {
		store = session.NewMemoryStore(cfg.IdleTTL)
	}
	return &Manager{
		svc:      svc,
		store:    store,
		queueLen: cfg.QueueSize,
		idleTTL:  cfg.IdleTTL,
		nodeID:   uuid.NewString(),
		log:      logger.OrNop(log).With("component", "worker"),
		now:      time.Now,
		workers:  make(map[string]*sessionWorker),
	}
}

// EnableInvalidation shares session changes with other instances through redis pub/sub.
func (m *Manager) EnableInvalidation(ctx context.Context, client *redis.Client) {
	m.bus = newInvalidationBus(client, m.log)
	m.bus.startListener(ctx, m.handleInvalidation)
}

// Upload starts ingestion in the background. It is refused while another job is outstanding.
func (m *Manager) Upload(ctx context.Context, id string, req session.UploadRequest) error {
	w := m.ensureWorker(ctx, id)
	return w.enqueue(job{kind: jobUpload, ctx: context.Background(), upload: req}, true)
}

// Ask runs one question and waits for the answer.
func (m *Manager) Ask(ctx context.Context, id, question string) (models.Message, error) {
	w := m.ensureWorker(ctx, id)
	resultCh := make(chan jobResult, 1)
	if err := w.enqueue(job{kind: jobAsk, ctx: ctx, question: question, resultCh: resultCh}, true); err != nil {
		return models.Message{}, err
	}
	select {
	case res := <-resultCh:
		return res.message, res.err
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

// Reset aborts any running job and returns the session to NO_DOCUMENT.
func (m *Manager) Reset(ctx context.Context, id string) error {
	w := m.ensureWorker(ctx, id)
	w.cancelRunning()
	resultCh := make(chan jobResult, 1)
	if err := w.enqueue(job{kind: jobReset, ctx: context.Background(), resultCh: resultCh}, false); err != nil {
		return err
	}
	select {
	case res := <-resultCh:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the session view without creating a session for unknown ids.
func (m *Manager) Snapshot(ctx context.Context, id string) models.SessionView {
	if w := m.getWorker(id); w != nil {
		w.touch(m.now())
		return w.view()
	}
	if _, err := m.store.Load(ctx, id); err == nil {
		return m.ensureWorker(ctx, id).view()
	}
	return models.SessionView{ID: id, Phase: models.PhaseNoDocument, History: []models.Message{}}
}

// End stops the session worker and discards its snapshot.
func (m *Manager) End(ctx context.Context, id string) {
	m.mu.Lock()
	w := m.workers[id]
	delete(m.workers, id)
	m.mu.Unlock()
	if w != nil {
		w.stop()
	}
	m.discard(ctx, id)
}

// StartReaper ends sessions that have been idle for longer than the session TTL.
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultReapEvery
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.expireIdle(); n > 0 {
					m.log.Info("expired idle sessions", "count", n)
				}
			}
		}
	}()
}

// Shutdown stops every worker; snapshots are kept.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	workers := make([]*sessionWorker, 0, len(m.workers))
	for id, w := range m.workers {
		workers = append(workers, w)
		delete(m.workers, id)
	}
	m.mu.Unlock()
	for _, w := range workers {
		w.stop()
	}
}

func (m *Manager) expireIdle() int {
	now := m.now()
	var stale []*sessionWorker
	m.mu.Lock()
	for id, w := range m.workers {
		if w.busy() || now.Sub(w.idleSince()) < m.idleTTL {
			continue
		}
		stale = append(stale, w)
		delete(m.workers, id)
	}
	m.mu.Unlock()

	for _, w := range stale {
		w.stop()
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		m.discard(ctx, w.id)
		cancel()
	}
	return len(stale)
}

func (m *Manager) getWorker(id string) *sessionWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workers[id]
}

func (m *Manager) ensureWorker(ctx context.Context, id string) *sessionWorker {
	if w := m.getWorker(id); w != nil {
		w.touch(m.now())
		return w
	}

	orch := session.NewOrchestrator(id, m.svc, m.log)
	view, err := m.store.Load(ctx, id)
	switch {
	case err == nil:
		orch.Restore(*view)
		m.log.Debug("session restored", "session_id", id, "phase", view.Phase)
	case !errors.Is(err, session.ErrNotFound):
		m.log.Warn("load session snapshot failed", "session_id", id, "error", err)
	}

	m.mu.Lock()
	if w, ok := m.workers[id]; ok {
		m.mu.Unlock()
		w.touch(m.now())
		return w
	}
	w := newSessionWorker(id, orch, m.queueLen, m.now())
	m.workers[id] = w
	m.mu.Unlock()

	go m.runWorker(w)
	return w
}

func (m *Manager) runWorker(w *sessionWorker) {
	defer func() {
		m.mu.Lock()
		if m.workers[w.id] == w {
			delete(m.workers, w.id)
		}
		m.mu.Unlock()
	}()

	for {
		select {
		case <-w.stopCh:
			w.drain()
			m.log.Debug("session worker stopped", "session_id", w.id)
			return
		case j := <-w.jobs:
			m.handle(w, j)
		}
	}
}

func (m *Manager) handle(w *sessionWorker, j job) {
	if w.isStopped() {
		if j.resultCh != nil {
			j.resultCh <- jobResult{err: errWorkerStopped}
		}
		return
	}
	parent := j.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	w.begin(cancel)

	var res jobResult
	start := m.now()
	switch j.kind {
	case jobUpload:
		res.err = w.orch.Upload(ctx, j.upload)
	case jobAsk:
		res.message, res.err = w.orch.Ask(ctx, j.question)
	case jobReset:
		w.orch.Reset()
	}
	cancel()
	m.log.Debug("session job finished", "session_id", w.id, "job", j.kind.String(), "elapsed", m.now().Sub(start).String(), "error", res.err)

	if !w.saveUnlessStopped(func() { m.persist(w) }) {
		m.log.Debug("session stopped, snapshot not saved", "session_id", w.id)
	}
	w.finish(m.now())
	if j.resultCh != nil {
		j.resultCh <- res
	}
}

func (m *Manager) persist(w *sessionWorker) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.Save(ctx, w.orch.Snapshot()); err != nil {
		m.log.Warn("save session snapshot failed", "session_id", w.id, "error", err)
		return
	}
	m.bus.publish(invalidateMessage{SessionID: w.id, Origin: m.nodeID})
}

func (m *Manager) discard(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		m.log.Warn("delete session snapshot failed", "session_id", id, "error", err)
	}
	m.bus.publish(invalidateMessage{SessionID: id, Origin: m.nodeID, Ended: true})
}

// handleInvalidation drops the local copy of a session another instance changed,
// so the next request restores it from the store.
func (m *Manager) handleInvalidation(msg invalidateMessage) {
	if msg.Origin == m.nodeID || msg.SessionID == "" {
		return
	}
	m.mu.Lock()
	w, ok := m.workers[msg.SessionID]
	if ok && (msg.Ended || !w.busy()) {
		delete(m.workers, msg.SessionID)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if ok {
		w.stop()
		m.log.Debug("session invalidated by peer", "session_id", msg.SessionID, "ended", msg.Ended)
	}
}
