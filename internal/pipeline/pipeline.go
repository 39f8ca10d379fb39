// Package pipeline runs research jobs through a linear state machine with
// pause, cancel and resume. The run loop owns the job record; concurrent
// search and fetch fan-out happens inside the acquisition session and is
// merged back serially between phases.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/acquire"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/budget"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evaluate"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evidence"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/index"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/router"
)

// Generator produces text through the routing layer. Satisfied by
// *router.Router.
type Generator interface {
	Generate(ctx context.Context, req router.Request) router.Envelope
	GenerateJSON(ctx context.Context, req router.Request) router.Envelope
}

// Evaluator judges evidence coverage and draft sufficiency. Satisfied by
// *evaluate.Evaluator.
type Evaluator interface {
	Decompose(ctx context.Context, question string) []string
	EvaluateCoverage(ctx context.Context, question string, subQuestions []string, chunks []evaluate.EvidenceChunk) evaluate.CoverageResult
	DeepSearchQueries(ctx context.Context, question string, chunks []evaluate.EvidenceChunk, max int) []string
	VerifySufficiency(ctx context.Context, question string, subQuestions []string, draft string) evaluate.SufficiencyResult
}

// AcquireSession is one job's discovery and fetch state. Satisfied by
// *acquire.Session.
type AcquireSession interface {
	SearchMultiLane(ctx context.Context, queries []string, domainContext []string) []acquire.Candidate
	Acquire(ctx context.Context, candidates []acquire.Candidate, remaining int) ([]acquire.Source, []acquire.SourceHealthEntry)
	DeadChannels() []string
}

// SessionFactory builds a fresh acquisition session per job.
type SessionFactory func(question string) AcquireSession

// Indexer is the per-job evidence index. Satisfied by *index.Index.
type Indexer interface {
	AddDocument(ctx context.Context, doc index.Document) (int, error)
	Search(ctx context.Context, q string, k int) ([]index.Hit, error)
	Close() error
}

// IndexFactory builds a fresh evidence index per job.
type IndexFactory func(jobID string) (Indexer, error)

// Store persists jobs and their artifacts. A nil Store keeps everything in
// memory, which checkpoints nothing but still runs jobs to completion.
type Store interface {
	SaveJob(ctx context.Context, job *Job) error
	SaveStep(ctx context.Context, jobID string, step Step) error
	SaveSource(ctx context.Context, jobID string, src acquire.Source) error
	SaveHealth(ctx context.Context, jobID string, entry acquire.SourceHealthEntry) error
	SaveCitation(ctx context.Context, jobID string, c evidence.Citation) error
	SaveClaim(ctx context.Context, jobID string, c evidence.Claim) error
	GetJob(ctx context.Context, id string) (*Job, error)
	GetSourcesByIDs(ctx context.Context, ids []string) ([]acquire.Source, error)
}

// Pipeline coordinates every running job.
type Pipeline struct {
	cfg     config.PipelineConfig
	evalCfg config.EvaluateConfig
	evCfg   config.EvidenceConfig
	limits  budget.Limits
	logger  *log.Logger

	gen      Generator
	eval     Evaluator
	sessions SessionFactory
	indexes  IndexFactory
	store    Store

	mu      sync.RWMutex
	handles map[string]*handle

	obsMu     sync.Mutex
	observers map[int]chan Event
	obsSeq    int
}

// New builds a pipeline over its collaborators.
func New(cfg *config.Config, gen Generator, eval Evaluator, sessions SessionFactory, indexes IndexFactory, st Store, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		cfg:       cfg.Pipeline,
		evalCfg:   cfg.Evaluate,
		evCfg:     cfg.Evidence,
		limits:    budget.FromConfig(cfg.Budget),
		logger:    logger,
		gen:       gen,
		eval:      eval,
		sessions:  sessions,
		indexes:   indexes,
		store:     st,
		handles:   make(map[string]*handle),
		observers: make(map[int]chan Event),
	}
}

// handle tracks one running job. The run loop is the single writer of the
// job record; readers take snapshots through the handle.
type handle struct {
	mu        sync.RWMutex
	job       *Job
	cancel    context.CancelFunc
	requested State
}

func (h *handle) update(fn func(*Job)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.job)
	h.job.UpdatedAt = time.Now().UTC()
}

func (h *handle) snapshot() *Job {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.job.clone()
}

func (h *handle) request(state State) {
	h.mu.Lock()
	if h.requested == "" {
		h.requested = state
	}
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *handle) requestedState() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.requested
}

// Run executes a research job to a terminal or paused state and returns the
// final job record. The error is non-nil only when the job could not start.
func (p *Pipeline) Run(ctx context.Context, question, jobType string, targetSources int) (*Job, error) {
	if question == "" {
		return nil, errors.New("question is required")
	}
	job := NewJob(question, jobType, targetSources, p.cfg)
	h := &handle{job: job}
	if err := p.register(h); err != nil {
		return nil, err
	}
	defer p.unregister(job.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	p.runJob(runCtx, h)
	return h.snapshot(), nil
}

// Start launches a job in the background and returns its initial record.
// The run detaches from the caller's context; stopping it goes through
// Pause or Cancel.
func (p *Pipeline) Start(question, jobType string, targetSources int) (*Job, error) {
	if question == "" {
		return nil, errors.New("question is required")
	}
	job := NewJob(question, jobType, targetSources, p.cfg)
	h := &handle{job: job}
	if err := p.register(h); err != nil {
		return nil, err
	}
	snap := h.snapshot()
	p.spawn(h)
	return snap, nil
}

// Resume picks a paused job back up at its checkpointed iteration. Planning
// is not repeated; accepted sources are re-indexed from the store.
func (p *Pipeline) Resume(ctx context.Context, jobID string) (*Job, error) {
	h, err := p.prepareResume(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer p.unregister(h.job.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	p.runJob(runCtx, h)
	return h.snapshot(), nil
}

// StartResume relaunches a paused job in the background.
func (p *Pipeline) StartResume(ctx context.Context, jobID string) (*Job, error) {
	h, err := p.prepareResume(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snap := h.snapshot()
	p.spawn(h)
	return snap, nil
}

func (p *Pipeline) prepareResume(ctx context.Context, jobID string) (*handle, error) {
	if p.store == nil {
		return nil, errors.New("resume requires a store")
	}
	p.mu.RLock()
	_, running := p.handles[jobID]
	p.mu.RUnlock()
	if running {
		return nil, fmt.Errorf("job %s is already running", jobID)
	}

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if !job.State.Resumable() {
		return nil, fmt.Errorf("job %s is %s, not resumable", jobID, job.State)
	}

	h := &handle{job: job}
	if err := p.register(h); err != nil {
		return nil, err
	}
	return h, nil
}

// spawn runs a registered handle on its own background context.
func (p *Pipeline) spawn(h *handle) {
	runCtx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	go func() {
		defer cancel()
		defer p.unregister(h.job.ID)
		p.runJob(runCtx, h)
	}()
}

// Pause asks a running job to stop at its next suspension point, keeping it
// resumable.
func (p *Pipeline) Pause(jobID string) error {
	h, ok := p.handle(jobID)
	if !ok {
		return fmt.Errorf("job %s is not running", jobID)
	}
	h.request(StatePaused)
	return nil
}

// Cancel stops a running job, or marks a paused job cancelled in the store.
func (p *Pipeline) Cancel(jobID string) error {
	if h, ok := p.handle(jobID); ok {
		h.request(StateCancelled)
		return nil
	}
	if p.store == nil {
		return fmt.Errorf("job %s is not running", jobID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.State)
	}
	job.State = StateCancelled
	job.UpdatedAt = time.Now().UTC()
	return p.store.SaveJob(ctx, job)
}

// Status returns the live snapshot of a running job, falling back to the
// store for finished ones.
func (p *Pipeline) Status(ctx context.Context, jobID string) (*Job, error) {
	if h, ok := p.handle(jobID); ok {
		return h.snapshot(), nil
	}
	if p.store == nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return p.store.GetJob(ctx, jobID)
}

// Subscribe registers an observer for job events. The returned func removes
// the subscription and closes the channel; callers defer it for the
// duration they listen. Slow observers lose events rather than block jobs.
func (p *Pipeline) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	id := p.obsSeq
	p.obsSeq++
	ch := make(chan Event, buffer)
	p.observers[id] = ch
	return ch, func() {
		p.obsMu.Lock()
		defer p.obsMu.Unlock()
		if c, ok := p.observers[id]; ok {
			delete(p.observers, id)
			close(c)
		}
	}
}

func (p *Pipeline) publish(ev Event) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	for _, ch := range p.observers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (p *Pipeline) register(h *handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.handles[h.job.ID]; dup {
		return fmt.Errorf("job %s is already running", h.job.ID)
	}
	p.handles[h.job.ID] = h
	return nil
}

func (p *Pipeline) unregister(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handles, jobID)
}

func (p *Pipeline) handle(jobID string) (*handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handles[jobID]
	return h, ok
}
