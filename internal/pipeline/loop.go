package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/acquire"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/budget"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evaluate"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/helpers"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/index"
)

var pipelineTracer trace.Tracer = otel.Tracer("researchhive/internal/pipeline")

// interruptErr carries a pause or cancel request out of the run loop.
type interruptErr struct {
	state State
}

func (e interruptErr) Error() string { return "job interrupted: " + string(e.state) }

// checkInterrupt is called at every suspension point. The explicit request
// flag wins over the bare context signal so Pause and Cancel persist the
// state the caller asked for.
func (p *Pipeline) checkInterrupt(ctx context.Context, h *handle) error {
	if req := h.requestedState(); req != "" {
		return interruptErr{state: req}
	}
	return ctx.Err()
}

func (p *Pipeline) runJob(ctx context.Context, h *handle) {
	job := h.snapshot()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.type", job.JobType),
			attribute.Int("job.target_sources", job.TargetSources),
		))
	defer span.End()
	started := time.Now()

	idx, err := p.indexes(job.ID)
	if err != nil {
		p.fail(h, fmt.Errorf("creating evidence index: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	defer idx.Close()

	session := p.sessions(job.Question)

	var monitor *budget.Monitor
	if !p.limits.IsZero() {
		monitor = budget.NewMonitor(p.limits)
	}

	if job.State == StatePending {
		p.plan(ctx, h)
	} else {
		p.rehydrate(ctx, h, idx)
	}

	if err := p.iterate(ctx, h, session, idx, monitor); err != nil {
		p.finishInterrupted(h, err)
		span.SetStatus(codes.Ok, "interrupted")
		return
	}
	if err := p.synthesize(ctx, h, session, idx, monitor); err != nil {
		p.finishInterrupted(h, err)
		span.SetStatus(codes.Ok, "interrupted")
		return
	}

	p.transition(h, StateCompleted, "run complete")
	final := h.snapshot()
	span.SetAttributes(
		attribute.Float64("job.coverage", final.CoverageScore),
		attribute.Float64("job.grounding", final.GroundingScore),
		attribute.Int("job.sources", len(final.SourceIDs)),
		attribute.Int("job.iterations", final.Iteration),
	)
	span.SetStatus(codes.Ok, "completed")
	p.logger.Printf("job %s completed in %v: %d sources, coverage %.2f, grounding %.2f",
		final.ID, time.Since(started).Round(time.Millisecond), len(final.SourceIDs), final.CoverageScore, final.GroundingScore)
}

// plan decomposes the question into sub-questions and seeds the query set.
func (p *Pipeline) plan(ctx context.Context, h *handle) {
	p.transition(h, StatePlanning, "decomposing question")
	subs := p.eval.Decompose(ctx, h.snapshot().Question)
	h.update(func(j *Job) {
		j.SubQuestions = j.SubQuestions[:0]
		for _, s := range subs {
			j.SubQuestions = append(j.SubQuestions, SubQuestion{Text: s, Coverage: CoverageUnanswered})
		}
		j.Queries = append([]string(nil), subs...)
		j.Replay = append(j.Replay, fmt.Sprintf("planned %d sub-questions", len(subs)))
	})
	p.checkpoint(h)
}

// rehydrate rebuilds the in-memory evidence index for a resumed job from
// its persisted sources. Chunk ids derive from content, so re-adding is
// idempotent.
func (p *Pipeline) rehydrate(ctx context.Context, h *handle, idx Indexer) {
	job := h.snapshot()
	h.update(func(j *Job) {
		j.Replay = append(j.Replay, fmt.Sprintf("resumed at iteration %d", j.Iteration))
	})
	if p.store == nil || len(job.SourceIDs) == 0 {
		return
	}
	sources, err := p.store.GetSourcesByIDs(ctx, job.SourceIDs)
	if err != nil {
		p.logger.Printf("job %s: reloading sources failed: %v", job.ID, err)
		return
	}
	for _, src := range sources {
		if _, err := idx.AddDocument(ctx, index.Document{
			SourceID:    src.ID,
			URL:         src.URL,
			Title:       src.Title,
			Text:        src.Text,
			PublishedAt: src.PublishedAt,
		}); err != nil {
			p.logger.Printf("job %s: re-indexing source %s failed: %v", job.ID, src.ID, err)
		}
	}
}

// iterate runs the search/acquire/index/evaluate loop until coverage is
// good enough, the source budget is met with adequate coverage, or the
// iteration budget runs out. There is no unconditional success exit.
func (p *Pipeline) iterate(ctx context.Context, h *handle, session AcquireSession, idx Indexer, monitor *budget.Monitor) error {
	stop := p.evalCfg.StopScore
	if stop <= 0 {
		stop = 0.7
	}
	budgetStop := p.evalCfg.BudgetStopScore
	if budgetStop <= 0 {
		budgetStop = 0.4
	}

	for {
		if err := p.checkInterrupt(ctx, h); err != nil {
			return err
		}
		job := h.snapshot()
		if job.Iteration >= job.MaxIterations {
			p.replay(h, "iteration budget exhausted, accepting current coverage")
			return nil
		}
		if monitor != nil {
			if err := monitor.CheckTime(); err != nil {
				p.replay(h, "time budget exhausted, accepting current coverage")
				return nil
			}
		}

		iterCtx, iterSpan := pipelineTracer.Start(ctx, "pipeline.iteration",
			trace.WithAttributes(attribute.Int("iteration", job.Iteration+1)))

		p.transition(h, StateSearching, fmt.Sprintf("iteration %d: %d queries", job.Iteration+1, len(job.Queries)))
		candidates := session.SearchMultiLane(iterCtx, job.Queries, nil)
		if err := p.checkInterrupt(ctx, h); err != nil {
			iterSpan.End()
			return err
		}

		remaining := job.TargetSources - len(job.SourceIDs)
		p.transition(h, StateAcquiring, fmt.Sprintf("%d candidates, budget %d", len(candidates), remaining))
		sources, health := session.Acquire(iterCtx, candidates, remaining)
		if err := p.checkInterrupt(ctx, h); err != nil {
			iterSpan.End()
			return err
		}
		p.mergeAcquired(h, sources, health)

		p.transition(h, StateExtracting, fmt.Sprintf("indexing %d sources", len(sources)))
		for _, src := range sources {
			if err := p.checkInterrupt(ctx, h); err != nil {
				iterSpan.End()
				return err
			}
			if _, err := idx.AddDocument(iterCtx, index.Document{
				SourceID:    src.ID,
				URL:         src.URL,
				Title:       src.Title,
				Text:        src.Text,
				PublishedAt: src.PublishedAt,
			}); err != nil {
				p.logger.Printf("job %s: indexing %s failed: %v", job.ID, src.URL, err)
			}
		}

		p.transition(h, StateEvaluating, "scoring coverage")
		chunks := p.evidenceChunks(iterCtx, idx, h)
		job = h.snapshot()
		cov := p.eval.EvaluateCoverage(iterCtx, job.Question, job.subQuestionTexts(), chunks)
		h.update(func(j *Job) {
			j.CoverageScore = cov.Score
			j.applyCoverageLabels(cov.Answered, cov.Partial, cov.Unanswered)
			j.Replay = append(j.Replay, fmt.Sprintf("iteration %d: coverage %.2f with %d sources", j.Iteration+1, cov.Score, len(j.SourceIDs)))
		})
		iterSpan.SetAttributes(
			attribute.Float64("coverage", cov.Score),
			attribute.Int("sources", len(h.snapshot().SourceIDs)),
		)
		iterSpan.End()

		job = h.snapshot()
		if cov.Score >= stop {
			p.replay(h, fmt.Sprintf("coverage %.2f reached the stop threshold", cov.Score))
			p.checkpoint(h)
			return nil
		}
		if len(job.SourceIDs) >= job.TargetSources && cov.Score >= budgetStop {
			p.replay(h, fmt.Sprintf("source budget met with adequate coverage %.2f", cov.Score))
			p.checkpoint(h)
			return nil
		}

		p.refine(ctx, h, cov, chunks)
		h.update(func(j *Job) { j.Iteration++ })
		p.checkpoint(h)
	}
}

// refine adjusts the query set for the next iteration. A very low score
// with named gaps pivots: the stale query set is replaced outright instead
// of appended to. Otherwise gaps become refinements. Deep-search drill-down
// queries are proposed once per job, after at least two sources exist.
func (p *Pipeline) refine(ctx context.Context, h *handle, cov evaluate.CoverageResult, chunks []evaluate.EvidenceChunk) {
	pivot := p.evalCfg.PivotScore
	if pivot <= 0 {
		pivot = 0.25
	}
	job := h.snapshot()

	var queries []string
	pivoted := false
	switch {
	case cov.Score < pivot && len(cov.Gaps) > 0:
		queries = uniqueQueries(cov.Gaps, nil)
		pivoted = true
	case len(cov.Gaps) > 0:
		queries = uniqueQueries(job.Queries, cov.Gaps)
	default:
		queries = job.Queries
	}

	var deep []string
	if !job.DeepSearchDone && len(job.SourceIDs) >= 2 {
		max := p.evalCfg.DeepSearchMax
		if max <= 0 {
			max = 3
		}
		deep = p.eval.DeepSearchQueries(ctx, job.Question, chunks, max)
	}

	h.update(func(j *Job) {
		j.Queries = queries
		if pivoted {
			j.Replay = append(j.Replay, fmt.Sprintf("pivot: replaced queries with %d gap-derived ones", len(queries)))
		}
		if !j.DeepSearchDone && len(j.SourceIDs) >= 2 {
			if len(deep) > 0 {
				j.Queries = uniqueQueries(j.Queries, deep)
				j.Replay = append(j.Replay, fmt.Sprintf("deep search: added %d drill-down queries", len(deep)))
			}
			j.DeepSearchDone = true
		}
	})
}

// mergeAcquired folds one concurrent acquisition batch into the job record
// serially, then persists the new rows and announces each accepted source.
func (p *Pipeline) mergeAcquired(h *handle, sources []acquire.Source, health []acquire.SourceHealthEntry) {
	var accepted []Event
	h.update(func(j *Job) {
		for _, src := range sources {
			if !j.HasSource(src.ID) {
				j.SourceIDs = append(j.SourceIDs, src.ID)
				accepted = append(accepted, Event{
					JobID:    j.ID,
					State:    StateAcquiring,
					Detail:   src.Canonical,
					SourceID: src.ID,
					At:       time.Now().UTC(),
				})
			}
		}
		j.Health = append(j.Health, health...)
	})
	for _, ev := range accepted {
		p.publish(ev)
	}
	if p.store == nil {
		return
	}
	ctx, cancel := persistContext()
	defer cancel()
	jobID := h.snapshot().ID
	for _, src := range sources {
		if err := p.store.SaveSource(ctx, jobID, src); err != nil {
			p.logger.Printf("job %s: persisting source failed: %v", jobID, err)
		}
	}
	for _, entry := range health {
		if err := p.store.SaveHealth(ctx, jobID, entry); err != nil {
			p.logger.Printf("job %s: persisting health entry failed: %v", jobID, err)
		}
	}
}

// evidenceChunks maps the index's best hits for the question into the
// evaluator's chunk shape.
func (p *Pipeline) evidenceChunks(ctx context.Context, idx Indexer, h *handle) []evaluate.EvidenceChunk {
	job := h.snapshot()
	k := job.TargetSources * 2
	if k < 8 {
		k = 8
	}
	hits, err := idx.Search(ctx, job.Question, k)
	if err != nil {
		p.logger.Printf("job %s: evidence search failed: %v", job.ID, err)
		return nil
	}
	chunks := make([]evaluate.EvidenceChunk, 0, len(hits))
	for _, hit := range hits {
		chunks = append(chunks, evaluate.EvidenceChunk{
			SourceID: hit.SourceID,
			Domain:   helpers.Domain(hit.URL),
			Text:     hit.Snippet,
			Score:    hit.Score,
		})
	}
	return chunks
}

// transition moves the job to a new state, appends the step log entry,
// checkpoints and notifies observers.
func (p *Pipeline) transition(h *handle, state State, detail string) {
	var ev Event
	h.update(func(j *Job) {
		j.State = state
		step := Step{Seq: len(j.Steps) + 1, State: state, Detail: detail, At: time.Now().UTC()}
		j.Steps = append(j.Steps, step)
		ev = Event{JobID: j.ID, State: state, Detail: detail, At: step.At}
	})
	p.checkpointStep(h)
	p.publish(ev)
}

func (p *Pipeline) replay(h *handle, note string) {
	h.update(func(j *Job) {
		j.Replay = append(j.Replay, note)
	})
}

// fail is the path for unhandled faults only; expected conditions degrade
// locally instead of landing here. Partial results stay on the job.
func (p *Pipeline) fail(h *handle, err error) {
	p.logger.Printf("job %s failed: %v", h.snapshot().ID, err)
	h.update(func(j *Job) {
		j.ErrorMessage = err.Error()
	})
	p.transition(h, StateFailed, err.Error())
}

// finishInterrupted classifies why the run loop stopped early. An explicit
// request wins; a bare context cancellation leaves the job paused so it can
// be resumed after a shutdown; anything else is a genuine failure.
func (p *Pipeline) finishInterrupted(h *handle, err error) {
	var intr interruptErr
	switch {
	case errors.As(err, &intr) && intr.state == StateCancelled:
		p.transition(h, StateCancelled, "cancelled by request")
	case errors.As(err, &intr):
		p.transition(h, StatePaused, "paused by request")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		p.transition(h, StatePaused, "interrupted, resumable")
	default:
		p.fail(h, err)
	}
}

// checkpoint persists the whole job record. Persistence uses a detached
// context so a cancelled job still records its final state.
func (p *Pipeline) checkpoint(h *handle) {
	if p.store == nil {
		return
	}
	ctx, cancel := persistContext()
	defer cancel()
	job := h.snapshot()
	if err := p.store.SaveJob(ctx, job); err != nil {
		p.logger.Printf("job %s: checkpoint failed: %v", job.ID, err)
	}
}

// checkpointStep persists the job and its newest step entry.
func (p *Pipeline) checkpointStep(h *handle) {
	if p.store == nil {
		return
	}
	ctx, cancel := persistContext()
	defer cancel()
	job := h.snapshot()
	if err := p.store.SaveJob(ctx, job); err != nil {
		p.logger.Printf("job %s: checkpoint failed: %v", job.ID, err)
	}
	if len(job.Steps) > 0 {
		step := job.Steps[len(job.Steps)-1]
		if err := p.store.SaveStep(ctx, job.ID, step); err != nil {
			p.logger.Printf("job %s: persisting step failed: %v", job.ID, err)
		}
	}
}

func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func uniqueQueries(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	var out []string
	add := func(q string) {
		if q == "" {
			return
		}
		key := q
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	for _, q := range base {
		add(q)
	}
	for _, q := range extra {
		add(q)
	}
	return out
}
