// Package worker consumes research requests from the job request stream and
// drives them through the pipeline. Delivery is at-least-once; a Redis
// idempotency claim keeps redelivered requests from spawning duplicate jobs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/queue/streams"
)

// DefaultGroup is the consumer group research workers join.
const DefaultGroup = "research-workers"

const claimTTL = 24 * time.Hour

// Runner is the slice of the pipeline the worker drives.
type Runner interface {
	Run(ctx context.Context, question, jobType string, targetSources int) (*pipeline.Job, error)
}

// Processor reads research requests and runs them with bounded concurrency.
type Processor struct {
	logger      *log.Logger
	pipe        Runner
	consumer    *streams.Consumer
	rdb         *redis.Client
	stream      string
	concurrency int
	tracer      trace.Tracer
	jobCounter  otelmetric.Int64Counter
	failCounter otelmetric.Int64Counter
}

// NewProcessor constructs a Processor. meter and tracer may be nil.
func NewProcessor(logger *log.Logger, pipe Runner, cons *streams.Consumer, rdb *redis.Client, stream string, concurrency int, meter otelmetric.Meter, tracer trace.Tracer) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("worker")
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	p := &Processor{
		logger:      logger,
		pipe:        pipe,
		consumer:    cons,
		rdb:         rdb,
		stream:      stream,
		concurrency: concurrency,
		tracer:      tracer,
	}
	if meter != nil {
		var err error
		p.jobCounter, err = meter.Int64Counter("research_requests_processed")
		if err != nil {
			logger.Printf("warn: create request counter failed: %v", err)
		}
		p.failCounter, err = meter.Int64Counter("research_requests_failed")
		if err != nil {
			logger.Printf("warn: create failure counter failed: %v", err)
		}
	}
	return p
}

// Start blocks, consuming requests until the context is cancelled. In-flight
// jobs see the cancellation and checkpoint as paused before Start returns.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker starting; consuming stream %s", p.stream)
	p.reclaim(ctx)

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker stopping: %v", ctx.Err())
			wg.Wait()
			return nil
		default:
		}

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			msg := msg
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				p.handle(ctx, msg)
			}()
		}
	}
}

// reclaim picks up requests a crashed worker left pending.
func (p *Processor) reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := p.consumer.AutoClaim(ctx, p.stream, 5*time.Minute, start, 32)
		if err != nil {
			p.logger.Printf("warn: autoclaim failed: %v", err)
			return
		}
		for _, msg := range msgs {
			p.handle(ctx, msg)
		}
		if next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (p *Processor) handle(ctx context.Context, msg streams.Message) {
	ctx, span := p.tracer.Start(ctx, "worker.research_request")
	defer span.End()

	var payload streams.ResearchRequestPayload
	if err := json.Unmarshal(msg.Envelope.Data, &payload); err != nil || payload.Question == "" {
		p.logger.Printf("dropping request %s: bad payload", msg.Envelope.EventID)
		p.ack(msg.ID)
		return
	}

	// The claim precedes the run so redelivery of an interrupted request
	// does not spawn a second job for it.
	if !p.claim(ctx, payload.RequestID, msg.Envelope.EventID) {
		p.logger.Printf("skip request %s: already claimed", msg.Envelope.EventID)
		p.ack(msg.ID)
		return
	}

	span.SetAttributes(attribute.String("request.id", payload.RequestID))
	job, err := p.pipe.Run(ctx, payload.Question, payload.JobType, payload.TargetSources)
	if err != nil {
		p.logger.Printf("request %s did not start: %v", msg.Envelope.EventID, err)
		if p.failCounter != nil {
			p.failCounter.Add(ctx, 1)
		}
		p.ack(msg.ID)
		return
	}
	p.logger.Printf("request %s finished as job %s (%s)", msg.Envelope.EventID, job.ID, job.State)
	if p.jobCounter != nil {
		p.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("state", string(job.State))))
	}
	p.ack(msg.ID)
}

// claim takes the idempotency slot for a request. Without Redis every
// delivery is treated as fresh.
func (p *Processor) claim(ctx context.Context, requestID, eventID string) bool {
	if p.rdb == nil {
		return true
	}
	key := requestID
	if key == "" {
		key = eventID
	}
	ok, err := p.rdb.SetNX(ctx, "worker:req:"+key, "1", claimTTL).Result()
	if err != nil {
		p.logger.Printf("warn: idempotency claim failed, running anyway: %v", err)
		return true
	}
	return ok
}

// ack runs on its own context so shutdown acknowledgements still land.
func (p *Processor) ack(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.consumer.Ack(ctx, p.stream, id); err != nil {
		p.logger.Printf("warn: failed to ack message %s: %v", id, err)
	}
}

// EnqueueRequest publishes a research request for workers to pick up.
func EnqueueRequest(ctx context.Context, pub *streams.Publisher, payload streams.ResearchRequestPayload) (string, error) {
	if payload.Question == "" {
		return "", fmt.Errorf("question is required")
	}
	return pub.PublishRaw(ctx, streams.StreamJobRequests, streams.EventResearchRequest, "v1", payload)
}
