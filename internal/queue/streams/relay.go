package streams

import (
	"context"
	"log"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
)

const eventStreamMaxLen = 10000

// Relay forwards pipeline events onto the job event stream. Publish
// failures are logged and dropped; the stream is observability, not the
// system of record.
type Relay struct {
	pub    *Publisher
	logger *log.Logger
}

func NewRelay(pub *Publisher, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.New(log.Writer(), "[STREAMS] ", log.LstdFlags)
	}
	return &Relay{pub: pub, logger: logger}
}

// Run consumes pipeline events until the context ends or the channel
// closes. Callers typically pair it with Pipeline.Subscribe.
func (r *Relay) Run(ctx context.Context, events <-chan pipeline.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.forward(ctx, ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev pipeline.Event) {
	if ev.SourceID != "" {
		payload := SourceAcceptedPayload{JobID: ev.JobID, SourceID: ev.SourceID, Detail: ev.Detail, At: ev.At}
		if _, err := r.pub.PublishRaw(ctx, StreamJobEvents, EventSourceAccepted, "v1", payload, WithMaxLenApprox(eventStreamMaxLen)); err != nil {
			r.logger.Printf("publishing source accepted for job %s: %v", ev.JobID, err)
		}
		return
	}

	payload := JobStateChangedPayload{JobID: ev.JobID, State: string(ev.State), Detail: ev.Detail, At: ev.At}
	if _, err := r.pub.PublishRaw(ctx, StreamJobEvents, EventJobStateChanged, "v1", payload, WithMaxLenApprox(eventStreamMaxLen)); err != nil {
		r.logger.Printf("publishing state change for job %s: %v", ev.JobID, err)
	}

	if ev.State == pipeline.StateCompleted {
		ready := ReportReadyPayload{JobID: ev.JobID, At: ev.At}
		if _, err := r.pub.PublishRaw(ctx, StreamJobEvents, EventReportReady, "v1", ready, WithMaxLenApprox(eventStreamMaxLen)); err != nil {
			r.logger.Printf("publishing report ready for job %s: %v", ev.JobID, err)
		}
	}
}
