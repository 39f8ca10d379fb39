package streams

import (
	"fmt"
	"time"
)

const (
	// StreamJobEvents carries state changes, accepted sources and finished
	// reports for running research jobs.
	StreamJobEvents = "research.jobs.events"
	// StreamJobRequests is the intake queue consumed by worker processes.
	StreamJobRequests = "research.jobs.requests"
)

const (
	EventJobStateChanged = "job.state_changed"
	EventSourceAccepted  = "job.source_accepted"
	EventReportReady     = "job.report_ready"
	EventResearchRequest = "job.request"
)

// JobStateChangedPayload mirrors one pipeline state transition.
type JobStateChangedPayload struct {
	JobID  string    `json:"job_id"`
	State  string    `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// SourceAcceptedPayload announces a source that passed the relevance gate.
type SourceAcceptedPayload struct {
	JobID    string    `json:"job_id"`
	SourceID string    `json:"source_id"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// ReportReadyPayload signals that a job finished and its report can be read.
type ReportReadyPayload struct {
	JobID string    `json:"job_id"`
	At    time.Time `json:"at"`
}

// ResearchRequestPayload asks a worker to run one research job.
type ResearchRequestPayload struct {
	RequestID     string `json:"request_id"`
	Question      string `json:"question"`
	JobType       string `json:"job_type,omitempty"`
	TargetSources int    `json:"target_sources,omitempty"`
}

// Definition is one schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventJobStateChanged,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["job_id", "state", "at"],
  "properties": {
    "job_id": {"type": "string", "minLength": 1},
    "state": {"type": "string", "minLength": 1},
    "detail": {"type": "string"},
    "at": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": true
}`),
	},
	{
		EventType: EventSourceAccepted,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["job_id", "source_id", "at"],
  "properties": {
    "job_id": {"type": "string", "minLength": 1},
    "source_id": {"type": "string", "minLength": 1},
    "detail": {"type": "string"},
    "at": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": true
}`),
	},
	{
		EventType: EventReportReady,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["job_id", "at"],
  "properties": {
    "job_id": {"type": "string", "minLength": 1},
    "at": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": true
}`),
	},
	{
		EventType: EventResearchRequest,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["request_id", "question"],
  "properties": {
    "request_id": {"type": "string", "minLength": 1},
    "question": {"type": "string", "minLength": 1},
    "job_type": {"type": "string"},
    "target_sources": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": true
}`),
	},
}

// BaseDefinitions returns the built-in schema definitions.
func BaseDefinitions() []Definition {
	defs := make([]Definition, len(baseDefinitions))
	copy(defs, baseDefinitions)
	return defs
}

// RegisterBaseSchemas loads the baseline event schemas into the registry.
func RegisterBaseSchemas(reg *SchemaRegistry) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return fmt.Errorf("register %s %s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}
