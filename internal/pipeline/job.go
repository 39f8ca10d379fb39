package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/acquire"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evidence"
)

// State is a job's lifecycle phase.
type State string

const (
	StatePending    State = "pending"
	StatePlanning   State = "planning"
	StateSearching  State = "searching"
	StateAcquiring  State = "acquiring"
	StateExtracting State = "extracting"
	StateEvaluating State = "evaluating"
	StateDrafting   State = "drafting"
	StateValidating State = "validating"
	StateReporting  State = "reporting"
	StateCompleted  State = "completed"
	StatePaused     State = "paused"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Resumable reports whether Resume may pick the job back up.
func (s State) Resumable() bool { return s == StatePaused }

// Coverage labels attached to sub-questions after evaluation.
const (
	CoverageAnswered   = "answered"
	CoveragePartial    = "partial"
	CoverageUnanswered = "unanswered"
)

// SubQuestion is one decomposed facet of the job question.
type SubQuestion struct {
	Text     string `json:"text"`
	Coverage string `json:"coverage"`
}

// Step is one entry of the append-only pipeline step log.
type Step struct {
	Seq    int       `json:"seq"`
	State  State     `json:"state"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Report holds the drafted sections emitted at the end of a run.
type Report struct {
	Main         string `json:"main"`
	Alternatives string `json:"alternatives,omitempty"`
}

// Job is the unit of work. The run loop is its single writer; concurrent
// acquisition results are merged into it serially between phases.
type Job struct {
	ID              string                      `json:"id"`
	Question        string                      `json:"question"`
	JobType         string                      `json:"job_type"`
	State           State                       `json:"state"`
	Queries         []string                    `json:"queries"`
	SubQuestions    []SubQuestion               `json:"sub_questions"`
	SourceIDs       []string                    `json:"source_ids"`
	TargetSources   int                         `json:"target_sources"`
	Iteration       int                         `json:"iteration"`
	MaxIterations   int                         `json:"max_iterations"`
	CoverageScore   float64                     `json:"coverage_score"`
	GroundingScore  float64                     `json:"grounding_score"`
	Report          Report                      `json:"report"`
	ErrorMessage    string                      `json:"error_message,omitempty"`
	Steps           []Step                      `json:"steps"`
	Replay          []string                    `json:"replay"`
	Health          []acquire.SourceHealthEntry `json:"health"`
	Citations       []evidence.Citation         `json:"citations"`
	Claims          []evidence.Claim            `json:"claims"`
	DeepSearchDone  bool                        `json:"deep_search_done"`
	RemediationUsed int                         `json:"remediation_used"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// NewJob builds a pending job with defaults filled from configuration.
func NewJob(question, jobType string, targetSources int, cfg config.PipelineConfig) *Job {
	if targetSources <= 0 {
		targetSources = cfg.DefaultTargetSources
	}
	if targetSources <= 0 {
		targetSources = 8
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 5
	}
	if jobType == "" {
		jobType = "research"
	}
	now := time.Now().UTC()
	return &Job{
		ID:            uuid.NewString(),
		Question:      strings.TrimSpace(question),
		JobType:       jobType,
		State:         StatePending,
		TargetSources: targetSources,
		MaxIterations: maxIterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// HasSource reports membership in the accepted source set.
func (j *Job) HasSource(id string) bool {
	for _, s := range j.SourceIDs {
		if s == id {
			return true
		}
	}
	return false
}

func (j *Job) subQuestionTexts() []string {
	out := make([]string, len(j.SubQuestions))
	for i, sq := range j.SubQuestions {
		out[i] = sq.Text
	}
	return out
}

func (j *Job) applyCoverageLabels(answered, partial, unanswered []string) {
	label := make(map[string]string, len(j.SubQuestions))
	for _, t := range answered {
		label[t] = CoverageAnswered
	}
	for _, t := range partial {
		label[t] = CoveragePartial
	}
	for _, t := range unanswered {
		label[t] = CoverageUnanswered
	}
	for i := range j.SubQuestions {
		if l, ok := label[j.SubQuestions[i].Text]; ok {
			j.SubQuestions[i].Coverage = l
		}
	}
}

// clone copies the job deeply enough that readers never alias the run
// loop's slices.
func (j *Job) clone() *Job {
	c := *j
	c.Queries = append([]string(nil), j.Queries...)
	c.SubQuestions = append([]SubQuestion(nil), j.SubQuestions...)
	c.SourceIDs = append([]string(nil), j.SourceIDs...)
	c.Steps = append([]Step(nil), j.Steps...)
	c.Replay = append([]string(nil), j.Replay...)
	c.Health = append([]acquire.SourceHealthEntry(nil), j.Health...)
	c.Citations = append([]evidence.Citation(nil), j.Citations...)
	c.Claims = append([]evidence.Claim(nil), j.Claims...)
	return &c
}

// Event is one observable job transition. SourceID is set only on
// source-accepted events.
type Event struct {
	JobID    string    `json:"job_id"`
	State    State     `json:"state"`
	Detail   string    `json:"detail"`
	SourceID string    `json:"source_id,omitempty"`
	At       time.Time `json:"at"`
}
