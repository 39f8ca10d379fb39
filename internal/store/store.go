// Package store persists research jobs and their artifacts in Postgres.
// Schema lives in migrations/ and is applied with golang-migrate; nothing
// here creates tables.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/acquire"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evidence"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
)

// ErrNotFound marks lookups for rows that do not exist. Callers branch on
// it with errors.Is.
var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

// New connects using DATABASE_URL or the POSTGRES_* environment variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store from an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// SaveJob upserts the whole job record. Steps, sources, health entries,
// citations and claims live in their own tables and are saved separately.
func (s *Store) SaveJob(ctx context.Context, job *pipeline.Job) error {
	subs, err := json.Marshal(job.SubQuestions)
	if err != nil {
		return fmt.Errorf("marshal sub-questions: %w", err)
	}
	if job.SubQuestions == nil {
		subs = []byte("[]")
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO research_jobs (id, question, job_type, state, queries, sub_questions, source_ids,
  target_sources, iteration, max_iterations, coverage_score, grounding_score,
  report_main, report_alternatives, error_message, replay, deep_search_done, remediation_used,
  created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  state               = EXCLUDED.state,
  queries             = EXCLUDED.queries,
  sub_questions       = EXCLUDED.sub_questions,
  source_ids          = EXCLUDED.source_ids,
  iteration           = EXCLUDED.iteration,
  coverage_score      = EXCLUDED.coverage_score,
  grounding_score     = EXCLUDED.grounding_score,
  report_main         = EXCLUDED.report_main,
  report_alternatives = EXCLUDED.report_alternatives,
  error_message       = EXCLUDED.error_message,
  replay              = EXCLUDED.replay,
  deep_search_done    = EXCLUDED.deep_search_done,
  remediation_used    = EXCLUDED.remediation_used,
  updated_at          = EXCLUDED.updated_at;
`, job.ID, job.Question, job.JobType, string(job.State), pq.Array(job.Queries), subs, pq.Array(job.SourceIDs),
		job.TargetSources, job.Iteration, job.MaxIterations, job.CoverageScore, job.GroundingScore,
		job.Report.Main, job.Report.Alternatives, job.ErrorMessage, pq.Array(job.Replay), job.DeepSearchDone, job.RemediationUsed,
		job.CreatedAt, job.UpdatedAt)
	return err
}

func (s *Store) SaveStep(ctx context.Context, jobID string, step pipeline.Step) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO job_steps (job_id, seq, state, detail, at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (job_id, seq) DO UPDATE SET state=EXCLUDED.state, detail=EXCLUDED.detail, at=EXCLUDED.at;
`, jobID, step.Seq, string(step.State), step.Detail, step.At)
	return err
}

func (s *Store) SaveSource(ctx context.Context, jobID string, src acquire.Source) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO sources (id, job_id, url, canonical, title, byline, published_at, content, channel, relevance, fetched_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  title     = EXCLUDED.title,
  content   = EXCLUDED.content,
  relevance = EXCLUDED.relevance;
`, src.ID, jobID, src.URL, src.Canonical, src.Title, src.Byline, src.PublishedAt, src.Text, src.Channel, src.Relevance, src.FetchedAt)
	return err
}

func (s *Store) SaveHealth(ctx context.Context, jobID string, entry acquire.SourceHealthEntry) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO source_health (job_id, url, status, http_status, reason, at)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6);
`, jobID, entry.URL, string(entry.Status), entry.HTTPStatus, entry.Reason, entry.At)
	return err
}

func (s *Store) SaveCitation(ctx context.Context, jobID string, c evidence.Citation) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO citations (job_id, idx, label, chunk_id, source_id, url, title, excerpt)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (job_id, idx) DO UPDATE SET
  label     = EXCLUDED.label,
  chunk_id  = EXCLUDED.chunk_id,
  source_id = EXCLUDED.source_id,
  url       = EXCLUDED.url,
  title     = EXCLUDED.title,
  excerpt   = EXCLUDED.excerpt;
`, jobID, c.Index, c.Label, c.ChunkID, c.SourceID, c.URL, c.Title, c.Excerpt)
	return err
}

func (s *Store) SaveClaim(ctx context.Context, jobID string, c evidence.Claim) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO claims (job_id, claim_text, kind) VALUES ($1,$2,$3);
`, jobID, c.Text, string(c.Kind))
	return err
}

// GetJob reassembles the full job record: the job row plus its steps,
// health entries, citations and claims.
func (s *Store) GetJob(ctx context.Context, id string) (*pipeline.Job, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, question, job_type, state, queries, sub_questions, source_ids,
       target_sources, iteration, max_iterations, coverage_score, grounding_score,
       report_main, report_alternatives, error_message, replay, deep_search_done, remediation_used,
       created_at, updated_at
FROM research_jobs WHERE id=$1
`, id)
	var (
		job       pipeline.Job
		state     string
		subsBytes []byte
	)
	err := row.Scan(&job.ID, &job.Question, &job.JobType, &state, pq.Array(&job.Queries), &subsBytes, pq.Array(&job.SourceIDs),
		&job.TargetSources, &job.Iteration, &job.MaxIterations, &job.CoverageScore, &job.GroundingScore,
		&job.Report.Main, &job.Report.Alternatives, &job.ErrorMessage, pq.Array(&job.Replay), &job.DeepSearchDone, &job.RemediationUsed,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	job.State = pipeline.State(state)
	if len(subsBytes) > 0 {
		if err := json.Unmarshal(subsBytes, &job.SubQuestions); err != nil {
			return nil, fmt.Errorf("unmarshal sub-questions: %w", err)
		}
	}

	if job.Steps, err = s.jobSteps(ctx, id); err != nil {
		return nil, err
	}
	if job.Health, err = s.jobHealth(ctx, id); err != nil {
		return nil, err
	}
	if job.Citations, err = s.jobCitations(ctx, id); err != nil {
		return nil, err
	}
	if job.Claims, err = s.jobClaims(ctx, id); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) jobSteps(ctx context.Context, jobID string) ([]pipeline.Step, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT seq, state, detail, at FROM job_steps WHERE job_id=$1 ORDER BY seq`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pipeline.Step
	for rows.Next() {
		var st pipeline.Step
		var state string
		if err := rows.Scan(&st.Seq, &state, &st.Detail, &st.At); err != nil {
			return nil, err
		}
		st.State = pipeline.State(state)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) jobHealth(ctx context.Context, jobID string) ([]acquire.SourceHealthEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT url, status, http_status, reason, at FROM source_health WHERE job_id=$1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []acquire.SourceHealthEntry
	for rows.Next() {
		var e acquire.SourceHealthEntry
		var status string
		var reason sql.NullString
		if err := rows.Scan(&e.URL, &status, &e.HTTPStatus, &reason, &e.At); err != nil {
			return nil, err
		}
		e.Status = acquire.HealthStatus(status)
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) jobCitations(ctx context.Context, jobID string) ([]evidence.Citation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT idx, label, chunk_id, source_id, url, title, excerpt FROM citations WHERE job_id=$1 ORDER BY idx`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []evidence.Citation
	for rows.Next() {
		var c evidence.Citation
		if err := rows.Scan(&c.Index, &c.Label, &c.ChunkID, &c.SourceID, &c.URL, &c.Title, &c.Excerpt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) jobClaims(ctx context.Context, jobID string) ([]evidence.Claim, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT claim_text, kind FROM claims WHERE job_id=$1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []evidence.Claim
	for rows.Next() {
		var c evidence.Claim
		var kind string
		if err := rows.Scan(&c.Text, &kind); err != nil {
			return nil, err
		}
		c.Kind = evidence.ClaimKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetSourcesByIDs(ctx context.Context, ids []string) ([]acquire.Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, url, canonical, title, byline, published_at, content, channel, relevance, fetched_at
FROM sources WHERE id = ANY($1) ORDER BY fetched_at
`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []acquire.Source
	for rows.Next() {
		var src acquire.Source
		var byline, published sql.NullString
		if err := rows.Scan(&src.ID, &src.URL, &src.Canonical, &src.Title, &byline, &published, &src.Text, &src.Channel, &src.Relevance, &src.FetchedAt); err != nil {
			return nil, err
		}
		src.Byline = byline.String
		src.PublishedAt = published.String
		out = append(out, src)
	}
	return out, rows.Err()
}

// ListRecentJobs returns scalar job records, newest first. Detail tables
// are not loaded; use GetJob for one full record.
func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]pipeline.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, question, job_type, state, target_sources, iteration, coverage_score, grounding_score, error_message, created_at, updated_at
FROM research_jobs ORDER BY created_at DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pipeline.Job
	for rows.Next() {
		var job pipeline.Job
		var state string
		if err := rows.Scan(&job.ID, &job.Question, &job.JobType, &state, &job.TargetSources, &job.Iteration,
			&job.CoverageScore, &job.GroundingScore, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		job.State = pipeline.State(state)
		out = append(out, job)
	}
	return out, rows.Err()
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return
}

// Schedule is a recurring research question.
type Schedule struct {
	ID            string
	Question      string
	JobType       string
	TargetSources int
	Cron          string
	Enabled       bool
	LastRunAt     *time.Time
	CreatedAt     time.Time
}

func (s *Store) CreateSchedule(ctx context.Context, question, jobType string, targetSources int, cron string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO schedules (question, job_type, target_sources, cron) VALUES ($1,$2,$3,$4) RETURNING id
`, question, jobType, targetSources, cron).Scan(&id)
	return id, err
}

func (s *Store) ListSchedules(ctx context.Context, enabledOnly bool) ([]Schedule, error) {
	q := `SELECT id, question, job_type, target_sources, cron, enabled, last_run_at, created_at FROM schedules ORDER BY created_at`
	if enabledOnly {
		q = `SELECT id, question, job_type, target_sources, cron, enabled, last_run_at, created_at FROM schedules WHERE enabled ORDER BY created_at`
	}
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var sc Schedule
		var lastRun sql.NullTime
		if err := rows.Scan(&sc.ID, &sc.Question, &sc.JobType, &sc.TargetSources, &sc.Cron, &sc.Enabled, &lastRun, &sc.CreatedAt); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			t := lastRun.Time
			sc.LastRunAt = &t
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) MarkScheduleRun(ctx context.Context, id string, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE schedules SET last_run_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE schedules SET enabled=$2 WHERE id=$1`, id, enabled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM schedules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return nil
}
