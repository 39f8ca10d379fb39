package server

import "github.com/shellsage-ai/ResearchHive-sub000/internal/evidence"

// HTTPError is the error envelope every failed request returns.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest is the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest is the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse wraps a created resource id.
type IDResponse struct {
	ID string `json:"id"`
}

// CreateResearchRequest starts a research job. JobType and TargetSources
// are optional; zero values take the configured defaults.
type CreateResearchRequest struct {
	Question      string `json:"question"`
	JobType       string `json:"job_type"`
	TargetSources int    `json:"target_sources"`
}

// CreateScheduleRequest registers a recurring question.
type CreateScheduleRequest struct {
	Question      string `json:"question"`
	JobType       string `json:"job_type"`
	TargetSources int    `json:"target_sources"`
	Cron          string `json:"cron"`
}

// ReportResponse is the drafted answer with its evidence trail.
type ReportResponse struct {
	Main           string              `json:"main"`
	Alternatives   string              `json:"alternatives,omitempty"`
	GroundingScore float64             `json:"grounding_score"`
	Citations      []evidence.Citation `json:"citations"`
	Claims         []evidence.Claim    `json:"claims"`
}
