package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research engine.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Search     SearchConfig     `mapstructure:"search"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Relevance  RelevanceConfig  `mapstructure:"relevance"`
	Evidence   EvidenceConfig   `mapstructure:"evidence"`
	Evaluate   EvaluateConfig   `mapstructure:"evaluate"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SearchConfig contains search channel settings.
type SearchConfig struct {
	BraveAPIKey          string        `mapstructure:"brave_api_key"`
	SerperAPIKey         string        `mapstructure:"serper_api_key"`
	Feeds                []string      `mapstructure:"feeds"`
	MaxResultsPerChannel int           `mapstructure:"max_results_per_channel"`
	DeadChannelThreshold int           `mapstructure:"dead_channel_threshold"`
	CandidateCapPerQuery int           `mapstructure:"candidate_cap_per_query"`
	FeedsPerMinute       int           `mapstructure:"feeds_per_minute"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// FetchConfig contains page capture settings.
type FetchConfig struct {
	Type           string        `mapstructure:"type"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxChars       int           `mapstructure:"max_chars"`
	StaticFallback bool          `mapstructure:"static_fallback"`
}

// RelevanceConfig contains pre- and post-fetch relevance gate settings.
type RelevanceConfig struct {
	KeywordLowWater float64 `mapstructure:"keyword_low_water"`
	CosineAccept    float64 `mapstructure:"cosine_accept"`
	AuthorityBlend  float64 `mapstructure:"authority_blend"`
	ExploratoryTail int     `mapstructure:"exploratory_tail"`
}

// EvidenceConfig contains evidence set construction settings.
type EvidenceConfig struct {
	DomainCap    int `mapstructure:"domain_cap"`
	MaxCitations int `mapstructure:"max_citations"`
	MaxClaims    int `mapstructure:"max_claims"`
}

// EvaluateConfig contains coverage and sufficiency thresholds.
type EvaluateConfig struct {
	StopScore       float64 `mapstructure:"stop_score"`
	BudgetStopScore float64 `mapstructure:"budget_stop_score"`
	PivotScore      float64 `mapstructure:"pivot_score"`
	GroundingSkip   float64 `mapstructure:"grounding_skip"`
	DeepSearchMax   int     `mapstructure:"deep_search_max"`
}

// PipelineConfig contains orchestration loop settings.
type PipelineConfig struct {
	MaxIterations        int `mapstructure:"max_iterations"`
	DefaultTargetSources int `mapstructure:"default_target_sources"`
	FetchConcurrencyCap  int `mapstructure:"fetch_concurrency_cap"`
	RemediationLimit     int `mapstructure:"remediation_limit"`
}

// ResilienceConfig contains circuit breaker and backoff settings.
type ResilienceConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffCap       time.Duration `mapstructure:"backoff_cap"`
}

// LLMConfig contains generation routing settings.
type LLMConfig struct {
	Strategy         string          `mapstructure:"strategy"`
	Local            LocalLLMConfig  `mapstructure:"local"`
	Cloud            CloudLLMConfig  `mapstructure:"cloud"`
	MaxTokensDefault int             `mapstructure:"max_tokens_default"`
	MaxTokensCap     int             `mapstructure:"max_tokens_cap"`
	Temperature      float64         `mapstructure:"temperature"`
	Timeout          time.Duration   `mapstructure:"timeout"`
	Pricing          map[string]Cost `mapstructure:"pricing"`
}

// Cost is the per-1K-token price pair for one model.
type Cost struct {
	Input  float64 `mapstructure:"input"`
	Output float64 `mapstructure:"output"`
}

// LocalLLMConfig describes an OpenAI-compatible local inference endpoint.
type LocalLLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// CloudLLMConfig selects one active cloud provider.
type CloudLLMConfig struct {
	Provider  string            `mapstructure:"provider"`
	OpenAI    CloudVendorConfig `mapstructure:"openai"`
	Anthropic CloudVendorConfig `mapstructure:"anthropic"`
	Gemini    CloudVendorConfig `mapstructure:"gemini"`
}

// CloudVendorConfig holds the credentials for one cloud vendor.
type CloudVendorConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// EmbeddingConfig contains embedding backend settings.
type EmbeddingConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// BudgetConfig contains per-run spend limits. Zero values mean unlimited.
type BudgetConfig struct {
	MaxTokens            int64   `mapstructure:"max_tokens"`
	MaxCostUSD           float64 `mapstructure:"max_cost_usd"`
	MaxTimeSeconds       int64   `mapstructure:"max_time_seconds"`
	ApprovalThresholdUSD float64 `mapstructure:"approval_threshold_usd"`
}

// TelemetryConfig contains tracing and metrics settings. An empty OTLP
// endpoint falls back to the collector default on localhost.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// LoadConfig loads configuration from file and environment variables.
// path may be empty, in which case the default search paths are used.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("researchhive")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RESEARCHHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.data_dir", "./data")

	v.SetDefault("server.port", 10001)

	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "5s")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")

	v.SetDefault("search.max_results_per_channel", 10)
	v.SetDefault("search.dead_channel_threshold", 2)
	v.SetDefault("search.candidate_cap_per_query", 12)
	v.SetDefault("search.feeds_per_minute", 6)
	v.SetDefault("search.timeout", "20s")

	v.SetDefault("fetch.type", "chromedp")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_chars", 20000)
	v.SetDefault("fetch.static_fallback", true)

	v.SetDefault("relevance.keyword_low_water", 0.08)
	v.SetDefault("relevance.cosine_accept", 0.55)
	v.SetDefault("relevance.authority_blend", 0.5)
	v.SetDefault("relevance.exploratory_tail", 2)

	v.SetDefault("evidence.domain_cap", 3)
	v.SetDefault("evidence.max_citations", 20)
	v.SetDefault("evidence.max_claims", 20)

	v.SetDefault("evaluate.stop_score", 0.7)
	v.SetDefault("evaluate.budget_stop_score", 0.4)
	v.SetDefault("evaluate.pivot_score", 0.25)
	v.SetDefault("evaluate.grounding_skip", 0.6)
	v.SetDefault("evaluate.deep_search_max", 3)

	v.SetDefault("pipeline.max_iterations", 5)
	v.SetDefault("pipeline.default_target_sources", 8)
	v.SetDefault("pipeline.fetch_concurrency_cap", 8)
	v.SetDefault("pipeline.remediation_limit", 1)

	v.SetDefault("resilience.failure_threshold", 3)
	v.SetDefault("resilience.cooldown", "30s")
	v.SetDefault("resilience.backoff_base", "1s")
	v.SetDefault("resilience.backoff_cap", "8s")

	v.SetDefault("llm.strategy", "cloud_primary")
	v.SetDefault("llm.local.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.local.model", "llama3.1")
	v.SetDefault("llm.cloud.provider", "openai")
	v.SetDefault("llm.cloud.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.cloud.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.cloud.gemini.model", "gemini-1.5-flash")
	v.SetDefault("llm.max_tokens_default", 2048)
	v.SetDefault("llm.max_tokens_cap", 8192)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "90s")

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)

	v.SetDefault("budget.max_tokens", 0)
	v.SetDefault("budget.max_cost_usd", 0)
	v.SetDefault("budget.max_time_seconds", 0)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// overrideFromEnv maps conventional vendor environment variables onto config
// keys so operators do not have to duplicate secrets in files.
func overrideFromEnv(v *viper.Viper) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		v.Set("llm.cloud.openai.api_key", key)
		if v.GetString("embedding.api_key") == "" {
			v.Set("embedding.api_key", key)
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		v.Set("llm.cloud.anthropic.api_key", key)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		v.Set("llm.cloud.gemini.api_key", key)
	}
	if key := os.Getenv("BRAVE_SEARCH_KEY"); key != "" {
		v.Set("search.brave_api_key", key)
	}
	if key := os.Getenv("SERPER_API_KEY"); key != "" {
		v.Set("search.serper_api_key", key)
	}
	if secret := os.Getenv("RESEARCHHIVE_JWT_SECRET"); secret != "" {
		v.Set("server.jwt_secret", secret)
	}
}

// Validate checks every section. Sections validate independently so one bad
// value reports its own path.
func (c *Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Relevance.Validate(); err != nil {
		return fmt.Errorf("relevance: %w", err)
	}
	if err := c.Evidence.Validate(); err != nil {
		return fmt.Errorf("evidence: %w", err)
	}
	if err := c.Evaluate.Validate(); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Resilience.Validate(); err != nil {
		return fmt.Errorf("resilience: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}

func (c SearchConfig) Validate() error {
	if c.DeadChannelThreshold < 1 {
		return fmt.Errorf("dead_channel_threshold must be >= 1, got %d", c.DeadChannelThreshold)
	}
	if c.CandidateCapPerQuery < 1 {
		return fmt.Errorf("candidate_cap_per_query must be >= 1, got %d", c.CandidateCapPerQuery)
	}
	return nil
}

func (c RelevanceConfig) Validate() error {
	if c.KeywordLowWater < 0 || c.KeywordLowWater > 1 {
		return fmt.Errorf("keyword_low_water must be in [0,1], got %f", c.KeywordLowWater)
	}
	if c.CosineAccept < 0 || c.CosineAccept > 1 {
		return fmt.Errorf("cosine_accept must be in [0,1], got %f", c.CosineAccept)
	}
	if c.AuthorityBlend < 0 || c.AuthorityBlend > 1 {
		return fmt.Errorf("authority_blend must be in [0,1], got %f", c.AuthorityBlend)
	}
	return nil
}

func (c EvidenceConfig) Validate() error {
	if c.DomainCap < 1 {
		return fmt.Errorf("domain_cap must be >= 1, got %d", c.DomainCap)
	}
	if c.MaxCitations < 1 {
		return fmt.Errorf("max_citations must be >= 1, got %d", c.MaxCitations)
	}
	return nil
}

func (c EvaluateConfig) Validate() error {
	for _, s := range []struct {
		name string
		val  float64
	}{
		{"stop_score", c.StopScore},
		{"budget_stop_score", c.BudgetStopScore},
		{"pivot_score", c.PivotScore},
		{"grounding_skip", c.GroundingSkip},
	} {
		if s.val < 0 || s.val > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", s.name, s.val)
		}
	}
	if c.PivotScore >= c.StopScore {
		return fmt.Errorf("pivot_score %f must be below stop_score %f", c.PivotScore, c.StopScore)
	}
	return nil
}

func (c PipelineConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.DefaultTargetSources < 1 {
		return fmt.Errorf("default_target_sources must be >= 1, got %d", c.DefaultTargetSources)
	}
	if c.FetchConcurrencyCap < 1 {
		return fmt.Errorf("fetch_concurrency_cap must be >= 1, got %d", c.FetchConcurrencyCap)
	}
	return nil
}

func (c ResilienceConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %s", c.Cooldown)
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff_base %s and backoff_cap %s must satisfy 0 < base <= cap", c.BackoffBase, c.BackoffCap)
	}
	return nil
}

func (c LLMConfig) Validate() error {
	switch c.Strategy {
	case "local_only", "cloud_only", "cloud_primary", "local_with_cloud_fallback":
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	switch c.Cloud.Provider {
	case "openai", "anthropic", "gemini", "":
	default:
		return fmt.Errorf("unknown cloud provider %q", c.Cloud.Provider)
	}
	if c.MaxTokensDefault < 1 || c.MaxTokensCap < c.MaxTokensDefault {
		return fmt.Errorf("max_tokens_default %d and max_tokens_cap %d must satisfy 0 < default <= cap", c.MaxTokensDefault, c.MaxTokensCap)
	}
	return nil
}

// DSN builds a postgres connection URL from the section. URL wins when set.
// The URL form is understood by both lib/pq and golang-migrate.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// Addr returns host:port for the Redis section.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
