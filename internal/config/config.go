package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edustack-ai/llm-router/internal/orchestrator"
	"github.com/edustack-ai/llm-router/internal/providers/anthropic"
	"github.com/edustack-ai/llm-router/internal/providers/openai"
	"github.com/edustack-ai/llm-router/internal/routing"
	"github.com/edustack-ai/llm-router/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Router    RouterConfig    `yaml:"router"`
	Providers ProvidersConfig `yaml:"providers"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// RouterConfig holds routing engine configuration
type RouterConfig struct {
	Enabled          bool                      `yaml:"enabled"`
	Mode             types.RolloutMode         `yaml:"mode"`
	CanaryPercentage float64                   `yaml:"canary_percentage"`
	BaselineProvider string                    `yaml:"baseline_provider"`
	FallbackProvider string                    `yaml:"fallback_provider"`
	RequestTimeout   time.Duration             `yaml:"request_timeout"`
	AuditMaxEntries  int                       `yaml:"audit_max_entries"`
	Scoring          routing.ScoringConfig     `yaml:"scoring"`
	Budgets          orchestrator.BudgetConfig `yaml:"budgets"`
}

// Rollout derives the rollout policy configuration.
func (rc *RouterConfig) Rollout() routing.RolloutConfig {
	return routing.RolloutConfig{
		Mode:             rc.Mode,
		CanaryPercentage: rc.CanaryPercentage,
		BaselineProvider: rc.BaselineProvider,
	}
}

// ProvidersConfig holds the provider fleet plus real-client credentials.
// Fleet entries without a matching adapter use the simulated invoker.
type ProvidersConfig struct {
	Fleet     []types.Provider  `yaml:"fleet"`
	OpenAI    *openai.Config    `yaml:"openai"`
	Anthropic *anthropic.Config `yaml:"anthropic"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// SecurityConfig holds ops API authentication configuration
type SecurityConfig struct {
	APIKeys   []string `yaml:"api_keys"`
	JWTSecret string   `yaml:"jwt_secret"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	config.setDefaults()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	c.Router = RouterConfig{
		Enabled:          true,
		Mode:             types.ModeShadow,
		CanaryPercentage: 5,
		BaselineProvider: "openai-gpt-4o-mini",
		FallbackProvider: "xai-grok-4-fast",
		RequestTimeout:   30 * time.Second,
		AuditMaxEntries:  10000,
		Scoring:          routing.DefaultScoringConfig(),
		Budgets: orchestrator.BudgetConfig{
			PerSession: 0.50,
			PerModule: map[string]float64{
				"aula_interativa": 2.00,
				"enem":            1.50,
				"ti":              0.75,
				"professor":       1.00,
				"atendimento":     0.50,
			},
		},
	}

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	c.Security = SecurityConfig{
		APIKeys: []string{},
	}

	c.Providers = ProvidersConfig{
		Fleet: DefaultFleet(),
	}
}

// DefaultFleet returns the built-in provider set. Capability data mirrors
// published figures closely enough for scoring to be meaningful without
// any external configuration.
func DefaultFleet() []types.Provider {
	return []types.Provider{
		{
			ID:      "xai-grok-4-fast",
			Name:    "Grok 4 Fast",
			Type:    "grok",
			Enabled: true,
			Capabilities: types.Capabilities{
				SupportsJSONStrict: true,
				SupportsToolUse:    true,
				SupportsStreaming:  true,
				MaxContextTokens:   131072,
				LanguagePreference: "multilingual",
				DomainExpertise: []types.DomainExpertise{
					{Domain: types.DomainEducational, Confidence: 0.85},
					{Domain: types.DomainTechnical, Confidence: 0.80},
				},
				ResponseStyle:     "direct",
				AvgLatencyMs:      800,
				SuccessRate:       0.97,
				CostPer1KTokens:   types.CostStructure{InputPer1K: 0.0002, OutputPer1K: 0.0005, Currency: "USD"},
				DataResidency:     []string{"us"},
				Compliance:        []types.Compliance{{Standard: "GDPR"}},
				SafetyFilterLevel: "moderate",
			},
			Invocation:       types.InvocationConfig{Model: "grok-4-fast", Temperature: 0.7, MaxTokens: 2048},
			Limits:           types.RateLimits{RequestsPerMinute: 600, TokensPerMinute: 2000000, MaxConcurrent: 50},
			FallbackPriority: 1,
		},
		{
			ID:      "openai-gpt-4o-mini",
			Name:    "GPT-4o mini",
			Type:    "openai",
			Enabled: true,
			Capabilities: types.Capabilities{
				SupportsJSONStrict: true,
				SupportsToolUse:    true,
				SupportsStreaming:  true,
				MaxContextTokens:   128000,
				LanguagePreference: "multilingual",
				DomainExpertise: []types.DomainExpertise{
					{Domain: types.DomainEducational, Confidence: 0.90},
					{Domain: types.DomainConversational, Confidence: 0.85},
				},
				ResponseStyle:     "balanced",
				AvgLatencyMs:      1200,
				SuccessRate:       0.98,
				CostPer1KTokens:   types.CostStructure{InputPer1K: 0.00015, OutputPer1K: 0.0006, Currency: "USD"},
				DataResidency:     []string{"us", "eu"},
				Compliance:        []types.Compliance{{Standard: "GDPR"}, {Standard: "SOC2"}},
				SafetyFilterLevel: "strict",
			},
			Invocation:       types.InvocationConfig{Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 2048},
			Limits:           types.RateLimits{RequestsPerMinute: 500, TokensPerMinute: 2000000, MaxConcurrent: 50},
			FallbackPriority: 2,
		},
		{
			ID:      "anthropic-claude-haiku",
			Name:    "Claude Haiku",
			Type:    "anthropic",
			Enabled: true,
			Capabilities: types.Capabilities{
				SupportsJSONStrict: false,
				SupportsToolUse:    true,
				SupportsStreaming:  true,
				MaxContextTokens:   200000,
				LanguagePreference: "multilingual",
				DomainExpertise: []types.DomainExpertise{
					{Domain: types.DomainEducational, Confidence: 0.92},
					{Domain: types.DomainTechnical, Confidence: 0.88},
				},
				ResponseStyle:     "detailed",
				AvgLatencyMs:      1500,
				SuccessRate:       0.985,
				CostPer1KTokens:   types.CostStructure{InputPer1K: 0.00025, OutputPer1K: 0.00125, Currency: "USD"},
				DataResidency:     []string{"us", "eu"},
				Compliance:        []types.Compliance{{Standard: "GDPR"}, {Standard: "SOC2"}},
				SafetyFilterLevel: "strict",
			},
			Invocation:       types.InvocationConfig{Model: "claude-3-5-haiku-latest", Temperature: 0.7, MaxTokens: 2048},
			Limits:           types.RateLimits{RequestsPerMinute: 400, TokensPerMinute: 1000000, MaxConcurrent: 40},
			FallbackPriority: 3,
		},
		{
			ID:      "google-gemini-flash",
			Name:    "Gemini Flash",
			Type:    "google",
			Enabled: true,
			Capabilities: types.Capabilities{
				SupportsJSONStrict: true,
				SupportsToolUse:    true,
				SupportsStreaming:  true,
				MaxContextTokens:   1000000,
				LanguagePreference: "multilingual",
				DomainExpertise: []types.DomainExpertise{
					{Domain: types.DomainEducational, Confidence: 0.85},
				},
				ResponseStyle:     "balanced",
				AvgLatencyMs:      1100,
				SuccessRate:       0.96,
				CostPer1KTokens:   types.CostStructure{InputPer1K: 0.000075, OutputPer1K: 0.0003, Currency: "USD"},
				DataResidency:     []string{"us", "eu"},
				Compliance:        []types.Compliance{{Standard: "GDPR"}},
				SafetyFilterLevel: "moderate",
			},
			Invocation:       types.InvocationConfig{Model: "gemini-2.0-flash", Temperature: 0.7, MaxTokens: 2048},
			Limits:           types.RateLimits{RequestsPerMinute: 1000, TokensPerMinute: 4000000, MaxConcurrent: 60},
			FallbackPriority: 4,
		},
		{
			ID:      "mistral-small",
			Name:    "Mistral Small",
			Type:    "mistral",
			Enabled: true,
			Capabilities: types.Capabilities{
				SupportsJSONStrict: true,
				SupportsToolUse:    true,
				SupportsStreaming:  true,
				MaxContextTokens:   32000,
				LanguagePreference: "multilingual",
				DomainExpertise: []types.DomainExpertise{
					{Domain: types.DomainTechnical, Confidence: 0.80},
				},
				ResponseStyle:     "concise",
				AvgLatencyMs:      900,
				SuccessRate:       0.95,
				CostPer1KTokens:   types.CostStructure{InputPer1K: 0.0002, OutputPer1K: 0.0006, Currency: "USD"},
				DataResidency:     []string{"eu"},
				Compliance:        []types.Compliance{{Standard: "GDPR", Region: "eu"}},
				SafetyFilterLevel: "moderate",
			},
			Invocation:       types.InvocationConfig{Model: "mistral-small-latest", Temperature: 0.7, MaxTokens: 2048},
			Limits:           types.RateLimits{RequestsPerMinute: 300, TokensPerMinute: 1000000, MaxConcurrent: 30},
			FallbackPriority: 5,
		},
		{
			ID:      "groq-llama",
			Name:    "Groq Llama",
			Type:    "groq",
			Enabled: true,
			Capabilities: types.Capabilities{
				SupportsJSONStrict: false,
				SupportsToolUse:    false,
				SupportsStreaming:  true,
				MaxContextTokens:   8192,
				LanguagePreference: "en",
				DomainExpertise: []types.DomainExpertise{
					{Domain: types.DomainConversational, Confidence: 0.75},
				},
				ResponseStyle:     "concise",
				AvgLatencyMs:      400,
				SuccessRate:       0.94,
				CostPer1KTokens:   types.CostStructure{InputPer1K: 0.00005, OutputPer1K: 0.00008, Currency: "USD"},
				DataResidency:     []string{"us"},
				SafetyFilterLevel: "basic",
			},
			Invocation:       types.InvocationConfig{Model: "llama-3.1-8b-instant", Temperature: 0.7, MaxTokens: 2048},
			Limits:           types.RateLimits{RequestsPerMinute: 1000, TokensPerMinute: 500000, MaxConcurrent: 80},
			FallbackPriority: 6,
		},
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("AI_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}

	if level := os.Getenv("AI_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("AI_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if mode := os.Getenv("AI_ROUTER_MODE"); mode != "" {
		c.Router.Mode = types.RolloutMode(mode)
	}

	if secret := os.Getenv("AI_ROUTER_JWT_SECRET"); secret != "" {
		c.Security.JWTSecret = secret
	}
	if apiKey := os.Getenv("AI_ROUTER_API_KEY"); apiKey != "" {
		c.Security.APIKeys = append(c.Security.APIKeys, apiKey)
	}

	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		if c.Providers.OpenAI == nil {
			c.Providers.OpenAI = &openai.Config{}
		}
		c.Providers.OpenAI.APIKey = openaiKey
	}
	if anthropicKey := os.Getenv("ANTHROPIC_API_KEY"); anthropicKey != "" {
		if c.Providers.Anthropic == nil {
			c.Providers.Anthropic = &anthropic.Config{}
		}
		c.Providers.Anthropic.APIKey = anthropicKey
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Router.Mode {
	case types.ModeShadow, types.ModeCanary, types.ModeAuto:
	default:
		return fmt.Errorf("invalid router mode: %s", c.Router.Mode)
	}

	if c.Router.CanaryPercentage < 0 || c.Router.CanaryPercentage > 100 {
		return fmt.Errorf("canary percentage must be in [0,100]: %v", c.Router.CanaryPercentage)
	}

	if len(c.Providers.Fleet) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	ids := make(map[string]bool, len(c.Providers.Fleet))
	for _, p := range c.Providers.Fleet {
		if p.ID == "" {
			return fmt.Errorf("provider id cannot be empty")
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		ids[p.ID] = true
	}

	if !ids[c.Router.BaselineProvider] {
		return fmt.Errorf("baseline provider %s not in fleet", c.Router.BaselineProvider)
	}
	if !ids[c.Router.FallbackProvider] {
		return fmt.Errorf("fallback provider %s not in fleet", c.Router.FallbackProvider)
	}

	w := c.Router.Scoring.Weights
	if w.Quality < 0 || w.Speed < 0 || w.Cost < 0 || w.Reliability < 0 {
		return fmt.Errorf("scoring weights must not be negative")
	}

	return nil
}

// SaveToFile saves the current configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
