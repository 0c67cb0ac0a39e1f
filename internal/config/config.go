// Package config loads application configuration from a YAML file and BSA_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. BSA_LLM_PROVIDER.
const EnvPrefix = "BSA"

// Converter providers.
const (
	ConverterLlamaParse = "llamaparse"
	ConverterGemini     = "gemini"
	ConverterLocal      = "local"
)

// Config is the full application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Converter ConverterConfig `mapstructure:"converter"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Staging   StagingConfig   `mapstructure:"staging"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

type LLMConfig struct {
	Provider          string          `mapstructure:"provider"`
	BaseURL           string          `mapstructure:"base_url"`
	APIKey            string          `mapstructure:"api_key"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	MaxRetries        int             `mapstructure:"max_retries"`
	RequestsPerMinute int             `mapstructure:"requests_per_minute"`
	Models            pipeline.Models `mapstructure:"models"`
}

type ConverterConfig struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Premium      bool          `mapstructure:"premium"`
}

type PipelineConfig struct {
	Workers             int `mapstructure:"workers"`
	MaxCondenseRounds   int `mapstructure:"max_condense_rounds"`
	OutputReserveTokens int `mapstructure:"output_reserve_tokens"`
}

type StagingConfig struct {
	// Dir is the parent of local staging areas; empty means the OS temp dir.
	Dir string `mapstructure:"dir"`
	// GCSBucket switches staging to GCS when set.
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// AuditConfig configures the BigQuery ledger. An empty ProjectID disables it.
type AuditConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
}

// Enabled reports whether the ledger should be used.
func (a AuditConfig) Enabled() bool {
	return a.ProjectID != ""
}

type ServerConfig struct {
	Port      int `mapstructure:"port"`
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	models := pipeline.DefaultModels()

	v.SetDefault("llm.provider", llm.ProviderOllama)
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", 3*time.Minute)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 0)
	setModelDefault(v, "summary", models.Summary)
	setModelDefault(v, "reasoning", models.Reasoning)
	setModelDefault(v, "classify", models.Classify)
	setModelDefault(v, "aggregate", models.Aggregate)
	setModelDefault(v, "chat", models.Chat)

	v.SetDefault("converter.provider", ConverterLlamaParse)
	v.SetDefault("converter.api_key", "")
	v.SetDefault("converter.base_url", "")
	v.SetDefault("converter.model", "")
	v.SetDefault("converter.poll_interval", 2*time.Second)
	v.SetDefault("converter.premium", false)

	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.max_condense_rounds", pipeline.DefaultMaxCondenseRounds)
	v.SetDefault("pipeline.output_reserve_tokens", pipeline.DefaultOutputReserveTokens)

	v.SetDefault("staging.dir", "")
	v.SetDefault("staging.gcs_bucket", "")

	v.SetDefault("audit.project_id", "")
	v.SetDefault("audit.dataset", "bank_statement_analyzer")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.queue_size", 32)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

func setModelDefault(v *viper.Viper, role string, m llm.Model) {
	v.SetDefault("llm.models."+role+".name", m.Name)
	v.SetDefault("llm.models."+role+".num_ctx", m.NumCtx)
}

// Load reads configuration. path names a config file; when empty, bsa.yaml
// is searched for in the working directory and $HOME/.bsa, and a missing
// file is not an error. Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bsa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".bsa"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOllama:
	case llm.ProviderOpenAI, llm.ProviderGemini:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}

	models := map[string]llm.Model{
		"summary":   c.LLM.Models.Summary,
		"reasoning": c.LLM.Models.Reasoning,
		"classify":  c.LLM.Models.Classify,
		"aggregate": c.LLM.Models.Aggregate,
		"chat":      c.LLM.Models.Chat,
	}
	for _, role := range []string{"summary", "reasoning", "classify", "aggregate", "chat"} {
		m := models[role]
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("llm.models.%s.name is required", role))
		}
		if m.NumCtx <= 0 {
			errs = append(errs, fmt.Errorf("llm.models.%s.num_ctx must be positive, got %d", role, m.NumCtx))
		}
	}

	switch strings.ToLower(c.Converter.Provider) {
	case ConverterLocal:
	case ConverterLlamaParse:
		if c.Converter.APIKey == "" {
			errs = append(errs, errors.New("converter.api_key is required for llamaparse"))
		}
	case ConverterGemini:
		if c.Converter.APIKey == "" && c.LLM.APIKey == "" {
			errs = append(errs, errors.New("converter.api_key or llm.api_key is required for the gemini converter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown converter.provider %q", c.Converter.Provider))
	}

	if c.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must not be negative, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.MaxCondenseRounds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_condense_rounds must not be negative, got %d", c.Pipeline.MaxCondenseRounds))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers))
	}
	if c.Server.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("server.queue_size must be positive, got %d", c.Server.QueueSize))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must not be negative, got %d", c.LLM.MaxRetries))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LLMClientConfig returns the backend selection for llm.NewClient.
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{Provider: c.LLM.Provider, BaseURL: c.LLM.BaseURL, APIKey: c.LLM.APIKey}
}

// ResilienceOptions returns the retry settings for llm.NewResilient.
// max_retries counts retries after the first attempt, so 0 disables them.
func (c *Config) ResilienceOptions() llm.Options {
	return llm.Options{
		Timeout:           c.LLM.Timeout,
		MaxTries:          c.LLM.MaxRetries + 1,
		RequestsPerMinute: c.LLM.RequestsPerMinute,
	}
}

// AnalyzerConfig returns the Analyzer settings.
func (c *Config) AnalyzerConfig() pipeline.Config {
	return pipeline.Config{
		Models:              c.LLM.Models,
		Workers:             c.Pipeline.Workers,
		OutputReserveTokens: c.Pipeline.OutputReserveTokens,
		MaxCondenseRounds:   c.Pipeline.MaxCondenseRounds,
	}
}
