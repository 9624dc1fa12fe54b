package model

import (
	"runtime"
	"time"
)

// Config holds all runtime configuration
// Fields carry mapstructure tags for viper and yaml tags for `config show`
type Config struct {
	Scoring      ScoringConfig      `mapstructure:"scoring" yaml:"scoring"`
	Index        IndexConfig        `mapstructure:"index" yaml:"index"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Concurrency  ConcurrencyConfig  `mapstructure:"concurrency" yaml:"concurrency"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting" yaml:"rate_limiting"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

// ScoringConfig controls the phrase rules used by the scorer
type ScoringConfig struct {
	PatternsFile string `mapstructure:"patterns_file" yaml:"patterns_file"` // Optional YAML rules; built-ins when empty
}

// IndexConfig controls loading of the atom index
type IndexConfig struct {
	Source        string        `mapstructure:"source" yaml:"source"` // Local path or http(s) URL
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
	HTTPProxy     string        `mapstructure:"http_proxy" yaml:"http_proxy"`
	HTTPSProxy    string        `mapstructure:"https_proxy" yaml:"https_proxy"`
}

// CacheConfig controls the fetched-index cache
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir       string        `mapstructure:"dir" yaml:"dir"`
	MemoryTTL time.Duration `mapstructure:"memory_ttl" yaml:"memory_ttl"`
	DiskTTL   time.Duration `mapstructure:"disk_ttl" yaml:"disk_ttl"`
}

// ConcurrencyConfig controls the analysis worker pool
type ConcurrencyConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// RateLimitingConfig controls per-host throttling of remote index fetches
type RateLimitingConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size" yaml:"burst_size"`
}

// LLMConfig controls the optional narrative provider
type LLMConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"` // openai, ollama, or empty for disabled
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"-"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout"` // seconds
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	Strict    bool   `mapstructure:"strict" yaml:"strict"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `mapstructure:"verbose" yaml:"verbose"`
	IncludeFooter bool `mapstructure:"include_footer" yaml:"include_footer"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Source:        ".cyclotron_atoms/index.json",
			Timeout:       30 * time.Second,
			UserAgent:     "Cyclotron/0.1 (+https://github.com/ppiankov/cyclotron)",
			MaxBodyBytes:  10_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".cyclotron_cache",
			MemoryTTL: 5 * time.Minute,
			DiskTTL:   time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: runtime.NumCPU(),
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 800,
			Strict:    true,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}
