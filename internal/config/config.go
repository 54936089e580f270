package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider kinds, each backed by a different recognizer
const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
	KindGemini = "gemini"
)

// DefaultProvider is used when the config names none
const DefaultProvider = "qwen"

// Provider holds the connection settings of one inference provider
type Provider struct {
	// Kind selects the recognizer; derived from the provider name when empty
	Kind           string `yaml:"kind"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	ImageTimeoutMs int    `yaml:"image_timeout_ms"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryDelayMs   int    `yaml:"retry_delay_ms"`
}

// Timeout is the deadline for text-only requests
func (p Provider) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// ImageTimeout is the deadline for image-bearing requests
func (p Provider) ImageTimeout() time.Duration {
	return time.Duration(p.ImageTimeoutMs) * time.Millisecond
}

// RetryDelay is the base backoff delay
func (p Provider) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

// merge overlays the non-zero fields of o onto p
func (p Provider) merge(o Provider) Provider {
	if o.Kind != "" {
		p.Kind = o.Kind
	}
	if o.BaseURL != "" {
		p.BaseURL = o.BaseURL
	}
	if o.APIKey != "" {
		p.APIKey = o.APIKey
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	if o.TimeoutMs > 0 {
		p.TimeoutMs = o.TimeoutMs
	}
	if o.ImageTimeoutMs > 0 {
		p.ImageTimeoutMs = o.ImageTimeoutMs
	}
	if o.MaxRetries > 0 {
		p.MaxRetries = o.MaxRetries
	}
	if o.RetryDelayMs > 0 {
		p.RetryDelayMs = o.RetryDelayMs
	}
	return p
}

// Config is the static configuration of the recognition pipeline
type Config struct {
	Provider  string              `yaml:"provider"`
	Providers map[string]Provider `yaml:"providers"`
}

// Default returns the built-in provider profiles. API keys come from the
// usual vendor environment variables and may be empty.
func Default() *Config {
	return &Config{
		Provider: DefaultProvider,
		Providers: map[string]Provider{
			"qwen": {
				Kind:           KindOpenAI,
				BaseURL:        "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
				APIKey:         os.Getenv("DASHSCOPE_API_KEY"),
				Model:          "qwen3-vl-plus",
				TimeoutMs:      30000,
				ImageTimeoutMs: 60000,
				MaxRetries:     3,
				RetryDelayMs:   1000,
			},
			"openai": {
				Kind:           KindOpenAI,
				BaseURL:        "https://api.openai.com/v1/chat/completions",
				APIKey:         os.Getenv("OPENAI_API_KEY"),
				Model:          "gpt-4o-mini",
				TimeoutMs:      30000,
				ImageTimeoutMs: 60000,
				MaxRetries:     3,
				RetryDelayMs:   1000,
			},
			"ollama": {
				Kind:           KindOllama,
				BaseURL:        "http://localhost:11434",
				Model:          "llava",
				TimeoutMs:      120000,
				ImageTimeoutMs: 120000,
				MaxRetries:     2,
				RetryDelayMs:   1000,
			},
			"gemini": {
				Kind:           KindGemini,
				APIKey:         os.Getenv("GEMINI_API_KEY"),
				Model:          "gemini-2.5-flash",
				TimeoutMs:      30000,
				ImageTimeoutMs: 60000,
				MaxRetries:     3,
				RetryDelayMs:   1000,
			},
		},
	}
}

// Load reads provider profiles from a YAML file and overlays them on the
// defaults. An empty path returns the defaults. The active profile is checked
// by Active, after any overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var file Config
	// Expand environment variables so keys can stay out of the file
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if file.Provider != "" {
		cfg.Provider = file.Provider
	}
	for name, p := range file.Providers {
		cfg.Providers[name] = cfg.Providers[name].merge(p)
	}
	return cfg, nil
}

// Active returns the selected provider profile with its kind resolved
func (c *Config) Active() (string, Provider, error) {
	p, ok := c.Providers[c.Provider]
	if !ok {
		return "", Provider{}, fmt.Errorf("unknown provider %q (configured: %v)", c.Provider, c.names())
	}
	if p.Kind == "" {
		switch c.Provider {
		case KindOllama, KindGemini:
			p.Kind = c.Provider
		default:
			p.Kind = KindOpenAI
		}
	}
	switch p.Kind {
	case KindOpenAI:
		if p.BaseURL == "" {
			return "", Provider{}, fmt.Errorf("provider %q has no base_url", c.Provider)
		}
	case KindOllama, KindGemini:
	default:
		return "", Provider{}, fmt.Errorf("provider %q has unknown kind %q", c.Provider, p.Kind)
	}
	return c.Provider, p, nil
}

// Override replaces fields of the active profile with non-zero values, for flags.
// An unknown profile is left for Active to report.
func (c *Config) Override(p Provider) {
	active, ok := c.Providers[c.Provider]
	if !ok {
		return
	}
	c.Providers[c.Provider] = active.merge(p)
}

func (c *Config) names() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
