package vulnkb

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DBPath          string            `toml:"db_path"`
	AdvisoryAPI     AdvisoryAPIConfig `toml:"advisory_api"`
	Embedding       EmbeddingConfig   `toml:"embedding"`
	Remote          RemoteConfig      `toml:"remote"`
	Batch           BatchConfig       `toml:"batch"`
	ClassifierRules []ClassifierRule  `toml:"classifier_rule"`
}

type AdvisoryAPIConfig struct {
	Endpoint string `toml:"endpoint"`
	Token    string `toml:"token"`
}

type EmbeddingConfig struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TokenBudget    int    `toml:"token_budget"`
	FallbackTokens int    `toml:"fallback_tokens"`
}

type RemoteConfig struct {
	Source      string   `toml:"source"`
	PageSize    int      `toml:"page_size"`
	Concurrency int      `toml:"concurrency"`
	PageDelay   Duration `toml:"page_delay"`
}

type BatchConfig struct {
	Source         string `toml:"source"`
	BatchSize      int    `toml:"batch_size"`
	EmbedBatchSize int    `toml:"embed_batch_size"`
}

// ClassifierRule is an expr predicate evaluated against the text preceding a
// code block. The first matching rule decides the label; without a match the
// keyword heuristic applies.
type ClassifierRule struct {
	Predicate string `toml:"predicate"`
	Label     string `toml:"label"`
}

// Duration makes time.Duration usable in toml ("2s", "500ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func ParseConfig(config io.Reader) (c Config, err error) {
	tomlData, err := io.ReadAll(config)
	if err != nil {
		return c, fmt.Errorf("could not read config file: %w", err)
	}
	_, err = toml.Decode(string(tomlData), &c)
	if err != nil {
		return c, fmt.Errorf("could not decode toml: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

func ParseConfigFromFile(path string) (c Config, err error) {
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()

	return ParseConfig(f)
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "vulnkb.db"
	}
	if c.Embedding.TokenBudget == 0 {
		c.Embedding.TokenBudget = 7500
	}
	if c.Embedding.FallbackTokens == 0 {
		c.Embedding.FallbackTokens = 1000
	}
	if c.Remote.Source == "" {
		c.Remote.Source = "advisory-api"
	}
	if c.Remote.PageSize == 0 {
		c.Remote.PageSize = 100
	}
	if c.Remote.Concurrency == 0 {
		c.Remote.Concurrency = 3
	}
	if c.Remote.PageDelay.Duration == 0 {
		c.Remote.PageDelay.Duration = 2 * time.Second
	}
	if c.Batch.Source == "" {
		c.Batch.Source = "batch-file"
	}
	if c.Batch.BatchSize == 0 {
		c.Batch.BatchSize = 100
	}
	if c.Batch.EmbedBatchSize == 0 {
		c.Batch.EmbedBatchSize = 50
	}
}
