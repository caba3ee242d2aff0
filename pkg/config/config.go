// Package config loads the YAML configuration and fans it out to the
// per-package Config structs. Every section supports ${VAR} and
// ${VAR:-default} substitution from the environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/slate-agents/slate/pkg/coordinator"
	"github.com/slate-agents/slate/pkg/embedders"
	"github.com/slate-agents/slate/pkg/executor"
	"github.com/slate-agents/slate/pkg/llms"
	"github.com/slate-agents/slate/pkg/rag"
	"github.com/slate-agents/slate/pkg/retriever"
	"github.com/slate-agents/slate/pkg/server"
	"github.com/slate-agents/slate/pkg/tools"
	"github.com/slate-agents/slate/pkg/vector"
)

// MemoryConfig controls the cross-session turn store.
type MemoryConfig struct {
	// TurnLogPath is the SQLite file recording every concluded turn.
	// Empty disables the turn log.
	TurnLogPath string `yaml:"turn_log_path"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	LLM         llms.Config        `yaml:"llm"`
	Embedder    embedders.Config   `yaml:"embedder"`
	Vector      vector.Config      `yaml:"vector"`
	Tools       tools.Config       `yaml:"tools"`
	Executor    executor.Config    `yaml:"executor"`
	Retriever   retriever.Config   `yaml:"retriever"`
	RAG         rag.Config         `yaml:"rag"`
	Coordinator coordinator.Config `yaml:"coordinator"`
	Server      server.Config      `yaml:"server"`
	Memory      MemoryConfig       `yaml:"memory"`
}

// SetDefaults cascades defaults through every section.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Embedder.Host == "" {
		c.Embedder.Host = os.Getenv("OLLAMA_HOST")
	}
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.Executor.SetDefaults()
	c.Retriever.SetDefaults()
	c.RAG.SetDefaults()
	c.Coordinator.SetDefaults()
	c.Server.SetDefaults()
	if c.Vector.Dimension == 0 {
		c.Vector.Dimension = c.Embedder.Dimension
	}
}

// Validate cascades validation through every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	if c.Vector.Dimension != c.Embedder.Dimension {
		return fmt.Errorf("vector dimension %d does not match embedder dimension %d",
			c.Vector.Dimension, c.Embedder.Dimension)
	}
	return nil
}

// Default returns a ready-to-use configuration without a file.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// Load reads a YAML file, expands environment variables, and validates.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML with env substitution applied.
func Parse(raw []byte) (*Config, error) {
	expanded := expandEnvVars(string(raw))

	config := &Config{}
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// LoadDotEnv loads a .env file from the working directory when present.
// Missing files are not an error; real environment variables win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})

	return s
}
