// Package config provides configuration loading for aitd.
//
// Precedence (highest to lowest): environment variables with the AIT_
// prefix, YAML config file, hardcoded defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/Galitein/Ai1st-ai/internal/composer"
	"github.com/Galitein/Ai1st-ai/internal/embeddings"
	"github.com/Galitein/Ai1st-ai/internal/logging"
	"github.com/Galitein/Ai1st-ai/internal/vectorstore"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefix namespaces aitd's environment variables:
// AIT_SERVER_PORT -> server.port, AIT_VECTORSTORE_QDRANT_HOST ->
// vectorstore.qdrant.host.
const envPrefix = "AIT_"

// nestedSections lists the subsections reachable through each top-level
// section, so envKey can place the variable one level deeper instead of
// treating the subsection name as part of the field name.
var nestedSections = map[string][]string{
	"vectorstore": {"qdrant", "chromem"},
	"chat":        {"openai"},
}

// envKey maps an AIT_ variable name to a koanf key path. Field names keep
// their underscores: AIT_SERVER_SHUTDOWN_TIMEOUT -> server.shutdown_timeout,
// AIT_CHAT_OPENAI_API_KEY -> chat.openai.api_key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return key
	}
	section, rest := parts[0], parts[1]
	for _, sub := range nestedSections[section] {
		if strings.HasPrefix(rest, sub+"_") {
			return section + "." + sub + "." + strings.TrimPrefix(rest, sub+"_")
		}
	}
	return section + "." + rest
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host to bind. Default "0.0.0.0".
	Host string `koanf:"host"`

	// Port to listen on. Default 8080.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown. Default 10s.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is "qdrant" or "chromem". Default "qdrant".
	Backend string `koanf:"backend"`

	Qdrant  vectorstore.QdrantConfig  `koanf:"qdrant"`
	Chromem vectorstore.ChromemConfig `koanf:"chromem"`
}

// LedgerConfig configures the record manager.
type LedgerConfig struct {
	// DataDir holds the SQLite database. Default ~/.config/aitd/data.
	DataDir string `koanf:"data_dir"`
}

// LoaderConfig configures the source loaders.
type LoaderConfig struct {
	// LocalDir is the root of per-tenant document directories. Default
	// ~/.config/aitd/documents.
	LocalDir string `koanf:"local_dir"`

	// DriveFolderID bounds Google Drive name lookups. Empty disables the
	// Drive loader.
	DriveFolderID string `koanf:"drive_folder_id"`
}

// RetrievalConfig carries the search defaults.
type RetrievalConfig struct {
	// Limit is the default candidate count. Default 15.
	Limit int `koanf:"limit"`

	// Threshold is the default minimum similarity score. Default 0.3.
	Threshold float32 `koanf:"threshold"`
}

// ChatConfig configures answer generation.
type ChatConfig struct {
	// SystemPrompt overrides the built-in grounding prompt.
	SystemPrompt string `koanf:"system_prompt"`

	OpenAI composer.OpenAIConfig `koanf:"openai"`
}

// Config is the full aitd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	Embeddings  embeddings.Config `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Ledger      LedgerConfig      `koanf:"ledger"`
	Loader      LoaderConfig      `koanf:"loader"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Chat        ChatConfig        `koanf:"chat"`
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// AIT_-prefixed environment variables. An empty path uses
// ~/.config/aitd/config.yaml; a missing file is not an error.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "aitd", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	defaults := logging.NewDefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Format
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}

	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "qdrant"
	}
	cfg.VectorStore.Qdrant.ApplyDefaults()
	cfg.VectorStore.Chromem.ApplyDefaults()

	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = 15
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.3
	}

	cfg.Chat.OpenAI.ApplyDefaults()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.VectorStore.Backend {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("vectorstore backend must be qdrant or chromem, got %q", c.VectorStore.Backend)
	}
	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("embeddings provider must be fastembed or tei, got %q", c.Embeddings.Provider)
	}
	if c.Retrieval.Limit < 0 {
		return fmt.Errorf("retrieval limit must be non-negative, got %d", c.Retrieval.Limit)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval threshold must be in [0, 1], got %f", c.Retrieval.Threshold)
	}
	return nil
}
