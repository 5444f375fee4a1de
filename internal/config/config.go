package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all engram configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
	Decay    DecayConfig
	Dedup    DedupConfig
}

type ServerConfig struct {
	Bind string
	Port int
}

type DatabaseConfig struct {
	Path string
}

type LLMConfig struct {
	Provider       string // "anthropic", "ollama"
	Model          string
	OllamaURL      string
	EmbeddingModel string
	AnthropicKey   string
}

type DecayConfig struct {
	HalfLifeDays   float64
	PruneThreshold float64
}

type DedupConfig struct {
	Threshold float64
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2",
		},
		Decay: DecayConfig{
			HalfLifeDays:   30,
			PruneThreshold: 0.05,
		},
		Dedup: DedupConfig{
			Threshold: 0.92,
		},
	}
}

// Load returns the default config with environment overrides applied.
func Load() Config {
	cfg := Default()

	if v := os.Getenv("ENGRAM_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ENGRAM_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("ENGRAM_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.AnthropicKey = v
	}
	if v := os.Getenv("ENGRAM_OLLAMA_URL"); v != "" {
		cfg.LLM.OllamaURL = v
	}
	if v := os.Getenv("ENGRAM_HALF_LIFE_DAYS"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil && d > 0 {
			cfg.Decay.HalfLifeDays = d
		}
	}
	return cfg
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
