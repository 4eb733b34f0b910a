package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	ChatModel      string  `yaml:"chat_model"`
	EmbedModel     string  `yaml:"embed_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	EmbedRateLimit float64 `yaml:"embed_rate_limit"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	DocumentsTable string `yaml:"documents_table"`
	ChunksTable    string `yaml:"chunks_table"`
	VectorDim      int    `yaml:"vector_dim"`
}

type SourceConfig struct {
	Path           string   `yaml:"path"`
	Extensions     []string `yaml:"extensions"`
	PDFToText      string   `yaml:"pdftotext"`
	URL            string   `yaml:"url"`
	MaxDepth       int      `yaml:"max_depth"`
	RateLimit      float64  `yaml:"rate_limit"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

type ExtractorConfig struct {
	SegmentTokens int    `yaml:"segment_tokens"`
	Encoding      string `yaml:"encoding"`
}

type IngestConfig struct {
	TimeoutSecs int `yaml:"timeout_secs"`
}

type UIConfig struct {
	Streaming bool `yaml:"streaming"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Database  DatabaseConfig  `yaml:"database"`
	Source    SourceConfig    `yaml:"source"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Ingest    IngestConfig    `yaml:"ingest"`
	UI        UIConfig        `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/quill/config.yaml"),
			"/etc/quill/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.ChatModel == "" {
		config.LLM.ChatModel = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Database.DocumentsTable == "" {
		config.Database.DocumentsTable = "documents"
	}
	if config.Database.ChunksTable == "" {
		config.Database.ChunksTable = "chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if len(config.Source.Extensions) == 0 {
		config.Source.Extensions = []string{".pdf", ".txt", ".md"}
	}
	if config.Source.PDFToText == "" {
		config.Source.PDFToText = "pdftotext"
	}
	if config.Source.MaxDepth == 0 {
		config.Source.MaxDepth = 3
	}
	if config.Source.RateLimit == 0 {
		config.Source.RateLimit = 2.0
	}

	if config.Extractor.SegmentTokens == 0 {
		config.Extractor.SegmentTokens = 200
	}
	if config.Extractor.Encoding == "" {
		config.Extractor.Encoding = "cl100k_base"
	}

	if config.Ingest.TimeoutSecs == 0 {
		config.Ingest.TimeoutSecs = 600
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}
