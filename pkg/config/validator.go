package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.EmbedRateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.embed_rate_limit",
			Message: "embed_rate_limit cannot be negative",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	for _, ext := range c.Source.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "source.extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	if c.Source.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "source.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Source.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "source.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Extractor.SegmentTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "extractor.segment_tokens",
			Message: "segment_tokens must be positive",
		})
	}

	if c.Ingest.TimeoutSecs < 0 {
		errors = append(errors, ValidationError{
			Field:   "ingest.timeout_secs",
			Message: "timeout_secs cannot be negative",
		})
	}

	return errors
}
