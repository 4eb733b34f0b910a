package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/quill/internal/models"
)

// SessionStats is a snapshot of one chat session's accumulated usage.
type SessionStats struct {
	Queries         int
	PromptChars     int
	CompletionChars int
}

// Session accumulates usage for one conversation. It is passed explicitly
// into the query path so concurrent sessions stay independent.
type Session struct {
	mu    sync.Mutex
	stats SessionStats
}

func NewSession() *Session { return &Session{} }

func (s *Session) recordQuery(prompt string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Queries++
	s.stats.PromptChars += len(prompt)
}

func (s *Session) recordCompletion(text string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CompletionChars += len(text)
}

func (s *Session) Stats() SessionStats {
	if s == nil {
		return SessionStats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string // Ollama server URL
}

// ChatEngine is an engine that uses an LLM to generate chat responses
// grounded in retrieved chunks.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewChatWithConfig creates a new ChatEngine with the given configuration.
func NewChatWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful assistant with access to the user's document collection. Answer questions using the provided excerpts and cite the document and page you relied on."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Relevant excerpts:\n%s\nQuestion: %s"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{config: config, llm: llm}, nil
}

// Chat generates a response grounded in the retrieved chunks.
func (ce *ChatEngine) Chat(ctx context.Context, query string, results []models.ScoredChunk, session *Session) (string, error) {
	prompt := ce.buildPrompt(query, results)
	session.recordQuery(prompt)

	response, err := ce.llm.GenerateContent(ctx, ce.messages(prompt),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat error: empty response")
	}

	text := response.Choices[0].Content
	session.recordCompletion(text)
	return text, nil
}

// ChatStream generates a response as a stream of text fragments. The
// returned channel is closed when generation finishes; a generation error
// is delivered as a final "Error:" fragment, matching the interactive
// consumer's expectations.
func (ce *ChatEngine) ChatStream(ctx context.Context, query string, results []models.ScoredChunk, session *Session) (<-chan string, error) {
	prompt := ce.buildPrompt(query, results)
	session.recordQuery(prompt)

	out := make(chan string, 16)
	go func() {
		defer close(out)

		_, err := ce.llm.GenerateContent(ctx, ce.messages(prompt),
			llms.WithTemperature(ce.config.Temperature),
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				session.recordCompletion(string(chunk))
				select {
				case out <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		if err != nil {
			out <- fmt.Sprintf("Error: %v", err)
		}
	}()

	return out, nil
}

func (ce *ChatEngine) buildPrompt(query string, results []models.ScoredChunk) string {
	var contextBuilder strings.Builder
	for _, result := range results {
		fmt.Fprintf(&contextBuilder, "Source: %s (page %d)\n%s\n\n", result.DocumentID, result.Page, result.Text)
	}
	return fmt.Sprintf(ce.config.ContextTemplate, contextBuilder.String(), query)
}

func (ce *ChatEngine) messages(prompt string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
}
