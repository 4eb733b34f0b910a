// Package extractor turns raw document text into ordered, embedding-sized
// segments tagged with a page locator for citation.
package extractor

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/xhad/quill/internal/models"
)

type ExtractorConfig struct {
	// SegmentTokens is the target token budget per segment. Segments are
	// flushed once the budget is reached; a single oversized sentence is
	// kept whole rather than split mid-sentence.
	SegmentTokens int

	// Encoding is the tiktoken encoding used to count tokens.
	Encoding string
}

type Extractor struct {
	config ExtractorConfig
	enc    *tiktoken.Tiktoken
}

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.SegmentTokens == 0 {
		config.SegmentTokens = 200
	}
	if config.Encoding == "" {
		config.Encoding = "cl100k_base"
	}

	// The encoding is fetched lazily by tiktoken and may be unavailable
	// offline; counting falls back to a word-based estimate.
	enc, err := tiktoken.GetEncoding(config.Encoding)
	if err != nil {
		enc = nil
	}

	return &Extractor{config: config, enc: enc}
}

// Extract splits the raw text into segments. Pages are delimited by form
// feeds, which is what pdftotext emits; plain text is treated as a single
// page. Page numbers are 1-based and non-decreasing across the result. A
// document with no extractable text yields an empty slice.
func (e *Extractor) Extract(raw []byte) ([]models.Segment, error) {
	var segments []models.Segment

	for i, page := range strings.Split(string(raw), "\f") {
		pageNum := i + 1
		sentences := splitSentences(page)

		var current strings.Builder
		flush := func() {
			text := strings.TrimSpace(current.String())
			if text != "" {
				segments = append(segments, models.Segment{Page: pageNum, Text: text})
			}
			current.Reset()
		}

		tokens := 0
		for _, sentence := range sentences {
			cost := e.countTokens(sentence)
			if tokens > 0 && tokens+cost > e.config.SegmentTokens {
				flush()
				tokens = 0
			}
			current.WriteString(sentence)
			current.WriteString(" ")
			tokens += cost
		}
		flush()
	}

	return segments, nil
}

func (e *Extractor) countTokens(text string) int {
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	// Rough English average of 0.75 words per token.
	return (len(strings.Fields(text))*4 + 2) / 3
}

func splitSentences(text string) []string {
	enders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
	var sentences []string

	current := strings.Builder{}
	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])
		for _, ender := range enders {
			if strings.HasSuffix(current.String(), ender) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
				break
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
