package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEmpty(t *testing.T) {
	e := NewWithConfig(ExtractorConfig{})

	for _, raw := range []string{"", "   \n\t ", "\f\f"} {
		segments, err := e.Extract([]byte(raw))
		require.NoError(t, err)
		assert.Empty(t, segments)
	}
}

func TestExtractSinglePage(t *testing.T) {
	e := NewWithConfig(ExtractorConfig{})

	segments, err := e.Extract([]byte("A short note. Nothing more."))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, 1, segments[0].Page)
	assert.Contains(t, segments[0].Text, "A short note.")
}

func TestExtractPageLocators(t *testing.T) {
	raw := "First page text.\fSecond page text.\f\fFourth page text."
	e := NewWithConfig(ExtractorConfig{})

	segments, err := e.Extract([]byte(raw))
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, 1, segments[0].Page)
	assert.Equal(t, 2, segments[1].Page)
	assert.Equal(t, 4, segments[2].Page, "blank pages still advance the locator")

	for i := 1; i < len(segments); i++ {
		assert.GreaterOrEqual(t, segments[i].Page, segments[i-1].Page)
	}
}

func TestExtractSplitsLongPages(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog once again. ")
	}
	e := NewWithConfig(ExtractorConfig{SegmentTokens: 30})

	segments, err := e.Extract([]byte(b.String()))
	require.NoError(t, err)
	assert.Greater(t, len(segments), 1)

	for _, segment := range segments {
		assert.NotEmpty(t, strings.TrimSpace(segment.Text))
		assert.Equal(t, 1, segment.Page)
	}
}

func TestExtractKeepsOversizedSentenceWhole(t *testing.T) {
	sentence := "word " + strings.Repeat("and word ", 100) + "end."
	e := NewWithConfig(ExtractorConfig{SegmentTokens: 10})

	segments, err := e.Extract([]byte(sentence))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Contains(t, segments[0].Text, "end.")
}

func TestExtractOrderPreserved(t *testing.T) {
	raw := "One. Two. Three. Four. Five. Six. Seven. Eight. Nine. Ten."
	e := NewWithConfig(ExtractorConfig{SegmentTokens: 4})

	segments, err := e.Extract([]byte(raw))
	require.NoError(t, err)
	require.NotEmpty(t, segments)

	joined := ""
	for _, segment := range segments {
		joined += segment.Text + " "
	}
	assert.Less(t, strings.Index(joined, "One."), strings.Index(joined, "Ten."))
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First one. Second one! Third one? Trailing fragment")
	require.Len(t, sentences, 4)
	assert.Equal(t, "First one.", sentences[0])
	assert.Equal(t, "Trailing fragment", sentences[3])
}
