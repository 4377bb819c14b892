package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmpty(t *testing.T) {
	assert.Nil(t, Chunk("", 10, 2))
	assert.Nil(t, Chunk("   \n\t  ", 10, 2))
}

func TestChunkShortText(t *testing.T) {
	chunks := Chunk("just a few words", 10, 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words", chunks[0])
}

func TestChunkWindowing(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = "w"
	}
	text := strings.Join(words, " ")

	chunks := Chunk(text, 10, 2)
	require.NotEmpty(t, chunks)

	// Step is 8; the window at 16 reaches the end, so starts are 0, 8, 16.
	assert.Len(t, chunks, 3)
	assert.Len(t, strings.Fields(chunks[0]), 10)
	assert.Len(t, strings.Fields(chunks[1]), 10)
	assert.Len(t, strings.Fields(chunks[2]), 9)
}

func TestChunkOverlapSharesWords(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	chunks := Chunk(text, 6, 2)
	require.Len(t, chunks, 2)

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	assert.Equal(t, first[len(first)-2:], second[:2])
}

func TestChunkRoundTrip(t *testing.T) {
	words := make([]string, 137)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	text := strings.Join(words, " ")

	const maxTokens, overlap = 20, 5
	chunks := Chunk(text, maxTokens, overlap)
	require.NotEmpty(t, chunks)

	// Dropping each later chunk's overlap prefix reassembles the input
	// exactly: no word lost, none duplicated.
	rebuilt := strings.Fields(chunks[0])
	for _, c := range chunks[1:] {
		cw := strings.Fields(c)
		require.Greater(t, len(cw), overlap)
		rebuilt = append(rebuilt, cw[overlap:]...)
	}
	assert.Equal(t, words, rebuilt)
}

func TestChunkDegenerateParams(t *testing.T) {
	// Overlap >= maxTokens must still terminate.
	chunks := Chunk("a b c d e f", 2, 5)
	assert.NotEmpty(t, chunks)

	chunks = Chunk("a b c", 0, 0)
	assert.NotEmpty(t, chunks)
}

func TestSmartChunkerEmpty(t *testing.T) {
	s := NewSmartChunker()
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("  \n \n  "))
}

func TestSmartChunkerShortContent(t *testing.T) {
	s := NewSmartChunker()
	chunks := s.Split("A short note.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short note.", chunks[0])
}

func TestSmartChunkerRespectsChunkSize(t *testing.T) {
	s := NewSmartChunker()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("This is a complete sentence about the project status. ")
	}
	chunks := s.Split(b.String())
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		// Overlap joining can exceed the limit slightly, never wildly.
		assert.LessOrEqual(t, len(c), s.ChunkSize+s.Overlap+1)
		assert.GreaterOrEqual(t, len(c), s.MinChunkSize)
	}
}

func TestSmartChunkerParagraphBoundaries(t *testing.T) {
	s := NewSmartChunker()

	para := strings.Repeat("Some sentence with enough words to matter here. ", 8)
	content := para + "\n\n" + para + "\n\n" + para
	chunks := s.Split(content)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.GreaterOrEqual(t, len(c), s.MinChunkSize)
	}
}

func TestSmartChunkerNormalizesLineEndings(t *testing.T) {
	s := NewSmartChunker()
	content := "First paragraph line one.\r\nStill first paragraph.\r\n\r\n" +
		strings.Repeat("Second paragraph sentence goes here. ", 5)
	chunks := s.Split(content)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.NotContains(t, c, "\r")
	}
}

func TestSmartChunkerSentenceSplit(t *testing.T) {
	s := NewSmartChunker()
	sentences := s.sentences("First sentence here. Second one follows. And a third?")
	require.Len(t, sentences, 3)
	assert.Equal(t, "First sentence here.", sentences[0])
	assert.Equal(t, "Second one follows.", sentences[1])
}

func TestSmartChunkerDiscardsTinyTrailingFragment(t *testing.T) {
	s := &SmartChunker{ChunkSize: 120, Overlap: 10, MinChunkSize: 60}

	content := strings.Repeat("A reasonably sized sentence for the test. ", 4) + "\n\nok."
	for _, c := range s.Split(content) {
		assert.GreaterOrEqual(t, len(c), s.MinChunkSize)
	}
}
