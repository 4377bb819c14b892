// Package chunker splits raw text into overlapping windows for embedding.
//
// Two strategies are provided. Chunk is a plain word-window splitter used
// for file and URL content. SmartChunker is boundary-aware (paragraphs,
// then sentences, then raw words) and is used for long-form unstructured
// content such as email bodies. Both are pure functions of their input.
package chunker

import (
	"regexp"
	"strings"
)

// Chunk splits text into word windows of at most maxTokens words with
// overlap words repeated between consecutive windows. The window start
// advances by maxTokens-overlap each step.
//
// Text shorter than maxTokens yields a single chunk; empty or
// whitespace-only text yields nil.
func Chunk(text string, maxTokens, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxTokens {
		overlap = maxTokens - 1
	}
	if len(words) <= maxTokens {
		return []string{strings.Join(words, " ")}
	}

	step := maxTokens - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

var (
	lineBreakRe  = regexp.MustCompile(`\r\n|\r`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	leadSpaceRe  = regexp.MustCompile(`\n[ \t]+`)
	blankLineRe  = regexp.MustCompile(`\n\s*\n`)
	sentenceEnds = regexp.MustCompile(`([.!?])\s+(?:[A-Z])`)
)

// SmartChunker splits long-form content along semantic boundaries:
// paragraphs first, sentences within oversized paragraphs, and raw words
// for any single sentence still exceeding the chunk size. Adjacent chunks
// share a word-level overlap for continuity. Trailing fragments below
// MinChunkSize are discarded rather than emitted.
type SmartChunker struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int

	// Overlap is the number of words carried from the end of one chunk
	// into the start of the next.
	Overlap int

	// MinChunkSize is the smallest chunk worth keeping, in characters.
	MinChunkSize int
}

// NewSmartChunker returns a SmartChunker with the sizes used for email
// content in the original deployment.
func NewSmartChunker() *SmartChunker {
	return &SmartChunker{
		ChunkSize:    512,
		Overlap:      50,
		MinChunkSize: 100,
	}
}

// Split chunks content along paragraph and sentence boundaries.
func (s *SmartChunker) Split(content string) []string {
	cleaned := s.clean(content)
	if len(strings.TrimSpace(cleaned)) < s.MinChunkSize {
		if strings.TrimSpace(cleaned) == "" {
			return nil
		}
		return []string{strings.TrimSpace(cleaned)}
	}

	var chunks []string
	var current string

	for _, para := range s.paragraphs(cleaned) {
		if len(para) > s.ChunkSize {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
				current = ""
			}
			chunks = append(chunks, s.chunkSentences(s.sentences(para))...)
			continue
		}
		if len(current)+len(para)+2 > s.ChunkSize {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
				current = s.overlapTail(current) + para
			} else {
				current = para
			}
		} else if current != "" {
			current += "\n\n" + para
		} else {
			current = para
		}
	}
	if trimmed := strings.TrimSpace(current); len(trimmed) >= s.MinChunkSize {
		chunks = append(chunks, trimmed)
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if len(strings.TrimSpace(c)) >= s.MinChunkSize {
			kept = append(kept, strings.TrimSpace(c))
		}
	}
	return kept
}

// clean normalizes line endings and collapses runs of spaces while keeping
// paragraph breaks intact.
func (s *SmartChunker) clean(content string) string {
	content = lineBreakRe.ReplaceAllString(content, "\n")
	content = spaceRunRe.ReplaceAllString(content, " ")
	content = leadSpaceRe.ReplaceAllString(content, "\n")
	return content
}

func (s *SmartChunker) paragraphs(content string) []string {
	parts := blankLineRe.Split(content, -1)
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// sentences splits a paragraph on sentence-ending punctuation followed by a
// capitalized word. The lookahead capital is not consumed.
func (s *SmartChunker) sentences(para string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnds.FindAllStringSubmatchIndex(para, -1) {
		// loc[3] is the end of the punctuation group; split just after it.
		end := loc[3]
		if sent := strings.TrimSpace(para[last:end]); sent != "" {
			out = append(out, sent)
		}
		last = end
	}
	if sent := strings.TrimSpace(para[last:]); sent != "" {
		out = append(out, sent)
	}
	return out
}

// chunkSentences packs sentences into chunks of at most ChunkSize, falling
// back to word windows for any single sentence that is itself too long.
func (s *SmartChunker) chunkSentences(sentences []string) []string {
	var chunks []string
	var current string

	flush := func() {
		if t := strings.TrimSpace(current); t != "" {
			chunks = append(chunks, t)
		}
		current = ""
	}

	for _, sent := range sentences {
		if len(sent) > s.ChunkSize {
			flush()
			wordCap := s.ChunkSize / 6 // rough average word length incl. space
			if wordCap < 1 {
				wordCap = 1
			}
			chunks = append(chunks, Chunk(sent, wordCap, s.Overlap/6)...)
			continue
		}
		if len(current)+len(sent)+1 > s.ChunkSize {
			flush()
			if len(chunks) > 0 {
				current = s.overlapTail(chunks[len(chunks)-1]) + sent
			} else {
				current = sent
			}
		} else if current != "" {
			current += " " + sent
		} else {
			current = sent
		}
	}
	flush()
	return chunks
}

// overlapTail returns the last Overlap characters of prev, cut to a word
// boundary, with a trailing space for joining.
func (s *SmartChunker) overlapTail(prev string) string {
	prev = strings.TrimSpace(prev)
	if prev == "" || s.Overlap <= 0 {
		return ""
	}
	start := len(prev) - s.Overlap
	if start <= 0 {
		return prev + " "
	}
	if idx := strings.IndexByte(prev[start:], ' '); idx >= 0 {
		tail := strings.TrimSpace(prev[start+idx:])
		if tail == "" {
			return ""
		}
		return tail + " "
	}
	return ""
}
