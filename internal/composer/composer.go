// Package composer turns retrieval results into grounded chat answers. It
// merges matches from several collection tags into one context block and
// hands it to a text generator. Prompt engineering stays out of scope; the
// system prompt is caller-supplied configuration.
package composer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/retriever"
)

// Generator produces a completion from a system and user prompt. The LLM
// transport behind it (OpenAI-compatible HTTP, local runtime) is the
// integrator's choice.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// DefaultSystemPrompt is used when the caller configures none.
const DefaultSystemPrompt = "Answer using only the provided context. " +
	"If the context does not contain the answer, say so."

// Answer is one chat response. Status mirrors the retriever convention:
// false means no grounding context cleared the threshold and no generation
// was attempted.
type Answer struct {
	Status  bool   `json:"status"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// Request is one chat invocation. Tags lists the collections to ground
// against; zero Limit and Threshold take the retriever defaults.
type Request struct {
	AITID     string
	Query     string
	Tags      []string
	Limit     int
	Threshold float32
}

// Composer retrieves per-tag context and generates answers.
type Composer struct {
	retriever    *retriever.Retriever
	generator    Generator
	systemPrompt string
	logger       *zap.Logger
}

// New creates a Composer. An empty systemPrompt takes the default.
func New(r *retriever.Retriever, g Generator, systemPrompt string, logger *zap.Logger) *Composer {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		retriever:    r,
		generator:    g,
		systemPrompt: systemPrompt,
		logger:       logger.Named("composer"),
	}
}

// Compose retrieves context for every tag, merges the matches, and
// generates an answer. When no tag yields a passing match the generator is
// never called and the answer carries Status=false.
func (c *Composer) Compose(ctx context.Context, req Request) (Answer, error) {
	if req.Query == "" {
		return Answer{}, fmt.Errorf("chat request missing query")
	}
	if len(req.Tags) == 0 {
		return Answer{}, fmt.Errorf("chat request missing collection tags")
	}

	var sections []string
	for _, tag := range req.Tags {
		resp, err := c.retriever.Search(ctx, retriever.Query{
			AITID:     req.AITID,
			Text:      req.Query,
			Tag:       tag,
			Limit:     req.Limit,
			Threshold: req.Threshold,
		})
		if err != nil {
			return Answer{}, fmt.Errorf("retrieving %s context: %w", tag, err)
		}
		if !resp.Status {
			continue
		}
		sections = append(sections, renderSection(tag, resp.Results))
	}

	if len(sections) == 0 {
		c.logger.Info("no grounding context for chat",
			zap.String("ait_id", req.AITID),
			zap.Strings("tags", req.Tags),
		)
		return Answer{Status: false, Message: "no context found"}, nil
	}

	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(sections, "\n\n"), req.Query)
	text, err := c.generator.Generate(ctx, c.systemPrompt, user)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}
	return Answer{Status: true, Text: text}, nil
}

// renderSection formats one tag's matches as a labeled context section.
func renderSection(tag string, matches []retriever.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", tag)
	for _, m := range matches {
		if m.FileName != "" {
			fmt.Fprintf(&b, "(%s) ", m.FileName)
		}
		b.WriteString(m.PageContent)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
