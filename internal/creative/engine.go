// Package creative produces the caption text for a promotional post.
package creative

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/model"
)

// Marker must appear in every generated caption.
const Marker = "[18+ only]"

const minGeneratedLength = 5

// Brief is what a Generator is told about the candidate.
type Brief struct {
	Title    string
	Category string
	Tags     []string
}

type Generator interface {
	Generate(ctx context.Context, brief Brief) (string, error)
}

// Result is the caption plus how it was produced.
type Result struct {
	Text     string
	Style    string
	Fallback bool
	Reason   string
}

type Engine struct {
	generator Generator
	pick      func(n int) int
	logger    logging.Logger
}

// NewEngine wraps generator with validation and template fallback. A nil generator always falls back.
func NewEngine(generator Generator, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		generator: generator,
		pick:      rand.IntN,
		logger:    logger.WithField("component", "creative"),
	}
}

// WithPicker replaces the template picker.
func (e *Engine) WithPicker(pick func(n int) int) *Engine {
	e.pick = pick
	return e
}

// Generate never fails: rejected or failed generation falls back to a template.
func (e *Engine) Generate(ctx context.Context, c *model.Candidate) Result {
	if e.generator == nil {
		return e.fallback(c, "no generator configured")
	}

	category := c.Category
	if category == "" {
		category = "General"
	}
	text, err := e.generator.Generate(ctx, Brief{Title: c.Title, Category: category, Tags: c.Tags})
	if err != nil {
		e.logger.WithError(err).WithField("candidate_id", c.ID).Warn("Text generation failed, using template")
		return e.fallback(c, err.Error())
	}

	text = strings.TrimSpace(text)
	if reason := validate(text); reason != "" {
		e.logger.WithFields(logging.Fields{"candidate_id": c.ID, "reason": reason}).Warn("Generated text rejected, using template")
		return e.fallback(c, reason)
	}
	return Result{Text: text, Style: "generated"}
}

func validate(text string) string {
	if len(text) <= minGeneratedLength {
		return "generated text too short"
	}
	if !strings.Contains(text, Marker) {
		return "generated text missing age marker"
	}
	return ""
}

func (e *Engine) fallback(c *model.Candidate, reason string) Result {
	category := c.Category
	if category == "" {
		category = "exclusive"
	}
	template := Templates[e.pick(len(Templates))]
	return Result{
		Text:     RenderTemplate(template, map[string]string{"title": c.Title, "category": category}),
		Style:    "template",
		Fallback: true,
		Reason:   reason,
	}
}
