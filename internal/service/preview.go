package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/autoposter/internal/model"
)

// Preview is what a selection run would produce, without any writes.
type Preview struct {
	Outcome      string           `json:"outcome"`
	Candidate    *model.Candidate `json:"candidate,omitempty"`
	Text         string           `json:"text,omitempty"`
	Style        string           `json:"style,omitempty"`
	Fallback     bool             `json:"fallback"`
	Reason       string           `json:"fallback_reason,omitempty"`
	Duplicate    bool             `json:"duplicate"`
	TrackingLink string           `json:"tracking_link,omitempty"`
	Body         string           `json:"body,omitempty"`
}

// Preview runs selection, generation and the duplicate check without creating posts or jobs.
func (w *SelectionWorker) Preview(ctx context.Context) (*Preview, error) {
	if w.Breaker.IsOpen(ctx) {
		return &Preview{Outcome: OutcomeCircuitOpen}, nil
	}
	candidate, err := w.Selector.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("select candidate: %w", err)
	}
	if candidate == nil {
		return &Preview{Outcome: OutcomeNoCandidate}, nil
	}

	result := w.Creative.Generate(ctx, candidate)
	dup, err := w.Guard.IsDuplicate(ctx, result.Text, candidate.ThumbnailURL)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	p := &Preview{
		Outcome:   OutcomeEnqueued,
		Candidate: candidate,
		Text:      result.Text,
		Style:     result.Style,
		Fallback:  result.Fallback,
		Reason:    result.Reason,
		Duplicate: dup,
	}
	if dup {
		p.Outcome = OutcomeDuplicate
		return p, nil
	}
	p.TrackingLink = w.trackingLink(w.logger(), candidate)
	p.Body = ComposeBody(p.Text, p.TrackingLink)
	return p, nil
}
