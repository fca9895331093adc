// Package intent turns free-text scheduling chatter into structured
// game-scheduling intents. It combines a deterministic (pattern-based)
// extractor with a probabilistic (LLM-based) one and merges the two under
// fixed precedence rules, and classifies inbound SMS replies.
package intent

import (
	"context"
	"errors"
)

// PartialIntent is the structured scheduling intent either extractor can
// produce. Every field is optional; the merge step and completion check
// decide what to do with the gaps.
type PartialIntent struct {
	Players      []string `json:"players,omitempty"`
	Date         string   `json:"date,omitempty"` // YYYY-MM-DD
	Time         string   `json:"time,omitempty"` // "4:00 PM"
	Location     string   `json:"location,omitempty"`
	Confirmation string   `json:"confirmation,omitempty"` // conversational reply text
}

// Empty reports whether no field was extracted.
func (p PartialIntent) Empty() bool {
	return len(p.Players) == 0 && p.Date == "" && p.Time == "" && p.Location == "" && p.Confirmation == ""
}

// ErrRateLimited marks a probabilistic-service quota failure. It is the
// one transport error surfaced to the end user with guidance instead of
// being silently absorbed by the deterministic fallback.
var ErrRateLimited = errors.New("probabilistic extractor rate limited")

// Extractor is the probabilistic text-extraction collaborator: free text
// in, partial structured fields out, fallible.
type Extractor interface {
	Extract(ctx context.Context, conversation, message string) (PartialIntent, error)

	// Available reports whether the extractor is configured and usable.
	Available() bool
}

// Intent is the classification of an inbound SMS reply.
type Intent string

const (
	IntentAccept   Intent = "accept"
	IntentDecline  Intent = "decline"
	IntentCancel   Intent = "cancel"
	IntentQuestion Intent = "question"
	IntentUnknown  Intent = "unknown"
)

// Confidence grades a classification. The fast regex path always returns
// high; the probabilistic path returns low.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Classification is the result of classifying an inbound reply.
type Classification struct {
	Intent     Intent     `json:"intent"`
	Confidence Confidence `json:"confidence"`
	FollowUp   string     `json:"follow_up,omitempty"`
}

// IntentClassifier is the probabilistic classification collaborator with
// an enumerated output contract.
type IntentClassifier interface {
	ClassifyReply(ctx context.Context, text string) (Intent, error)

	// Available reports whether the classifier is configured and usable.
	Available() bool
}
