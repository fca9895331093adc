package intent

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// clarificationReply is the canned prompt returned when a reply cannot be
// classified, including when the probabilistic classifier fails.
const clarificationReply = "Sorry, I didn't catch that. Reply YES to play, NO if you can't, " +
	"or CANCEL if you need to drop out."

// fastPattern is one row of the fast-path table: a whole-message,
// case-insensitive match that short-circuits the probabilistic call.
type fastPattern struct {
	intent Intent
	re     *regexp.Regexp
}

// fastPatterns covers the common accept/decline/cancel phrasings. Order
// matters: cancel phrases are checked before declines because "can't make
// it anymore" must not read as a fresh decline.
var fastPatterns = []fastPattern{
	{IntentCancel, regexp.MustCompile(`(?i)^\s*(cancel( me)?|drop( me)? out|withdraw|(i )?(have|need) to cancel|can'?t make it( anymore| after all)?)\s*[.!]*\s*$`)},
	{IntentAccept, regexp.MustCompile(`(?i)^\s*(y|yes+|yeah|yep|yup|sure|ok(ay)?|in|i'?m in|count me in|confirm(ed)?|accept(ed)?|sounds good|see you there)\s*[.!]*\s*$`)},
	{IntentDecline, regexp.MustCompile(`(?i)^\s*(n|no+|nope|nah|pass|out|i'?m out|can'?t|cannot|decline(d)?|not this time|maybe next time)\s*[.!]*\s*$`)},
}

// questionRE is a cheap hint that the reply is asking about the game; it
// still goes to the probabilistic path when available for a better read.
var questionRE = regexp.MustCompile(`\?\s*$`)

// Classifier resolves an inbound SMS reply to an intent: a fixed pattern
// table first, the probabilistic classifier only when no pattern matched.
type Classifier struct {
	probabilistic IntentClassifier
	timeout       time.Duration
	logger        *zap.Logger
}

// NewClassifier creates a reply classifier. probabilistic may be nil or
// unavailable; unmatched replies then classify as unknown.
func NewClassifier(prob IntentClassifier, timeout time.Duration, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Classifier{probabilistic: prob, timeout: timeout, logger: logger}
}

// Classify returns the intent of an inbound reply. The fast path returns
// high confidence with zero external calls; the slow path returns low
// confidence, and any call failure degrades to unknown with a canned
// clarification rather than an error.
func (c *Classifier) Classify(ctx context.Context, text string) Classification {
	for _, p := range fastPatterns {
		if p.re.MatchString(text) {
			return Classification{Intent: p.intent, Confidence: ConfidenceHigh}
		}
	}

	if c.probabilistic == nil || !c.probabilistic.Available() {
		return c.unknownFallback(text)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	intent, err := c.probabilistic.ClassifyReply(callCtx, text)
	if err != nil {
		c.logger.Warn("probabilistic classification failed", zap.Error(err))
		return c.unknownFallback(text)
	}

	cls := Classification{Intent: intent, Confidence: ConfidenceLow}
	if intent == IntentUnknown {
		cls.FollowUp = clarificationReply
	}
	return cls
}

// unknownFallback is the no-classifier answer: unknown plus the canned
// clarification, with the question hint preserved.
func (c *Classifier) unknownFallback(text string) Classification {
	if questionRE.MatchString(text) {
		return Classification{Intent: IntentQuestion, Confidence: ConfidenceLow}
	}
	return Classification{
		Intent:     IntentUnknown,
		Confidence: ConfidenceLow,
		FollowUp:   clarificationReply,
	}
}
