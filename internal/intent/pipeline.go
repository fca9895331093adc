package intent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rallyd/internal/roster"
)

// rateLimitedReply is the one transport failure surfaced verbatim to the
// user instead of being absorbed silently.
const rateLimitedReply = "I'm getting more messages than my language service allows right now. " +
	"I understood what I could; give me a minute and try again for the rest."

// Request is a single extraction turn: the conversation so far plus the
// new message, with the rosters to resolve against.
type Request struct {
	Conversation  string
	Message       string
	Players       []roster.Player
	Courts        []roster.Court
	CurrentUserID string // resolves the literal invitee "me"
}

// Result is the pipeline's answer: the merged intent, its resolution
// against known records, and what to say next.
type Result struct {
	Intent PartialIntent

	// CourtID is set when the extracted location matched a known court.
	CourtID string
	// UnknownLocation holds a location string that matched no known court;
	// the caller should offer to add it rather than fail.
	UnknownLocation string

	// Invitees are the resolved participants, organizer included.
	Invitees      []roster.Attendee
	InviteeNames  []string
	AmbiguousName string // first invitee that matched several players

	// Complete is true once date, time, court and at least one invitee
	// exist; FollowUp carries the next question otherwise.
	Complete bool
	FollowUp string

	// RateLimited is set when the probabilistic call failed on quota; the
	// FollowUp then includes the distinct user-facing guidance.
	RateLimited bool
}

// Pipeline merges deterministic and probabilistic extraction into one
// executable scheduling intent.
type Pipeline struct {
	deterministic *Deterministic
	probabilistic Extractor
	timeout       time.Duration
	logger        *zap.Logger
}

// NewPipeline creates an extraction pipeline. probabilistic may be an
// unavailable extractor; the pipeline then runs deterministic-only.
func NewPipeline(det *Deterministic, prob Extractor, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pipeline{
		deterministic: det,
		probabilistic: prob,
		timeout:       timeout,
		logger:        logger,
	}
}

// Extract runs both extractors, merges their output, resolves names
// against the rosters, and decides whether the intent is executable.
// Probabilistic failure never fails the deterministic path.
func (p *Pipeline) Extract(ctx context.Context, req Request) (Result, error) {
	playerEntities := make([]roster.NamedEntity, len(req.Players))
	for i, pl := range req.Players {
		playerEntities[i] = roster.EntityFromPlayer(pl)
	}
	courtEntities := make([]roster.NamedEntity, len(req.Courts))
	for i, c := range req.Courts {
		courtEntities[i] = roster.EntityFromCourt(c)
	}

	det := p.deterministic.Extract(req.Message, playerEntities, courtEntities)
	if req.Conversation != "" {
		// Earlier turns fill gaps; the new message wins conflicts, and
		// nothing already supplied gets re-asked.
		det = fillGaps(det, p.deterministic.Extract(req.Conversation, playerEntities, courtEntities))
	}

	var res Result
	merged := det
	if p.probabilistic != nil && p.probabilistic.Available() {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		prob, err := p.probabilistic.Extract(callCtx, req.Conversation, req.Message)
		cancel()
		switch {
		case err == nil:
			merged = Merge(det, prob)
		case errors.Is(err, ErrRateLimited):
			p.logger.Warn("probabilistic extractor rate limited, falling back to deterministic")
			res.RateLimited = true
		default:
			// Timeouts included: deterministic-only fallback.
			p.logger.Warn("probabilistic extractor failed, falling back to deterministic", zap.Error(err))
		}
	}
	res.Intent = merged

	p.resolveLocation(&res, courtEntities)
	p.resolveInvitees(&res, req, playerEntities)
	p.finish(&res)
	return res, nil
}

// resolveLocation maps the merged location string onto a known court id.
func (p *Pipeline) resolveLocation(res *Result, courts []roster.NamedEntity) {
	loc := strings.TrimSpace(res.Intent.Location)
	if loc == "" {
		return
	}
	match := roster.Resolve(loc, courts)
	switch match.Kind {
	case roster.MatchUnique:
		res.CourtID = match.Entity.ID
		res.Intent.Location = match.Entity.Name
	case roster.MatchAmbiguous:
		// Treat like unknown; the follow-up asks the user to pick.
		res.UnknownLocation = loc
	default:
		res.UnknownLocation = loc
	}
}

// resolveInvitees maps extracted player names onto attendee references.
// "me" resolves to the current user; unresolvable names become questions,
// never hard failures.
func (p *Pipeline) resolveInvitees(res *Result, req Request, players []roster.NamedEntity) {
	for _, name := range res.Intent.Players {
		if strings.EqualFold(name, "me") {
			if req.CurrentUserID != "" {
				res.Invitees = append(res.Invitees, roster.Attendee{ID: req.CurrentUserID, Source: roster.SourceUser})
				res.InviteeNames = append(res.InviteeNames, "me")
			}
			continue
		}
		match := roster.ResolvePlayer(name, players)
		switch match.Kind {
		case roster.MatchUnique:
			res.Invitees = append(res.Invitees, roster.Attendee{ID: match.Entity.ID, Source: roster.SourcePlayer})
			res.InviteeNames = append(res.InviteeNames, match.Entity.Name)
		case roster.MatchAmbiguous:
			if res.AmbiguousName == "" {
				res.AmbiguousName = name
				res.FollowUp = roster.DisambiguationPrompt(name, match)
			}
		default:
			if res.FollowUp == "" {
				res.FollowUp = "I don't have \"" + name + "\" in your contacts yet. " +
					"What's their phone number and I'll add them?"
			}
		}
	}
}

// finish runs the completion check and builds the follow-up prompt. The
// prompt acknowledges what is already known and asks only for what is
// missing.
func (p *Pipeline) finish(res *Result) {
	hasInvitee := false
	for _, inv := range res.Invitees {
		if inv.Source == roster.SourcePlayer {
			hasInvitee = true
			break
		}
	}
	res.Complete = res.Intent.Date != "" && res.Intent.Time != "" && res.CourtID != "" &&
		hasInvitee && res.AmbiguousName == "" && res.FollowUp == ""

	if res.Complete {
		if res.RateLimited {
			res.FollowUp = rateLimitedReply
		}
		return
	}
	if res.FollowUp != "" {
		// A name question already pending takes priority.
		if res.RateLimited {
			res.FollowUp = rateLimitedReply + " " + res.FollowUp
		}
		return
	}

	if res.UnknownLocation != "" {
		res.FollowUp = "I don't know a court called \"" + res.UnknownLocation + "\". Want me to add it?"
		if res.RateLimited {
			res.FollowUp = rateLimitedReply + " " + res.FollowUp
		}
		return
	}

	var known, missing []string
	if res.Intent.Date != "" {
		known = append(known, "the date ("+res.Intent.Date+")")
	} else {
		missing = append(missing, "what day")
	}
	if res.Intent.Time != "" {
		known = append(known, "the time ("+res.Intent.Time+")")
	} else {
		missing = append(missing, "what time")
	}
	if res.CourtID != "" {
		known = append(known, "the court ("+res.Intent.Location+")")
	} else {
		missing = append(missing, "which court")
	}
	if hasInvitee {
		known = append(known, "who's playing")
	} else {
		missing = append(missing, "who to invite")
	}

	var b strings.Builder
	if len(known) > 0 {
		b.WriteString("Got " + joinNatural(known) + ". ")
	}
	b.WriteString("I still need " + joinNatural(missing) + ".")
	res.FollowUp = b.String()
	if res.RateLimited {
		res.FollowUp = rateLimitedReply + " " + res.FollowUp
	}
}

// joinNatural joins items as "a, b and c".
func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
