// Package session owns the game-session aggregate and its per-player RSVP
// state machine: who is confirmed, when a session fills, how it reopens on
// cancellation, and the order in which waitlisted players are offered an
// open spot.
package session

import (
	"time"

	"github.com/fyrsmithlabs/rallyd/internal/roster"
)

// Status is the session-level lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFull      Status = "full"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// RsvpStatus is one player's current attendance state within a session.
// It is a single value, not a history.
type RsvpStatus string

const (
	RsvpPending   RsvpStatus = "PENDING"
	RsvpConfirmed RsvpStatus = "CONFIRMED"
	RsvpDeclined  RsvpStatus = "DECLINED"
	RsvpCancelled RsvpStatus = "CANCELLED"
	RsvpWaitlist  RsvpStatus = "WAITLIST"
	RsvpExpired   RsvpStatus = "EXPIRED"
)

// GameSession is the aggregate root. The record is the unit of mutual
// exclusion: every RSVP transition is a compare-and-swap against the whole
// document.
type GameSession struct {
	ID          string `json:"id"`
	CourtID     string `json:"court_id"`
	OrganizerID string `json:"organizer_id"`

	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	IsDoubles       bool      `json:"is_doubles"`

	// Attendees is the invited superset, organizer included. PlayerStatuses
	// tracks current state per player id; Alternates is the ordered
	// waitlist.
	Attendees      []roster.Attendee     `json:"attendees"`
	PlayerStatuses map[string]RsvpStatus `json:"player_statuses"`
	Alternates     []string              `json:"alternates,omitempty"`

	MinPlayers int `json:"min_players"`
	MaxPlayers int `json:"max_players"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveMaxPlayers returns the capacity, defaulting from the game type
// when the organizer did not set one.
func (s *GameSession) EffectiveMaxPlayers() int {
	if s.MaxPlayers > 0 {
		return s.MaxPlayers
	}
	if s.IsDoubles {
		return 4
	}
	return 2
}

// ConfirmedCount returns how many players are currently CONFIRMED.
func (s *GameSession) ConfirmedCount() int {
	n := 0
	for _, st := range s.PlayerStatuses {
		if st == RsvpConfirmed {
			n++
		}
	}
	return n
}

// recomputeFullness flips the session between open and full based on the
// confirmed count. Cancelled and completed sessions are left alone.
func (s *GameSession) recomputeFullness() {
	if s.Status == StatusCancelled || s.Status == StatusCompleted {
		return
	}
	if s.ConfirmedCount() >= s.EffectiveMaxPlayers() {
		s.Status = StatusFull
	} else {
		s.Status = StatusOpen
	}
}

// attendeeFor returns the attendee reference carried for a player id. A
// status entry without a matching attendee (legacy data) is treated as a
// roster contact.
func (s *GameSession) attendeeFor(playerID string) roster.Attendee {
	for _, a := range s.Attendees {
		if a.ID == playerID {
			return a
		}
	}
	return roster.Attendee{ID: playerID, Source: roster.SourcePlayer}
}

// removeAlternate drops a player from the waitlist order, preserving the
// relative order of everyone else.
func (s *GameSession) removeAlternate(playerID string) {
	out := s.Alternates[:0]
	for _, id := range s.Alternates {
		if id != playerID {
			out = append(out, id)
		}
	}
	s.Alternates = out
	if len(s.Alternates) == 0 {
		s.Alternates = nil
	}
}

// hasAlternate reports whether the player is already on the waitlist.
func (s *GameSession) hasAlternate(playerID string) bool {
	for _, id := range s.Alternates {
		if id == playerID {
			return true
		}
	}
	return false
}

// playersWithStatus returns ids currently in the given state, excluding
// any listed in skip.
func (s *GameSession) playersWithStatus(status RsvpStatus, skip ...string) []string {
	skipped := make(map[string]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	var out []string
	for _, a := range s.Attendees {
		if skipped[a.ID] {
			continue
		}
		if s.PlayerStatuses[a.ID] == status {
			out = append(out, a.ID)
		}
	}
	return out
}
