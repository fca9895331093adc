// Package roster holds the people and places a game can be scheduled
// against: players, courts, groups, and the attendee references sessions
// carry. It also provides name disambiguation and profile resolution.
package roster

import "strings"

// Source distinguishes an authenticated account from a roster contact. The
// two collections can contain overlapping ids only by coincidence, so every
// attendee reference carries its origin.
type Source string

const (
	SourceUser   Source = "user"
	SourcePlayer Source = "player"
)

// Player is an identity record owned by a user account. Sessions reference
// players by id, never by embedding.
type Player struct {
	ID            string `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	IsCurrentUser bool   `json:"is_current_user,omitempty"`
	OwnerID       string `json:"owner_id,omitempty"`

	// ChannelPrefs gates notification channels per player. A missing map
	// means every channel is allowed.
	ChannelPrefs map[string]bool `json:"channel_prefs,omitempty"`
}

// FullName returns "First Last" with no stray spaces for partial records.
func (p Player) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Court is an immutable reference target for sessions.
type Court struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
}

// Group is a named set of players. Membership is a snapshot at invite time:
// adding someone to a group later does not retroactively add them to past
// sessions.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	OwnerID string   `json:"owner_id,omitempty"`
	Admins  []string `json:"admins,omitempty"`
}

// Attendee references an invited participant together with which record
// store their profile lives in.
type Attendee struct {
	ID     string `json:"id"`
	Source Source `json:"source"`
}

// NamedEntity is the minimal shape the disambiguation resolver matches
// against. Players and courts both satisfy it through adapters below.
type NamedEntity struct {
	ID        string
	Name      string
	FirstName string
}

// EntityFromPlayer adapts a player for disambiguation.
func EntityFromPlayer(p Player) NamedEntity {
	return NamedEntity{ID: p.ID, Name: p.FullName(), FirstName: p.FirstName}
}

// EntityFromCourt adapts a court for disambiguation.
func EntityFromCourt(c Court) NamedEntity {
	return NamedEntity{ID: c.ID, Name: c.Name}
}
