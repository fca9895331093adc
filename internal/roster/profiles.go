package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/rallyd/internal/store"
)

// Profile is the resolved view of an attendee, independent of which
// collection the record came from.
type Profile struct {
	ID           string
	Source       Source
	FirstName    string
	LastName     string
	Phone        string
	Email        string
	ChannelPrefs map[string]bool
}

// FullName returns "First Last" for the resolved profile.
func (p Profile) FullName() string {
	return Player{FirstName: p.FirstName, LastName: p.LastName}.FullName()
}

// Profiles resolves attendee references against the user and player
// collections. The same human may exist as both an authenticated account
// and a roster contact, and legacy records sometimes carry the wrong
// source tag, so lookup tries the declared collection first and falls back
// to the alternate one.
type Profiles struct {
	store store.Store
}

// NewProfiles creates a profile resolver over the given store.
func NewProfiles(s store.Store) *Profiles {
	return &Profiles{store: s}
}

// Resolve returns the profile for an attendee reference. ErrNotFound is
// returned only when neither collection has the record.
func (p *Profiles) Resolve(ctx context.Context, ref Attendee) (Profile, error) {
	primary, secondary := collectionsFor(ref.Source)

	prof, err := p.lookup(ctx, primary, ref.ID)
	if err == nil {
		return prof, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Profile{}, err
	}

	prof, err = p.lookup(ctx, secondary, ref.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("resolve %s:%s: %w", ref.Source, ref.ID, err)
	}
	return prof, nil
}

// Players returns every player record, for disambiguation candidate lists.
func (p *Profiles) Players(ctx context.Context) ([]Player, error) {
	ids, err := p.store.List(ctx, store.CollectionPlayers)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	players := make([]Player, 0, len(ids))
	for _, id := range ids {
		var pl Player
		if _, err := p.store.Get(ctx, store.CollectionPlayers, id, &pl); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get player %s: %w", id, err)
		}
		players = append(players, pl)
	}
	return players, nil
}

// Courts returns every court record, for location matching.
func (p *Profiles) Courts(ctx context.Context) ([]Court, error) {
	ids, err := p.store.List(ctx, store.CollectionCourts)
	if err != nil {
		return nil, fmt.Errorf("list courts: %w", err)
	}
	courts := make([]Court, 0, len(ids))
	for _, id := range ids {
		var c Court
		if _, err := p.store.Get(ctx, store.CollectionCourts, id, &c); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get court %s: %w", id, err)
		}
		courts = append(courts, c)
	}
	return courts, nil
}

// Group returns a group by id.
func (p *Profiles) Group(ctx context.Context, id string) (Group, error) {
	var g Group
	if _, err := p.store.Get(ctx, store.CollectionGroups, id, &g); err != nil {
		return Group{}, fmt.Errorf("get group %s: %w", id, err)
	}
	return g, nil
}

// FindByPhone locates the player or user whose phone matches. Both
// collections are searched; players win ties because inbound SMS is how
// roster contacts, not accounts, usually reply.
func (p *Profiles) FindByPhone(ctx context.Context, phone string) (Profile, error) {
	for _, coll := range []string{store.CollectionPlayers, store.CollectionUsers} {
		ids, err := p.store.List(ctx, coll)
		if err != nil {
			return Profile{}, fmt.Errorf("list %s: %w", coll, err)
		}
		for _, id := range ids {
			prof, err := p.lookup(ctx, coll, id)
			if err != nil {
				continue
			}
			if prof.Phone != "" && samePhone(prof.Phone, phone) {
				return prof, nil
			}
		}
	}
	return Profile{}, fmt.Errorf("phone %s: %w", phone, store.ErrNotFound)
}

// lookup reads one record from a specific collection.
func (p *Profiles) lookup(ctx context.Context, collection, id string) (Profile, error) {
	var pl Player
	if _, err := p.store.Get(ctx, collection, id, &pl); err != nil {
		return Profile{}, err
	}
	src := SourcePlayer
	if collection == store.CollectionUsers {
		src = SourceUser
	}
	return Profile{
		ID:           id,
		Source:       src,
		FirstName:    pl.FirstName,
		LastName:     pl.LastName,
		Phone:        pl.Phone,
		Email:        pl.Email,
		ChannelPrefs: pl.ChannelPrefs,
	}, nil
}

// collectionsFor maps a declared source to its primary and fallback
// collections.
func collectionsFor(s Source) (primary, secondary string) {
	if s == SourceUser {
		return store.CollectionUsers, store.CollectionPlayers
	}
	return store.CollectionPlayers, store.CollectionUsers
}

// samePhone compares phone numbers on their digits only, tolerating
// formatting differences and a leading country code.
func samePhone(a, b string) bool {
	da, db := digitsOf(a), digitsOf(b)
	if da == "" || db == "" {
		return false
	}
	if len(da) == 11 && da[0] == '1' {
		da = da[1:]
	}
	if len(db) == 11 && db[0] == '1' {
		db = db[1:]
	}
	return da == db
}

// digitsOf strips everything but digits.
func digitsOf(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
