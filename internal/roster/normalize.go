package roster

import (
	"sort"
	"strings"
)

// NormalizeAttendees canonicalizes the attendee shapes that have
// accumulated in stored sessions over time. Three inputs are accepted:
//
//   - a bare id string ("p123"), which defaults to the player source
//   - a "source:id" string ("user:u7")
//   - an already-structured Attendee value
//
// The result is de-duplicated by (source, id) and sorted, so normalization
// is idempotent and order-independent. Empty ids are dropped silently:
// this is data hygiene, not validation.
func NormalizeAttendees(raw []any, playerIDs []string) []Attendee {
	seen := make(map[Attendee]struct{})

	add := func(a Attendee) {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return
		}
		if a.Source != SourceUser && a.Source != SourcePlayer {
			a.Source = SourcePlayer
		}
		seen[a] = struct{}{}
	}

	for _, r := range raw {
		switch v := r.(type) {
		case Attendee:
			add(v)
		case *Attendee:
			if v != nil {
				add(*v)
			}
		case string:
			add(parseAttendeeString(v))
		case map[string]any:
			// Decoded JSON objects arrive as maps.
			id, _ := v["id"].(string)
			src, _ := v["source"].(string)
			add(Attendee{ID: id, Source: Source(src)})
		}
	}

	for _, id := range playerIDs {
		add(Attendee{ID: id, Source: SourcePlayer})
	}

	out := make([]Attendee, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// parseAttendeeString handles both bare ids and "source:id" strings.
func parseAttendeeString(s string) Attendee {
	s = strings.TrimSpace(s)
	if prefix, id, ok := strings.Cut(s, ":"); ok {
		switch Source(strings.ToLower(strings.TrimSpace(prefix))) {
		case SourceUser:
			return Attendee{ID: strings.TrimSpace(id), Source: SourceUser}
		case SourcePlayer:
			return Attendee{ID: strings.TrimSpace(id), Source: SourcePlayer}
		}
		// Unknown prefix: the whole string is treated as an id to avoid
		// silently rewriting ids that legitimately contain colons.
		return Attendee{ID: s, Source: SourcePlayer}
	}
	return Attendee{ID: s, Source: SourcePlayer}
}
