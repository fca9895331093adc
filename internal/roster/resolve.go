package roster

import (
	"strings"
)

// MatchKind reports how a resolution attempt ended.
type MatchKind int

const (
	// MatchNotFound means no candidate survived any matching stage.
	MatchNotFound MatchKind = iota
	// MatchUnique means exactly one candidate matched.
	MatchUnique
	// MatchAmbiguous means several candidates matched the same stage; the
	// caller must ask the user to pick one.
	MatchAmbiguous
)

// Match is the result of resolving a free-text query against candidates.
// Failure is represented in the value, never as an error.
type Match struct {
	Kind   MatchKind
	Entity NamedEntity   // set when Kind == MatchUnique
	Stage  string        // which cascade stage produced the match
	All    []NamedEntity // set when Kind == MatchAmbiguous
}

// nameSuffixes are dropped before fuzzy comparison. "Sunnyvale Courts",
// "Sunnyvale Tennis Center" and "Sunnyvale" should all land on the same
// record.
var nameSuffixes = []string{"courts", "court", "tennis", "center", "park", "club"}

// apostrophes covers the straight and typographic variants phones produce.
var apostrophes = []string{"'", "’", "‘", "ʼ"}

// foldName lowercases and collapses runs of whitespace.
func foldName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// cleanName strips apostrophes, a leading "the", and the suffix vocabulary.
func cleanName(s string) string {
	s = foldName(s)
	for _, a := range apostrophes {
		s = strings.ReplaceAll(s, a, "")
	}
	tokens := strings.Fields(s)
	if len(tokens) > 0 && tokens[0] == "the" {
		tokens = tokens[1:]
	}
	kept := tokens[:0]
	for _, tok := range tokens {
		suffix := false
		for _, suf := range nameSuffixes {
			if tok == suf {
				suffix = true
				break
			}
		}
		if !suffix {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}

// matchStage is one rung of the resolution cascade.
type matchStage struct {
	name  string
	match func(query, candidate string) bool
}

// stages are tried in order; the first stage with any hits decides the
// outcome.
var stages = []matchStage{
	{"exact", func(q, c string) bool {
		return foldName(q) == foldName(c)
	}},
	{"cleaned", func(q, c string) bool {
		cq, cc := cleanName(q), cleanName(c)
		return cq != "" && cq == cc
	}},
	{"contains", func(q, c string) bool {
		cq, cc := cleanName(q), cleanName(c)
		if cq == "" || cc == "" {
			return false
		}
		return strings.Contains(cc, cq) || strings.Contains(cq, cc)
	}},
	{"prefix", func(q, c string) bool {
		cq, cc := cleanName(q), cleanName(c)
		if cq == "" || cc == "" {
			return false
		}
		return strings.HasPrefix(cc, cq) || strings.HasPrefix(cq, cc)
	}},
	{"token", func(q, c string) bool {
		cc := cleanName(c)
		if cc == "" {
			return false
		}
		for _, tok := range strings.Fields(cleanName(q)) {
			if len(tok) >= 3 && strings.Contains(cc, tok) {
				return true
			}
		}
		return false
	}},
}

// Resolve matches a free-text name against candidates using the ordered
// cascade: exact, cleaned, containment, prefix, token overlap. The first
// stage that produces any hits wins; one hit is Unique, several are
// Ambiguous. Pure function, no I/O.
func Resolve(query string, candidates []NamedEntity) Match {
	if strings.TrimSpace(query) == "" || len(candidates) == 0 {
		return Match{Kind: MatchNotFound}
	}

	for _, stage := range stages {
		var hits []NamedEntity
		for _, c := range candidates {
			if stage.match(query, c.Name) {
				hits = append(hits, c)
			}
		}
		switch len(hits) {
		case 0:
			continue
		case 1:
			return Match{Kind: MatchUnique, Entity: hits[0], Stage: stage.name}
		default:
			return Match{Kind: MatchAmbiguous, All: hits, Stage: stage.name}
		}
	}
	return Match{Kind: MatchNotFound}
}

// ResolvePlayer is Resolve with first-name awareness: a single-token query
// is compared against each candidate's first name only. Zero hits is
// NotFound — the caller should prompt for a phone number to add a new
// contact rather than guessing. More than one hit is Ambiguous and the
// caller must render a question listing the matched full names.
// Multi-token queries go through the general cascade.
func ResolvePlayer(query string, candidates []NamedEntity) Match {
	q := strings.TrimSpace(query)
	if q != "" && len(strings.Fields(q)) == 1 {
		folded := foldName(q)
		var hits []NamedEntity
		for _, c := range candidates {
			if foldName(c.FirstName) == folded {
				hits = append(hits, c)
			}
		}
		switch len(hits) {
		case 0:
			return Match{Kind: MatchNotFound}
		case 1:
			return Match{Kind: MatchUnique, Entity: hits[0], Stage: "first_name"}
		default:
			return Match{Kind: MatchAmbiguous, All: hits, Stage: "first_name"}
		}
	}
	return Resolve(query, candidates)
}

// DisambiguationPrompt renders the question asked when a player query
// matched several candidates.
func DisambiguationPrompt(query string, m Match) string {
	if m.Kind != MatchAmbiguous {
		return ""
	}
	names := make([]string, len(m.All))
	for i, e := range m.All {
		names[i] = e.Name
	}
	return "I know more than one \"" + query + "\": " + strings.Join(names, ", ") + ". Which one did you mean?"
}
