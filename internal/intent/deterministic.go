package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/rallyd/internal/roster"
)

// Deterministic is the regex-based extractor. It is always available, has
// no external dependency, and its output wins over the probabilistic
// extractor on conflict.
type Deterministic struct {
	now func() time.Time
}

// NewDeterministic creates a deterministic extractor using the wall clock.
func NewDeterministic() *Deterministic {
	return &Deterministic{now: time.Now}
}

// NewDeterministicAt creates a deterministic extractor with a fixed clock,
// for tests that depend on relative dates.
func NewDeterministicAt(now func() time.Time) *Deterministic {
	return &Deterministic{now: now}
}

// DateLayout is the wire format for extracted dates.
const DateLayout = "2006-01-02"

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

const monthAlt = `january|february|march|april|may|june|july|august|september|october|november|december`

var (
	todayRE    = regexp.MustCompile(`(?i)\b(today|tonight)\b`)
	tomorrowRE = regexp.MustCompile(`(?i)\btomorrow\b`)
	weekdayRE  = regexp.MustCompile(`(?i)\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)

	monthDayRE  = regexp.MustCompile(`(?i)\b(` + monthAlt + `)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthRE  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlt + `)\b(?:,?\s+(\d{4}))?`)
	slashDateRE = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)

	clockRE  = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)`)
	atHourRE = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})\b`)

	// Location candidates are re-anchored at every "at" token, because a
	// five-word phrase can swallow a later "at ..." of its own. The first
	// character of a phrase must be a letter so clock times never match.
	atTokenRE  = regexp.MustCompile(`(?i)\bat\s+(?:the\s+)?`)
	atPhraseRE = regexp.MustCompile(`^[a-zA-Z][\w'’.-]*(?:[ \t][a-zA-Z][\w'’.-]*){0,4}`)

	schedulingRE = regexp.MustCompile(`(?i)\b(schedule|scheduling|play|playing|game|match|court|courts|pickleball|doubles|singles)\b`)

	withNameRE = regexp.MustCompile(`(?i)\b(?:with|and)\s+([a-zA-Z]+)`)
)

// phraseStopWords end an "at <phrase>" location candidate.
var phraseStopWords = map[string]bool{
	"with": true, "and": true, "or": true, "on": true, "at": true, "for": true,
	"tomorrow": true, "today": true, "tonight": true, "this": true, "next": true,
	"am": true, "pm": true,
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

// Extract runs every deterministic rule over a single message. Players and
// courts are the known rosters used for canonicalization; failure to match
// them leaves the raw text in place for the pipeline to question.
func (d *Deterministic) Extract(message string, players, courts []roster.NamedEntity) PartialIntent {
	return PartialIntent{
		Players:  d.ExtractPlayers(message, players),
		Date:     d.ExtractDate(message),
		Time:     d.ExtractTime(message),
		Location: d.ExtractLocation(message, courts),
	}
}

// ExtractDate recognizes relative day words, weekday names, "Month Day"
// and "Day of Month" forms, and MM/DD[/YYYY]. The result is a concrete
// calendar date in DateLayout, or empty.
func (d *Deterministic) ExtractDate(message string) string {
	now := d.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if tomorrowRE.MatchString(message) {
		return today.AddDate(0, 0, 1).Format(DateLayout)
	}
	if todayRE.MatchString(message) {
		return today.Format(DateLayout)
	}

	if m := weekdayRE.FindStringSubmatch(message); m != nil {
		target := weekdaysByName[strings.ToLower(m[1])]
		days := int(target-today.Weekday()+7) % 7
		// Naming today's weekday means next week, not right now.
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days).Format(DateLayout)
	}

	if m := monthDayRE.FindStringSubmatch(message); m != nil {
		return explicitDate(today, monthsByName[strings.ToLower(m[1])], m[2], m[3])
	}
	if m := dayMonthRE.FindStringSubmatch(message); m != nil {
		return explicitDate(today, monthsByName[strings.ToLower(m[2])], m[1], m[3])
	}

	if m := slashDateRE.FindStringSubmatch(message); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return ""
		}
		return explicitDate(today, time.Month(month), m[2], m[3])
	}

	return ""
}

// explicitDate builds a date from parsed parts. A missing year means the
// current year, rolled forward when the date has already passed.
func explicitDate(today time.Time, month time.Month, dayStr, yearStr string) string {
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return ""
	}

	if yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return ""
		}
		if year < 100 {
			year += 2000
		}
		return time.Date(year, month, day, 0, 0, 0, 0, today.Location()).Format(DateLayout)
	}

	date := time.Date(today.Year(), month, day, 0, 0, 0, 0, today.Location())
	if date.Before(today) {
		date = date.AddDate(1, 0, 0)
	}
	return date.Format(DateLayout)
}

// ExtractTime recognizes "H[:MM] AM/PM" clock times and the bare "at N"
// heuristic: hours 1-9 are assumed PM, 10-11 AM, everything else PM.
func (d *Deterministic) ExtractTime(message string) string {
	if m := clockRE.FindStringSubmatch(message); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour < 1 || hour > 12 {
			return ""
		}
		minute := "00"
		if m[2] != "" {
			minute = m[2]
		}
		meridiem := "AM"
		if strings.HasPrefix(strings.ToLower(m[3]), "p") {
			meridiem = "PM"
		}
		return fmt.Sprintf("%d:%s %s", hour, minute, meridiem)
	}

	if m := atHourRE.FindStringSubmatch(message); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour < 1 || hour > 12 {
			return ""
		}
		meridiem := "PM"
		if hour == 10 || hour == 11 {
			meridiem = "AM"
		}
		return fmt.Sprintf("%d:00 %s", hour, meridiem)
	}

	return ""
}

// ExtractLocation matches the message against known court names first and
// returns the canonical name on a hit. Otherwise it falls back to an
// "at <phrase>" candidate, resolved against the known courts when
// possible, or returned verbatim for the pipeline to offer as a new court.
func (d *Deterministic) ExtractLocation(message string, courts []roster.NamedEntity) string {
	lower := strings.ToLower(message)
	for _, c := range courts {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name != "" && strings.Contains(lower, name) {
			return c.Name
		}
	}

	// Prefer any "at"-phrase that resolves to a known court; only when
	// none do, fall back to the first phrase verbatim.
	fallback := ""
	for _, loc := range atTokenRE.FindAllStringIndex(message, -1) {
		phrase := trimPhrase(atPhraseRE.FindString(message[loc[1]:]))
		if phrase == "" {
			continue
		}
		if match := roster.Resolve(phrase, courts); match.Kind == roster.MatchUnique {
			return match.Entity.Name
		}
		if fallback == "" {
			fallback = phrase
		}
	}

	return fallback
}

// trimPhrase cuts an at-phrase at the first stop word.
func trimPhrase(phrase string) string {
	words := strings.Fields(phrase)
	kept := words[:0]
	for _, w := range words {
		if phraseStopWords[strings.ToLower(strings.Trim(w, ".,!?"))] {
			break
		}
		kept = append(kept, strings.Trim(w, ".,!?"))
	}
	return strings.Join(kept, " ")
}

// ExtractPlayers finds invitees by full-name substring match against the
// known roster and by the "with <firstName>"/"and <firstName>" pattern.
// The literal token "me" is always injected when scheduling keywords are
// present, so the organizer is never dropped from their own game.
func (d *Deterministic) ExtractPlayers(message string, players []roster.NamedEntity) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(name))
	}

	if schedulingRE.MatchString(message) {
		add("me")
	}

	lower := strings.ToLower(message)
	for _, p := range players {
		full := strings.ToLower(strings.TrimSpace(p.Name))
		if full != "" && strings.Contains(lower, full) {
			add(p.Name)
		}
	}

	for _, m := range withNameRE.FindAllStringSubmatch(message, -1) {
		token := m[1]
		if phraseStopWords[strings.ToLower(token)] || strings.EqualFold(token, "me") {
			if strings.EqualFold(token, "me") {
				add("me")
			}
			continue
		}
		if match := roster.ResolvePlayer(token, players); match.Kind == roster.MatchUnique {
			add(match.Entity.Name)
			continue
		}
		add(token)
	}

	return out
}
