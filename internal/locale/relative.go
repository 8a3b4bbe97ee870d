package locale

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
)

type unit int

const (
	second unit = iota
	minute
	hour
	day
	month
	year
)

// phrases renders "n units ago / in n units" for one language, with the
// idiomatic words for -1, 0 and +1 where the language has them.
type phrases struct {
	past    string // format with %d and unit noun
	future  string
	nouns   [6][2]string // [unit][singular, plural]
	special map[unit]map[int]string
}

var supported = []language.Tag{language.English, language.Spanish, language.French}

var matcher = language.NewMatcher(supported)

var phraseTable = map[language.Tag]*phrases{
	language.English: {
		past:   "%d %s ago",
		future: "in %d %s",
		nouns: [6][2]string{
			{"second", "seconds"}, {"minute", "minutes"}, {"hour", "hours"},
			{"day", "days"}, {"month", "months"}, {"year", "years"},
		},
		special: map[unit]map[int]string{
			second: {0: "now"},
			minute: {0: "this minute"},
			hour:   {0: "this hour"},
			day:    {-1: "yesterday", 0: "today", 1: "tomorrow"},
			month:  {-1: "last month", 0: "this month", 1: "next month"},
			year:   {-1: "last year", 0: "this year", 1: "next year"},
		},
	},
	language.Spanish: {
		past:   "hace %d %s",
		future: "dentro de %d %s",
		nouns: [6][2]string{
			{"segundo", "segundos"}, {"minuto", "minutos"}, {"hora", "horas"},
			{"día", "días"}, {"mes", "meses"}, {"año", "años"},
		},
		special: map[unit]map[int]string{
			second: {0: "ahora"},
			day:    {-1: "ayer", 0: "hoy", 1: "mañana"},
			month:  {-1: "el mes pasado", 0: "este mes", 1: "el próximo mes"},
			year:   {-1: "el año pasado", 0: "este año", 1: "el próximo año"},
		},
	},
	language.French: {
		past:   "il y a %d %s",
		future: "dans %d %s",
		nouns: [6][2]string{
			{"seconde", "secondes"}, {"minute", "minutes"}, {"heure", "heures"},
			{"jour", "jours"}, {"mois", "mois"}, {"an", "ans"},
		},
		special: map[unit]map[int]string{
			second: {0: "maintenant"},
			day:    {-1: "hier", 0: "aujourd’hui", 1: "demain"},
			month:  {-1: "le mois dernier", 0: "ce mois-ci", 1: "le mois prochain"},
			year:   {-1: "l’année dernière", 0: "cette année", 1: "l’année prochaine"},
		},
	},
}

func phrasesFor(tag language.Tag) *phrases {
	_, idx, _ := matcher.Match(tag)
	return phraseTable[supported[idx]]
}

func (p *phrases) format(n int, u unit) string {
	if s, ok := p.special[u][n]; ok {
		return s
	}
	abs := n
	if abs < 0 {
		abs = -abs
	}
	noun := p.nouns[u][1]
	if abs == 1 {
		noun = p.nouns[u][0]
	}
	if n < 0 {
		return fmt.Sprintf(p.past, abs, noun)
	}
	return fmt.Sprintf(p.future, abs, noun)
}

// RelativeTime describes t relative to now ("3 hours ago", "yesterday").
//
// Units step up at 60 seconds, 60 minutes, 24 hours, 30 days and 12 months;
// months count 30-day blocks and years 365-day blocks.
func (f *Formatter) RelativeTime(t, now time.Time) string {
	diff := t.Sub(now)
	floorDiv := func(d, u time.Duration) int {
		return int(math.Floor(float64(d) / float64(u)))
	}
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	seconds := int(abs / time.Second)
	if seconds < 60 {
		return f.phrases.format(floorDiv(diff, time.Second), second)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return f.phrases.format(floorDiv(diff, time.Minute), minute)
	}
	hours := minutes / 60
	if hours < 24 {
		return f.phrases.format(floorDiv(diff, time.Hour), hour)
	}
	days := hours / 24
	if days < 30 {
		return f.phrases.format(floorDiv(diff, 24*time.Hour), day)
	}
	sign := 1
	if diff < 0 {
		sign = -1
	}
	months := days / 30
	if months < 12 {
		return f.phrases.format(sign*months, month)
	}
	return f.phrases.format(sign*(days/365), year)
}

// RelativeTime is shorthand for For(locale).RelativeTime(t, now).
func RelativeTime(t, now time.Time, locale string) string {
	return For(locale).RelativeTime(t, now)
}
