// Package locale formats country names, language names, flags and relative
// timestamps for a caller's locale.
//
// Formatters are built lazily, once per locale string, and cached for the
// life of the process. The cache is safe for concurrent use.
package locale

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default is the locale used when a request does not name one.
const Default = "en"

// Formatter renders display strings for one locale.
type Formatter struct {
	tag       language.Tag
	regions   display.Namer
	languages display.Namer
	phrases   *phrases
}

var cache sync.Map // locale string -> *Formatter

// For returns the cached Formatter for locale, building it on first use.
// Unparseable locales fall back to English.
func For(locale string) *Formatter {
	key := strings.TrimSpace(locale)
	if key == "" {
		key = Default
	}
	if f, ok := cache.Load(key); ok {
		return f.(*Formatter)
	}
	f, _ := cache.LoadOrStore(key, newFormatter(key))
	return f.(*Formatter)
}

func newFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{
		tag:       tag,
		regions:   display.Regions(tag),
		languages: display.Languages(tag),
		phrases:   phrasesFor(tag),
	}
}

// Tag returns the parsed locale.
func (f *Formatter) Tag() language.Tag { return f.tag }

// CountryName returns the localized name of an ISO-3166 alpha-2 code.
// "OTHER" maps to "Other"; unknown codes are returned unchanged.
func (f *Formatter) CountryName(code string) string {
	if code == "OTHER" {
		return "Other"
	}
	r, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := f.regions.Name(r); name != "" {
		return name
	}
	return code
}

// LanguageName returns the localized name of an ISO-639 code. "other" maps
// to "Other" and "yue" to "Chinese (Cantonese)"; unknown codes are returned
// unchanged.
func (f *Formatter) LanguageName(code string) string {
	switch code {
	case "other":
		return "Other"
	case "yue":
		return "Chinese (Cantonese)"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := f.languages.Name(tag); name != "" {
		return name
	}
	return code
}

// LanguageNames maps LanguageName over codes.
func (f *Formatter) LanguageNames(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, f.LanguageName(c))
	}
	return out
}

// CountryFlag returns the regional-indicator emoji for an alpha-2 code.
// "OTHER" and malformed codes map to the white flag.
func CountryFlag(code string) string {
	const whiteFlag = "🏳️"
	if code == "OTHER" || len(code) != 2 {
		return whiteFlag
	}
	var b strings.Builder
	for _, c := range strings.ToUpper(code) {
		if c < 'A' || c > 'Z' {
			return whiteFlag
		}
		b.WriteRune(0x1F1E6 + (c - 'A'))
	}
	return b.String()
}

// CountryName is shorthand for For(locale).CountryName(code).
func CountryName(code, locale string) string { return For(locale).CountryName(code) }

// LanguageName is shorthand for For(locale).LanguageName(code).
func LanguageName(code, locale string) string { return For(locale).LanguageName(code) }
