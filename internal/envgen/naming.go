package envgen

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ToSnakeCase converts a file stem or folder name to snake_case.
//
// Case boundaries become underscores ("SmartSources" → "smart_sources",
// "HTMLParser" → "html_parser"), dots, hyphens and spaces become
// underscores, runs of underscores collapse to one, and leading or trailing
// underscores are dropped.
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && upperStartsWord(runes, i) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			// '.', '-', ' ', '_' and any other separator.
			b.WriteRune('_')
		}
	}

	return collapseUnderscores(b.String())
}

// upperStartsWord reports whether the uppercase rune at i begins a new word:
// after a lowercase letter or digit, or as the last capital of an acronym
// that is followed by a lowercase letter ("HTMLParser" splits before 'P').
func upperStartsWord(runes []rune, i int) bool {
	prev := runes[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	if unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
		return true
	}
	return false
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for _, r := range s {
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}

// ToPascalCase converts a snake_case key to PascalCase
// ("smart_source" → "SmartSource"). Only the first rune of each word is
// changed; the rest is kept as is.
func ToPascalCase(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, word := range strings.Split(key, "_") {
		if word == "" {
			continue
		}
		runes := []rune(word)
		b.WriteRune(unicode.ToUpper(runes[0]))
		b.WriteString(string(runes[1:]))
	}
	return b.String()
}

// FlattenKey builds the key of a nested component or action: the snake_case
// join of its folder segments followed by its snake_case stem.
//
// Example: dirs ["settings", "env-panel"], stem "main.view" →
// "settings_env_panel_main_view".
func FlattenKey(dirs []string, stem string) string {
	parts := make([]string, 0, len(dirs)+1)
	for _, d := range dirs {
		if s := ToSnakeCase(d); s != "" {
			parts = append(parts, s)
		}
	}
	if s := ToSnakeCase(stem); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "_")
}

// identRegex matches names that can be written as bare JavaScript object keys.
var identRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// objectKey returns k ready to be written as an object key, quoting it when
// it is not a plain identifier (for example a key starting with a digit).
func objectKey(k string) string {
	if identRegex.MatchString(k) {
		return k
	}
	return strconv.Quote(k)
}
