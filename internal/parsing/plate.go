package parsing

import (
	"regexp"
	"strings"
	"unicode"
)

// PlateMatcher detects the vehicle plate that anchors an entry.
type PlateMatcher interface {
	// Match returns the first plate token in line, uppercased, and the line
	// with that occurrence removed and trimmed. ok is false when the line
	// holds no plate.
	Match(line string) (plate, rest string, ok bool)
}

var (
	// RE2 \b only knows ASCII word characters, so the pattern is applied to
	// whole word tokens instead of relying on boundaries inside the line.
	wordRegex  = regexp.MustCompile(`[\p{L}\p{N}\p{M}_]+`)
	plateRegex = regexp.MustCompile(`(?i)^[а-яёa-z][а-яёa-z0-9]{2,9}$`)
)

// RegexpPlateMatcher accepts any word of one letter followed by 2-9 letters
// or digits, Cyrillic or Latin. It is deliberately loose: ordinary words of
// that length match as well.
type RegexpPlateMatcher struct{}

// Match implements PlateMatcher
func (RegexpPlateMatcher) Match(line string) (string, string, bool) {
	return matchPlate(line, func(string) bool { return true })
}

// StrictPlateMatcher is RegexpPlateMatcher restricted to tokens that contain
// at least one digit.
type StrictPlateMatcher struct{}

// Match implements PlateMatcher
func (StrictPlateMatcher) Match(line string) (string, string, bool) {
	return matchPlate(line, func(token string) bool {
		return strings.IndexFunc(token, unicode.IsDigit) >= 0
	})
}

func matchPlate(line string, accept func(string) bool) (string, string, bool) {
	for _, loc := range wordRegex.FindAllStringIndex(line, -1) {
		token := line[loc[0]:loc[1]]
		if !plateRegex.MatchString(token) || !accept(token) {
			continue
		}
		rest := strings.TrimSpace(line[:loc[0]] + line[loc[1]:])
		return strings.ToUpper(token), rest, true
	}
	return "", "", false
}
