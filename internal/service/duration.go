package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/steamrent/rental-server-go/internal/errors"
)

// Marketplace lot descriptions mix Cyrillic and Latin unit spellings, often
// inside game titles ("7 Days to Die"). The pattern only fires on
// <integer><unit>; longer unit spellings come first so the alternation picks
// them over their prefixes.
var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(минутами|минуты|минута|минут|мин\.?|часами|часов|часы|часа|час|ч|сутками|сутки|суток|сут\.?|дней|дня|день|дн\.?|minutes?|mins?|hours?|hrs?|days?)`)

// Words that, directly after a unit match, mark the "unit" as part of a game
// title rather than a duration.
var titleContinuations = map[string]bool{
	"to":   true,
	"die":  true,
	"the":  true,
	"gone": true,
	"game": true,
	"игра": true,
}

// ParseRentDuration extracts the total lease duration from free-form order or
// lot text. Multiple matches sum ("1 час 10 минут" is 70 minutes). Returns
// PARSE_FAILURE when no match contributes a positive total; never returns
// zero or negative.
func ParseRentDuration(text string) (time.Duration, error) {
	var total time.Duration

	for _, m := range durationPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]

		// Reject matches glued to surrounding letters or digits. \b does not
		// understand Cyrillic, so the boundary check is manual.
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(text[end:]); unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		if isTitleContinuation(text[end:]) {
			continue
		}

		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		total += time.Duration(n) * unitDuration(strings.ToLower(text[m[4]:m[5]]))
	}

	if total <= 0 {
		return 0, apperrors.ParseFailure("No rent duration found in text")
	}
	return total, nil
}

func unitDuration(unit string) time.Duration {
	switch {
	case strings.HasPrefix(unit, "мин"), strings.HasPrefix(unit, "min"):
		return time.Minute
	case strings.HasPrefix(unit, "час"), unit == "ч",
		strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// isTitleContinuation looks at the word following a match. "7 Days to Die"
// matches "7 Days" but the continuation "to" reveals a game title.
func isTitleContinuation(rest string) bool {
	rest = strings.TrimLeft(rest, " \t:,-")
	var word strings.Builder
	for _, r := range rest {
		if !unicode.IsLetter(r) {
			break
		}
		word.WriteRune(r)
	}
	w := strings.ToLower(word.String())
	return titleContinuations[w] || strings.HasPrefix(w, "игр")
}
