/*
period.go - Month label normalization

PURPOSE:
  Maps any accepted upstream month label to the canonical "YYYY-MM" key,
  or rejects it. This is the front door of the whole engine: every period
  column downstream assumes its input went through NormalizePeriod.

GRAMMAR CHAIN:
  Labels are matched against a fixed, ordered list of grammars; the first
  match wins. Ordering matters because some labels could ambiguously match
  more than one pattern:

  1. Canonical        "2025-06"           returned unchanged
  2. Month code       "COM_JUN_2025"      3-letter month + 4-digit year
                      "JUN-2025"          joined by '_' or '-', any prefix
  3. Spaced           "Jun 2025"          3-letter month (or SEPT) + year
  4. Slash            "2025/6"            month zero-padded

  Anything else - including a matched grammar whose month token is not in
  the fixed table - is rejected with ErrUnrecognizedPeriodLabel. There is
  deliberately no best-effort fallback: an unparseable label means a human
  has to fix the source, not that the engine guesses a month.

QUIRK (kept on purpose):
  The 4-letter "SEPT" alias is accepted in the spaced grammar only, not in
  the month-code grammar. That asymmetry matches observed upstream data.

SEE ALSO:
  - types.go: PeriodKey
  - errors.go: ErrUnrecognizedPeriodLabel
*/
package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// MONTH TABLE
// =============================================================================

// monthNumbers maps 3-letter month abbreviations to month numbers.
// This is the only month vocabulary the engine accepts.
var monthNumbers = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// =============================================================================
// GRAMMAR CHAIN
// =============================================================================

var (
	reCanonical = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	// Month code joined by '_' or '-', with any number of leading tokens
	// (e.g. "COM_JUN_2025", "JUN-2025").
	reMonthCode = regexp.MustCompile(`^(?:[A-Za-z0-9]+[_-])*([A-Za-z]{3})[_-](\d{4})$`)
	reSpaced    = regexp.MustCompile(`^([A-Za-z]{3,4}) (\d{4})$`)
	reSlash     = regexp.MustCompile(`^(\d{4})/(\d{1,2})$`)
)

// periodRule is one grammar in the chain. match returns ok=false when the
// label does not fit this grammar at all; it returns ok=true with an empty
// key when the grammar matched but the month token is not in the table
// (which terminates the chain as a rejection - later rules do not get a
// second chance at an ambiguous label).
type periodRule struct {
	name  string
	match func(label string) (key PeriodKey, ok bool)
}

var periodRules = []periodRule{
	{"canonical", matchCanonical},
	{"month-code", matchMonthCode},
	{"spaced", matchSpaced},
	{"slash", matchSlash},
}

// NormalizePeriod converts a raw month label to its canonical PeriodKey.
// Rejection is always an error wrapping ErrUnrecognizedPeriodLabel, never
// an empty key.
func NormalizePeriod(label string) (PeriodKey, error) {
	s := strings.TrimSpace(label)
	if s == "" {
		return "", &UnrecognizedLabelError{Label: label}
	}
	for _, rule := range periodRules {
		key, ok := rule.match(s)
		if !ok {
			continue
		}
		if key == "" {
			// Grammar matched but the month token is unknown.
			return "", &UnrecognizedLabelError{Label: label, Rule: rule.name}
		}
		return key, nil
	}
	return "", &UnrecognizedLabelError{Label: label}
}

func matchCanonical(s string) (PeriodKey, bool) {
	if !reCanonical.MatchString(s) {
		return "", false
	}
	return PeriodKey(s), true
}

func matchMonthCode(s string) (PeriodKey, bool) {
	m := reMonthCode.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	mm, known := monthNumbers[strings.ToUpper(m[1])]
	if !known {
		return "", true
	}
	return periodKey(m[2], mm), true
}

func matchSpaced(s string) (PeriodKey, bool) {
	m := reSpaced.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	tok := strings.ToUpper(m[1])
	// "SEPT" is the only accepted 4-letter form, and only here.
	if len(tok) == 4 {
		if tok != "SEPT" {
			return "", true
		}
		tok = "SEP"
	}
	mm, known := monthNumbers[tok]
	if !known {
		return "", true
	}
	return periodKey(m[2], mm), true
}

func matchSlash(s string) (PeriodKey, bool) {
	m := reSlash.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	mm, err := strconv.Atoi(m[2])
	if err != nil || mm < 1 || mm > 12 {
		return "", true
	}
	return periodKey(m[1], mm), true
}

func periodKey(year string, month int) PeriodKey {
	return PeriodKey(fmt.Sprintf("%s-%02d", year, month))
}
