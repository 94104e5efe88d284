package calc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// DateOrder is the component order used when coercing date-like text
type DateOrder uint8

const (
	DateOrderMDY DateOrder = iota
	DateOrderDMY
	DateOrderYMD
)

// LocaleConfig carries the locale-sensitive behaviour threaded through
// evaluation: numeric text parsing, case mapping and DBCS byte counting
type LocaleConfig struct {
	Tag              language.Tag
	DecimalSeparator rune
	GroupSeparator   rune
	CurrencySymbol   string
	DateOrder        DateOrder
	// DBCS makes the *B text functions count wide characters as two bytes
	DBCS bool
}

// LocaleSettings is the serializable form of a locale used by Config
type LocaleSettings struct {
	Tag              string `toml:"tag"`
	DecimalSeparator string `toml:"decimal_separator"`
	GroupSeparator   string `toml:"group_separator"`
	CurrencySymbol   string `toml:"currency_symbol"`
	DateOrder        string `toml:"date_order"`
}

// DefaultLocale returns the en-US locale
func DefaultLocale() *LocaleConfig {
	return &LocaleConfig{
		Tag:              language.AmericanEnglish,
		DecimalSeparator: '.',
		GroupSeparator:   ',',
		CurrencySymbol:   "$",
		DateOrder:        DateOrderMDY,
	}
}

// NewLocale builds a locale from a BCP 47 tag, filling separators from the
// language's conventional defaults
func NewLocale(tag string) (*LocaleConfig, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid locale tag %q: %v", tag, err))
	}
	loc := DefaultLocale()
	loc.Tag = t
	base, _ := t.Base()
	region, _ := t.Region()
	switch base.String() {
	case "de", "es", "it", "nl", "pt", "id", "tr", "da":
		loc.DecimalSeparator, loc.GroupSeparator = ',', '.'
		loc.CurrencySymbol = "€"
		loc.DateOrder = DateOrderDMY
	case "fr", "ru", "pl", "cs", "sv", "fi", "nb", "uk":
		loc.DecimalSeparator, loc.GroupSeparator = ',', ' '
		loc.CurrencySymbol = "€"
		loc.DateOrder = DateOrderDMY
	case "ja":
		loc.CurrencySymbol = "¥"
		loc.DateOrder = DateOrderYMD
		loc.DBCS = true
	case "zh":
		loc.CurrencySymbol = "¥"
		loc.DateOrder = DateOrderYMD
		loc.DBCS = true
	case "ko":
		loc.CurrencySymbol = "₩"
		loc.DateOrder = DateOrderYMD
		loc.DBCS = true
	case "en":
		if region.String() != "US" && region.String() != "ZZ" {
			loc.DateOrder = DateOrderDMY
			if region.String() == "GB" {
				loc.CurrencySymbol = "£"
			}
		}
	}
	return loc, nil
}

// LocaleFromSettings resolves serialized locale settings
func LocaleFromSettings(s LocaleSettings) (*LocaleConfig, error) {
	loc := DefaultLocale()
	if s.Tag != "" {
		var err error
		if loc, err = NewLocale(s.Tag); err != nil {
			return nil, err
		}
	}
	if s.DecimalSeparator != "" {
		loc.DecimalSeparator, _ = utf8.DecodeRuneInString(s.DecimalSeparator)
	}
	if s.GroupSeparator != "" {
		loc.GroupSeparator, _ = utf8.DecodeRuneInString(s.GroupSeparator)
	}
	if s.CurrencySymbol != "" {
		loc.CurrencySymbol = s.CurrencySymbol
	}
	switch strings.ToUpper(s.DateOrder) {
	case "":
	case "MDY":
		loc.DateOrder = DateOrderMDY
	case "DMY":
		loc.DateOrder = DateOrderDMY
	case "YMD":
		loc.DateOrder = DateOrderYMD
	default:
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid date order %q", s.DateOrder))
	}
	if loc.DecimalSeparator == loc.GroupSeparator {
		return nil, NewApplicationError(InvalidArgument, "decimal and group separators must differ")
	}
	return loc, nil
}

// ParseNumber parses numeric text the way value coercion does: optional
// sign, currency symbol, group separators, exponent, a trailing percent and
// accounting parentheses
func (l *LocaleConfig) ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	percent := 0
	for strings.HasSuffix(s, "%") {
		percent++
		s = strings.TrimSpace(s[:len(s)-1])
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		if s[0] == '-' {
			negative = !negative
		}
		s = strings.TrimSpace(s[1:])
	}
	if l.CurrencySymbol != "" {
		if strings.HasPrefix(s, l.CurrencySymbol) {
			s = strings.TrimSpace(s[len(l.CurrencySymbol):])
		} else if strings.HasSuffix(s, l.CurrencySymbol) {
			s = strings.TrimSpace(s[:len(s)-len(l.CurrencySymbol)])
		}
		if strings.HasPrefix(s, "-") && !negative {
			negative = true
			s = s[1:]
		}
	}
	if s == "" {
		return 0, false
	}

	var b strings.Builder
	b.Grow(len(s))
	seenDecimal := false
	seenExp := false
	digitsSinceGroup := -1
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			if digitsSinceGroup >= 0 {
				digitsSinceGroup++
			}
		case r == l.GroupSeparator && !seenDecimal && !seenExp:
			// group separators need a digit before them and three after
			if i == 0 || (digitsSinceGroup >= 0 && digitsSinceGroup != 3) {
				return 0, false
			}
			digitsSinceGroup = 0
		case r == l.DecimalSeparator && !seenDecimal && !seenExp:
			if digitsSinceGroup >= 0 && digitsSinceGroup != 3 {
				return 0, false
			}
			digitsSinceGroup = -1
			seenDecimal = true
			b.WriteByte('.')
		case (r == 'e' || r == 'E') && !seenExp && b.Len() > 0:
			if digitsSinceGroup >= 0 && digitsSinceGroup != 3 {
				return 0, false
			}
			digitsSinceGroup = -1
			seenExp = true
			b.WriteByte('e')
		case (r == '+' || r == '-') && seenExp && strings.HasSuffix(b.String(), "e"):
			b.WriteRune(r)
		default:
			return 0, false
		}
	}
	if digitsSinceGroup >= 0 && digitsSinceGroup != 3 {
		return 0, false
	}
	text := b.String()
	if text == "" || text == "." || strings.HasSuffix(text, "e") || strings.HasSuffix(text, "e+") || strings.HasSuffix(text, "e-") {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	for ; percent > 0; percent-- {
		f /= 100
	}
	if negative {
		f = -f
	}
	return f, true
}

// Upper maps text to upper case using the locale's rules
func (l *LocaleConfig) Upper(s string) string {
	return cases.Upper(l.Tag).String(s)
}

// Lower maps text to lower case using the locale's rules
func (l *LocaleConfig) Lower(s string) string {
	return cases.Lower(l.Tag).String(s)
}

// Proper capitalizes every letter that follows a non-letter and lowercases
// the rest
func (l *LocaleConfig) Proper(s string) string {
	lower := []rune(l.Lower(s))
	prevLetter := false
	for i, r := range lower {
		if unicode.IsLetter(r) {
			if !prevLetter {
				lower[i] = unicode.ToTitle(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
	}
	return string(lower)
}

// runeBytes returns how many bytes a character occupies for the *B text
// functions
func (l *LocaleConfig) runeBytes(r rune) int {
	if !l.DBCS {
		return 1
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth, width.EastAsianAmbiguous:
		return 2
	}
	return 1
}

// ByteLen counts text length in DBCS bytes
func (l *LocaleConfig) ByteLen(s string) int {
	n := 0
	for _, r := range s {
		n += l.runeBytes(r)
	}
	return n
}

// foldKey folds text for case-insensitive lookups. ASCII takes a fast
// path; other text uses full Unicode case folding.
func foldKey(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return strings.ToLower(s)
	}
	return cases.Fold().String(s)
}

// upperKey upper-cases names for registry lookups
func upperKey(s string) string {
	return strings.ToUpper(s)
}
