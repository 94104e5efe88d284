package calc

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// MaxSheetNameLength is Excel's limit in UTF-16 code units
const MaxSheetNameLength = 31

const invalidSheetNameChars = `:\/?*[]`

// ValidateSheetName checks a display name against Excel's rules
func ValidateSheetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewApplicationError(InvalidArgument, "sheet name is empty")
	}
	if n := len(utf16.Encode([]rune(name))); n > MaxSheetNameLength {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("sheet name %q is %d characters long, the limit is %d", name, n, MaxSheetNameLength))
	}
	if i := strings.IndexAny(name, invalidSheetNameChars); i >= 0 {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("sheet name %q contains %q", name, name[i]))
	}
	if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("sheet name %q starts or ends with an apostrophe", name))
	}
	if strings.EqualFold(name, "History") {
		return NewApplicationError(InvalidArgument, "History is a reserved sheet name")
	}
	return nil
}

// SanitizeSheetName turns an arbitrary string into a valid display name:
// forbidden characters become underscores, edge apostrophes are removed
// and the result is cut to the length limit
func SanitizeSheetName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(invalidSheetNameChars, r) || r < 0x20 {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	name := strings.Trim(strings.TrimSpace(b.String()), "'")
	name = truncateUTF16(name, MaxSheetNameLength)
	if name == "" || strings.EqualFold(name, "History") {
		name = "Sheet"
	}
	return name
}

// uniqueSheetName appends " (2)", " (3)" ... until taken reports false
func uniqueSheetName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name := truncateUTF16(base, MaxSheetNameLength-len(suffix)) + suffix
		if !taken(name) {
			return name
		}
	}
}

func truncateUTF16(s string, limit int) string {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if units+n > limit {
			return strings.TrimRight(s[:i], " ")
		}
		units += n
	}
	return s
}
