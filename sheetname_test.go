package calc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSheetName(t *testing.T) {
	for _, name := range []string{"Sheet1", "My Sheet", "Q1 2024", "データ", strings.Repeat("x", MaxSheetNameLength)} {
		assert.NoError(t, ValidateSheetName(name), name)
	}
	for _, name := range []string{"", "   ", "a/b", "a:b", "a[b]", "what?", "'quoted'", "history", strings.Repeat("x", MaxSheetNameLength+1)} {
		err := ValidateSheetName(name)
		if assert.Error(t, err, name) {
			assert.Equal(t, InvalidArgument, AppErrorCodeOf(err))
		}
	}
	// length is counted in UTF-16 units
	assert.Error(t, ValidateSheetName(strings.Repeat("😀", 16)))
	assert.NoError(t, ValidateSheetName(strings.Repeat("😀", 15)))
}

func TestSanitizeSheetName(t *testing.T) {
	assert.Equal(t, "q1_2024_sales", SanitizeSheetName("q1/2024:sales"))
	assert.Equal(t, "quoted", SanitizeSheetName("'quoted'"))
	assert.Equal(t, "Sheet", SanitizeSheetName(""))
	assert.Equal(t, "Sheet", SanitizeSheetName("History"))
	assert.Equal(t, strings.Repeat("a", MaxSheetNameLength), SanitizeSheetName(strings.Repeat("a", 40)))
	assert.NoError(t, ValidateSheetName(SanitizeSheetName("[weird]*name?")))
}

func TestUniqueSheetName(t *testing.T) {
	taken := map[string]bool{"data": true, "data (2)": true}
	isTaken := func(s string) bool { return taken[strings.ToLower(s)] }
	assert.Equal(t, "Other", uniqueSheetName("Other", isTaken))
	assert.Equal(t, "Data (3)", uniqueSheetName("Data", isTaken))

	long := strings.Repeat("b", MaxSheetNameLength)
	taken[long] = true
	got := uniqueSheetName(long, isTaken)
	assert.Equal(t, strings.Repeat("b", MaxSheetNameLength-4)+" (2)", got)
	assert.NoError(t, ValidateSheetName(got))
}
