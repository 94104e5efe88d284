package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberFormat(t *testing.T) {
	cases := []struct {
		code string
		v    Value
		want string
	}{
		{"0.00", 3.14159, "3.14"},
		{"0.0", -2.25, "-2.3"},
		{"0", -0.2, "0"},
		{"#,##0", 1234567.0, "1,234,567"},
		{"#,##0.00;(#,##0.00)", -1234.5, "(1,234.50)"},
		{"0%", 0.256, "26%"},
		{"0.00E+00", 12345.0, "1.23E+04"},
		{"yyyy-mm-dd", 45366.0, "2024-03-15"},
		{"d mmm yy", 45366.0, "15 Mar 24"},
		{"dddd", 45366.0, "Friday"},
		{"h:mm AM/PM", 0.75, "6:00 PM"},
		{"hh:mm:ss", 0.5 + 1.0/86400, "12:00:01"},
		{"[h]:mm", 1.5, "36:00"},
		{`0;-0;0;"Name: "@`, "Bob", "Name: Bob"},
		{`[>=100]"big";"small"`, 150.0, "big"},
		{`[>=100]"big";"small"`, 5.0, "small"},
		{"h:mm", 0.75, "18:00"},
		{"h:mm:ss", 0.5 + 61.0/86400, "12:01:01"},
		{"mm:ss", 125.0 / 86400, "02:05"},
		{"m/d/yyyy h:mm", 45366.5 + 7.0/1440, "3/15/2024 12:07"},
		{"mmss.0", 125.4 / 86400, "0205.4"},
		{"# ?/?", 1.5, "1 1/2"},
		{"?/?", 0.75, "3/4"},
		{"# ?/8", 2.25, "2 2/8"},
		{"#.##", 5.5, "5.5"},
		{"0.0E-0", 0.00123, "1.2E-3"},
		{`0.0,,"M"`, 1234567.0, "1.2M"},
		{"[$€-407] #,##0.00", 1234.5, "€ 1,234.50"},
		{`"Total: "General`, 12.5, "Total: 12.5"},
		{"[Red]0.0", 2.0, "2.0"},
		{"@", 42.0, "42"},
		{"General", 1234.5, "1234.5"},
		{"0.00", true, "TRUE"},
		{"0.00", "text", "text"},
	}
	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			assert.Equal(t, c.want, ParseNumberFormat(c.code).Format(c.v, nil, false))
		})
	}
}

func TestNumberFormatLocale(t *testing.T) {
	de, err := NewLocale("de-DE")
	require.NoError(t, err)
	assert.Equal(t, "1234,5", ParseNumberFormat("").Format(1234.5, de, false))
	assert.Equal(t, "1.234,50", ParseNumberFormat("#,##0.00").Format(1234.5, de, false))
}

func TestNumberFormatRoundStored(t *testing.T) {
	assert.Equal(t, 0.33, ParseNumberFormat("0.00").roundStored(1.0/3))
	assert.Equal(t, 0.125, ParseNumberFormat("0.0%").roundStored(0.1249))
	assert.Equal(t, 1.0/3, ParseNumberFormat("General").roundStored(1.0/3))
	assert.Equal(t, 45366.75, ParseNumberFormat("yyyy-mm-dd").roundStored(45366.75))
}
