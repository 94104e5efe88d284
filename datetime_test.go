package calc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateSerial(t *testing.T) {
	assert.Equal(t, 1.0, dateSerial(1900, 1, 1, false))
	assert.Equal(t, 59.0, dateSerial(1900, 2, 28, false))
	assert.Equal(t, 61.0, dateSerial(1900, 3, 1, false))
	assert.Equal(t, 45366.0, dateSerial(2024, 3, 15, false))
	assert.Equal(t, 45366.0-1462, dateSerial(2024, 3, 15, true))
	assert.Equal(t, 0.0, dateSerial(1904, 1, 1, true))
	// month and day overflow
	assert.Equal(t, dateSerial(2025, 1, 31, false), dateSerial(2024, 13, 31, false))
	assert.Equal(t, dateSerial(2024, 3, 1, false), dateSerial(2024, 2, 30, false))
}

func TestSerialToTime(t *testing.T) {
	assert.Equal(t, time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC), serialToTime(45366.75, false))
	assert.Equal(t, time.Date(1900, 2, 28, 0, 0, 0, 0, time.UTC), serialToTime(60, false))
	assert.Equal(t, time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC), serialToTime(61, false))
	assert.Equal(t, time.Date(1904, 1, 2, 0, 0, 0, 0, time.UTC), serialToTime(1, true))

	y, m, d := dateParts(60, false)
	assert.Equal(t, []int{1900, 2, 29}, []int{y, m, d})
	y, m, d = dateParts(0, false)
	assert.Equal(t, []int{1900, 1, 0}, []int{y, m, d})
}

func TestDayOfWeek(t *testing.T) {
	// 2024-03-15 is a Friday
	assert.Equal(t, 5, dayOfWeek(45366, false))
	assert.Equal(t, 5, dayOfWeek(45366-1462, true))
	assert.Equal(t, 0, dayOfWeek(1, false), "1900-01-01 counts as a Sunday")
}

func TestParseDateTimeText(t *testing.T) {
	cases := []struct {
		text  string
		order DateOrder
		want  float64
	}{
		{"2024-01-15", DateOrderMDY, 45306},
		{"1/15/2024", DateOrderMDY, 45306},
		{"15/1/2024", DateOrderDMY, 45306},
		{"15-Jan-2024", DateOrderMDY, 45306},
		{"January 15, 2024", DateOrderMDY, 45306},
		{"Jan 2024", DateOrderMDY, 45292},
		{"1/15/24", DateOrderMDY, 45306},
		{"2/29/1900", DateOrderMDY, 60},
		{"10:30", DateOrderMDY, 10.5 / 24},
		{"10:30 PM", DateOrderMDY, 22.5 / 24},
		{"12:00AM", DateOrderMDY, 0},
		{"1/15/2024 18:00", DateOrderMDY, 45306.75},
	}
	for _, c := range cases {
		t.Run(c.text, func(t *testing.T) {
			got, ok := parseDateTimeText(c.text, c.order, false)
			assert.True(t, ok)
			assert.InDelta(t, c.want, got, 1e-9)
		})
	}

	for _, bad := range []string{"", "hello", "2/30/2024", "13/13/2024", "25:61", "10:30 XM", "15 Foo 2024"} {
		_, ok := parseDateTimeText(bad, DateOrderMDY, false)
		assert.False(t, ok, bad)
	}
}
