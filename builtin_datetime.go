package calc

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// serial numbers count days from the workbook epoch. the 1900 system keeps
// Lotus' phantom 1900-02-29 as serial 60, so serials before March 1900 are
// one day off the calendar.

var (
	epoch1900 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).Unix()
	epoch1904 = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
)

const (
	secondsPerDay = 86400
	// maxSerial is 9999-12-31 in the 1900 system
	maxSerial = 2958465
	// leapBugSerial is the phantom 1900-02-29
	leapBugSerial = 60
)

// dateSerial returns the serial of a calendar date. month and day
// overflow into the following months and years.
func dateSerial(year, month, day int, date1904 bool) float64 {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date1904 {
		return float64((t.Unix() - epoch1904) / secondsPerDay)
	}
	n := (t.Unix() - epoch1900) / secondsPerDay
	if n < 61 {
		n--
	}
	return float64(n)
}

// TimeToSerial converts a wall-clock time to a date serial
func TimeToSerial(t time.Time, date1904 bool) float64 {
	return timeToSerial(t, date1904)
}

func timeToSerial(t time.Time, date1904 bool) float64 {
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	frac := (float64(secs) + float64(t.Nanosecond())/1e9) / secondsPerDay
	return dateSerial(t.Year(), int(t.Month()), t.Day(), date1904) + frac
}

// serialToTime converts a serial to a UTC time rounded to the millisecond.
// the phantom leap day maps to 1900-02-28.
func serialToTime(serial float64, date1904 bool) time.Time {
	days := math.Floor(serial)
	ms := int64(math.Round((serial - days) * secondsPerDay * 1000))
	n := int64(days)
	base := epoch1900
	switch {
	case date1904:
		base = epoch1904
	case n == leapBugSerial:
		n = 59
		fallthrough
	case n < leapBugSerial:
		n++
	}
	return time.Unix(base+n*secondsPerDay, 0).UTC().Add(time.Duration(ms) * time.Millisecond)
}

// dateParts splits a serial into year, month and day. serial 0 is the
// nonexistent 1900-01-00 and serial 60 is 1900-02-29.
func dateParts(serial float64, date1904 bool) (int, int, int) {
	if !date1904 {
		switch int(math.Floor(serial)) {
		case 0:
			return 1900, 1, 0
		case leapBugSerial:
			return 1900, 2, 29
		}
	}
	t := serialToTime(math.Floor(serial), date1904)
	return t.Year(), int(t.Month()), t.Day()
}

func daysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// dayOfWeek returns 0 for Sunday through 6 for Saturday, consistent with
// the serial arithmetic Excel uses even before March 1900
func dayOfWeek(serial float64, date1904 bool) int {
	n := int(math.Floor(serial))
	if date1904 {
		n += 1462
	}
	return ((n-1)%7 + 7) % 7
}

var monthAbbrev = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func monthByName(s string) (int, bool) {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return 0, false
	}
	m, ok := monthAbbrev[s[:3]]
	if !ok {
		return 0, false
	}
	if len(s) > 3 && !strings.HasPrefix(strings.ToLower(monthNames[m-1]), s) && s != "sept" {
		return 0, false
	}
	return m, true
}

// parseDateTimeText recognizes date and time text such as "2024-01-15",
// "1/15/2024 10:30", "15-Jan-2024", "January 15, 2024" and "10:30 PM".
// numeric dates are read in the locale's component order.
func parseDateTimeText(s string, order DateOrder, date1904 bool) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, false
	}
	var dateFields []string
	var timeFields []string
	for i, f := range fields {
		if strings.Contains(f, ":") {
			timeFields = fields[i:]
			break
		}
		dateFields = append(dateFields, f)
	}
	serial := 0.0
	if len(dateFields) > 0 {
		d, ok := parseDateFields(strings.Join(dateFields, " "), order, date1904)
		if !ok {
			return 0, false
		}
		serial = d
	}
	if len(timeFields) > 0 {
		t, ok := parseTimeFields(timeFields)
		if !ok {
			return 0, false
		}
		serial += t
	}
	return serial, true
}

func splitDate(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == ' ' || r == ',' || r == '.'
	})
}

func parseDateFields(s string, order DateOrder, date1904 bool) (float64, bool) {
	parts := splitDate(s)
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	nums := make([]int, len(parts))
	month := 0
	namePos := -1
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			nums[i] = n
			continue
		}
		m, ok := monthByName(p)
		if !ok || namePos >= 0 {
			return 0, false
		}
		month, namePos = m, i
	}
	var y, m, d int
	switch {
	case namePos >= 0 && len(parts) == 3 && namePos == 0:
		m, d, y = month, nums[1], nums[2]
	case namePos >= 0 && len(parts) == 3 && namePos == 1:
		d, m, y = nums[0], month, nums[2]
	case namePos >= 0 && len(parts) == 2 && namePos == 0:
		m, d, y = month, 1, nums[1]
	case namePos >= 0:
		return 0, false
	case len(parts) != 3:
		return 0, false
	case len(parts[0]) == 4 || order == DateOrderYMD:
		y, m, d = nums[0], nums[1], nums[2]
	case order == DateOrderDMY:
		d, m, y = nums[0], nums[1], nums[2]
	default:
		m, d, y = nums[0], nums[1], nums[2]
	}
	if y < 100 {
		if y < 30 {
			y += 2000
		} else {
			y += 1900
		}
	}
	if y < 1900 || y > 9999 || m < 1 || m > 12 || d < 1 {
		return 0, false
	}
	if y == 1900 && m == 2 && d == 29 && !date1904 {
		return leapBugSerial, true
	}
	if d > daysInMonth(y, m) {
		return 0, false
	}
	serial := dateSerial(y, m, d, date1904)
	if serial < 0 {
		return 0, false
	}
	return serial, true
}

func parseTimeFields(fields []string) (float64, bool) {
	clock := fields[0]
	pm, am := false, false
	switch len(fields) {
	case 1:
		upper := strings.ToUpper(clock)
		if rest, ok := strings.CutSuffix(upper, "PM"); ok {
			clock, pm = rest, true
		} else if rest, ok := strings.CutSuffix(upper, "AM"); ok {
			clock, am = rest, true
		}
	case 2:
		switch strings.ToUpper(fields[1]) {
		case "PM":
			pm = true
		case "AM":
			am = true
		default:
			return 0, false
		}
	default:
		return 0, false
	}
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, false
	}
	mi, err := strconv.Atoi(parts[1])
	if err != nil || mi < 0 || mi > 59 {
		return 0, false
	}
	sec := 0.0
	if len(parts) == 3 {
		sec, err = strconv.ParseFloat(parts[2], 64)
		if err != nil || sec < 0 || sec >= 60 {
			return 0, false
		}
	}
	if am || pm {
		if h < 1 || h > 12 {
			return 0, false
		}
		h %= 12
		if pm {
			h += 12
		}
	}
	return (float64(h*3600+mi*60) + sec) / secondsPerDay, true
}

func init() {
	register(
		&FunctionDef{Name: "DATE", MinArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: fnDATE},
		&FunctionDef{Name: "TIME", MinArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: fnTIME},
		datePartFn("YEAR", func(y, _, _ int) int { return y }),
		datePartFn("MONTH", func(_, m, _ int) int { return m }),
		datePartFn("DAY", func(_, _, d int) int { return d }),
		timePartFn("HOUR", func(secs int) int { return secs / 3600 }),
		timePartFn("MINUTE", func(secs int) int { return secs / 60 % 60 }),
		timePartFn("SECOND", func(secs int) int { return secs % 60 }),
		&FunctionDef{Name: "NOW", MaxArgs: 0, Returns: ReturnNumber, Flags: FlagVolatile, Impl: fnNOW},
		&FunctionDef{Name: "TODAY", MaxArgs: 0, Returns: ReturnNumber, Flags: FlagVolatile, Impl: fnTODAY},
		&FunctionDef{Name: "WEEKDAY", MinArgs: 1, MaxArgs: 2, Returns: ReturnNumber, Flags: pure, Impl: fnWEEKDAY},
		&FunctionDef{Name: "WEEKNUM", MinArgs: 1, MaxArgs: 2, Returns: ReturnNumber, Flags: pure, Impl: fnWEEKNUM},
		&FunctionDef{Name: "ISOWEEKNUM", MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: fnISOWEEKNUM},
		&FunctionDef{Name: "DATEVALUE", MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: fnDATEVALUE},
		&FunctionDef{Name: "TIMEVALUE", MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: fnTIMEVALUE},
		&FunctionDef{Name: "EDATE", MinArgs: 2, Returns: ReturnNumber, Flags: pure, Impl: monthShift(false)},
		&FunctionDef{Name: "EOMONTH", MinArgs: 2, Returns: ReturnNumber, Flags: pure, Impl: monthShift(true)},
		&FunctionDef{Name: "DAYS", MinArgs: 2, Returns: ReturnNumber, Flags: pure, Impl: fnDAYS},
		&FunctionDef{Name: "DAYS360", MinArgs: 2, MaxArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: fnDAYS360},
		&FunctionDef{Name: "DATEDIF", MinArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: fnDATEDIF},
		&FunctionDef{Name: "YEARFRAC", MinArgs: 2, MaxArgs: 3, Returns: ReturnNumber, Flags: pure, Impl: fnYEARFRAC},
		&FunctionDef{Name: "NETWORKDAYS", MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgValue, ArgValue, ArgRange}, Returns: ReturnNumber, Flags: pure, Impl: networkDays(false)},
		&FunctionDef{Name: "NETWORKDAYS.INTL", MinArgs: 2, MaxArgs: 4, Args: []ArgKind{ArgValue, ArgValue, ArgValue, ArgRange}, Returns: ReturnNumber, Flags: pure, Impl: networkDays(true)},
		&FunctionDef{Name: "WORKDAY", MinArgs: 2, MaxArgs: 3, Args: []ArgKind{ArgValue, ArgValue, ArgRange}, Returns: ReturnNumber, Flags: pure, Impl: workday(false)},
		&FunctionDef{Name: "WORKDAY.INTL", MinArgs: 2, MaxArgs: 4, Args: []ArgKind{ArgValue, ArgValue, ArgValue, ArgRange}, Returns: ReturnNumber, Flags: pure, Impl: workday(true)},
	)
}

// serialArg reads a date argument, rejecting negative and out of range
// serials
func serialArg(fc *FunctionContext, v Value) (float64, *SpreadsheetError) {
	f, err := fc.Number(v)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > maxSerial+1 {
		return 0, errorValue(ErrorCodeNum)
	}
	return f, nil
}

func fnDATE(fc *FunctionContext, args []Value) Value {
	var parts [3]int
	for i := range parts {
		f, err := fc.Number(args[i])
		if err != nil {
			return err
		}
		parts[i] = int(math.Trunc(f))
	}
	y := parts[0]
	if y >= 0 && y < 1900 {
		y += 1900
	}
	if y < 0 || y > 9999 {
		return errorValue(ErrorCodeNum)
	}
	serial := dateSerial(y, parts[1], parts[2], fc.Date1904())
	if !fc.Date1904() && y == 1900 && parts[1] == 2 && parts[2] == 29 {
		serial = leapBugSerial
	}
	if serial < 0 || serial > maxSerial {
		return errorValue(ErrorCodeNum)
	}
	return serial
}

func fnTIME(fc *FunctionContext, args []Value) Value {
	var parts [3]float64
	for i := range parts {
		f, err := fc.Number(args[i])
		if err != nil {
			return err
		}
		parts[i] = math.Trunc(f)
	}
	secs := parts[0]*3600 + parts[1]*60 + parts[2]
	if secs < 0 {
		return errorValue(ErrorCodeNum)
	}
	day := secs / secondsPerDay
	return day - math.Floor(day)
}

func datePartFn(name string, part func(y, m, d int) int) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		serial, err := serialArg(fc, args[0])
		if err != nil {
			return err
		}
		return float64(part(dateParts(serial, fc.Date1904())))
	}}
}

func timePartFn(name string, part func(secs int) int) *FunctionDef {
	return &FunctionDef{Name: name, MinArgs: 1, Returns: ReturnNumber, Flags: pure, Impl: func(fc *FunctionContext, args []Value) Value {
		serial, err := serialArg(fc, args[0])
		if err != nil {
			return err
		}
		secs := int(math.Round((serial - math.Floor(serial)) * secondsPerDay))
		return float64(part(secs % secondsPerDay))
	}}
}

func fnNOW(fc *FunctionContext, _ []Value) Value {
	return timeToSerial(fc.Now(), fc.Date1904())
}

func fnTODAY(fc *FunctionContext, _ []Value) Value {
	return math.Floor(timeToSerial(fc.Now(), fc.Date1904()))
}

func fnWEEKDAY(fc *FunctionContext, args []Value) Value {
	serial, err := serialArg(fc, args[0])
	if err != nil {
		return err
	}
	kind, err := optInt(fc, args, 1, 1)
	if err != nil {
		return err
	}
	dow := dayOfWeek(serial, fc.Date1904())
	switch {
	case kind == 1 || kind == 17:
		return float64(dow + 1)
	case kind == 2 || kind == 11:
		return float64((dow+6)%7 + 1)
	case kind == 3:
		return float64((dow + 6) % 7)
	case kind >= 12 && kind <= 16:
		// week starting on Tuesday (12) through Saturday (16)
		first := kind - 10
		return float64((dow-first+7)%7 + 1)
	}
	return errorValue(ErrorCodeNum)
}

func fnWEEKNUM(fc *FunctionContext, args []Value) Value {
	serial, err := serialArg(fc, args[0])
	if err != nil {
		return err
	}
	kind, err := optInt(fc, args, 1, 1)
	if err != nil {
		return err
	}
	if kind == 21 {
		_, week := serialToTime(serial, fc.Date1904()).ISOWeek()
		return float64(week)
	}
	var first int // weekday that starts a week, 0 = Sunday
	switch {
	case kind == 1 || kind == 17:
		first = 0
	case kind == 2 || kind == 11:
		first = 1
	case kind >= 12 && kind <= 16:
		first = kind - 10
	default:
		return errorValue(ErrorCodeNum)
	}
	y, _, _ := dateParts(serial, fc.Date1904())
	jan1 := dateSerial(y, 1, 1, fc.Date1904())
	offset := (dayOfWeek(jan1, fc.Date1904()) - first + 7) % 7
	return math.Floor((math.Floor(serial)-jan1+float64(offset))/7) + 1
}

func fnISOWEEKNUM(fc *FunctionContext, args []Value) Value {
	serial, err := serialArg(fc, args[0])
	if err != nil {
		return err
	}
	_, week := serialToTime(serial, fc.Date1904()).ISOWeek()
	return float64(week)
}

func parseDateArg(fc *FunctionContext, v Value) (float64, *SpreadsheetError) {
	s, ok := v.(string)
	if !ok {
		if e, isErr := v.(*SpreadsheetError); isErr {
			return 0, e
		}
		return 0, errorValue(ErrorCodeValue)
	}
	serial, ok := parseDateTimeText(s, fc.Locale().DateOrder, fc.Date1904())
	if !ok {
		return 0, errorValue(ErrorCodeValue)
	}
	return serial, nil
}

func fnDATEVALUE(fc *FunctionContext, args []Value) Value {
	serial, err := parseDateArg(fc, args[0])
	if err != nil {
		return err
	}
	return math.Floor(serial)
}

func fnTIMEVALUE(fc *FunctionContext, args []Value) Value {
	serial, err := parseDateArg(fc, args[0])
	if err != nil {
		return err
	}
	return serial - math.Floor(serial)
}

func monthShift(endOfMonth bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		serial, err := serialArg(fc, args[0])
		if err != nil {
			return err
		}
		months, err := fc.Number(args[1])
		if err != nil {
			return err
		}
		y, m, d := dateParts(serial, fc.Date1904())
		total := y*12 + (m - 1) + int(math.Trunc(months))
		ty, tm := total/12, total%12+1
		if ty < 1900 || ty > 9999 {
			return errorValue(ErrorCodeNum)
		}
		last := daysInMonth(ty, tm)
		if endOfMonth || d > last {
			d = last
		}
		out := dateSerial(ty, tm, d, fc.Date1904())
		if out < 0 {
			return errorValue(ErrorCodeNum)
		}
		return out
	}
}

func fnDAYS(fc *FunctionContext, args []Value) Value {
	end, err := serialArg(fc, args[0])
	if err != nil {
		return err
	}
	start, err := serialArg(fc, args[1])
	if err != nil {
		return err
	}
	return math.Floor(end) - math.Floor(start)
}

func fnDAYS360(fc *FunctionContext, args []Value) Value {
	start, err := serialArg(fc, args[0])
	if err != nil {
		return err
	}
	end, err := serialArg(fc, args[1])
	if err != nil {
		return err
	}
	european, err := optBool(fc, args, 2, false)
	if err != nil {
		return err
	}
	return days360(start, end, european, fc.Date1904())
}

func days360(start, end float64, european, date1904 bool) float64 {
	y1, m1, d1 := dateParts(start, date1904)
	y2, m2, d2 := dateParts(end, date1904)
	if european {
		d1, d2 = min(d1, 30), min(d2, 30)
	} else {
		lastFeb := func(y, m, d int) bool { return m == 2 && d == daysInMonth(y, m) }
		if lastFeb(y1, m1, d1) {
			if lastFeb(y2, m2, d2) {
				d2 = 30
			}
			d1 = 30
		}
		if d2 == 31 && d1 >= 30 {
			d2 = 30
		}
		if d1 == 31 {
			d1 = 30
		}
	}
	return float64((y2-y1)*360 + (m2-m1)*30 + (d2 - d1))
}

func fnDATEDIF(fc *FunctionContext, args []Value) Value {
	start, err := serialArg(fc, args[0])
	if err != nil {
		return err
	}
	end, err := serialArg(fc, args[1])
	if err != nil {
		return err
	}
	unit, err := fc.Text(args[2])
	if err != nil {
		return err
	}
	start, end = math.Floor(start), math.Floor(end)
	if start > end {
		return errorValue(ErrorCodeNum)
	}
	y1, m1, d1 := dateParts(start, fc.Date1904())
	y2, m2, d2 := dateParts(end, fc.Date1904())
	months := (y2-y1)*12 + (m2 - m1)
	if d2 < d1 {
		months--
	}
	switch strings.ToUpper(unit) {
	case "D":
		return end - start
	case "M":
		return float64(months)
	case "Y":
		return float64(months / 12)
	case "YM":
		return float64(months % 12)
	case "MD":
		if d2 >= d1 {
			return float64(d2 - d1)
		}
		pm, py := m2-1, y2
		if pm == 0 {
			pm, py = 12, y2-1
		}
		return float64(daysInMonth(py, pm) - d1 + d2)
	case "YD":
		ty := y2
		if m2 < m1 || (m2 == m1 && d2 < d1) {
			ty--
		}
		anchor := dateSerial(ty, m1, min(d1, daysInMonth(ty, m1)), fc.Date1904())
		return end - anchor
	}
	return errorValue(ErrorCodeNum)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func fnYEARFRAC(fc *FunctionContext, args []Value) Value {
	start, err := serialArg(fc, args[0])
	if err != nil {
		return err
	}
	end, err := serialArg(fc, args[1])
	if err != nil {
		return err
	}
	basis, err := optInt(fc, args, 2, 0)
	if err != nil {
		return err
	}
	if start > end {
		start, end = end, start
	}
	return yearFraction(start, end, basis, fc.Date1904())
}

// yearFraction measures start to end in years under a day count basis:
// 0 US 30/360, 1 actual/actual, 2 actual/360, 3 actual/365, 4 European 30/360
func yearFraction(start, end float64, basis int, d1904 bool) Value {
	start, end = math.Floor(start), math.Floor(end)
	switch basis {
	case 0:
		return days360(start, end, false, d1904) / 360
	case 1:
		y1, _, _ := dateParts(start, d1904)
		y2, m2, d2 := dateParts(end, d1904)
		if y1 == y2 || (y2 == y1+1 && start+365 >= end) {
			denom := 365.0
			if isLeap(y1) || (y1 != y2 && isLeap(y2) && (m2 > 2 || (m2 == 2 && d2 == 29))) {
				denom = 366
			}
			return (end - start) / denom
		}
		days := dateSerial(y2+1, 1, 1, d1904) - dateSerial(y1, 1, 1, d1904)
		avg := days / float64(y2-y1+1)
		return (end - start) / avg
	case 2:
		return (end - start) / 360
	case 3:
		return (end - start) / 365
	case 4:
		return days360(start, end, true, d1904) / 360
	}
	return errorValue(ErrorCodeNum)
}

// weekendMask returns which weekdays (0 = Sunday) are non-working
func weekendMask(fc *FunctionContext, args []Value, intl bool) ([7]bool, *SpreadsheetError) {
	var mask [7]bool
	mask[0], mask[6] = true, true
	if !intl || len(args) < 3 || fc.Omitted(2) {
		return mask, nil
	}
	if s, ok := args[2].(string); ok {
		if len(s) != 7 || strings.Trim(s, "01") != "" || s == "1111111" {
			return mask, errorValue(ErrorCodeValue)
		}
		// the string starts on Monday
		for i := range 7 {
			mask[(i+1)%7] = s[i] == '1'
		}
		return mask, nil
	}
	code, err := fc.Int(args[2])
	if err != nil {
		return mask, err
	}
	mask = [7]bool{}
	switch {
	case code >= 1 && code <= 7:
		// 1 = Saturday+Sunday, 2 = Sunday+Monday, ...
		mask[(code+5)%7] = true
		mask[(code+6)%7] = true
	case code >= 11 && code <= 17:
		mask[code-11] = true
	default:
		return mask, errorValue(ErrorCodeNum)
	}
	return mask, nil
}

func holidaySet(fc *FunctionContext, args []Value, i int) (map[float64]bool, *SpreadsheetError) {
	set := map[float64]bool{}
	if i >= len(args) || fc.Omitted(i) {
		return set, nil
	}
	days, err := fc.collectNumbers(args[i:i+1], collectOptions{})
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		if d < 0 {
			return nil, errorValue(ErrorCodeNum)
		}
		set[math.Floor(d)] = true
	}
	return set, nil
}

func networkDays(intl bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		start, err := serialArg(fc, args[0])
		if err != nil {
			return err
		}
		end, err := serialArg(fc, args[1])
		if err != nil {
			return err
		}
		mask, err := weekendMask(fc, args, intl)
		if err != nil {
			return err
		}
		hi := 2
		if intl {
			hi = 3
		}
		holidays, err := holidaySet(fc, args, hi)
		if err != nil {
			return err
		}
		start, end = math.Floor(start), math.Floor(end)
		sign := 1.0
		if start > end {
			start, end, sign = end, start, -1
		}
		count := 0.0
		for d := start; d <= end; d++ {
			if !mask[dayOfWeek(d, fc.Date1904())] && !holidays[d] {
				count++
			}
		}
		return sign * count
	}
}

func workday(intl bool) func(*FunctionContext, []Value) Value {
	return func(fc *FunctionContext, args []Value) Value {
		start, err := serialArg(fc, args[0])
		if err != nil {
			return err
		}
		days, err := fc.Number(args[1])
		if err != nil {
			return err
		}
		mask, err := weekendMask(fc, args, intl)
		if err != nil {
			return err
		}
		hi := 2
		if intl {
			hi = 3
		}
		holidays, err := holidaySet(fc, args, hi)
		if err != nil {
			return err
		}
		n := int(math.Trunc(days))
		step := 1.0
		if n < 0 {
			step, n = -1, -n
		}
		d := math.Floor(start)
		for n > 0 {
			d += step
			if d < 0 || d > maxSerial {
				return errorValue(ErrorCodeNum)
			}
			if !mask[dayOfWeek(d, fc.Date1904())] && !holidays[d] {
				n--
			}
		}
		return d
	}
}
