package ensocomp

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

//--------------------------------------
// CF規約の時刻軸 ("days since 1800-1-1 00:00:00" 等) の変換
//--------------------------------------

// 暦上の日時
type CFDate struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

func (d CFDate) YearMonth() YearMonth {
	return YearMonth{Year: d.Year, Month: d.Month}
}

func (d CFDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// 時刻軸の単位 "<unit> since <epoch>"
type TimeUnits struct {
	Seconds float64 //1単位の秒数
	Name    string  //単位名 (days, hours, ...)
	Epoch   CFDate  //基準日時
	Offset  int     //基準日時のタイムゾーン (秒)
}

var unitSeconds = map[string]float64{
	"second": 1, "seconds": 1, "sec": 1, "secs": 1, "s": 1,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60,
	"hour": 3600, "hours": 3600, "hr": 3600, "hrs": 3600, "h": 3600,
	"day": 86400, "days": 86400, "d": 86400,
	// 360_day 暦のみ
	"month": 30 * 86400, "months": 30 * 86400,
	"year": 360 * 86400, "years": 360 * 86400,
}

var epochPattern = regexp.MustCompile(
	`^(-?\d+)-(\d{1,2})-(\d{1,2})` +
		`(?:[ T](\d{1,2}):(\d{1,2})(?::(\d{1,2}(?:\.\d*)?))?)?` +
		`\s*(Z|UTC|[+-]\d{1,2}(?::?\d{2})?)?$`)

// 時刻軸の units 属性を解析します。
func ParseTimeUnits(units string) (TimeUnits, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return TimeUnits{}, errors.Errorf("time units %q: expected \"<unit> since <epoch>\"", units)
	}

	name := strings.ToLower(strings.TrimSpace(parts[0]))
	sec, ok := unitSeconds[name]
	if !ok {
		return TimeUnits{}, errors.Errorf("time units %q: unknown unit %q", units, name)
	}

	m := epochPattern.FindStringSubmatch(strings.TrimSpace(parts[1]))
	if m == nil {
		return TimeUnits{}, errors.Errorf("time units %q: cannot parse epoch %q", units, parts[1])
	}
	atoi := func(s string) int {
		if s == "" {
			return 0
		}
		v, _ := strconv.Atoi(s)
		return v
	}

	epoch := CFDate{
		Year:   atoi(m[1]),
		Month:  atoi(m[2]),
		Day:    atoi(m[3]),
		Hour:   atoi(m[4]),
		Minute: atoi(m[5]),
	}
	if m[6] != "" {
		s, _ := strconv.ParseFloat(m[6], 64)
		epoch.Second = int(math.Round(s))
	}
	if epoch.Month < 1 || epoch.Month > 12 || epoch.Day < 1 || epoch.Hour > 23 || epoch.Minute > 59 || epoch.Second > 60 {
		return TimeUnits{}, errors.Errorf("time units %q: epoch out of range", units)
	}

	return TimeUnits{Seconds: sec, Name: name, Epoch: epoch, Offset: parseZoneOffset(m[7])}, nil
}

// "+9", "-06:00", "+0530" 等を秒に変換
func parseZoneOffset(z string) int {
	if z == "" || z == "Z" || z == "UTC" {
		return 0
	}
	sign := 1
	if z[0] == '-' {
		sign = -1
	}
	z = strings.ReplaceAll(z[1:], ":", "")
	var h, m int
	switch {
	case len(z) <= 2:
		h, _ = strconv.Atoi(z)
	default:
		h, _ = strconv.Atoi(z[:len(z)-2])
		m, _ = strconv.Atoi(z[len(z)-2:])
	}
	return sign * (h*3600 + m*60)
}

// """数値の時刻軸を暦上の日時に変換します。
// Args:
//
//	values([]float64): 時刻軸の値
//	units(string): units 属性 ("days since 1800-1-1 00:00:00" 等)
//	calendarName(string): calendar 属性。空文字は "standard"
//
// Returns:
//
//	[]CFDate: values と同じ順序・長さの日時
//
// """
func DecodeTimes(values []float64, units string, calendarName string) ([]CFDate, error) {
	cal, err := lookupCalendar(calendarName)
	if err != nil {
		return nil, err
	}
	tu, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	if tu.Seconds > 86400 && cal.name != "360_day" {
		return nil, errors.Errorf("time units %q: %s are only defined for the 360_day calendar", units, tu.Name)
	}

	e := tu.Epoch
	if !cal.valid(e.Year, e.Month, e.Day) {
		return nil, errors.Errorf("time units %q: epoch %s does not exist in the %s calendar", units, e, cal.name)
	}
	epoch := float64(cal.dayNumber(e.Year, e.Month, e.Day))*86400 +
		float64(e.Hour*3600+e.Minute*60+e.Second-tu.Offset)

	dates := make([]CFDate, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("time value %d is not finite", i)
		}
		total := int64(math.Round(epoch + v*tu.Seconds))
		day := floorDiv(total, 86400)
		sec := int(total - day*86400)

		y, m, d := cal.date(day)
		dates[i] = CFDate{
			Year:   y,
			Month:  m,
			Day:    d,
			Hour:   sec / 3600,
			Minute: sec % 3600 / 60,
			Second: sec % 60,
		}
	}
	return dates, nil
}

func floorDiv(a int64, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// 暦
type calendar struct {
	name      string
	dayNumber func(y, m, d int) int64
	date      func(n int64) (y, m, d int)
	monthLen  func(y, m int) int
}

func (c calendar) valid(y, m, d int) bool {
	return m >= 1 && m <= 12 && d >= 1 && d <= c.monthLen(y, m)
}

var (
	noLeapDays  = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	allLeapDays = [12]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
)

// グレゴリオ暦への切替日 1582-10-15 のユリウス通日
const gregorianReformJDN = 2299161

func lookupCalendar(name string) (calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard", "gregorian":
		return calendar{
			name: "standard",
			dayNumber: func(y, m, d int) int64 {
				if y > 1582 || (y == 1582 && (m > 10 || (m == 10 && d >= 15))) {
					return gregorianToJDN(y, m, d)
				}
				return julianToJDN(y, m, d)
			},
			date: func(n int64) (int, int, int) {
				if n >= gregorianReformJDN {
					return jdnToGregorian(n)
				}
				return jdnToJulian(n)
			},
			monthLen: func(y, m int) int {
				if y < 1582 || (y == 1582 && m < 10) {
					return julianMonthLen(y, m)
				}
				return gregorianMonthLen(y, m)
			},
		}, nil
	case "proleptic_gregorian":
		return calendar{name: "proleptic_gregorian", dayNumber: gregorianToJDN, date: jdnToGregorian, monthLen: gregorianMonthLen}, nil
	case "julian":
		return calendar{name: "julian", dayNumber: julianToJDN, date: jdnToJulian, monthLen: julianMonthLen}, nil
	case "noleap", "365_day":
		return fixedCalendar("noleap", noLeapDays), nil
	case "all_leap", "366_day":
		return fixedCalendar("all_leap", allLeapDays), nil
	case "360_day":
		return calendar{
			name: "360_day",
			dayNumber: func(y, m, d int) int64 {
				return int64(y)*360 + int64(m-1)*30 + int64(d-1)
			},
			date: func(n int64) (int, int, int) {
				y := floorDiv(n, 360)
				r := int(n - y*360)
				return int(y), r/30 + 1, r%30 + 1
			},
			monthLen: func(int, int) int { return 30 },
		}, nil
	}
	return calendar{}, errors.Errorf("unsupported calendar %q", name)
}

// 閏年のない(または毎年閏年の)暦
func fixedCalendar(name string, days [12]int) calendar {
	var cum [13]int
	for i, d := range days {
		cum[i+1] = cum[i] + d
	}
	yearLen := int64(cum[12])
	return calendar{
		name: name,
		dayNumber: func(y, m, d int) int64 {
			return int64(y)*yearLen + int64(cum[m-1]+d-1)
		},
		date: func(n int64) (int, int, int) {
			y := floorDiv(n, yearLen)
			r := int(n - y*yearLen)
			m := 1
			for r >= cum[m] {
				m++
			}
			return int(y), m, r - cum[m-1] + 1
		},
		monthLen: func(_ int, m int) int { return days[m-1] },
	}
}

func gregorianLeap(y int) bool {
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

func julianLeap(y int) bool {
	return y%4 == 0
}

func gregorianMonthLen(y, m int) int {
	if m == 2 && gregorianLeap(y) {
		return 29
	}
	return noLeapDays[m-1]
}

func julianMonthLen(y, m int) int {
	if m == 2 && julianLeap(y) {
		return 29
	}
	return noLeapDays[m-1]
}

// ユリウス通日 (Fliegel & Van Flandern)
func gregorianToJDN(y, m, d int) int64 {
	a := int64((14 - m) / 12)
	yy := int64(y) + 4800 - a
	mm := int64(m) + 12*a - 3
	return int64(d) + (153*mm+2)/5 + 365*yy + yy/4 - yy/100 + yy/400 - 32045
}

func julianToJDN(y, m, d int) int64 {
	a := int64((14 - m) / 12)
	yy := int64(y) + 4800 - a
	mm := int64(m) + 12*a - 3
	return int64(d) + (153*mm+2)/5 + 365*yy + yy/4 - 32083
}

func jdnToGregorian(n int64) (int, int, int) {
	a := n + 32044
	b := (4*a + 3) / 146097
	c := a - 146097*b/4
	d := (4*c + 3) / 1461
	e := c - 1461*d/4
	m := (5*e + 2) / 153
	day := e - (153*m+2)/5 + 1
	month := m + 3 - 12*(m/10)
	year := 100*b + d - 4800 + m/10
	return int(year), int(month), int(day)
}

func jdnToJulian(n int64) (int, int, int) {
	c := n + 32082
	d := (4*c + 3) / 1461
	e := c - 1461*d/4
	m := (5*e + 2) / 153
	day := e - (153*m+2)/5 + 1
	month := m + 3 - 12*(m/10)
	year := d - 4800 + m/10
	return int(year), int(month), int(day)
}
