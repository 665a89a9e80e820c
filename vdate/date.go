// Package vdate implements the DateTime value type described in spec.md
// §6.4: a signed milliseconds-since-Unix-epoch count with ISO-8601
// parsing/formatting, proleptic Gregorian, always stored and compared in
// UTC. Grounded on original_source/src/dates.cc/.hh (date_t): construction
// from broken-down time, from an ISO string, millisecond arithmetic, and
// strftime-equivalent local-time formatting for display only.
//
// No third-party date library appears anywhere in the retrieval pack, so
// this is built directly on the standard library's time package per
// DESIGN.md's standard-library justification.
package vdate

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Date is a millisecond-since-Unix-epoch instant. The zero value is
// invalid (matches date_t's default constructor); use IsValid to test.
type Date struct {
	millis int64
	valid  bool
}

// Invalid is the distinguished "not a date" value.
var Invalid = Date{}

// FromMillis builds a Date from a signed millisecond count.
func FromMillis(ms int64) Date { return Date{millis: ms, valid: true} }

// FromParts builds a Date from broken-down UTC time components.
func FromParts(year, month, day, hour, min, sec, millisec int) Date {
	t := time.Date(year, time.Month(month), day, hour, min, sec, millisec*int(time.Millisecond), time.UTC)
	return FromMillis(t.UnixMilli())
}

// Now returns the current UTC instant.
func Now() Date { return FromMillis(time.Now().UTC().UnixMilli()) }

// IsValid reports whether d holds a real instant.
func (d Date) IsValid() bool { return d.valid }

// AsMillis returns the milliseconds-since-epoch count.
func (d Date) AsMillis() int64 { return d.millis }

var iso8601Re = regexp.MustCompile(
	`^(\d{4,})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}(:?\d{2})?)?$`)

// Parse parses `YYYY-MM-DDThh:mm:ss[.fff][±hh[:mm]|Z]` per spec.md §6.4.
// Supported range is 0001-01-01 through 292278993-12-31; the year group
// is unbounded-width to allow that range.
func Parse(s string) (Date, error) {
	m := iso8601Re.FindStringSubmatch(s)
	if m == nil {
		return Invalid, errors.Errorf("vdate: %q is not ISO-8601 extended form", s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	min, _ := strconv.Atoi(m[5])
	sec, _ := strconv.Atoi(m[6])
	millis := 0
	if m[7] != "" {
		frac := m[7][1:]
		for len(frac) < 3 {
			frac += "0"
		}
		millis, _ = strconv.Atoi(frac[:3])
	}
	loc, err := parseZone(m[8])
	if err != nil {
		return Invalid, err
	}
	t := time.Date(year, time.Month(month), day, hour, min, sec, millis*int(time.Millisecond), loc)
	return FromMillis(t.UnixMilli()), nil
}

func parseZone(z string) (*time.Location, error) {
	if z == "" || z == "Z" {
		return time.UTC, nil
	}
	sign := 1
	if z[0] == '-' {
		sign = -1
	}
	rest := z[1:]
	rest = regexp.MustCompile(`:`).ReplaceAllString(rest, "")
	if len(rest) < 2 {
		return nil, errors.Errorf("vdate: invalid zone offset %q", z)
	}
	hh, err := strconv.Atoi(rest[:2])
	if err != nil {
		return nil, errors.Wrapf(err, "vdate: invalid zone offset %q", z)
	}
	mm := 0
	if len(rest) >= 4 {
		mm, err = strconv.Atoi(rest[2:4])
		if err != nil {
			return nil, errors.Wrapf(err, "vdate: invalid zone offset %q", z)
		}
	}
	off := sign * (hh*3600 + mm*60)
	return time.FixedZone(z, off), nil
}

// AsISO8601Extended renders d in UTC as YYYY-MM-DDThh:mm:ss.fffZ.
func (d Date) AsISO8601Extended() string {
	t := time.UnixMilli(d.millis).UTC()
	return t.Format("2006-01-02T15:04:05.000Z")
}

// AsFormattedLocalTime renders d converted to the host's local timezone
// using a Go time-layout string ("for user display only", per the
// original's comment — never used for round-tripping).
func (d Date) AsFormattedLocalTime(layout string) string {
	return time.UnixMilli(d.millis).Local().Format(layout)
}

func (d Date) String() string {
	if !d.valid {
		return "<invalid-date>"
	}
	return d.AsISO8601Extended()
}

// Before, After, Equal — comparison operators.
func (d Date) Before(o Date) bool { return d.millis < o.millis }
func (d Date) After(o Date) bool  { return d.millis > o.millis }
func (d Date) Equal(o Date) bool  { return d.millis == o.millis }

// Add returns d shifted by ms milliseconds.
func (d Date) Add(ms int64) Date { return FromMillis(d.millis + ms) }

// Sub returns the millisecond difference d - o.
func (d Date) Sub(o Date) int64 { return d.millis - o.millis }

// MarshalText/UnmarshalText let Date participate in yaml/json round trips.
func (d Date) MarshalText() ([]byte, error) {
	if !d.valid {
		return nil, fmt.Errorf("vdate: cannot marshal invalid date")
	}
	return []byte(d.AsISO8601Extended()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
