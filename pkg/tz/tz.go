// Package tz converts UTC epochs to local time using a fixed offset and a
// yearly "Nth weekday of month" daylight-saving rule.
package tz

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRule = errors.New("invalid time zone rule")

// LastWeek selects the last occurrence of a weekday in the month.
const LastWeek = 5

// Transition describes a DST boundary: the Week-th Weekday of Month at Hour.
type Transition struct {
	Week    int          // 1..5, 5 = last
	Month   time.Month   // 1..12
	Weekday time.Weekday // 0 = Sunday
	Hour    int
}

type Rule struct {
	OffsetMinutes    int
	Name             string
	DST              bool
	DSTStart         Transition
	DSTEnd           Transition
	DSTOffsetMinutes int
}

func (r Rule) Validate() error {
	if r.OffsetMinutes < -14*60 || r.OffsetMinutes > 14*60 {
		return fmt.Errorf("%w: offset %d minutes", ErrInvalidRule, r.OffsetMinutes)
	}
	if !r.DST {
		return nil
	}
	for _, transition := range []Transition{r.DSTStart, r.DSTEnd} {
		if err := transition.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t Transition) validate() error {
	switch {
	case t.Week < 1 || t.Week > LastWeek:
		return fmt.Errorf("%w: week %d", ErrInvalidRule, t.Week)
	case t.Month < time.January || t.Month > time.December:
		return fmt.Errorf("%w: month %d", ErrInvalidRule, t.Month)
	case t.Weekday < time.Sunday || t.Weekday > time.Saturday:
		return fmt.Errorf("%w: weekday %d", ErrInvalidRule, t.Weekday)
	case t.Hour < 0 || t.Hour > 23:
		return fmt.Errorf("%w: hour %d", ErrInvalidRule, t.Hour)
	}
	return nil
}

// IsDSTActive reports whether timestamp falls inside the rule's daylight
// period for its calendar year. Transitions are evaluated on the UTC
// calendar. A start at or after the end means the period wraps the new year.
func (r Rule) IsDSTActive(timestamp int64) bool {
	if !r.DST {
		return false
	}

	year := time.Unix(timestamp, 0).UTC().Year()
	start := TransitionTime(year, r.DSTStart)
	end := TransitionTime(year, r.DSTEnd)

	if start < end {
		return timestamp >= start && timestamp < end
	}
	return timestamp >= start || timestamp < end
}

func (r Rule) Local(timestamp int64) int64 {
	offset := r.OffsetMinutes
	if r.IsDSTActive(timestamp) {
		offset += r.DSTOffsetMinutes
	}
	return timestamp + int64(offset)*60
}

func (r Rule) String() string {
	return fmt.Sprintf("%s (UTC%+d)", r.Name, r.OffsetMinutes/60)
}

// TransitionTime returns the epoch of a transition in the given year.
func TransitionTime(year int, t Transition) int64 {
	first := time.Date(year, t.Month, 1, 0, 0, 0, 0, time.UTC)

	if t.Week == LastWeek {
		// walk back from the last day of the month
		lastDay := DaysInMonth(t.Month, year)
		end := first.AddDate(0, 0, lastDay-1)
		back := (int(end.Weekday()) - int(t.Weekday) + 7) % 7
		return MakeTime(year, t.Month, lastDay-back, t.Hour, 0, 0)
	}

	target := firstWeekday(first, t.Weekday).AddDate(0, 0, (t.Week-1)*7)
	return MakeTime(target.Year(), target.Month(), target.Day(), t.Hour, 0, 0)
}

func firstWeekday(monthStart time.Time, weekday time.Weekday) time.Time {
	return monthStart.AddDate(0, 0, (int(weekday)-int(monthStart.Weekday())+7)%7)
}

func UTC() Rule {
	return Rule{Name: "UTC"}
}

func USEastern() Rule {
	return Rule{
		OffsetMinutes:    -300,
		Name:             "EST",
		DST:              true,
		DSTStart:         Transition{Week: 2, Month: time.March, Weekday: time.Sunday, Hour: 2},
		DSTEnd:           Transition{Week: 1, Month: time.November, Weekday: time.Sunday, Hour: 2},
		DSTOffsetMinutes: 60,
	}
}

func USPacific() Rule {
	rule := USEastern()
	rule.OffsetMinutes = -480
	rule.Name = "PST"
	return rule
}

func CentralEurope() Rule {
	return Rule{
		OffsetMinutes:    60,
		Name:             "CET",
		DST:              true,
		DSTStart:         Transition{Week: LastWeek, Month: time.March, Weekday: time.Sunday, Hour: 2},
		DSTEnd:           Transition{Week: LastWeek, Month: time.October, Weekday: time.Sunday, Hour: 3},
		DSTOffsetMinutes: 60,
	}
}

// Lookup resolves a built-in rule by abbreviation or descriptive name.
func Lookup(name string) (Rule, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UTC", "GMT", "Z":
		return UTC(), true
	case "EST", "EDT", "US/EASTERN", "AMERICA/NEW_YORK":
		return USEastern(), true
	case "PST", "PDT", "US/PACIFIC", "AMERICA/LOS_ANGELES":
		return USPacific(), true
	case "CET", "CEST", "EUROPE/BERLIN", "EUROPE/PARIS":
		return CentralEurope(), true
	}
	return Rule{}, false
}
