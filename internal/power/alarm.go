package power

import (
	"fmt"
	"regexp"
	"time"
)

// Weekdays is the 7-bit repeat mask of an RTC alarm. Bit 0 is Sunday.
type Weekdays uint8

// EveryDay repeats the alarm on all seven days.
const EveryDay Weekdays = 127

// alarmDate is the placeholder date sent with every alarm. The RTC keeps
// only the time of day; the date is ignored.
const alarmDate = "2000-01-01"

var (
	timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d$`)
	timezonePattern  = regexp.MustCompile(`^[+-]\d{2}:\d{2}$`)
)

// AlarmSpec is a time-of-day RTC alarm. It has no date component.
type AlarmSpec struct {
	// TimeOfDay is HH:MM:SS in the RTC's own timezone.
	TimeOfDay string
	// Repeat is the weekday mask, 1..127.
	Repeat Weekdays
	// Timezone is the RTC's UTC offset, "+hh:mm" or "-hh:mm".
	Timezone string
}

// NextAlarm builds the alarm that fires interval after rtcNow.
//
// rtcNow must be the RTC's own reading so the alarm is expressed in the
// RTC's timezone regardless of what the system clock or zone says.
func NextAlarm(rtcNow time.Time, interval time.Duration) AlarmSpec {
	next := rtcNow.Add(interval)
	return AlarmSpec{
		TimeOfDay: next.Format("15:04:05"),
		Repeat:    EveryDay,
		Timezone:  next.Format("-07:00"),
	}
}

// Validate checks the spec can be sent to the power manager.
func (a AlarmSpec) Validate() error {
	if !timeOfDayPattern.MatchString(a.TimeOfDay) {
		return fmt.Errorf("%w: time of day %q is not HH:MM:SS", ErrInvalidAlarm, a.TimeOfDay)
	}
	if a.Repeat < 1 || a.Repeat > EveryDay {
		return fmt.Errorf("%w: repeat mask %d outside 1..127", ErrInvalidAlarm, a.Repeat)
	}
	if !timezonePattern.MatchString(a.Timezone) {
		return fmt.Errorf("%w: timezone %q is not +hh:mm", ErrInvalidAlarm, a.Timezone)
	}
	return nil
}

// Matches reports whether a stored alarm reading has this spec's time of
// day and offset.
func (a AlarmSpec) Matches(stored time.Time) bool {
	return stored.Format("15:04:05") == a.TimeOfDay && stored.Format("-07:00") == a.Timezone
}

// command renders the rtc_alarm_set line.
//
// Example: rtc_alarm_set 2000-01-01T12:23:51+11:00 127
func (a AlarmSpec) command() string {
	return fmt.Sprintf("rtc_alarm_set %sT%s%s %d", alarmDate, a.TimeOfDay, a.Timezone, a.Repeat)
}

// String implements fmt.Stringer.
func (a AlarmSpec) String() string {
	return fmt.Sprintf("%s%s repeat=%d", a.TimeOfDay, a.Timezone, a.Repeat)
}
