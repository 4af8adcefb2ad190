// Package power drives the PiSugar power manager: battery level, the
// battery-backed RTC and its wake alarm, and system shutdown.
//
// pisugar-server listens on TCP 127.0.0.1:8423 and on the unix socket
// /tmp/pisugar-server.sock. Both speak the same newline-terminated text
// protocol:
//
//	get battery                                   -> battery: 98.37
//	get rtc_time                                  -> rtc_time: 2025-10-06T12:08:51.000+11:00
//	rtc_alarm_set 2000-01-01T12:23:51+11:00 127   -> rtc_alarm_set: done
//	get rtc_alarm_enabled                         -> rtc_alarm_enabled: true
//
// The RTC alarm stores only a time of day plus a weekday repeat mask, so
// NextAlarm derives it from the RTC's own clock and timezone.
package power
