package timestamp

import "time"

//Layout is a microsecond precision UTC layout of stored times
const Layout = "2006-01-02T15:04:05.000000Z"

//DashDayLayout is a trend bucket label
const DashDayLayout = "2006-01-02"

//StartOfDay truncates t to the UTC day
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
