// internal/repository/day.go
package repository

import "time"

// asDay renders a day parameter as YYYY-MM-DD. DATE columns compared against
// a bare time.Time would go through a timestamptz cast that depends on the
// session TimeZone; a plain date literal does not.
func asDay(day time.Time) string {
	return day.Format("2006-01-02")
}
