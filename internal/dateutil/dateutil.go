package dateutil

import "time"

// Layout is the wire format for calendar days. Days are always UTC: token and
// ledger keys must not depend on the client's clock or timezone.
const Layout = "2006-01-02"

// Today returns the current UTC calendar day.
func Today() string { return time.Now().UTC().Format(Layout) }

// Format renders t as a UTC calendar day.
func Format(t time.Time) string { return t.UTC().Format(Layout) }

// Parse validates s as a YYYY-MM-DD day and returns its UTC midnight.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}

// Valid reports whether s is a well-formed YYYY-MM-DD day.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}
