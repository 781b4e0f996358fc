package datekey

import (
	"fmt"
	"time"
)

// JST is a fixed UTC+9 zone. It never consults the system tz database.
var JST = time.FixedZone("JST", 9*60*60)

// Keys holds the accepted header spellings for one calendar day.
type Keys struct {
	Short string // M/D
	Slash string // YYYY/MM/DD
	ISO   string // YYYY-MM-DD
}

// For renders the JST calendar day containing t.
func For(t time.Time) Keys {
	d := t.In(JST)
	return Keys{
		Short: fmt.Sprintf("%d/%d", int(d.Month()), d.Day()),
		Slash: d.Format("2006/01/02"),
		ISO:   d.Format("2006-01-02"),
	}
}

// Today returns the keys for the current JST day.
func Today() Keys {
	return For(time.Now())
}

// Matches reports whether s is exactly one of the three spellings.
func (k Keys) Matches(s string) bool {
	return s == k.Short || s == k.Slash || s == k.ISO
}

// All returns the spellings in the order they are documented.
func (k Keys) All() []string {
	return []string{k.Short, k.Slash, k.ISO}
}
