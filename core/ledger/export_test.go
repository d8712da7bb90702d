package ledger

import "time"

// SetNow replaces the clock of the package until the returned func is called.
func SetNow(now func() time.Time) (reset func()) {
	orig := nowFunc
	nowFunc = now
	return func() { nowFunc = orig }
}
