package ledger

import "time"

// DueDate returns the due date of the nth installment of a schedule starting at start.
// Month based frequencies clamp to the last day of the target month (Jan 31 + 1 month = Feb 28).
// CUSTOM and unknown frequencies fall back to MONTHLY.
func DueDate(start time.Time, n int, freq Frequency) time.Time {
	if n <= 0 {
		return start
	}
	switch freq {
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*n)
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 14*n)
	case FrequencyQuarterly:
		return addMonths(start, 3*n)
	case FrequencyYearly:
		return addMonths(start, 12*n)
	default:
		return addMonths(start, n)
	}
}

// addMonths is time.AddDate without the day overflow into the following month.
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
