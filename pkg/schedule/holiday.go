package schedule

import (
	"fmt"
	"time"

	"github.com/reservetender/reservetender/pkg/types"
)

// dateLayout is the canonical holiday representation: an en-US short date
// like "4/20/2021". Storage and lookup must use the exact same formatting or
// lookups silently miss, so everything goes through FormatDate.
const dateLayout = "1/2/2006"

// isoLayout is accepted on input since that's how dates usually arrive from
// the settings API.
const isoLayout = "2006-01-02"

// FormatDate returns the canonical form of t's calendar date.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// NormalizeDates converts each input date to the canonical form, accepting
// either ISO dates or already-canonical ones.
func NormalizeDates(dates []string) ([]string, error) {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse(isoLayout, d)
		if err != nil {
			t, err = time.Parse(dateLayout, d)
		}
		if err != nil {
			return nil, &types.ValidationError{Field: "holiday", Msg: fmt.Sprintf("unparseable date %q", d)}
		}
		out = append(out, FormatDate(t))
	}
	return out, nil
}

// IsHoliday reports whether now's calendar date is in the holiday set. now
// must be in the device's local zone; holidays must already be canonical.
func IsHoliday(now time.Time, holidays []string) bool {
	today := FormatDate(now)
	for _, h := range holidays {
		if h == today {
			return true
		}
	}
	return false
}

// AddHolidays unions add into current, deduplicating while preserving the
// order entries first appeared. Inputs must already be canonical.
func AddHolidays(current, add []string) []string {
	seen := make(map[string]bool, len(current)+len(add))
	out := make([]string, 0, len(current)+len(add))
	for _, h := range current {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, h := range add {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

// RemoveHolidays subtracts remove from current. Inputs must already be
// canonical.
func RemoveHolidays(current, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, h := range remove {
		drop[h] = true
	}
	out := make([]string, 0, len(current))
	for _, h := range current {
		if !drop[h] {
			out = append(out, h)
		}
	}
	return out
}
