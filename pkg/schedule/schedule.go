// Package schedule decides whether an instant falls inside one of the
// device's peak pricing windows and maintains the user's holiday set. Both
// are pure functions of their inputs; all I/O lives elsewhere.
package schedule

import (
	"time"

	"github.com/reservetender/reservetender/pkg/types"
)

// StartBuffer is subtracted from every block's start boundary so the reserve
// is already lowered by the time the real peak period begins. It absorbs
// scheduler jitter and device-side propagation delay.
const StartBuffer = time.Hour

// InPeakWindow reports whether now falls inside any of the given blocks.
//
// now must already be in the device's local zone since block offsets are
// device-local. For each block whose DaysOfWeek contains now's weekday
// (Sunday=0, matching time.Weekday), the window is
// [startOfDay+StartSeconds-StartBuffer, startOfDay+EndSeconds], both
// boundaries inclusive. Blocks are checked independently in the order given;
// overlaps are not merged and the first match wins.
//
// Bounds are deliberately not capped: an EndSeconds past 86400 produces a
// window crossing midnight without re-checking the day-of-week on the crossed
// day, and a StartSeconds under 3600 produces a window reaching into the
// previous day.
func InPeakWindow(now time.Time, blocks []types.ScheduleBlock) bool {
	weekday := int(now.Weekday())
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, block := range blocks {
		var today bool
		for _, d := range block.DaysOfWeek {
			if d == weekday {
				today = true
				break
			}
		}
		if !today {
			continue
		}

		start := startOfDay.Add(time.Duration(block.StartSeconds)*time.Second - StartBuffer)
		end := startOfDay.Add(time.Duration(block.EndSeconds) * time.Second)
		if !now.Before(start) && !now.After(end) {
			return true
		}
	}
	return false
}
