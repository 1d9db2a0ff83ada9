package types

import "time"

// Block targets as reported by the device's TOU configuration.
const (
	TargetPeak    = "peak"
	TargetOffPeak = "off_peak"
)

// ScheduleBlock is one recurring window of the device's weekly TOU schedule.
// Offsets are seconds from the start of the day in the device's local zone.
type ScheduleBlock struct {
	// DaysOfWeek uses the device's numbering: Sunday=0 through Saturday=6.
	// This matches Go's time.Weekday directly; 1-based ISO weekdays need a
	// mod 7 before comparing.
	DaysOfWeek   []int  `json:"week_days"`
	StartSeconds int    `json:"start_seconds"`
	EndSeconds   int    `json:"end_seconds"`
	Target       string `json:"target"`
}

// SiteStatus is a snapshot of the device fetched fresh each run. The device is
// externally mutable so a snapshot is never reused across invocations.
type SiteStatus struct {
	SiteID       string
	ReserveLevel int
	// TOUEnabled is true when the device is running its time-based control
	// mode. When false the device is in manual/self-powered mode and must not
	// be overridden.
	TOUEnabled bool
	Schedule   []ScheduleBlock
	TimeZone   string
	// Location is loaded from TimeZone; the schedule offsets are meaningless
	// outside this zone.
	Location *time.Location
}

// PeakBlocks returns only the schedule blocks that define peak windows.
func (s SiteStatus) PeakBlocks() []ScheduleBlock {
	var blocks []ScheduleBlock
	for _, b := range s.Schedule {
		if b.Target == TargetPeak {
			blocks = append(blocks, b)
		}
	}
	return blocks
}
