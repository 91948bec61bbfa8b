// Package power decides how long the device sleeps between wake cycles and
// how it sleeps.
package power

import "time"

// ComputeSleepDuration returns target minus the time already spent in this
// cycle, never less than minimum, so an overrunning cycle still yields and
// the loop never spins.
func ComputeSleepDuration(cycleElapsed, target, minimum time.Duration) time.Duration {
	if cycleElapsed < 0 {
		cycleElapsed = 0
	}
	return max(minimum, target-cycleElapsed)
}
