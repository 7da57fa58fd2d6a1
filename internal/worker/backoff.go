package worker

import "time"

// backoffDelay returns how long a job should wait before retry attempt
// number attempts+1. The schedule is indexed by completed attempts and
// saturates at its last entry.
func backoffDelay(schedule []time.Duration, attempts int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
