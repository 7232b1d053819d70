package logging

// ProgressSampler limits "n of total" progress logs to a fixed number of
// steps per job. The first report and completion always log.
type ProgressSampler struct {
	steps int
	last  int
}

// NewProgressSampler returns a sampler that logs at most steps+1 times for a
// run from 0 to total. Non-positive steps default to 4.
func NewProgressSampler(steps int) *ProgressSampler {
	if steps <= 0 {
		steps = 4
	}
	return &ProgressSampler{steps: steps, last: -1}
}

// ShouldLog reports whether done/total has entered a step not logged yet.
func (s *ProgressSampler) ShouldLog(done, total int) bool {
	if s == nil {
		return true
	}
	if total <= 0 || done < 0 {
		return false
	}
	done = min(done, total)
	step := done * s.steps / total
	if step <= s.last {
		return false
	}
	s.last = step
	return true
}

// Reset forgets logged steps, e.g. when a new job starts.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.last = -1
	}
}
