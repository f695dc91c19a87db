package callqueue

import "github.com/dennisdiepolder/monti/pbxlive/internal/types"

// SLTracker tracks service level for one queue and day
type SLTracker struct {
	Target        int // target percentage (e.g., 80)
	ThresholdSecs int // answered within this many seconds counts towards SL
	AnsweredInSL  int
	TotalOffered  int
}

// NewSLTracker creates a new SL tracker with the given target
func NewSLTracker(target, thresholdSecs int) *SLTracker {
	return &SLTracker{
		Target:        target,
		ThresholdSecs: thresholdSecs,
	}
}

// RecordOffered counts a call entering the queue
func (s *SLTracker) RecordOffered() {
	s.TotalOffered++
}

// RecordAnswer records a call being answered after waitTimeSecs
func (s *SLTracker) RecordAnswer(waitTimeSecs float64) {
	if waitTimeSecs <= float64(s.ThresholdSecs) {
		s.AnsweredInSL++
	}
}

// CurrentSL returns the current service level percentage
func (s *SLTracker) CurrentSL() float64 {
	return serviceLevel(s.AnsweredInSL, s.TotalOffered)
}

// Snapshot returns a ServiceLevel snapshot
func (s *SLTracker) Snapshot() types.ServiceLevel {
	return types.ServiceLevel{
		Target:        s.Target,
		ThresholdSecs: s.ThresholdSecs,
		AnsweredInSL:  s.AnsweredInSL,
		TotalOffered:  s.TotalOffered,
		CurrentSL:     s.CurrentSL(),
	}
}

func serviceLevel(answeredInSL, total int) float64 {
	if total == 0 {
		return 100.0 // nothing offered yet
	}
	return float64(answeredInSL) / float64(total) * 100.0
}
