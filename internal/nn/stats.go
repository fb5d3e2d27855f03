package nn

import "sync/atomic"

// Stats counts the work done by layer forward passes.
type Stats struct {
	multiplyAdds atomic.Int64
	hiddenStates atomic.Int64
}

// DefaultStats is updated by layers created without WithStats.
var DefaultStats = &Stats{}

// MultiplyAdds returns the multiply-adds performed since the last Reset.
func (s *Stats) MultiplyAdds() int64 { return s.multiplyAdds.Load() }

// HiddenStates returns the output feature elements produced since the
// last Reset.
func (s *Stats) HiddenStates() int64 { return s.hiddenStates.Load() }

// Reset clears both counters.
func (s *Stats) Reset() {
	s.multiplyAdds.Store(0)
	s.hiddenStates.Store(0)
}

func (s *Stats) add(multiplyAdds, hiddenStates int64) {
	s.multiplyAdds.Add(multiplyAdds)
	s.hiddenStates.Add(hiddenStates)
}
