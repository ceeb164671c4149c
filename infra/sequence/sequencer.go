package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing command sequence numbers.
// The first Next after New(start) returns start+1.
type Sequencer struct {
	last atomic.Uint64
}

func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued number.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// ResumeFrom moves the sequencer forward to the highest of the given
// checkpoints. It never moves backwards.
func (s *Sequencer) ResumeFrom(checkpoints ...uint64) {
	for _, c := range checkpoints {
		for {
			cur := s.last.Load()
			if c <= cur || s.last.CompareAndSwap(cur, c) {
				break
			}
		}
	}
}
