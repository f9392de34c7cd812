package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Script replays a fixed sequence of rolls, then repeats the last one.
// Used for tests and scripted demos.
type Script struct {
	mu    sync.Mutex
	rolls []Roll
	next  int
}

// Fixed returns a Script over rolls. It panics if rolls is empty or
// holds a face outside [1, 6].
func Fixed(rolls ...Roll) *Script {
	if len(rolls) == 0 {
		panic("dice: Fixed needs at least one roll")
	}
	for _, r := range rolls {
		if !r.Valid() {
			panic(fmt.Sprintf("dice: invalid scripted roll %s", r))
		}
	}
	return &Script{rolls: append([]Roll(nil), rolls...)}
}

// Roll returns the next scripted roll.
func (s *Script) Roll() Roll {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rolls[s.next]
	if s.next < len(s.rolls)-1 {
		s.next++
	}
	return r
}
