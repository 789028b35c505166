package dirty

import "sync"

// State is the transient per-record bookkeeping between a save and its
// commit. Once must-reindex is true it stays true until Reset, so a record
// saved several times in one transaction is judged once at commit.
type State struct {
	mu          sync.Mutex
	armed       bool
	mustKnown   bool
	mustReindex bool
}

// Arm marks the record for auto indexing at the next commit.
func (s *State) Arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

// Armed reports whether Arm was called since the last Reset.
func (s *State) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// MarkMustReindex evaluates compute unless the flag is already true.
func (s *State) MarkMustReindex(compute func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mustKnown && s.mustReindex {
		return
	}
	s.mustReindex = compute()
	s.mustKnown = true
}

// MustReindex returns the flag and whether it has been evaluated.
func (s *State) MustReindex() (value, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mustReindex, s.mustKnown
}

// Reset clears the state after the commit has been handled.
func (s *State) Reset() {
	s.mu.Lock()
	s.armed = false
	s.mustKnown = false
	s.mustReindex = false
	s.mu.Unlock()
}
