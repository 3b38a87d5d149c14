package dms

import (
	"sync"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// CASelection is the local mirror of the CA used for enrollment.
//
// Server pushes go through Sync and user choices through Choose. Only Choose
// yields a command, so a push can never be echoed back to the server.
type CASelection struct {
	mu      sync.RWMutex
	current string
}

// Current returns the mirrored CA.
func (s *CASelection) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Sync records the CA reported by the server.
func (s *CASelection) Sync(serverCA string) {
	s.mu.Lock()
	s.current = serverCA
	s.mu.Unlock()
}

// Choose records the user's choice and returns the command to send.
func (s *CASelection) Choose(ca string) wire.Envelope {
	s.mu.Lock()
	s.current = ca
	s.mu.Unlock()
	return wire.SelectCAForEnrollment(ca)
}
