package dispatch

import (
	"sync"
	"time"
)

// Supervisor holds one pending timeout per open offer. Timers live only in
// memory; the sweeper job reconciles whatever a restart loses.
type Supervisor struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSupervisor builds an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{timers: make(map[string]*time.Timer)}
}

// Arm schedules fire after d for the given order, replacing any timer
// already armed for it. The timer removes itself before firing.
func (s *Supervisor) Arm(orderID string, d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[orderID]; ok {
		existing.Stop()
	}
	s.timers[orderID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, orderID)
		s.mu.Unlock()
		fire()
	})
}

// Disarm cancels the order's timer. False means it already fired or was
// never armed; callers treat both the same because the status write is
// conditional anyway.
func (s *Supervisor) Disarm(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[orderID]
	if !ok {
		return false
	}
	delete(s.timers, orderID)
	return timer.Stop()
}

// Stop cancels every pending timer.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Armed reports how many timers are pending.
func (s *Supervisor) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
