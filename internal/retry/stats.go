package retry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ServiceStats counts guarded calls to one collaborator.
type ServiceStats struct {
	Service           string `json:"service"`
	Attempts          int    `json:"attempts"`
	Successes         int    `json:"successes"`
	Failures          int    `json:"failures"`
	TransientFailures int    `json:"transientFailures"`
	PermanentFailures int    `json:"permanentFailures"`
	BreakerRejections int    `json:"breakerRejections"`
}

// Retries is the number of attempts beyond the first of each finished call.
func (s ServiceStats) Retries() int {
	if n := s.Attempts - s.Successes - s.Failures; n > 0 {
		return n
	}
	return 0
}

// Stats accumulates ServiceStats for every collaborator a process calls.
// Safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	services map[string]*ServiceStats
}

func NewStats() *Stats {
	return &Stats{services: make(map[string]*ServiceStats)}
}

// entry must be called with s.mu held.
func (s *Stats) entry(service string) *ServiceStats {
	st, ok := s.services[service]
	if !ok {
		st = &ServiceStats{Service: service}
		s.services[service] = st
	}
	return st
}

// RecordAttempt counts one try, including retries.
func (s *Stats) RecordAttempt(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(service).Attempts++
}

// RecordSuccess counts a call that eventually succeeded.
func (s *Stats) RecordSuccess(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(service).Successes++
}

// RecordFailure counts a call that gave up, split by the final error's type.
func (s *Stats) RecordFailure(service string, errType ErrorType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.entry(service)
	st.Failures++
	switch errType {
	case ErrorTypeTransient:
		st.TransientFailures++
	case ErrorTypePermanent:
		st.PermanentFailures++
	}
}

// RecordBreakerRejection counts a call an open breaker refused.
func (s *Stats) RecordBreakerRejection(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(service).BreakerRejections++
}

// Service returns a copy of the counters for one service.
func (s *Stats) Service(service string) (ServiceStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.services[service]
	if !ok {
		return ServiceStats{}, false
	}
	return *st, true
}

// Snapshot returns copies of all counters ordered by service name.
func (s *Stats) Snapshot() []ServiceStats {
	s.mu.Lock()
	out := make([]ServiceStats, 0, len(s.services))
	for _, st := range s.services {
		out = append(out, *st)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Summary renders the counters one service per line.
func (s *Stats) Summary() string {
	snap := s.Snapshot()
	if len(snap) == 0 {
		return "no collaborator calls recorded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "collaborator calls (%d services):\n", len(snap))
	for _, st := range snap {
		fmt.Fprintf(&b, "  - %s: %d attempts, %d retries, %d ok, %d failed (%d transient, %d permanent), %d rejected\n",
			st.Service, st.Attempts, st.Retries(), st.Successes, st.Failures,
			st.TransientFailures, st.PermanentFailures, st.BreakerRejections)
	}
	return b.String()
}
