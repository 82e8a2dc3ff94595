package pipeline

import (
	"sync"
)

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	Outcomes map[Outcome]int64 `json:"outcomes"`
	Turns    int64             `json:"turns"`
}

type Stats struct {
	mu       sync.Mutex
	outcomes map[Outcome]int64
	turns    int64
}

func newStats() *Stats {
	return &Stats{outcomes: make(map[Outcome]int64)}
}

func (s *Stats) record(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome]++
}

func (s *Stats) recordTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
}

func (s *Stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{Outcomes: make(map[Outcome]int64, len(s.outcomes)), Turns: s.turns}
	for k, v := range s.outcomes {
		out.Outcomes[k] = v
	}
	return out
}

// Status describes one pipeline step for health reporting.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type configuredNotifier interface {
	Configured() bool
}

// Describe returns status entries for every step in execution order.
func (p *Pipeline) Describe() []Status {
	statuses := []Status{
		{Name: StepSafety, Enabled: true},
		{Name: StepAnalysis, Enabled: true},
		{Name: StepAlignment, Enabled: true, Details: map[string]string{"strict": boolString(p.strictAlignment)}},
		{Name: StepApproval, Enabled: true},
		{Name: StepDocument, Enabled: true},
	}

	if n, ok := p.approval.notifier.(configuredNotifier); ok && !n.Configured() {
		statuses[3].Enabled = false
		statuses[3].Reason = "webhook is not configured; approvals stay pending"
		statuses[4].Enabled = false
		statuses[4].Reason = "requires delivered approval"
	}
	if p.conversation == nil {
		statuses = append(statuses, Status{Name: "conversation", Enabled: false, Reason: "agent is not configured"})
	} else {
		statuses = append(statuses, Status{Name: "conversation", Enabled: true})
	}
	return statuses
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
