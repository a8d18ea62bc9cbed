package execution

import "sync"

// Ledger keeps the most recent order reports in memory for quick inspection.
type Ledger struct {
	mu      sync.Mutex
	limit   int
	reports []Report
}

// NewLedger creates an empty ledger holding at most capacity reports.
// A non-positive capacity means unbounded.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{limit: capacity, reports: make([]Report, 0, capacity)}
}

// Record appends a report, evicting the oldest once the ledger is full.
func (l *Ledger) Record(report Report) {
	l.mu.Lock()
	if l.limit > 0 && len(l.reports) == l.limit {
		copy(l.reports, l.reports[1:])
		l.reports = l.reports[:len(l.reports)-1]
	}
	l.reports = append(l.reports, report)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded reports.
func (l *Ledger) Snapshot() []Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Report, len(l.reports))
	copy(out, l.reports)
	return out
}

// Reset clears all stored reports.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.reports = l.reports[:0]
	l.mu.Unlock()
}
