// Package eventlog keeps every deployment event emitted by the process.
package eventlog

import (
	"iter"
	"sync"

	"bundle-deployer/internal/models"
)

// Log is an append-only, process-lifetime event store shared by all
// deployments. It is safe for concurrent use.
type Log struct {
	mu     sync.RWMutex
	events []models.DeploymentEvent
}

func New() *Log {
	return &Log{}
}

func (l *Log) Append(event models.DeploymentEvent) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

// List yields the events matching filter in insertion order. The sequence
// covers the events present when iteration starts; later appends are not seen.
func (l *Log) List(filter models.ListEventsRequest) iter.Seq[models.DeploymentEvent] {
	return func(yield func(models.DeploymentEvent) bool) {
		// Existing elements are never mutated, so the snapshot can be read unlocked.
		l.mu.RLock()
		snapshot := l.events[:len(l.events):len(l.events)]
		l.mu.RUnlock()

		for _, event := range snapshot {
			if !filter.Matches(event) {
				continue
			}
			if !yield(event) {
				return
			}
		}
	}
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
