package app

import (
	"sync"
	"time"
)

type attemptStatus int

const (
	attemptPending attemptStatus = iota
	attemptAbandoned
	attemptCommitted
)

type attemptRecord struct {
	reference     string
	customerID    string
	correlationID string
	status        attemptStatus
	updatedAt     time.Time
}

// attemptRegistry remembers every payment reference handed to the gateway, so a
// confirmation can be routed to its session or recognised as belonging to an
// abandoned attempt.
type attemptRegistry struct {
	mu            sync.Mutex
	byReference   map[string]*attemptRecord
	byCorrelation map[string]string
}

func newAttemptRegistry() *attemptRegistry {
	return &attemptRegistry{
		byReference:   make(map[string]*attemptRecord),
		byCorrelation: make(map[string]string),
	}
}

func (r *attemptRegistry) track(reference, customerID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byReference[reference] = &attemptRecord{
		reference:  reference,
		customerID: customerID,
		status:     attemptPending,
		updatedAt:  now,
	}
}

func (r *attemptRegistry) correlate(reference, correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byReference[reference]
	if !ok || correlationID == "" {
		return
	}
	rec.correlationID = correlationID
	r.byCorrelation[correlationID] = reference
}

func (r *attemptRegistry) abandon(reference string, now time.Time) {
	r.setStatus(reference, attemptAbandoned, now)
}

func (r *attemptRegistry) complete(reference string, now time.Time) {
	r.setStatus(reference, attemptCommitted, now)
}

func (r *attemptRegistry) setStatus(reference string, status attemptStatus, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byReference[reference]
	if !ok || rec.status == attemptCommitted {
		return
	}
	rec.status = status
	rec.updatedAt = now
}

// lookup finds an attempt by correlation id, falling back to the reference.
func (r *attemptRegistry) lookup(reference, correlationID string) (attemptRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.byCorrelation[correlationID]; ok && correlationID != "" {
		reference = ref
	}
	rec, ok := r.byReference[reference]
	if !ok {
		return attemptRecord{}, false
	}
	return *rec, true
}

// pending returns acknowledged attempts still waiting for an outcome.
func (r *attemptRegistry) pending() []attemptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []attemptRecord
	for _, rec := range r.byReference {
		if rec.status == attemptPending && rec.correlationID != "" {
			out = append(out, *rec)
		}
	}
	return out
}

// prune forgets settled attempts last touched before cutoff.
func (r *attemptRegistry) prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for ref, rec := range r.byReference {
		if rec.status == attemptPending || !rec.updatedAt.Before(cutoff) {
			continue
		}
		delete(r.byReference, ref)
		if rec.correlationID != "" {
			delete(r.byCorrelation, rec.correlationID)
		}
		removed++
	}
	return removed
}
