// Package registry holds the process-local admission state shared by the dice
// handlers: which rolls are settled, how many bets each roll has admitted, and
// which rolls have a reveal waiting in the unconfirmed pool.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Source replays confirmed chain state when the process starts.
type Source interface {
	SettledSessions(ctx context.Context) ([]string, error)
	WagerCounts(ctx context.Context) (map[string]int, error)
}

type Registry struct {
	mu sync.Mutex

	confirmedReveals map[string]struct{}
	pendingWagers    map[string]int
	pendingReveals   map[string]struct{}
}

func New() *Registry {
	return &Registry{
		confirmedReveals: map[string]struct{}{},
		pendingWagers:    map[string]int{},
		pendingReveals:   map[string]struct{}{},
	}
}

// Rebuild replaces the registry contents with what src reports as confirmed.
// Confirmed bets count against the player limit just like pooled ones.
func (r *Registry) Rebuild(ctx context.Context, src Source) error {
	settled, err := src.SettledSessions(ctx)
	if err != nil {
		return fmt.Errorf("load settled rolls: %w", err)
	}
	counts, err := src.WagerCounts(ctx)
	if err != nil {
		return fmt.Errorf("load bet counts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmedReveals = make(map[string]struct{}, len(settled))
	for _, id := range settled {
		r.confirmedReveals[id] = struct{}{}
	}
	r.pendingWagers = make(map[string]int, len(counts))
	for id, n := range counts {
		if n > 0 {
			r.pendingWagers[id] = n
		}
	}
	r.pendingReveals = map[string]struct{}{}
	return nil
}

// ---- Confirmed reveals ----

func (r *Registry) IsSettled(rollID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.confirmedReveals[rollID]
	return ok
}

func (r *Registry) MarkSettled(rollID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmedReveals[rollID] = struct{}{}
}

func (r *Registry) Unsettle(rollID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.confirmedReveals, rollID)
}

// ---- Admitted bets ----

func (r *Registry) PendingWagers(rollID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingWagers[rollID]
}

func (r *Registry) AddPendingWager(rollID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingWagers[rollID]++
	return r.pendingWagers[rollID]
}

// RemovePendingWager undoes AddPendingWager for the same roll id.
func (r *Registry) RemovePendingWager(rollID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.pendingWagers[rollID] - 1
	if n <= 0 {
		delete(r.pendingWagers, rollID)
		return 0
	}
	r.pendingWagers[rollID] = n
	return n
}

// ---- Pooled reveals ----

func (r *Registry) HasPendingReveal(rollID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pendingReveals[rollID]
	return ok
}

// ReservePendingReveal marks rollID as having a pooled reveal. It reports
// false, without changing anything, if one is already pooled.
func (r *Registry) ReservePendingReveal(rollID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pendingReveals[rollID]; ok {
		return false
	}
	r.pendingReveals[rollID] = struct{}{}
	return true
}

func (r *Registry) ReleasePendingReveal(rollID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pendingReveals, rollID)
}

// Snapshot is a point-in-time copy of the registry, for tests and queries.
type Snapshot struct {
	Settled        []string       `json:"settled"`
	PendingWagers  map[string]int `json:"pendingWagers"`
	PendingReveals []string       `json:"pendingReveals"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		Settled:        make([]string, 0, len(r.confirmedReveals)),
		PendingWagers:  make(map[string]int, len(r.pendingWagers)),
		PendingReveals: make([]string, 0, len(r.pendingReveals)),
	}
	for id := range r.confirmedReveals {
		s.Settled = append(s.Settled, id)
	}
	for id, n := range r.pendingWagers {
		s.PendingWagers[id] = n
	}
	for id := range r.pendingReveals {
		s.PendingReveals = append(s.PendingReveals, id)
	}
	sort.Strings(s.Settled)
	sort.Strings(s.PendingReveals)
	return s
}
