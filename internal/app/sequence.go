package app

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Sequence runs admission and block work one job at a time. Unlike a plain
// mutex, waiting for it honours context cancellation.
type Sequence struct {
	sem *semaphore.Weighted
}

func NewSequence() *Sequence {
	return &Sequence{sem: semaphore.NewWeighted(1)}
}

func (s *Sequence) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn(ctx)
}
