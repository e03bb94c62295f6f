package store

import (
	"context"
	"time"
)

// Observer receives the outcome of each store call.
type Observer interface {
	ObserveStoreOperation(operation, collection string, took time.Duration, err error)
}

// Instrumented reports every call on the wrapped Store to an Observer.
type Instrumented struct {
	next     Store
	observer Observer
}

// Instrument wraps next; a nil observer returns next unchanged.
func Instrument(next Store, observer Observer) Store {
	if observer == nil {
		return next
	}
	return &Instrumented{next: next, observer: observer}
}

func (s *Instrumented) GetAll(ctx context.Context, collection string) (Records, error) {
	start := time.Now()
	records, err := s.next.GetAll(ctx, collection)
	s.observer.ObserveStoreOperation("get_all", collection, time.Since(start), err)
	return records, err
}

func (s *Instrumented) SetAll(ctx context.Context, collection string, records Records) error {
	start := time.Now()
	err := s.next.SetAll(ctx, collection, records)
	s.observer.ObserveStoreOperation("set_all", collection, time.Since(start), err)
	return err
}

func (s *Instrumented) Update(ctx context.Context, collection string, fn UpdateFunc) error {
	start := time.Now()
	err := s.next.Update(ctx, collection, fn)
	s.observer.ObserveStoreOperation("update", collection, time.Since(start), err)
	return err
}
