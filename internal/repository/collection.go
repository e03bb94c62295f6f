package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tuition-center-api/internal/validation"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

// collection gives typed access to one store collection. Records are
// validated before every write; records that fail to decode are an error.
type collection[T any] struct {
	store    store.Store
	name     string
	validate *validator.Validate
}

func newCollection[T any](s store.Store, name string, v *validator.Validate) collection[T] {
	if v == nil {
		v = validation.New(validation.DefaultSchool)
	}
	return collection[T]{store: s, name: name, validate: v}
}

func (c collection[T]) decode(records store.Records) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, raw := range records {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", c.name, i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (c collection[T]) encode(items []T) (store.Records, error) {
	out := make(store.Records, 0, len(items))
	for _, item := range items {
		if err := c.validate.Struct(item); err != nil {
			return nil, fmt.Errorf("validate %s record: %w", c.name, err)
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode %s record: %w", c.name, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// all returns every record in insertion order.
func (c collection[T]) all(ctx context.Context) ([]T, error) {
	records, err := c.store.GetAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return c.decode(records)
}

// filter returns the records matching keep.
func (c collection[T]) filter(ctx context.Context, keep func(T) bool) ([]T, error) {
	items, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// first returns the first record matching match.
func (c collection[T]) first(ctx context.Context, match func(T) bool) (T, bool, error) {
	var zero T
	items, err := c.all(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, item := range items {
		if match(item) {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// appendAll adds items in one store update. Nothing is written when any
// item fails validation.
func (c collection[T]) appendAll(ctx context.Context, items ...T) error {
	if len(items) == 0 {
		return nil
	}
	encoded, err := c.encode(items)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, c.name, func(current store.Records) (store.Records, error) {
		return append(current, encoded...), nil
	})
}

// mutate rewrites the collection through fn under the store's single writer.
func (c collection[T]) mutate(ctx context.Context, fn func([]T) ([]T, error)) error {
	return c.store.Update(ctx, c.name, func(current store.Records) (store.Records, error) {
		items, err := c.decode(current)
		if err != nil {
			return nil, err
		}
		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		return c.encode(next)
	})
}
