// Package store persists named collections of JSON records. Every collection
// is read and written whole; Update gives a single-writer read-modify-write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names known to the service.
const (
	Students      = "students"
	Parents       = "parents"
	Teachers      = "teachers"
	Payments      = "payments"
	Attendance    = "attendance"
	Marks         = "marks"
	Materials     = "materials"
	Notifications = "notifications"
	Announcements = "announcements"
	Chats         = "chats"
	Reports       = "reports"
)

var known = map[string]struct{}{
	Students: {}, Parents: {}, Teachers: {}, Payments: {}, Attendance: {}, Marks: {},
	Materials: {}, Notifications: {}, Announcements: {}, Chats: {}, Reports: {},
}

// ErrUnknownCollection is returned for names outside the known set.
var ErrUnknownCollection = errors.New("store: unknown collection")

// ErrConflict is returned when an optimistic update lost too many races.
var ErrConflict = errors.New("store: concurrent update conflict")

// Records is the raw content of one collection in insertion order.
type Records []json.RawMessage

// UpdateFunc receives the current records and returns the replacement.
// Returning an error aborts the update without writing.
type UpdateFunc func(Records) (Records, error)

// Store is the persistence contract shared by every backend.
type Store interface {
	GetAll(ctx context.Context, collection string) (Records, error)
	SetAll(ctx context.Context, collection string, records Records) error
	Update(ctx context.Context, collection string, fn UpdateFunc) error
}

// Validate rejects collection names outside the known set.
func Validate(collection string) error {
	if _, ok := known[collection]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return nil
}

func decode(raw []byte) (Records, error) {
	if len(raw) == 0 {
		return Records{}, nil
	}
	var out Records
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if out == nil {
		out = Records{}
	}
	return out, nil
}

func encode(records Records) ([]byte, error) {
	if records == nil {
		records = Records{}
	}
	return json.Marshal(records)
}
