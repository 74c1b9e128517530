package ledger

import (
	"context"
	"time"

	"ledger/internal/core"
)

// Op names a persisting mutation.
type Op string

const (
	OpAdded   Op = "added"
	OpDeleted Op = "deleted"
	OpEdited  Op = "edited"
	OpCleared Op = "cleared"
)

// Change describes one persisting mutation after it was written.
// Record is the zero value for OpCleared.
type Change struct {
	Op     Op
	Record core.Record
	Count  int
	Total  core.Money
	At     time.Time
}

// ChangeNotifier is told about every persisting mutation. ToggleEdit is not
// a persisting mutation and is never reported.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, change Change) error
}

// NotifierFunc adapts a function to ChangeNotifier.
type NotifierFunc func(ctx context.Context, change Change) error

func (f NotifierFunc) NotifyChange(ctx context.Context, change Change) error {
	return f(ctx, change)
}
