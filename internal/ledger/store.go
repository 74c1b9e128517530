// Package ledger implements the expense ledger store.
//
// The store keeps the ordered list of records in memory and mirrors it to a
// single storage slot after every persisting mutation. The slot is read once
// when the store is opened and afterwards only overwritten as a whole or
// removed by ClearAll. The running total is derived on every read.
//
// Which rows are being edited is presentation state: it is tracked in a
// separate lookup and never written to storage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// DefaultKey is the storage slot the ledger lives in.
const DefaultKey = "expenses"

// corruptSuffix names the slot malformed ledger data is copied to before the
// store drops it.
const corruptSuffix = ".corrupt"

// changeBuffer bounds how many changes may wait for a slow notifier before
// new ones are dropped.
const changeBuffer = 256

var (
	ErrEmptyInput    = errors.New("amount and description are required")
	ErrInvalidAmount = core.ErrInvalidAmount
	ErrNotFound      = errors.New("record not found")
	ErrClosed        = errors.New("ledger is closed")
)

type Options struct {
	// Key is the storage slot; defaults to DefaultKey.
	Key      string
	IDs      IDSource
	Notifier ChangeNotifier
	Logger   *log.Logger
}

type Store struct {
	mu       sync.Mutex
	storage  storage.Storage
	key      string
	ids      IDSource
	notifier ChangeNotifier
	logger   *log.Logger

	records []core.Record
	editing map[int64]bool
	closed  bool

	// changes feeds the dispatcher goroutine; nil without a notifier.
	changes    chan pendingChange
	dispatched chan struct{}
}

type pendingChange struct {
	ctx    context.Context
	change Change
}

// Snapshot is a consistent copy of the ledger for rendering.
type Snapshot struct {
	Records []core.Record
	Editing map[int64]bool
	Total   core.Money
}

func (s Snapshot) IsEditing(id int64) bool {
	return s.Editing[id]
}

// Open builds a store over st and hydrates it. The store takes ownership of
// st and closes it in Close.
func Open(ctx context.Context, st storage.Storage, opts Options) (*Store, error) {
	if st == nil {
		return nil, fmt.Errorf("open ledger: storage is nil")
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if err := storage.ValidateKey(opts.Key); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if opts.IDs == nil {
		opts.IDs = NewClockIDs()
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(ctx)
	}

	s := &Store{
		storage:  st,
		key:      opts.Key,
		ids:      opts.IDs,
		notifier: opts.Notifier,
		logger:   opts.Logger.WithComponent(log.ComponentLedger),
		records:  []core.Record{},
		editing:  make(map[int64]bool),
	}
	if err := s.Hydrate(ctx); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.changes = make(chan pendingChange, changeBuffer)
		s.dispatched = make(chan struct{})
		go s.dispatch()
	}
	return s, nil
}

// Hydrate replaces the in-memory list with the persisted one.
//
// A missing slot yields an empty ledger. A slot that is not a JSON array also
// yields an empty ledger; the broken blob is copied to "<key>.corrupt" first
// so the next write does not destroy it. Rows that cannot be decoded on their
// own are dropped and copied to "<key>.corrupt" as an array while the rest of
// the list is kept. Only storage read errors fail.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	data, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("hydrate ledger from %q: %w", s.key, err)
	}

	s.editing = make(map[int64]bool)
	if !ok {
		s.records = []core.Record{}
		s.logger.InfoContext(ctx, "No persisted ledger, starting empty",
			log.FieldOperation, log.OpHydrate, log.FieldKey, s.key)
		return nil
	}

	records, rejected, err := core.DecodeRecordsPartial(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Persisted ledger is malformed, starting empty",
			log.FieldOperation, log.OpHydrate,
			log.FieldKey, s.key,
			log.FieldError, err,
			"bytes", len(data))
		s.backupCorrupt(ctx, data)
		s.records = []core.Record{}
		return nil
	}
	if len(rejected) > 0 {
		for _, r := range rejected {
			s.logger.WarnContext(ctx, "Dropped unreadable ledger row",
				log.FieldOperation, log.OpHydrate,
				log.FieldKey, s.key,
				log.FieldRecordID, r.ID,
				"index", r.Index,
				log.FieldError, r.Err)
		}
		if backup, err := core.EncodeRejected(rejected); err != nil {
			s.logger.ErrorContext(ctx, "Failed to encode unreadable ledger rows", log.FieldError, err)
		} else {
			s.backupCorrupt(ctx, backup)
		}
	}

	s.records = s.rekeyDuplicates(ctx, records)
	s.logger.InfoContext(ctx, "Ledger hydrated",
		log.FieldOperation, log.OpHydrate,
		log.FieldKey, s.key,
		log.FieldCount, len(s.records),
		log.FieldTotal, core.Sum(s.records).String())
	return nil
}

func (s *Store) backupCorrupt(ctx context.Context, data []byte) {
	backup := s.key + corruptSuffix
	if err := s.storage.Set(ctx, backup, data); err != nil {
		s.logger.ErrorContext(ctx, "Failed to back up malformed ledger",
			log.FieldKey, backup, log.FieldError, err)
	}
}

// rekeyDuplicates gives fresh ids to records whose id was already taken by
// an earlier record. Millisecond ids written by the browser widget can
// collide when two items were added within the same millisecond.
func (s *Store) rekeyDuplicates(ctx context.Context, records []core.Record) []core.Record {
	for _, r := range records {
		s.ids.Observe(r.ID)
	}
	seen := make(map[int64]struct{}, len(records))
	for i := range records {
		if _, dup := seen[records[i].ID]; dup {
			old := records[i].ID
			records[i].ID = s.ids.Next()
			s.logger.WarnContext(ctx, "Duplicate record id re-keyed",
				"old_id", old, log.FieldRecordID, records[i].ID)
		}
		seen[records[i].ID] = struct{}{}
	}
	return records
}

// Add appends a new record. Empty inputs make it a no-op reported as
// ErrEmptyInput; an unparseable amount is reported as ErrInvalidAmount.
// Nothing changes in memory if the write to storage fails.
func (s *Store) Add(ctx context.Context, amountInput, descriptionInput string) (core.Record, error) {
	amountInput = strings.TrimSpace(amountInput)
	desc := strings.TrimSpace(descriptionInput)
	if amountInput == "" || desc == "" {
		return core.Record{}, ErrEmptyInput
	}
	amount, err := core.ParseAmount(amountInput)
	if err != nil {
		return core.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Record{}, ErrClosed
	}

	rec := core.Record{ID: s.ids.Next(), Amount: amount, Description: desc}
	next := append(slices.Clone(s.records), rec)
	if err := s.persist(ctx, next); err != nil {
		return core.Record{}, err
	}
	s.records = next

	s.logger.InfoContext(ctx, "Expense added", log.NewFields().
		WithOperation(log.OpAdd).
		WithRecord(rec.ID, rec.Amount.String(), rec.Description).
		WithLedger(len(s.records), core.Sum(s.records).String()).
		ToSlice()...)
	s.notify(ctx, OpAdded, rec)
	return rec, nil
}

// Delete removes the record with the given id. An unknown id is a no-op and
// nothing is written.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	idx := s.indexOf(id)
	if idx < 0 {
		s.logger.DebugContext(ctx, "Delete of unknown record ignored", log.FieldRecordID, id)
		return nil
	}
	removed := s.records[idx]
	next := slices.Delete(slices.Clone(s.records), idx, idx+1)
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.records = next
	delete(s.editing, id)

	s.logger.InfoContext(ctx, "Expense deleted", log.NewFields().
		WithOperation(log.OpDelete).
		WithRecord(removed.ID, removed.Amount.String(), removed.Description).
		WithLedger(len(s.records), core.Sum(s.records).String()).
		ToSlice()...)
	s.notify(ctx, OpDeleted, removed)
	return nil
}

// ToggleEdit flips the editing flag of a record and returns the new state.
// It is not persisted. Unknown ids are ignored and report false.
func (s *Store) ToggleEdit(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.indexOf(id) < 0 {
		return false
	}
	if s.editing[id] {
		delete(s.editing, id)
		return false
	}
	s.editing[id] = true
	return true
}

func (s *Store) IsEditing(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing[id]
}

// SaveEdit replaces amount and description of a record and ends its editing
// state. Unknown ids change nothing and report ErrNotFound.
func (s *Store) SaveEdit(ctx context.Context, id int64, amountInput, descriptionInput string) (core.Record, error) {
	amount, err := core.ParseAmount(amountInput)
	if err != nil {
		return core.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Record{}, ErrClosed
	}

	idx := s.indexOf(id)
	if idx < 0 {
		return core.Record{}, ErrNotFound
	}
	next := slices.Clone(s.records)
	next[idx].Amount = amount
	next[idx].Description = strings.TrimSpace(descriptionInput)
	if err := s.persist(ctx, next); err != nil {
		return core.Record{}, err
	}
	s.records = next
	delete(s.editing, id)

	rec := next[idx]
	s.logger.InfoContext(ctx, "Expense updated", log.NewFields().
		WithOperation(log.OpSaveEdit).
		WithRecord(rec.ID, rec.Amount.String(), rec.Description).
		WithLedger(len(s.records), core.Sum(s.records).String()).
		ToSlice()...)
	s.notify(ctx, OpEdited, rec)
	return rec, nil
}

// ClearAll empties the ledger and deletes the storage slot itself.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.storage.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove ledger slot %q: %w", s.key, err)
	}
	cleared := len(s.records)
	s.records = []core.Record{}
	s.editing = make(map[int64]bool)

	s.logger.InfoContext(ctx, "Ledger cleared",
		log.FieldOperation, log.OpClear,
		log.FieldKey, s.key,
		"removed", cleared)
	s.notify(ctx, OpCleared, core.Record{})
	return nil
}

// Total sums all amounts; an empty ledger totals 0.00.
func (s *Store) Total() core.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Sum(s.records)
}

// Records returns a copy of the list in insertion order.
func (s *Store) Records() []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) Get(id int64) (core.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return core.Record{}, false
	}
	return s.records[idx], true
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	editing := make(map[int64]bool, len(s.editing))
	for id, on := range s.editing {
		editing[id] = on
	}
	return Snapshot{
		Records: slices.Clone(s.records),
		Editing: editing,
		Total:   core.Sum(s.records),
	}
}

// Key returns the storage slot the ledger is persisted under.
func (s *Store) Key() string {
	return s.key
}

// Close disposes the store, waits for queued changes to reach the notifier
// and closes its storage. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.records = nil
	s.editing = nil
	if s.changes != nil {
		close(s.changes)
	}
	s.mu.Unlock()

	if s.dispatched != nil {
		<-s.dispatched
	}
	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("close ledger storage: %w", err)
	}
	return nil
}

func (s *Store) indexOf(id int64) int {
	return slices.IndexFunc(s.records, func(r core.Record) bool { return r.ID == id })
}

// persist writes the whole list as one blob. Must be called with s.mu held.
func (s *Store) persist(ctx context.Context, records []core.Record) error {
	data, err := core.EncodeRecords(records)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist ledger",
			log.FieldOperation, log.OpPersist, log.FieldKey, s.key, log.FieldError, err)
		return fmt.Errorf("persist ledger to %q: %w", s.key, err)
	}
	return nil
}

// notify queues a change for the dispatcher. It must be called with s.mu
// held so changes are queued in mutation order, and it never blocks: when the
// queue is full the change is dropped and logged.
func (s *Store) notify(ctx context.Context, op Op, rec core.Record) {
	if s.changes == nil {
		return
	}
	change := Change{
		Op:     op,
		Record: rec,
		Count:  len(s.records),
		Total:  core.Sum(s.records),
		At:     time.Now(),
	}
	select {
	case s.changes <- pendingChange{ctx: context.WithoutCancel(ctx), change: change}:
	default:
		s.logger.WarnContext(ctx, "Change queue full, dropping ledger change",
			log.FieldOperation, log.OpNotify, "op", string(op), log.FieldRecordID, rec.ID)
	}
}

// dispatch delivers queued changes one at a time until Close. Notifier
// failures are logged only.
func (s *Store) dispatch() {
	defer close(s.dispatched)
	for p := range s.changes {
		if err := s.notifier.NotifyChange(p.ctx, p.change); err != nil {
			s.logger.WarnContext(p.ctx, "Failed to publish ledger change",
				log.FieldOperation, log.OpNotify, "op", string(p.change.Op), log.FieldError, err)
		}
	}
}
