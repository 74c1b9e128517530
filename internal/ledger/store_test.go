package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage/memory"
)

// flakyStorage wraps the memory store and can be told to fail writes.
type flakyStorage struct {
	*memory.Store
	failSet    bool
	failRemove bool
	sets       int
	removes    int
}

var errWriteFailed = errors.New("write failed")

func (f *flakyStorage) Set(ctx context.Context, key string, value []byte) error {
	f.sets++
	if f.failSet {
		return errWriteFailed
	}
	return f.Store.Set(ctx, key, value)
}

func (f *flakyStorage) Remove(ctx context.Context, key string) error {
	f.removes++
	if f.failRemove {
		return errWriteFailed
	}
	return f.Store.Remove(ctx, key)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recordingNotifier) NotifyChange(_ context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recordingNotifier) ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Op)
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *flakyStorage) {
	t.Helper()
	st := &flakyStorage{Store: memory.New()}
	s, err := Open(context.Background(), st, Options{IDs: &SequenceIDs{}, Logger: log.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, st
}

// assertPersisted compares the stored blob with the encoding of want.
func assertPersisted(t *testing.T, st *flakyStorage, want []core.Record) {
	t.Helper()
	data, ok, err := st.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	require.True(t, ok, "ledger slot missing")
	expected, err := core.EncodeRecords(want)
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(data))
}

func TestOpenEmptyStorage(t *testing.T) {
	s, st := newTestStore(t)

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "0.00", s.Total().String())
	assert.Zero(t, st.sets, "hydration must not write")
}

func TestHydrateRestoresPersistedLedger(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	blob := `[{"id":1,"amount":"12.50","item":"coffee"},{"id":2,"amount":"7.555","item":"bagel"}]`
	require.NoError(t, st.Set(ctx, DefaultKey, []byte(blob)))

	s, err := Open(ctx, st, Options{Logger: log.Nop()})
	require.NoError(t, err)
	defer s.Close()

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "coffee", records[0].Description)
	assert.Equal(t, "bagel", records[1].Description)
	assert.Equal(t, "20.06", s.Total().String())
}

func TestHydrateMalformedFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.Set(ctx, DefaultKey, []byte(`{not json`)))

	s, err := Open(ctx, st, Options{Logger: log.Nop()})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, s.Len())
	backup, ok, err := st.Get(ctx, DefaultKey+corruptSuffix)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{not json`, string(backup))
}

func TestHydrateDropsOnlyUnreadableRows(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	blob := `[{"id":1,"amount":"5.00","item":"Taxi"},{"id":2,"amount":"NaN","item":"Bad"}]`
	require.NoError(t, st.Set(ctx, DefaultKey, []byte(blob)))

	s, err := Open(ctx, st, Options{IDs: &SequenceIDs{}, Logger: log.Nop()})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 1, s.Len())
	assert.Equal(t, "5.00", s.Total().String())
	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Taxi", got.Description)

	backup, ok, err := st.Get(ctx, DefaultKey+corruptSuffix)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":2,"amount":"NaN","item":"Bad"}]`, string(backup))

	raw, _, err := st.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, blob, string(raw), "hydration must not rewrite the slot")
}

func TestHydrateRekeysDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	blob := `[{"id":5,"amount":"1","item":"a"},{"id":5,"amount":"2","item":"b"}]`
	require.NoError(t, st.Set(ctx, DefaultKey, []byte(blob)))

	s, err := Open(ctx, st, Options{IDs: &SequenceIDs{}, Logger: log.Nop()})
	require.NoError(t, err)
	defer s.Close()

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, int64(5), records[0].ID)
	assert.Equal(t, int64(6), records[1].ID)

	rec, err := s.Add(ctx, "3", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
}

func TestAddAppendsAndPersists(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)

	first, err := s.Add(ctx, "12.50", "coffee")
	require.NoError(t, err)
	second, err := s.Add(ctx, "7.555", "bagel")
	require.NoError(t, err)

	assert.Less(t, first.ID, second.ID)
	assert.Equal(t, "7.56", second.Amount.String())
	assert.Equal(t, "20.06", s.Total().String())
	assertPersisted(t, st, s.Records())
}

func TestAddEmptyInputIsNoOp(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)

	for _, in := range [][2]string{{"", "coffee"}, {"3", ""}, {"  ", "coffee"}, {"3", "   "}} {
		_, err := s.Add(ctx, in[0], in[1])
		assert.ErrorIs(t, err, ErrEmptyInput, "input %q", in)
	}
	assert.Equal(t, 0, s.Len())
	assert.Zero(t, st.sets)
}

func TestAddInvalidAmount(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)

	_, err := s.Add(ctx, "abc", "coffee")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 0, s.Len())
	assert.Zero(t, st.sets)
}

func TestAddAcceptsNegativeAmounts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Add(ctx, "10", "groceries")
	require.NoError(t, err)
	_, err = s.Add(ctx, "-2.5", "refund")
	require.NoError(t, err)
	assert.Equal(t, "7.50", s.Total().String())
}

func TestAddStorageFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	_, err := s.Add(ctx, "1", "one")
	require.NoError(t, err)

	st.failSet = true
	_, err = s.Add(ctx, "2", "two")
	require.ErrorIs(t, err, errWriteFailed)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "1.00", s.Total().String())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	a, _ := s.Add(ctx, "1", "a")
	b, _ := s.Add(ctx, "2", "b")
	c, _ := s.Add(ctx, "3", "c")

	require.NoError(t, s.Delete(ctx, b.ID))

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, a.ID, records[0].ID)
	assert.Equal(t, c.ID, records[1].ID)
	assert.Equal(t, "4.00", s.Total().String())
	assertPersisted(t, st, records)
}

func TestDeleteUnknownIDWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	_, _ = s.Add(ctx, "1", "a")
	writes := st.sets

	require.NoError(t, s.Delete(ctx, 999))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, writes, st.sets)
}

func TestToggleEditIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	rec, _ := s.Add(ctx, "5", "lunch")
	writes := st.sets

	assert.True(t, s.ToggleEdit(rec.ID))
	assert.True(t, s.IsEditing(rec.ID))
	assert.False(t, s.ToggleEdit(rec.ID))
	assert.False(t, s.IsEditing(rec.ID))
	assert.False(t, s.ToggleEdit(12345))

	assert.Equal(t, writes, st.sets)
	data, _, _ := st.Get(ctx, DefaultKey)
	assert.NotContains(t, string(data), "isEditing")
}

func TestSaveEdit(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	rec, _ := s.Add(ctx, "5", "lunch")
	s.ToggleEdit(rec.ID)

	updated, err := s.SaveEdit(ctx, rec.ID, "6.5", "dinner")
	require.NoError(t, err)

	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, "6.50", updated.Amount.String())
	assert.Equal(t, "dinner", updated.Description)
	assert.False(t, s.IsEditing(rec.ID))
	assert.Equal(t, "6.50", s.Total().String())
	assertPersisted(t, st, s.Records())
}

func TestSaveEditUnknownOrInvalid(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	rec, _ := s.Add(ctx, "5", "lunch")
	s.ToggleEdit(rec.ID)
	writes := st.sets

	_, err := s.SaveEdit(ctx, 999, "1", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SaveEdit(ctx, rec.ID, "five", "x")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.True(t, s.IsEditing(rec.ID), "invalid save keeps the row in edit mode")

	got, _ := s.Get(rec.ID)
	assert.Equal(t, "lunch", got.Description)
	assert.Equal(t, writes, st.sets)
}

func TestClearAllRemovesSlot(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	_, _ = s.Add(ctx, "1", "a")
	_, _ = s.Add(ctx, "2", "b")

	require.NoError(t, s.ClearAll(ctx))

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "0.00", s.Total().String())
	_, ok, err := st.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an empty ledger is harmless.
	require.NoError(t, s.ClearAll(ctx))
}

func TestClearAllFailureKeepsRecords(t *testing.T) {
	ctx := context.Background()
	s, st := newTestStore(t)
	_, _ = s.Add(ctx, "1", "a")
	st.failRemove = true

	require.ErrorIs(t, s.ClearAll(ctx), errWriteFailed)
	assert.Equal(t, 1, s.Len())
}

func TestRoundTripThroughReopen(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s, err := Open(ctx, st, Options{Logger: log.Nop()})
	require.NoError(t, err)
	_, _ = s.Add(ctx, "12.5", "coffee")
	_, _ = s.Add(ctx, "3,25", "tea")
	want, err := core.EncodeRecords(s.Records())
	require.NoError(t, err)

	// Reopen over the same storage without closing it.
	reopened, err := Open(ctx, st, Options{Logger: log.Nop()})
	require.NoError(t, err)
	got, err := core.EncodeRecords(reopened.Records())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, "15.75", reopened.Total().String())
}

func TestNotifierSeesPersistingMutationsOnly(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	s, err := Open(ctx, memory.New(), Options{IDs: &SequenceIDs{}, Notifier: n, Logger: log.Nop()})
	require.NoError(t, err)
	defer s.Close()

	rec, _ := s.Add(ctx, "1", "a")
	s.ToggleEdit(rec.ID)
	_, _ = s.SaveEdit(ctx, rec.ID, "2", "b")
	_ = s.Delete(ctx, 999)
	_ = s.Delete(ctx, rec.ID)
	_ = s.ClearAll(ctx)
	require.NoError(t, s.Close())

	assert.Equal(t, []Op{OpAdded, OpEdited, OpDeleted, OpCleared}, n.ops())
	assert.Equal(t, "2.00", n.changes[1].Total.String())
}

func TestNotifierErrorDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	failing := NotifierFunc(func(context.Context, Change) error { return errors.New("broker down") })
	s, err := Open(ctx, memory.New(), Options{Notifier: failing, Logger: log.Nop()})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add(ctx, "1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestSlowNotifierDoesNotBlockMutations(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	n := &recordingNotifier{}
	blocking := NotifierFunc(func(ctx context.Context, c Change) error {
		<-release
		return n.NotifyChange(ctx, c)
	})
	s, err := Open(ctx, memory.New(), Options{IDs: &SequenceIDs{}, Notifier: blocking, Logger: log.Nop()})
	require.NoError(t, err)
	defer s.Close()
	unblock := sync.OnceFunc(func() { close(release) })
	defer unblock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Add(ctx, "1", "a")
		_, _ = s.Add(ctx, "2", "b")
		_ = s.Snapshot()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mutations waited for the notifier")
	}
	assert.Equal(t, 2, s.Len())
	assert.Empty(t, n.ops())

	unblock()
	require.NoError(t, s.Close())
	assert.Equal(t, []Op{OpAdded, OpAdded}, n.ops())
	assert.Equal(t, "3.00", n.changes[1].Total.String())
}

func TestSnapshotIsConsistentCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	rec, _ := s.Add(ctx, "4", "book")
	s.ToggleEdit(rec.ID)

	snap := s.Snapshot()
	snap.Records[0].Description = "mutated"
	snap.Editing[rec.ID] = false

	got, _ := s.Get(rec.ID)
	assert.Equal(t, "book", got.Description)
	assert.True(t, s.IsEditing(rec.ID))
	assert.Equal(t, "4.00", snap.Total.String())
}

func TestClosedStoreRejectsMutations(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, memory.New(), Options{Logger: log.Nop()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Add(ctx, "1", "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, 1), ErrClosed)
	assert.ErrorIs(t, s.ClearAll(ctx), ErrClosed)
}

func TestConcurrentAddsKeepUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, "1", "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, r := range s.Records() {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
	assert.Equal(t, "20.00", s.Total().String())
}

func TestClockIDsMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	ids := &ClockIDs{now: func() time.Time { return fixed }}

	a := ids.Next()
	b := ids.Next()
	assert.Equal(t, fixed.UnixMilli(), a)
	assert.Equal(t, a+1, b)

	ids.Observe(b + 100)
	assert.Equal(t, b+101, ids.Next())
}
