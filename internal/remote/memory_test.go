package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/record"
)

func rec(id string, d int) record.Record {
	r := record.New(time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC))
	r.ID = id
	return r
}

func TestMemory_CreateAssignsServerID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	local := record.New(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	local.ID = record.NewLocalID()

	id, err := m.Create(ctx, local)
	require.NoError(t, err)
	assert.False(t, record.IsLocalID(id), "remote ids never carry the local prefix")

	got, err := m.FetchAll(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, int64(1), got[0].Version)
}

func TestMemory_UpdateBumpsVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Create(ctx, rec("", 1))
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, id, rec("", 1)))

	got, err := m.FetchAll(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Version)
}

func TestMemory_UpdateDeleteMissing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	assert.ErrorIs(t, m.Update(ctx, "nope", rec("", 1)), ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "nope"), ErrNotFound)
}

func TestMemory_FetchAllFilterFrom(t *testing.T) {
	m := NewMemory()
	m.Seed(rec("old", 1), rec("new", 20))

	got, err := m.FetchAll(context.Background(), Filter{From: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestMemory_FetchAllStableOrder(t *testing.T) {
	m := NewMemory()
	m.Seed(rec("b", 2), rec("a", 1), rec("c", 1))

	got, err := m.FetchAll(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestMemory_SubscribePushesSnapshots(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	// Initial snapshot arrives immediately.
	select {
	case snap := <-ch:
		assert.Empty(t, snap)
	case <-time.After(time.Second):
		t.Fatal("expected initial snapshot")
	}

	_, err = m.Create(ctx, rec("", 1))
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.Len(t, snap, 1)
	case <-time.After(time.Second):
		t.Fatal("expected snapshot after mutation")
	}
}

func TestMemory_SubscribeCancelCloses(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	<-ch // initial snapshot

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed as promised
			}
		case <-deadline:
			t.Fatal("subscription channel did not close on cancel")
		}
	}
}
