package keystore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v")))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	v := []byte("original")
	require.NoError(t, m.Set(ctx, "k", v))
	v[0] = 'X'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got, "stored value must not alias caller's slice")

	got[0] = 'Y'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again, "returned value must not alias stored slice")
}

func TestMemory_ConcurrentFamilies(t *testing.T) {
	// Independent entity families interleave reads and writes on disjoint
	// key namespaces.
	m := NewMemory()
	ctx := context.Background()
	families := []string{"ledger", "budgets", "goals", "notifications"}

	var wg sync.WaitGroup
	for _, fam := range families {
		wg.Add(1)
		go func(fam string) {
			defer wg.Done()
			key := "cache:" + fam + ":meta"
			for i := 0; i < 100; i++ {
				_ = m.Set(ctx, key, []byte(fam))
				_, _ = m.Get(ctx, key)
				_, _ = m.Exists(ctx, key)
			}
		}(fam)
	}
	wg.Wait()

	assert.Equal(t, len(families), m.Len())
}
