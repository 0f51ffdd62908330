package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	idx := New()

	_, ok := idx.Get("k1")
	require.False(t, ok)

	idx.Insert("k1", BinLocation{Epoch: 1, Offset: 0, Length: 10})
	loc, ok := idx.Get("k1")
	require.True(t, ok)
	require.Equal(t, BinLocation{Epoch: 1, Offset: 0, Length: 10}, loc)

	old, existed := idx.Remove("k1")
	require.True(t, existed)
	require.Equal(t, loc, old)

	_, ok = idx.Get("k1")
	require.False(t, ok)
}

func TestInsertReturnsShadowedLocation(t *testing.T) {
	idx := New()
	idx.Insert("k1", BinLocation{Epoch: 1, Offset: 0, Length: 10})
	old, existed := idx.Insert("k1", BinLocation{Epoch: 1, Offset: 10, Length: 20})
	require.True(t, existed)
	require.Equal(t, int64(10), old.Length)
}

func TestCompareAndSwap(t *testing.T) {
	idx := New()
	loc1 := BinLocation{Epoch: 1, Offset: 0, Length: 10}
	loc2 := BinLocation{Epoch: 3, Offset: 5, Length: 10}
	idx.Insert("k1", loc1)

	require.True(t, idx.CompareAndSwap("k1", loc1, loc2))
	got, _ := idx.Get("k1")
	require.Equal(t, loc2, got)

	// a stale CAS against the original location must fail now.
	require.False(t, idx.CompareAndSwap("k1", loc1, loc1))
}

func TestCompareAndSwapAgainstMissingKeyFails(t *testing.T) {
	idx := New()
	require.False(t, idx.CompareAndSwap("missing", BinLocation{}, BinLocation{Epoch: 1}))
}

func TestForEachVisitsAllEntries(t *testing.T) {
	idx := New()
	want := map[string]BinLocation{}
	for i := 0; i < 200; i++ {
		key := string(rune('a' + i%26))
		loc := BinLocation{Epoch: uint64(i), Offset: int64(i)}
		idx.Insert(key, loc)
		want[key] = loc
	}

	got := map[string]BinLocation{}
	idx.ForEach(func(k string, l BinLocation) { got[k] = l })
	require.Equal(t, len(want), len(got))
}

func TestMinEpoch(t *testing.T) {
	idx := New()
	_, found := idx.MinEpoch()
	require.False(t, found)

	idx.Insert("a", BinLocation{Epoch: 5})
	idx.Insert("b", BinLocation{Epoch: 2})
	idx.Insert("c", BinLocation{Epoch: 9})

	min, found := idx.MinEpoch()
	require.True(t, found)
	require.Equal(t, uint64(2), min)
}

func TestConcurrentDisjointKeysDoNotRace(t *testing.T) {
	idx := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			for j := 0; j < 100; j++ {
				idx.Insert(key, BinLocation{Epoch: uint64(j)})
				idx.Get(key)
			}
		}(i)
	}
	wg.Wait()
}
