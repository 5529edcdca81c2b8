package ringbuf_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"codeberg.org/mutker/ocxoctl/internal/ringbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushOverwritesOldest(t *testing.T) {
	const capacity = 4
	r := ringbuf.NewEdges(capacity)

	for i := uint32(1); i <= capacity+3; i++ {
		r.Push(i * 10)
	}

	require.Equal(t, capacity, r.Len())
	assert.True(t, r.Full())
	for i := 0; i < capacity; i++ {
		v, ok := r.PeekAt(i)
		require.True(t, ok)
		assert.Equal(t, uint32(70-10*i), v, "index %d", i)
	}
	_, ok := r.PeekAt(capacity)
	assert.False(t, ok)
}

func TestPeekEmpty(t *testing.T) {
	r := ringbuf.NewFrequencies(3)

	_, ok := r.Peek()
	assert.False(t, ok)
	_, ok = r.PeekAt(-1)
	assert.False(t, ok)
	assert.Empty(t, r.Snapshot())
}

func TestFreeNDropsOldest(t *testing.T) {
	r := ringbuf.NewEdges(5)
	for _, v := range []uint32{1, 2, 3, 4} {
		r.Push(v)
	}

	r.FreeN(3)
	require.Equal(t, 1, r.Len())
	v, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, uint32(4), v)

	r.FreeN(10)
	assert.Equal(t, 0, r.Len())

	r.Push(9)
	assert.Equal(t, []uint32{9}, r.Snapshot())
}

func TestFreeNAfterWrap(t *testing.T) {
	r := ringbuf.NewEdges(3)
	for v := uint32(1); v <= 7; v++ {
		r.Push(v)
	}

	r.FreeN(1)
	assert.Equal(t, []uint32{7, 6}, r.Snapshot())
}

func TestEmptyAndReuse(t *testing.T) {
	r := ringbuf.NewFrequencies(2)
	r.Push(1.5)
	r.Push(2.5)
	r.Empty()

	assert.Equal(t, 0, r.Len())
	r.Push(3.5)
	v, ok := r.Peek()
	require.True(t, ok)
	assert.InDelta(t, 3.5, v, 0)
}

func TestDrainRemovesWhatItReturns(t *testing.T) {
	r := ringbuf.NewEdges(5)
	for _, v := range []uint32{10, 20, 30} {
		r.Push(v)
	}

	assert.Equal(t, []uint32{30, 20, 10}, r.Drain())
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Drain())
}

func TestCapacityFloor(t *testing.T) {
	r := ringbuf.NewEdges(0)
	r.Push(1)
	r.Push(2)

	assert.Equal(t, 1, r.Cap())
	assert.Equal(t, []uint32{2}, r.Snapshot())
}

func TestConcurrentPushAndDrain(t *testing.T) {
	const total = 20000
	r := ringbuf.NewEdges(5)

	var finished atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(1); i <= total; i++ {
			r.Push(i)
		}
		finished.Store(true)
	}()

	var last uint32
	for {
		stop := finished.Load()
		items := r.Drain()
		for i := len(items) - 1; i >= 0; i-- {
			require.Greater(t, items[i], last, "entries must be unique and ordered")
			last = items[i]
		}
		if stop {
			break
		}
	}
	wg.Wait()

	assert.Equal(t, uint32(total), last)
}
