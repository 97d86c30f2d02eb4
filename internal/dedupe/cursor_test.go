// ABOUTME: Tests for the event cursor and seen-id set
// ABOUTME: Validates at-most-once admission, cursor monotonicity, sparse ids and concurrency

package dedupe

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursor_AdmitOncePerID(t *testing.T) {
	c := NewCursor()

	assert.True(t, c.Admit(5))
	assert.False(t, c.Admit(5))
	assert.False(t, c.Admit(5))
	assert.True(t, c.Seen(5))
	assert.Equal(t, 1, c.Len())
}

func TestCursor_AdvancesToMax(t *testing.T) {
	c := NewCursor()
	assert.Equal(t, int64(0), c.Last())

	c.Admit(3)
	assert.Equal(t, int64(3), c.Last())

	// Out-of-order delivery inside one batch never moves the cursor back
	c.Admit(10)
	c.Admit(7)
	assert.Equal(t, int64(10), c.Last())
	assert.True(t, c.Seen(7))
}

func TestCursor_DuplicateHasNoSideEffects(t *testing.T) {
	c := NewCursor()
	c.Admit(4)
	c.Admit(9)

	assert.False(t, c.Admit(4))
	assert.Equal(t, int64(9), c.Last())
	assert.Equal(t, 2, c.Len())
}

func TestCursor_SparseIDs(t *testing.T) {
	c := NewCursor()
	ids := []int64{1, 1_000_000, 42, 999_999_999_999}
	for _, id := range ids {
		assert.True(t, c.Admit(id))
	}
	assert.False(t, c.Seen(2))
	assert.False(t, c.Seen(43))
	assert.Equal(t, int64(999_999_999_999), c.Last())
}

func TestCursor_MonotonicUnderRandomOrder(t *testing.T) {
	c := NewCursor()
	r := rand.New(rand.NewSource(1))

	var prev int64
	for range 2000 {
		c.Admit(r.Int63n(500))
		last := c.Last()
		assert.GreaterOrEqual(t, last, prev)
		prev = last
	}
}

func TestCursor_Reset(t *testing.T) {
	c := NewCursor()
	c.Admit(8)
	c.Reset()

	assert.Equal(t, int64(0), c.Last())
	assert.False(t, c.Seen(8))
	assert.True(t, c.Admit(8))
}

func TestCursor_ConcurrentAdmitExactlyOnce(t *testing.T) {
	c := NewCursor()

	const goroutines = 50
	const ids = 200

	var mu sync.Mutex
	admitted := make(map[int64]int)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for id := int64(1); id <= ids; id++ {
				if c.Admit(id) {
					mu.Lock()
					admitted[id]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, admitted, ids)
	for id, n := range admitted {
		assert.Equal(t, 1, n, "id %d admitted %d times", id, n)
	}
	assert.Equal(t, int64(ids), c.Last())
}
