package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_FirstSightIsNew(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Seen("m_1"))
	assert.True(t, c.Seen("m_1"))
	assert.False(t, c.Seen("m_2"))
}

func TestCache_Expires(t *testing.T) {
	c := New(20*time.Millisecond, 10)
	defer c.Close()

	assert.False(t, c.Seen("m_1"))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.Seen("m_1"), "expired key should be treated as new")
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Seen("a"), "oldest key should have been evicted")
}

func TestCache_RemoveExpired(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	time.Sleep(20 * time.Millisecond)
	c.removeExpired()
	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentSeen(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(time.Minute, 1)
	c.Close()
	assert.NotPanics(t, c.Close)
}
