package eventlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLog(t *testing.T) {
	l := NewLog[string]()
	require.NotNil(t, l)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())
	assert.NotNil(t, l.Snapshot())
}

func TestLog_Append(t *testing.T) {
	l := NewLog[string]()

	t.Run("preserves append order", func(t *testing.T) {
		l.Append("a")
		l.Append("b")
		l.Append("c")
		assert.Equal(t, []string{"a", "b", "c"}, l.Snapshot())
		assert.Equal(t, 3, l.Len())
	})

	t.Run("keeps duplicates", func(t *testing.T) {
		l.Append("a")
		assert.Equal(t, []string{"a", "b", "c", "a"}, l.Snapshot())
	})
}

func TestLog_Snapshot_IsCopy(t *testing.T) {
	l := NewLog[int]()
	l.Append(1)
	l.Append(2)

	snap := l.Snapshot()
	snap[0] = 100
	l.Append(3)

	assert.Equal(t, []int{100, 2}, snap)
	assert.Equal(t, []int{1, 2, 3}, l.Snapshot())
}

func TestLog_Range(t *testing.T) {
	l := NewLog[string]()
	l.Append("a")
	l.Append("b")
	l.Append("c")

	t.Run("visits entries in order", func(t *testing.T) {
		var seen []string
		l.Range(func(i int, v string) bool {
			seen = append(seen, v)
			return true
		})
		assert.Equal(t, []string{"a", "b", "c"}, seen)
	})

	t.Run("stops when f returns false", func(t *testing.T) {
		count := 0
		l.Range(func(i int, v string) bool {
			count++
			return count < 2
		})
		assert.Equal(t, 2, count)
	})

	t.Run("appending from f does not deadlock", func(t *testing.T) {
		l.Range(func(i int, v string) bool {
			l.Append(v + "!")
			return true
		})
		assert.Equal(t, 6, l.Len())
	})
}

func TestLog_Concurrent(t *testing.T) {
	l := NewLog[int]()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				l.Append(id*opsPerGoroutine + i)
				_ = l.Len()
			}
		}(g)
	}
	wg.Wait()

	snap := l.Snapshot()
	require.Len(t, snap, goroutines*opsPerGoroutine)

	seen := make(map[int]bool, len(snap))
	for _, v := range snap {
		assert.False(t, seen[v], "duplicate entry %d", v)
		seen[v] = true
	}
}
