package identity

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	i := New()
	require.NotNil(t, i)
	assert.Equal(t, "", i.Get())
	assert.False(t, i.IsSet())
}

func TestIdentity_ZeroValue(t *testing.T) {
	var i Identity
	assert.Equal(t, "", i.Get())
	i.Set("conn-1")
	assert.Equal(t, "conn-1", i.Get())
}

func TestIdentity_SetGet(t *testing.T) {
	i := New()

	t.Run("set stores value", func(t *testing.T) {
		i.Set("conn-1")
		assert.Equal(t, "conn-1", i.Get())
		assert.True(t, i.IsSet())
	})

	t.Run("set replaces value", func(t *testing.T) {
		i.Set("conn-2")
		assert.Equal(t, "conn-2", i.Get())
	})

	t.Run("set to empty clears", func(t *testing.T) {
		i.Set("")
		assert.False(t, i.IsSet())
	})
}

func TestIdentity_Concurrent(t *testing.T) {
	i := New()
	const writers = 50
	const readers = 50
	const iterations = 500

	valid := make(map[string]bool, writers)
	for w := 0; w < writers; w++ {
		valid[fmt.Sprintf("conn-%04d-%s", w, strings.Repeat("x", 64))] = true
	}
	values := make([]string, 0, writers)
	for v := range valid {
		values = append(values, v)
	}

	var wg sync.WaitGroup
	wg.Add(writers + readers)

	for w := 0; w < writers; w++ {
		go func(v string) {
			defer wg.Done()
			for iter := 0; iter < iterations; iter++ {
				i.Set(v)
			}
		}(values[w])
	}

	torn := make(chan string, readers)
	for iter := 0; iter < readers; iter++ {
		go func() {
			defer wg.Done()
			for iter := 0; iter < iterations; iter++ {
				got := i.Get()
				if got != "" && !valid[got] {
					torn <- got
					return
				}
			}
		}()
	}

	wg.Wait()
	close(torn)

	for got := range torn {
		t.Errorf("observed torn identity %q", got)
	}
	assert.True(t, valid[i.Get()])
}
