package wsserver

import (
	"sync"
	"testing"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameKind_String(t *testing.T) {
	assert.Equal(t, "text", textFrame.String())
	assert.Equal(t, "binary", binaryFrame.String())
	assert.Equal(t, "ping", pingFrame.String())
	assert.Equal(t, "close", closeFrame.String())
	assert.Equal(t, "drop", dropFrame.String())
	assert.Equal(t, "unknown", frameKind(42).String())
}

func TestOutbox_Order(t *testing.T) {
	o := newOutbox(0)

	require.True(t, o.push(frame{kind: textFrame, data: []byte("echo")}))
	require.True(t, o.push(frame{kind: closeFrame, code: closecode.GoingAway}))
	assert.Equal(t, 2, o.len())

	f, ok := o.pop()
	require.True(t, ok)
	assert.Equal(t, textFrame, f.kind)
	assert.Equal(t, "echo", string(f.data))

	f, ok = o.pop()
	require.True(t, ok)
	assert.Equal(t, closeFrame, f.kind)
	assert.Equal(t, closecode.GoingAway, f.code)

	_, ok = o.pop()
	assert.False(t, ok)
}

func TestOutbox_Limit(t *testing.T) {
	o := newOutbox(2)

	assert.True(t, o.push(frame{kind: textFrame}))
	assert.True(t, o.push(frame{kind: textFrame}))
	assert.False(t, o.push(frame{kind: textFrame}))
	assert.Equal(t, 2, o.len())

	_, _ = o.pop()
	assert.True(t, o.push(frame{kind: textFrame}))
}

func TestOutbox_TerminalFramesBypassLimit(t *testing.T) {
	o := newOutbox(1)
	require.True(t, o.push(frame{kind: textFrame}))
	require.False(t, o.push(frame{kind: pingFrame}))

	assert.True(t, o.push(frame{kind: closeFrame, code: closecode.GoingAway}))
	assert.True(t, o.push(frame{kind: dropFrame, code: closecode.PolicyViolation}))
	assert.Equal(t, 3, o.len())

	t.Run("closed outbox refuses terminal frames", func(t *testing.T) {
		o.close()
		assert.False(t, o.push(frame{kind: dropFrame}))
	})
}

func TestOutbox_Close(t *testing.T) {
	o := newOutbox(0)
	require.True(t, o.push(frame{kind: pingFrame}))

	o.close()
	assert.True(t, o.isClosed())
	assert.False(t, o.push(frame{kind: textFrame}))

	t.Run("queued frames remain poppable", func(t *testing.T) {
		f, ok := o.pop()
		require.True(t, ok)
		assert.Equal(t, pingFrame, f.kind)
	})
}

func TestOutbox_SignalDoesNotBlock(t *testing.T) {
	o := newOutbox(0)

	for i := 0; i < 10; i++ {
		require.True(t, o.push(frame{kind: textFrame}))
	}

	select {
	case <-o.signal:
	default:
		t.Fatal("expected a pending signal")
	}
}

func TestOutbox_ConcurrentPush(t *testing.T) {
	o := newOutbox(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.push(frame{kind: textFrame})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, o.len())
}
