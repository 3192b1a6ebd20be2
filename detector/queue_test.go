package detector

import (
	"image"
	"testing"
	"time"

	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stamped(sec int) images.Frame {
	f := images.NewFrame(image.NewGray(image.Rect(0, 0, 1, 1)))
	f.Timestamp = time.Unix(int64(sec), 0)
	return f
}

func TestFrameQueue_KeepsLatest(t *testing.T) {
	q := newFrameQueue()

	assert.False(t, q.PutFrame(stamped(1)))
	assert.True(t, q.PutFrame(stamped(2)))
	assert.True(t, q.PutFrame(stamped(3)))
	assert.Equal(t, 1, q.Len())

	next, ok := q.TryNext()
	require.True(t, ok)
	assert.Equal(t, taskFrame, next.kind)
	assert.Equal(t, int64(3), next.frame.Timestamp.Unix())

	_, ok = q.TryNext()
	assert.False(t, ok)
}

func TestFrameQueue_ControlFirstAndDiscardsPending(t *testing.T) {
	q := newFrameQueue()

	q.PutFrame(stamped(1))
	assert.True(t, q.PutControl(task{kind: taskRestart, backend: providers.DefaultConfig()}))
	assert.False(t, q.PutControl(task{kind: taskClose}))

	q.PutFrame(stamped(2))
	assert.Equal(t, 3, q.Len())

	var kinds []taskKind
	for {
		next, ok := q.TryNext()
		if !ok {
			break
		}
		kinds = append(kinds, next.kind)
	}
	assert.Equal(t, []taskKind{taskRestart, taskClose, taskFrame}, kinds)
}

func TestFrameQueue_NextBlocksUntilPut(t *testing.T) {
	q := newFrameQueue()
	got := make(chan task, 1)
	go func() { got <- q.Next() }()

	select {
	case <-got:
		t.Fatal("Next returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.PutFrame(stamped(7))
	select {
	case next := <-got:
		assert.Equal(t, int64(7), next.frame.Timestamp.Unix())
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}
