package detector

import (
	"sync"

	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference/providers"
)

type taskKind int

const (
	taskFrame taskKind = iota
	taskRestart
	taskClose
)

// task is one unit of work for the worker.
type task struct {
	kind    taskKind
	frame   images.Frame
	backend providers.Config
	done    chan error
}

// frameQueue feeds the worker: a FIFO of control tasks and a single keep-latest frame slot.
//
// Control tasks always run before the slot. Putting a frame never blocks: a frame that has
// not been started is replaced by the newer one. Enqueueing a control task discards the
// pending frame.
type frameQueue struct {
	mu       sync.Mutex
	control  []task
	pending  images.Frame
	hasFrame bool
	wake     chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{wake: make(chan struct{}, 1)}
}

// PutFrame stores f in the slot and reports whether an older pending frame was replaced.
func (q *frameQueue) PutFrame(f images.Frame) (replaced bool) {
	q.mu.Lock()
	replaced = q.hasFrame
	q.pending = f
	q.hasFrame = true
	q.mu.Unlock()

	q.signal()
	return replaced
}

// PutControl appends t to the control FIFO and reports whether a pending frame was discarded.
func (q *frameQueue) PutControl(t task) (discarded bool) {
	q.mu.Lock()
	discarded = q.hasFrame
	q.pending = images.Frame{}
	q.hasFrame = false
	q.control = append(q.control, t)
	q.mu.Unlock()

	q.signal()
	return discarded
}

// TryNext returns the next task without blocking.
func (q *frameQueue) TryNext() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.control) > 0 {
		t := q.control[0]
		q.control[0] = task{}
		q.control = q.control[1:]
		return t, true
	}
	if q.hasFrame {
		t := task{kind: taskFrame, frame: q.pending}
		q.pending = images.Frame{}
		q.hasFrame = false
		return t, true
	}
	return task{}, false
}

// Next blocks until a task is available.
func (q *frameQueue) Next() task {
	for {
		if t, ok := q.TryNext(); ok {
			return t
		}
		<-q.wake
	}
}

// Len returns the number of queued tasks, the pending frame included.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.control)
	if q.hasFrame {
		n++
	}
	return n
}

func (q *frameQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
