package reactor

import (
	"io"
	"sync"
	"sync/atomic"
)

type writeJob struct {
	data   []byte
	onDone func(error)
}

// Writer is the buffered ordered writer described in spec §4.1: for a
// given socket, writes complete in submission order and never interleave
// on the wire, even though the pool may run their completions on
// different workers.
type Writer struct {
	pool *Pool
	sock io.Writer

	mu      sync.Mutex
	queue   []writeJob
	inWrite atomic.Bool
	latched error // sticky error once a write has failed
}

// NewWriter wraps sock (a net.Conn or tls.Conn; both satisfy io.Writer)
// with an ordered write queue backed by pool.
func NewWriter(pool *Pool, sock io.Writer) *Writer {
	return &Writer{pool: pool, sock: sock}
}

// Enqueue appends data to the FIFO. If no write is currently in flight, it
// submits one to the pool immediately. onDone (if non-nil) is invoked with
// the result once this specific write completes or is skipped due to a
// previously latched error.
func (w *Writer) Enqueue(data []byte, onDone func(error)) {
	w.mu.Lock()
	w.queue = append(w.queue, writeJob{data: data, onDone: onDone})
	shouldPump := w.inWrite.CompareAndSwap(false, true)
	w.mu.Unlock()

	if shouldPump {
		w.pump()
	}
}

// pump submits one job to the pool that writes queued entries in order,
// including ones enqueued while it runs, until the queue is empty.
func (w *Writer) pump() {
	err := w.pool.Submit(func() {
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.inWrite.Store(false)
				w.mu.Unlock()
				return
			}
			job := w.queue[0]
			w.queue = w.queue[1:]
			latched := w.latched
			w.mu.Unlock()

			if latched != nil {
				if job.onDone != nil {
					job.onDone(latched)
				}
				continue
			}

			_, werr := w.sock.Write(job.data)
			if werr != nil {
				w.mu.Lock()
				w.latched = werr
				w.mu.Unlock()
			}

			if job.onDone != nil {
				job.onDone(werr)
			}
		}
	})
	if err != nil {
		// Pool stopped: drain remaining jobs with the cancellation error.
		w.mu.Lock()
		pending := w.queue
		w.queue = nil
		w.inWrite.Store(false)
		w.mu.Unlock()

		for _, job := range pending {
			if job.onDone != nil {
				job.onDone(ErrStopped)
			}
		}
	}
}
