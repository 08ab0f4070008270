package reactor

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriterOrdersBytesRegardlessOfWorkerCount(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		pool := NewPool(workers)
		defer pool.Stop()

		sock := &syncBuffer{}
		w := NewWriter(pool, sock)

		const n = 200
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			line := []byte(fmt.Sprintf("line-%03d\n", i))
			w.Enqueue(line, func(error) { wg.Done() })
		}
		wg.Wait()

		want := ""
		for i := 0; i < n; i++ {
			want += fmt.Sprintf("line-%03d\n", i)
		}
		assert.Equal(t, want, sock.String(), "workers=%d", workers)
	}
}

type errSocket struct{ calls int }

func (e *errSocket) Write(p []byte) (int, error) {
	e.calls++
	return 0, assert.AnError
}

func TestWriterLatchesErrorAndStillCallsCallbacks(t *testing.T) {
	pool := NewPool(2)
	defer pool.Stop()

	sock := &errSocket{}
	w := NewWriter(pool, sock)

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		w.Enqueue([]byte("x"), func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.Error(t, err)
	}
}
