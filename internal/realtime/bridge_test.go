package realtime

import (
	"sync"
	"testing"

	"chatserver/internal/clog"
)

func newQueueOnlyBridge(queue int) *Bridge {
	return &Bridge{
		logger:   clog.Nop(),
		outbound: make(chan []byte, queue),
		quit:     make(chan struct{}),
	}
}

func TestForwardOnlyEnqueues(t *testing.T) {
	br := newQueueOnlyBridge(64)

	// Forward is called from every publishing goroutine at once; it must
	// stay off the socket and just feed the single-writer loop.
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 8; i++ {
				br.Forward([]byte("frame"))
			}
		}()
	}
	wg.Wait()

	if got := len(br.outbound); got != 64 {
		t.Errorf("expected all 64 frames queued, got %d", got)
	}
}

func TestForwardDropsWhenTheQueueIsFull(t *testing.T) {
	br := newQueueOnlyBridge(2)

	for i := 0; i < 5; i++ {
		br.Forward([]byte("frame"))
	}

	if got := len(br.outbound); got != 2 {
		t.Errorf("expected a full queue of 2, got %d", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	br := newQueueOnlyBridge(1)

	br.Stop()
	br.Stop() // a second signal must not panic on the closed channel

	select {
	case <-br.quit:
	default:
		t.Error("expected the quit channel to be closed")
	}
}
