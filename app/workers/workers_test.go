package workers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorker_RunsUntilStopped(t *testing.T) {
	var runs int32
	w := NewWorker("test", 5*time.Millisecond, func() { atomic.AddInt32(&runs, 1) })

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, time.Millisecond)
	w.StopWorker()
	<-done
}
