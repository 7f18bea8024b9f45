package xtest

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

const commonWaitTimeout = 10 * time.Second

func WaitChannelClosed(t testing.TB, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-time.After(commonWaitTimeout):
		t.Fatal("failed to wait channel closed")
	case <-ch:
	}
}

// SpinWaitCondition checks cond until it returns true or the common timeout expires.
// If l is not nil the condition is checked under the lock.
func SpinWaitCondition(t testing.TB, l sync.Locker, cond func() bool) {
	t.Helper()

	check := func() bool {
		if l != nil {
			l.Lock()
			defer l.Unlock()
		}

		return cond()
	}

	start := time.Now()
	for time.Since(start) < commonWaitTimeout {
		if check() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}
