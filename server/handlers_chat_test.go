package server

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// sseSink fails the test if anything is written after the handler is done with it.
type sseSink struct {
	t        *testing.T
	finished atomic.Bool
	pings    atomic.Int32
	flushes  atomic.Int32
}

func (s *sseSink) Write(p []byte) (int, error) {
	if s.finished.Load() {
		s.t.Errorf("write after stop: %q", p)
	}
	if strings.HasPrefix(string(p), ": ping") {
		s.pings.Add(1)
	}
	return len(p), nil
}

func (s *sseSink) Flush() {
	if s.finished.Load() {
		s.t.Error("flush after stop")
	}
	s.flushes.Add(1)
}

func TestKeepAlivePings(t *testing.T) {
	sink := &sseSink{t: t}
	var mu sync.Mutex
	stop := keepAlive(sink, sink, &mu, time.Millisecond)
	assert.Eventually(t, func() bool { return sink.pings.Load() >= 3 }, time.Second, time.Millisecond)
	stop()
	sink.finished.Store(true)
	assert.Equal(t, sink.pings.Load(), sink.flushes.Load())
}

func TestKeepAliveStopWaitsForPinger(t *testing.T) {
	for i := 0; i < 200; i++ {
		sink := &sseSink{t: t}
		var mu sync.Mutex
		stop := keepAlive(sink, sink, &mu, 50*time.Microsecond)
		time.Sleep(time.Duration(i%5) * 100 * time.Microsecond)
		stop()
		sink.finished.Store(true)
		// a pinger still running would trip the sink here
		time.Sleep(200 * time.Microsecond)
	}
}

func TestKeepAliveSharesLockWithMessages(t *testing.T) {
	sink := &sseSink{t: t}
	var mu sync.Mutex
	mu.Lock()
	stop := keepAlive(sink, sink, &mu, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, sink.pings.Load(), "pinger must wait for the message writer")
	mu.Unlock()
	assert.Eventually(t, func() bool { return sink.pings.Load() > 0 }, time.Second, time.Millisecond)
	stop()
}
