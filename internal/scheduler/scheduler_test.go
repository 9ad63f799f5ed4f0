package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScheduleFires(t *testing.T) {
	s := New(nil, zap.NewNop())

	fired := make(chan int64, 1)
	s.Schedule(42, 10*time.Millisecond, func(id int64) {
		fired <- id
	})
	assert.True(t, s.Pending(42))

	select {
	case id := <-fired:
		assert.Equal(t, int64(42), id)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	// The fired timer forgets itself.
	assert.Eventually(t, func() bool { return !s.Pending(42) },
		time.Second, 5*time.Millisecond)
}

func TestCancelPreventsFire(t *testing.T) {
	s := New(nil, zap.NewNop())

	var fired atomic.Int32
	s.Schedule(7, 30*time.Millisecond, func(int64) {
		fired.Add(1)
	})

	assert.True(t, s.Cancel(7))
	assert.False(t, s.Pending(7))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestCancelIsIdempotent(t *testing.T) {
	s := New(nil, zap.NewNop())

	assert.False(t, s.Cancel(99), "unknown timer")

	s.Schedule(99, 10*time.Millisecond, func(int64) {})
	assert.True(t, s.Cancel(99))
	assert.False(t, s.Cancel(99), "second cancel")
}

func TestRescheduleReplacesTimer(t *testing.T) {
	s := New(nil, zap.NewNop())

	var first, second atomic.Int32
	s.Schedule(5, time.Hour, func(int64) { first.Add(1) })
	s.Schedule(5, 10*time.Millisecond, func(int64) { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}
