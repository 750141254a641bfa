package hubconn

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeepAliveSchedulerNilReceiverIsDisabled(t *testing.T) {
	var k *keepAliveScheduler
	assert.False(t, k.enabled())
	assert.NotPanics(t, func() {
		k.reset()
		k.cleanUp()
	})
}

func TestKeepAliveSchedulerZeroIntervalIsDisabled(t *testing.T) {
	k := newKeepAliveScheduler(0, func() {})
	assert.False(t, k.enabled())
}

func TestKeepAliveSchedulerFiresAfterSilence(t *testing.T) {
	var pings int32
	k := newKeepAliveScheduler(10*time.Millisecond, func() { atomic.AddInt32(&pings, 1) })
	assert.True(t, k.enabled())

	k.reset()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&pings) >= 1 }, time.Second, time.Millisecond)
}

func TestKeepAliveSchedulerResetPostponesPing(t *testing.T) {
	var pings int32
	k := newKeepAliveScheduler(30*time.Millisecond, func() { atomic.AddInt32(&pings, 1) })

	k.reset()
	time.Sleep(15 * time.Millisecond)
	k.reset() // postpone: without this the ping would have fired by now

	assert.Equal(t, int32(0), atomic.LoadInt32(&pings))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&pings) >= 1 }, time.Second, time.Millisecond)
}

func TestKeepAliveSchedulerCleanUpStopsTimer(t *testing.T) {
	var pings int32
	k := newKeepAliveScheduler(10*time.Millisecond, func() { atomic.AddInt32(&pings, 1) })
	k.reset()
	k.cleanUp()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&pings))
}
