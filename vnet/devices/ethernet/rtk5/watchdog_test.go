// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/rtk5/internal/test"
)

func watchdog_thresholds(c *Config) {
	c.TxCheckThreshold = 3
	c.TxDeadlockThreshold = 5
}

func TestWatchdogHang(t *testing.T) {
	h := new_harness(t, txconfig_8125b, watchdog_thresholds).enable().up(status_2500)
	d := h.d

	p1, p2 := h.raw(1), h.raw(1)
	for _, p := range []*test.Packet{p1, p2} {
		_, err := d.Submit(p)
		require.NoError(t, err)
	}
	// The first completes in hardware but no interrupt reports it.
	h.complete(1)

	d.Tick()
	d.Tick()
	assert.Equal(t, uint(2), d.tx.warn)
	assert.Zero(t, d.counters.tx_timeouts.Count())

	// The third stalled tick reclaims by hand.
	d.Tick()
	assert.Equal(t, int64(1), d.counters.tx_timeouts.Count())
	assert.Equal(t, 1, p1.Freed())
	assert.Zero(t, p2.Freed())
	assert.Equal(t, uint32(1), d.tx.outstanding())

	d.Tick()
	assert.Zero(t, d.counters.restarts.Count())
	assert.Equal(t, int64(1), d.counters.tx_timeouts.Count())

	// The fifth restarts the chip and returns the stuck packet.
	d.Tick()
	assert.Equal(t, int64(1), d.counters.restarts.Count())
	assert.Equal(t, 1, p2.Freed())
	assert.Zero(t, d.tx.outstanding())
	assert.Zero(t, d.tx.warn)
	assert.NotEqual(t, LinkUp, d.LinkState())
	last, _ := h.link.Last()
	assert.False(t, last.Active)
}

func TestWatchdogProgressResets(t *testing.T) {
	h := new_harness(t, txconfig_8125b, watchdog_thresholds).enable().up(status_2500)
	d := h.d

	for i := 0; i < 2; i++ {
		_, err := d.Submit(h.raw(1))
		require.NoError(t, err)
	}
	d.Tick()
	d.Tick()
	require.Equal(t, uint(2), d.tx.warn)

	h.complete(1)
	d.Poll(16)
	d.Tick()
	assert.Zero(t, d.tx.warn)
	d.Tick()
	d.Tick()
	assert.Zero(t, d.counters.tx_timeouts.Count())
}

func TestWatchdogLeavesReclaimToPoll(t *testing.T) {
	h := new_harness(t, txconfig_8125b, watchdog_thresholds).enable().up(status_2500)
	d := h.d

	p1, p2 := h.raw(1), h.raw(1)
	for _, p := range []*test.Packet{p1, p2} {
		_, err := d.Submit(p)
		require.NoError(t, err)
	}
	h.complete(1)
	d.Tick()
	d.Tick()

	// The timeout still counts but the ring belongs to the poller.
	d.polling.Store(true)
	d.Tick()
	assert.Equal(t, int64(1), d.counters.tx_timeouts.Count())
	assert.Zero(t, p1.Freed())
	assert.Equal(t, uint32(2), d.tx.outstanding())
	assert.Zero(t, d.tx.done_count.Load())
	d.polling.Store(false)

	d.Poll(16)
	assert.Equal(t, 1, p1.Freed())
	assert.Equal(t, uint64(1), d.tx.done_count.Load())
	d.Tick()
	assert.Zero(t, d.tx.warn)
}

func TestRestartWaitsForPoll(t *testing.T) {
	h := new_harness(t, txconfig_8125b, watchdog_thresholds).enable().up(status_2500)
	d := h.d

	p := h.raw(1)
	_, err := d.Submit(p)
	require.NoError(t, err)

	d.polling.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.mu.Lock()
		defer d.mu.Unlock()
		d.restart()
	}()
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, d.counters.restarts.Count())
	assert.Zero(t, p.Freed())

	d.polling.Store(false)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("restart never took the ring")
	}
	assert.Equal(t, int64(1), d.counters.restarts.Count())
	assert.Equal(t, 1, p.Freed())
	assert.False(t, d.polling.Load())
}

func TestWatchdogIdle(t *testing.T) {
	h := new_harness(t, txconfig_8125b, watchdog_thresholds)
	d := h.d

	// Disabled devices ignore the tick.
	d.Tick()
	assert.Zero(t, h.regs.WriteCount(uint(CounterAddrLow)))

	h.enable()
	for i := 0; i < 10; i++ {
		d.Tick()
	}
	assert.False(t, d.watchdog_on)
	assert.Zero(t, d.counters.restarts.Count())

	// An empty ring never counts as stalled.
	h.up(status_2500)
	for i := 0; i < 10; i++ {
		d.Tick()
	}
	assert.Zero(t, d.tx.warn)
	assert.Zero(t, d.counters.tx_timeouts.Count())

	// Link loss stops it.
	h.link_change(0)
	assert.False(t, d.watchdog_on)
}
