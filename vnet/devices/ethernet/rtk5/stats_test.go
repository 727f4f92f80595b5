// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"encoding/binary"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func test_tally(b []byte) {
	le := binary.LittleEndian
	le.PutUint64(b[0:], 1000)
	le.PutUint64(b[8:], 2000)
	le.PutUint64(b[16:], 3)
	le.PutUint32(b[24:], 4)
	le.PutUint16(b[28:], 5)
	le.PutUint16(b[30:], 6)
	le.PutUint32(b[32:], 7)
	le.PutUint32(b[36:], 8)
	le.PutUint64(b[40:], 1900)
	le.PutUint64(b[48:], 90)
	le.PutUint32(b[56:], 10)
	le.PutUint16(b[60:], 11)
	le.PutUint16(b[62:], 12)
}

var test_stats = Stats{
	TxPackets:        1000,
	RxPackets:        2000,
	TxErrors:         3,
	RxErrors:         4,
	RxMissed:         5,
	AlignErrors:      6,
	TxOneCollision:   7,
	TxMultiCollision: 8,
	RxUnicast:        1900,
	RxBroadcast:      90,
	RxMulticast:      10,
	TxAborted:        11,
	TxUnderrun:       12,
}

func TestDecodeTally(t *testing.T) {
	b := make([]byte, tally_bytes)
	test_tally(b)
	s := decode_tally(b)
	assert.Equal(t, test_stats, s)
	v := s.values()
	assert.Equal(t, uint64(1000), v[tx_packets])
	assert.Equal(t, uint64(12), v[tx_underrun])
}

func TestUpdateStatistics(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable().up(status_2500)
	d := h.d

	d.Tick()
	v, ok := h.regs.LastWrite(uint(CounterAddrLow))
	require.True(t, ok)
	assert.Equal(t, lo32(d.tally_phys)|CounterDump, v)
	assert.Equal(t, Stats{}, d.Stats())

	// The chip has not finished: nothing is copied and no new dump is
	// requested.
	test_tally(d.tally)
	h.regs.ClearWrites()
	d.Tick()
	assert.Equal(t, Stats{}, d.Stats())
	assert.Zero(t, h.regs.WriteCount(uint(CounterAddrLow)))

	h.regs.CompleteDump()
	d.Tick()
	assert.Equal(t, test_stats, d.Stats())
	assert.Equal(t, 1, h.regs.WriteCount(uint(CounterAddrLow)))

	h.regs.ClearWrites()
	d.ResetCounters()
	v, _ = h.regs.LastWrite(uint(CounterAddrLow))
	assert.Equal(t, lo32(d.tally_phys)|CounterReset, v)
	assert.Equal(t, Stats{}, d.Stats())
}

func TestUpdateStatisticsLinkDown(t *testing.T) {
	h := new_harness(t, txconfig_8125b)
	d := h.d

	// No tally before Enable.
	d.ResetCounters()
	d.update_statistics()
	assert.Empty(t, h.regs.Writes())

	h.enable()
	test_tally(d.tally)
	h.regs.ClearWrites()
	d.Tick()
	assert.Equal(t, test_stats, d.Stats())
	assert.Zero(t, h.regs.WriteCount(uint(CounterAddrLow)))
}

func TestAutoDump(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable().up(status_2500)
	d := h.d

	dumps := 0
	h.regs.AutoDump()
	h.regs.OnDump = func() {
		dumps++
		test_tally(d.tally)
	}
	d.Tick()
	assert.Equal(t, 1, dumps)
	d.Tick()
	assert.Equal(t, test_stats, d.Stats())
}

func TestCollector(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable().up(status_2500)
	d := h.d
	test_tally(d.tally)
	d.Tick()
	d.counters.restarts.Inc(2)

	r := prometheus.NewRegistry()
	require.NoError(t, r.Register(NewCollector(d)))
	mfs, err := r.Gather()
	require.NoError(t, err)

	got := make(map[string]float64)
	for _, mf := range mfs {
		require.Len(t, mf.GetMetric(), 1, mf.GetName())
		m := mf.GetMetric()[0]
		require.Len(t, m.GetLabel(), 1)
		assert.Equal(t, "test0", m.GetLabel()[0].GetValue())
		got[mf.GetName()] = m.GetCounter().GetValue()
	}
	assert.Len(t, got, int(n_counters)+14)
	assert.Equal(t, float64(1000), got["rtk5_tally_tx_packets"])
	assert.Equal(t, float64(12), got["rtk5_tally_tx_underrun"])
	assert.Equal(t, float64(2), got["rtk5_restarts_total"])
	assert.Equal(t, float64(1), got["rtk5_link_changes_total"])
}
