// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"encoding/binary"

	"github.com/prometheus/client_golang/prometheus"
	metrics "github.com/rcrowley/go-metrics"
)

// Stats is the hardware tally block.
type Stats struct {
	TxPackets        uint64
	RxPackets        uint64
	TxErrors         uint64
	RxErrors         uint32
	RxMissed         uint16
	AlignErrors      uint16
	TxOneCollision   uint32
	TxMultiCollision uint32
	RxUnicast        uint64
	RxBroadcast      uint64
	RxMulticast      uint32
	TxAborted        uint16
	TxUnderrun       uint16
}

type counter struct {
	offset uint32
	size   uint8
	name   string
	help   string
}

const (
	tx_packets = iota
	rx_packets
	tx_errors
	rx_errors
	rx_missed
	align_errors
	tx_one_collision
	tx_multi_collision
	rx_unicast
	rx_broadcast
	rx_multicast
	tx_aborted
	tx_underrun
	n_counters
)

var tally_counters = [n_counters]counter{
	tx_packets:         {offset: 0, size: 8, name: "tx_packets", help: "Packets transmitted."},
	rx_packets:         {offset: 8, size: 8, name: "rx_packets", help: "Packets received."},
	tx_errors:          {offset: 16, size: 8, name: "tx_errors", help: "Transmit errors."},
	rx_errors:          {offset: 24, size: 4, name: "rx_errors", help: "Receive errors."},
	rx_missed:          {offset: 28, size: 2, name: "rx_missed", help: "Frames missed for lack of descriptors."},
	align_errors:       {offset: 30, size: 2, name: "align_errors", help: "Frame alignment errors."},
	tx_one_collision:   {offset: 32, size: 4, name: "tx_one_collision", help: "Frames sent after one collision."},
	tx_multi_collision: {offset: 36, size: 4, name: "tx_multi_collision", help: "Frames sent after several collisions."},
	rx_unicast:         {offset: 40, size: 8, name: "rx_unicast", help: "Unicast frames received."},
	rx_broadcast:       {offset: 48, size: 8, name: "rx_broadcast", help: "Broadcast frames received."},
	rx_multicast:       {offset: 56, size: 4, name: "rx_multicast", help: "Multicast frames received."},
	tx_aborted:         {offset: 60, size: 2, name: "tx_aborted", help: "Transmits aborted."},
	tx_underrun:        {offset: 62, size: 2, name: "tx_underrun", help: "Transmit fifo underruns."},
}

func (c *counter) get(b []byte) uint64 {
	b = b[c.offset:]
	switch c.size {
	case 8:
		return binary.LittleEndian.Uint64(b)
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return uint64(binary.LittleEndian.Uint16(b))
}

func decode_tally(b []byte) (s Stats) {
	v := func(i int) uint64 { return tally_counters[i].get(b) }
	s.TxPackets = v(tx_packets)
	s.RxPackets = v(rx_packets)
	s.TxErrors = v(tx_errors)
	s.RxErrors = uint32(v(rx_errors))
	s.RxMissed = uint16(v(rx_missed))
	s.AlignErrors = uint16(v(align_errors))
	s.TxOneCollision = uint32(v(tx_one_collision))
	s.TxMultiCollision = uint32(v(tx_multi_collision))
	s.RxUnicast = v(rx_unicast)
	s.RxBroadcast = v(rx_broadcast)
	s.RxMulticast = uint32(v(rx_multicast))
	s.TxAborted = uint16(v(tx_aborted))
	s.TxUnderrun = uint16(v(tx_underrun))
	return
}

// values lists s in tally_counters order.
func (s *Stats) values() [n_counters]uint64 {
	return [n_counters]uint64{
		s.TxPackets, s.RxPackets, s.TxErrors,
		uint64(s.RxErrors), uint64(s.RxMissed), uint64(s.AlignErrors),
		uint64(s.TxOneCollision), uint64(s.TxMultiCollision),
		s.RxUnicast, s.RxBroadcast, uint64(s.RxMulticast),
		uint64(s.TxAborted), uint64(s.TxUnderrun),
	}
}

// update_statistics copies the tally block once the previous dump has
// completed and asks for the next one.
func (d *Dev) update_statistics() {
	if d.tally == nil {
		return
	}
	lo := CounterAddrLow.get(d)
	if lo&CounterDump != 0 {
		return
	}
	s := decode_tally(d.tally)
	d.stats_mu.Lock()
	d.stats = s
	d.stats_mu.Unlock()
	if d.link_up.Load() && ChipCmd.get(d)&CmdRxEnb != 0 {
		CounterAddrHigh.set(d, hi32(d.tally_phys))
		CounterAddrLow.set(d, lo32(d.tally_phys)|CounterDump)
	}
}

func (d *Dev) Stats() Stats {
	d.stats_mu.Lock()
	defer d.stats_mu.Unlock()
	return d.stats
}

// ResetCounters zeroes the hardware tally.
func (d *Dev) ResetCounters() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tally == nil {
		return
	}
	CounterAddrHigh.set(d, hi32(d.tally_phys))
	CounterAddrLow.set(d, lo32(d.tally_phys)|CounterReset)
	d.stats_mu.Lock()
	d.stats = Stats{}
	d.stats_mu.Unlock()
}

// Collector exports the tally and the driver's event counters.
type Collector struct {
	d     *Dev
	tally [n_counters]*prometheus.Desc
	sw    map[string]*prometheus.Desc
}

func NewCollector(d *Dev) *Collector {
	labels := prometheus.Labels{"dev": d.name}
	c := &Collector{d: d, sw: make(map[string]*prometheus.Desc)}
	for i := range tally_counters {
		t := &tally_counters[i]
		c.tally[i] = prometheus.NewDesc(prometheus.BuildFQName("rtk5", "tally", t.name), t.help, nil, labels)
	}
	d.registry.Each(func(name string, _ interface{}) {
		c.sw[name] = prometheus.NewDesc(prometheus.BuildFQName("rtk5", "", name+"_total"),
			"Driver events: "+name+".", nil, labels)
	})
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.tally {
		ch <- d
	}
	for _, d := range c.sw {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.d.Stats()
	for i, v := range s.values() {
		ch <- prometheus.MustNewConstMetric(c.tally[i], prometheus.CounterValue, float64(v))
	}
	c.d.registry.Each(func(name string, m interface{}) {
		desc, ok := c.sw[name]
		if !ok {
			return
		}
		if x, ok := m.(metrics.Counter); ok {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(x.Count()))
		}
	})
}
