// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unix

import (
	"context"
	"encoding/binary"
	"sync"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/vnet"
)

// Starter moves queued packets to a device.
type Starter interface {
	OutputStart(q vnet.OutputQueue) vnet.TxResult
}

// OutputQueue holds frames read from the tap until the device takes them.
type OutputQueue struct {
	mu      sync.Mutex
	pkts    []vnet.Packet
	limit   int
	stalled bool
	ready   chan struct{}

	c *counters
}

func new_output_queue(limit int, c *counters) *OutputQueue {
	return &OutputQueue{limit: limit, ready: make(chan struct{}, 1), c: c}
}

func (q *OutputQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// push queues p, freeing it instead when the queue is full.
func (q *OutputQueue) push(p vnet.Packet) bool {
	q.mu.Lock()
	if len(q.pkts) >= q.limit {
		q.mu.Unlock()
		p.Free()
		q.c.tx_drops.Inc(1)
		return false
	}
	q.pkts = append(q.pkts, p)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *OutputQueue) Dequeue() (p vnet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pkts) > 0 {
		p = q.pkts[0]
		q.pkts[0] = nil
		q.pkts = q.pkts[1:]
	}
	return
}

func (q *OutputQueue) Stall() {
	q.mu.Lock()
	q.stalled = true
	q.mu.Unlock()
}

func (q *OutputQueue) Wake() {
	q.mu.Lock()
	q.stalled = false
	q.mu.Unlock()
	q.signal()
}

func (q *OutputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pkts)
}

func (q *OutputQueue) Stalled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stalled
}

func (q *OutputQueue) pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pkts) > 0 && !q.stalled
}

// drain frees everything queued.
func (q *OutputQueue) drain() {
	for p := q.Dequeue(); p != nil; p = q.Dequeue() {
		p.Free()
		q.c.tx_drops.Inc(1)
	}
}

// Pump feeds s whenever packets are queued and the queue is not stalled.
// Packets queued while the device is down are dropped.
func (q *OutputQueue) Pump(ctx context.Context, s Starter) error {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return ctx.Err()
		case <-q.ready:
		}
		for q.pending() {
			if s.OutputStart(q) == vnet.TxDown {
				q.drain()
			}
		}
	}
}

type frame_writer interface {
	Write(b []byte) (int, error)
}

// InputQueue writes received frames to the tap at each Flush.
type InputQueue struct {
	mu       sync.Mutex
	w        frame_writer
	vnet_hdr bool
	frames   []*vnet.RxFrame
	buf      []byte

	c *counters
	l *logrus.Entry
}

// Room for a 9K jumbo frame, a vlan tag and the vnet header.
const input_buf_bytes = 16 << 10

func new_input_queue(w frame_writer, vnet_hdr bool, c *counters, l *logrus.Entry) *InputQueue {
	return &InputQueue{w: w, vnet_hdr: vnet_hdr, c: c, l: l, buf: make([]byte, input_buf_bytes)}
}

func (q *InputQueue) Enqueue(f *vnet.RxFrame) {
	q.mu.Lock()
	q.frames = append(q.frames, f)
	q.mu.Unlock()
}

func (q *InputQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, f := range q.frames {
		q.write(f)
		f.Free()
		q.frames[i] = nil
	}
	q.frames = q.frames[:0]
}

// write formats f into q.buf, restoring a stripped vlan tag.
func (q *InputQueue) write(f *vnet.RxFrame) {
	b := q.buf
	n := 0
	if q.vnet_hdr {
		h := virtio_net_hdr{}
		if f.Csum.L4Valid {
			h.flags = vnet_hdr_f_data_valid
		}
		h.encode(b)
		n = virtio_net_hdr_len
	}
	if f.HasVlan {
		// Copy past the tag's room, then move the addresses down over it.
		l := f.CopyTo(b[n+4:])
		if l < 12 {
			q.c.rx_drops.Inc(1)
			return
		}
		copy(b[n:n+12], b[n+4:n+16])
		binary.BigEndian.PutUint16(b[n+12:], ethertype_vlan)
		binary.BigEndian.PutUint16(b[n+14:], f.VlanTag)
		n += 4 + l
	} else {
		n += f.CopyTo(b[n:])
	}
	if _, err := q.w.Write(b[:n]); err != nil {
		q.c.rx_drops.Inc(1)
		q.l.WithError(err).Debug("tap write")
		return
	}
	q.c.rx_packets.Inc(1)
	q.c.rx_bytes.Inc(int64(f.Len))
}

type counters struct {
	tx_packets metrics.Counter
	tx_bytes   metrics.Counter
	tx_drops   metrics.Counter
	tx_errors  metrics.Counter
	rx_packets metrics.Counter
	rx_bytes   metrics.Counter
	rx_drops   metrics.Counter
}

func (c *counters) init(r metrics.Registry) {
	for _, x := range []struct {
		name string
		c    *metrics.Counter
	}{
		{"tx_packets", &c.tx_packets},
		{"tx_bytes", &c.tx_bytes},
		{"tx_drops", &c.tx_drops},
		{"tx_errors", &c.tx_errors},
		{"rx_packets", &c.rx_packets},
		{"rx_bytes", &c.rx_bytes},
		{"rx_drops", &c.rx_drops},
	} {
		*x.c = metrics.GetOrRegisterCounter("tap."+x.name, r)
	}
}
