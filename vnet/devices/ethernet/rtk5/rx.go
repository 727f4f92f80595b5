// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"

	"github.com/platinasystems/rtk5/vnet"
)

const (
	rx_buf_size_std   = 4096
	rx_buf_size_jumbo = 9020
	ethernet_crc_len  = 4
)

// rx_fill gives every empty ring slot a buffer.
func (d *Dev) rx_fill() (err error) {
	r := &d.rx
	for i := range r.bufs {
		if r.bufs[i] != nil {
			continue
		}
		if r.bufs[i] = d.pool.get(); r.bufs[i] == nil {
			return fmt.Errorf("rx ring: %d of %d buffers", i, len(r.bufs))
		}
	}
	return
}

// rx_empty returns ring and chain buffers to the pool.
func (d *Dev) rx_empty() {
	r := &d.rx
	d.rx_drop_chain()
	for i, b := range r.bufs {
		if b != nil {
			d.pool.put(b)
			r.bufs[i] = nil
		}
	}
}

func (d *Dev) rx_drop_chain() {
	r := &d.rx
	for _, b := range r.chain {
		d.pool.put(b)
	}
	r.chain = r.chain[:0]
}

// rx_recycle re-arms slot i with the buffer it already holds.  Set discard
// so that the rest of a multi-descriptor frame is skipped.
func (d *Dev) rx_recycle(i uint32, last bool) {
	r := &d.rx
	d.rx_drop_chain()
	r.discard = !last
	r.arm(i, d.rx_buf_size)
}

// rx_poll delivers at most max frames and returns the number delivered.
// One pass visits each descriptor at most once.  Caller holds polling.
func (d *Dev) rx_poll(max int) (n int) {
	r := &d.rx
	if r.desc == nil {
		return
	}
	for seen := uint32(0); n < max && seen < r.len(); seen++ {
		i := r.next_index
		owned, size, s := r.decode_rx(i)
		if owned {
			break
		}
		r.next_index = r.next(i)
		first, last := s.first(), s.last()
		if first {
			r.discard = false
		}

		switch {
		case r.discard:
			r.discard = !last
			r.arm(i, d.rx_buf_size)
			continue

		case first && len(r.chain) > 0, !first && len(r.chain) == 0:
			d.counters.rx_fragment_errors.Inc(1)
			if !first {
				d.rx_recycle(i, last)
				continue
			}
			d.rx_drop_chain()
		}

		if s.is_error() {
			switch {
			case s.crc():
				d.counters.rx_crc_errors.Inc(1)
			case s.length():
				d.counters.rx_length_errors.Inc(1)
			default:
				d.counters.rx_errors.Inc(1)
			}
			d.rx_recycle(i, last)
			continue
		}

		nb := d.pool.get()
		if nb == nil && d.pool.spare_count() > 1 {
			nb = d.pool.take_spare()
		}
		if nb == nil {
			d.counters.rx_no_buffer.Inc(1)
			d.rx_recycle(i, last)
			continue
		}

		b := r.bufs[i]
		if last {
			if size >= ethernet_crc_len {
				size -= ethernet_crc_len
			} else {
				size = 0
			}
		}
		b.n = size
		r.chain = append(r.chain, b)
		r.bufs[i] = nb
		r.arm(i, d.rx_buf_size)

		if last {
			d.in.Enqueue(d.rx_frame(s))
			n++
		}
	}
	if n > 0 {
		d.in.Flush()
	}
	return
}

// rx_frame hands the pending chain to the stack.  Checksum and vlan come
// from the frame's last descriptor.
func (d *Dev) rx_frame(s rx_status) (f *vnet.RxFrame) {
	r := &d.rx
	bufs := make([]*rx_buffer, len(r.chain))
	copy(bufs, r.chain)
	r.chain = r.chain[:0]

	f = vnet.NewRxFrame(func(*vnet.RxFrame) {
		for _, b := range bufs {
			d.pool.put(b)
		}
	})
	f.Segments = make([]vnet.Segment, len(bufs))
	for i, b := range bufs {
		f.Segments[i] = vnet.Segment{Phys: b.phys, Data: b.data[:b.n]}
		f.Len += b.n
	}
	f.Csum = s.csum()
	if s.has_vlan() {
		f.HasVlan = true
		f.VlanTag = s.vlan()
	}
	return
}
