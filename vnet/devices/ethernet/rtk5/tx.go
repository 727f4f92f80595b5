// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/elib/hw"
	"github.com/platinasystems/rtk5/vnet"
)

const (
	// Most descriptors one packet may use.
	MaxSegs = 40
	// Free descriptors kept beyond MaxSegs before accepting a packet.
	tx_margin    = 3
	tx_admit_min = MaxSegs + tx_margin
)

func (d *Dev) tx_can_admit() bool { return d.tx.free.Load() > tx_admit_min }

// tx_one writes one packet's descriptors.  On error the packet is freed.
// Caller holds tx_mu and has checked admission.
func (d *Dev) tx_one(p vnet.Packet) (err error) {
	defer func() {
		if err != nil {
			d.counters.tx_drops.Inc(1)
			if d.l.IsLevelEnabled(logrus.DebugLevel) {
				d.l.WithField("dev", d.name).WithError(err).Debug("tx drop")
			}
			p.Free()
		}
	}()

	o, err := p.Offload()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffload, err)
	}
	opts1, opts2, err := d.tx_offload(p, o)
	if err != nil {
		return
	}
	segs, err := p.Segments(MaxSegs)
	switch {
	case err != nil:
		return
	case len(segs) == 0:
		return fmt.Errorf("rtk5: packet without segments")
	case len(segs) > MaxSegs:
		return ErrTooManySegments
	}
	if o.HasVlan {
		opts2 |= TxVlanTag | uint32(swap16(o.VlanTag))
	}

	r := &d.tx
	n := uint32(len(segs))
	first := r.next_index
	for i := range segs {
		s := &segs[i]
		c := opts1
		if i == 0 {
			c |= FirstFrag
		} else {
			c |= DescOwn
		}
		if i == len(segs)-1 {
			c |= LastFrag
			r.pkts[r.next_index] = p
		}
		r.encode_tx(r.next_index, s.Phys, uint32(len(s.Data)), c, opts2)
		r.next_index = r.next(r.next_index)
	}
	r.tail_ptr += n
	hw.MemoryBarrier()
	r.desc[first].give_to_hw()
	// Claimed only once published so an owner bit scan never sees a
	// half written chain as complete.
	r.free.Add(-int32(n))
	return
}

// tx_doorbell tells the hardware about new descriptors.
func (d *Dev) tx_doorbell() {
	hw.MemoryBarrier()
	if !d.tx_no_close {
		TPPOLL_8125.set(d, 1)
		return
	}
	if d.profile.WidePointers {
		d.regs.Write32(d.profile.SwTailOffset(), d.tx.tail_ptr)
	} else {
		d.regs.Write16(d.profile.SwTailOffset(), uint16(d.tx.tail_ptr))
	}
}

func (d *Dev) tx_result() vnet.TxResult {
	if d.tx_can_admit() {
		return vnet.TxAccepted
	}
	return vnet.TxStalled
}

// OutputStart drains q into the ring until it is empty or the ring lacks
// room for a maximal packet.  One doorbell covers the whole batch.
func (d *Dev) OutputStart(q vnet.OutputQueue) vnet.TxResult {
	if !d.enabled.Load() || !d.link_up.Load() {
		return vnet.TxDown
	}
	d.tx_mu.Lock()
	defer d.tx_mu.Unlock()
	if d.tx.desc == nil {
		return vnet.TxDown
	}

	n := 0
	for d.tx_can_admit() {
		p := q.Dequeue()
		if p == nil {
			break
		}
		if d.tx_one(p) == nil {
			n++
		}
	}
	if n > 0 {
		d.tx_doorbell()
	}
	res := d.tx_result()
	if res == vnet.TxStalled {
		q.Stall()
	}
	return res
}

// Submit queues one packet.  A packet that does not fit is not consumed
// and ErrRingFull is returned; any other error means it was dropped.
func (d *Dev) Submit(p vnet.Packet) (res vnet.TxResult, err error) {
	if !d.enabled.Load() || !d.link_up.Load() {
		return vnet.TxDown, ErrNotEnabled
	}
	d.tx_mu.Lock()
	defer d.tx_mu.Unlock()
	if d.tx.desc == nil {
		return vnet.TxDown, ErrNotEnabled
	}
	if !d.tx_can_admit() {
		if d.out != nil {
			d.out.Stall()
		}
		return vnet.TxStalled, ErrRingFull
	}
	if err = d.tx_one(p); err == nil {
		d.tx_doorbell()
	}
	res = d.tx_result()
	if res == vnet.TxStalled && d.out != nil {
		d.out.Stall()
	}
	return
}

// tx_flush stalls output and frees everything queued upstream.
func (d *Dev) tx_flush() {
	if d.out == nil {
		return
	}
	d.out.Stall()
	for p := d.out.Dequeue(); p != nil; p = d.out.Dequeue() {
		p.Free()
	}
}
