// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"github.com/platinasystems/rtk5/vnet"
)

func (d *Dev) hw_close_ptr() uint32 {
	if d.profile.WidePointers {
		return d.regs.Read32(d.profile.HwCloseOffset())
	}
	return uint32(d.regs.Read16(d.profile.HwCloseOffset()))
}

// tx_reclaim frees completed descriptors and returns how many it freed.
// With a close register the hardware says how far it got; otherwise the
// owner bits are scanned from the oldest outstanding slot.
func (d *Dev) tx_reclaim() (n int) {
	r := &d.tx
	if r.desc == nil {
		return
	}
	outstanding := r.outstanding()
	var done uint32
	if d.tx_no_close {
		m := d.profile.ptr_mask()
		hw := d.hw_close_ptr()
		done = (hw - r.close_ptr) & m
		if done > outstanding {
			done = outstanding
		}
		r.close_ptr = (r.close_ptr + done) & m
	} else {
		for i := r.dirty_index; done < outstanding && !r.desc[i].is_owned_by_hw(); i = r.next(i) {
			done++
		}
	}
	if done == 0 {
		return
	}

	var freed []vnet.Packet
	for ; done > 0; done-- {
		i := r.dirty_index
		if p := r.pkts[i]; p != nil {
			freed = append(freed, p)
			r.pkts[i] = nil
		}
		r.done_count.Add(1)
		r.free.Add(1)
		r.dirty_index = r.next(i)
		n++
	}
	for _, p := range freed {
		p.Free()
	}
	if d.out != nil && uint32(r.free.Load()) > r.len()/10 {
		d.out.Wake()
	}
	return
}
