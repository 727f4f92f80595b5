// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
	"io"
	"text/tabwriter"
)

var show_regs = []struct {
	name string
	get  func(d *Dev) uint32
}{
	{"ChipCmd", func(d *Dev) uint32 { return uint32(ChipCmd.get(d)) }},
	{"IMR0", func(d *Dev) uint32 { return IMR0_8125.get(d) }},
	{"ISR0", func(d *Dev) uint32 { return ISR0_8125.get(d) }},
	{"TxConfig", func(d *Dev) uint32 { return TxConfig.get(d) }},
	{"RxConfig", func(d *Dev) uint32 { return RxConfig.get(d) }},
	{"CPlusCmd", func(d *Dev) uint32 { return uint32(CPlusCmd.get(d)) }},
	{"PHYstatus", func(d *Dev) uint32 { return uint32(PHYstatus.get(d)) }},
	{"TIMER_INT0", func(d *Dev) uint32 { return TIMER_INT0_8125.get(d) }},
	{"RxMaxSize", func(d *Dev) uint32 { return uint32(RxMaxSize.get(d)) }},
	{"MCUCmd", func(d *Dev) uint32 { return uint32(MCUCmd.get(d)) }},
}

// Show writes registers, ring state, flags and link state.
func (d *Dev) Show(w io.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	defer tw.Flush()
	fmt.Fprintf(tw, "%s:\t%s\n", d.name, d.profile.String())
	fmt.Fprintf(tw, "mac:\t%s\n", d.hw_addr)
	fmt.Fprintf(tw, "flags:\tenabled %v link %v promisc %v allmulti %v poll %v polling %v\n",
		d.enabled.Load(), d.link_up.Load(), d.promiscuous.Load(), d.multicast.Load(),
		d.poll_mode.Load(), d.polling.Load())

	ls := &d.ls
	fmt.Fprintf(tw, "link:\t%v medium %v", ls.state, ls.medium)
	if ls.state == LinkUp {
		fmt.Fprintf(tw, " speed %d %s duplex flow %v eee %v lpa 0x%04x",
			ls.mbps, duplex_name(ls.full_duplex), ls.flow, ls.eee, ls.lpa)
	}
	fmt.Fprintln(tw)

	for _, r := range show_regs {
		fmt.Fprintf(tw, "%s:\t0x%08x\n", r.name, r.get(d))
	}

	d.tx_mu.Lock()
	t := &d.tx
	if t.desc != nil {
		fmt.Fprintf(tw, "tx:\tlen %d next %d dirty %d free %d tail %d close %d done %d warn %d\n",
			t.len(), t.next_index, t.dirty_index, t.free.Load(), t.tail_ptr, t.close_ptr,
			t.done_count.Load(), t.warn)
		for i := t.dirty_index; i != t.next_index; i = t.next(i) {
			fmt.Fprintf(tw, "  %d:\t%v\n", i, &t.desc[i])
		}
	}
	d.tx_mu.Unlock()

	r := &d.rx
	if r.desc != nil {
		fmt.Fprintf(tw, "rx:\tlen %d next %d chain %d discard %v buf %d\n",
			r.len(), r.next_index, len(r.chain), r.discard, d.rx_buf_size)
		fmt.Fprintf(tw, "  %d:\t%v\n", r.next_index, &r.desc[r.next_index])
	}
	if d.pool != nil {
		fmt.Fprintf(tw, "pool:\tspares %d\n", d.pool.spare_count())
	}
}
