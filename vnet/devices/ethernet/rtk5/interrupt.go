// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"github.com/platinasystems/rtk5/elib/hw/pci"
)

// ISR0/IMR0 bits.
const (
	SYSErr        = 1 << 15
	PCSTimeout    = 1 << 14
	SWInt         = 1 << 8
	TxDescUnavail = 1 << 7
	RxFIFOOver    = 1 << 6
	LinkChg       = 1 << 5
	RxDescUnavail = 1 << 4
	TxErr         = 1 << 3
	TxOK          = 1 << 2
	RxErr         = 1 << 1
	RxOK          = 1 << 0

	intr_rxtx  = SYSErr | LinkChg | RxDescUnavail | TxOK | RxOK
	intr_timer = SYSErr | LinkChg | RxDescUnavail | PCSTimeout | RxOK
	intr_poll  = SYSErr | LinkChg
)

// OnInterrupt services ISR0.  Safe to call when the interrupt was not ours.
func (d *Dev) OnInterrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled.Load() {
		return
	}

	status := ISR0_8125.get(d)
	if status == 0 || status == 0xffffffff {
		return
	}
	IMR0_8125.set(d, 0)
	ISR0_8125.set(d, status&^RxFIFOOver)
	d.counters.interrupts.Inc(1)

	if status&SYSErr != 0 {
		d.pci_error()
		return
	}

	if !d.poll_mode.Load() && d.polling.CompareAndSwap(false, true) {
		if status&(RxOK|RxDescUnavail) != 0 {
			d.rx_poll(int(d.rx.len()))
			d.pool.refill_spares()
		}
		if status&(TxOK|RxOK|PCSTimeout) != 0 {
			if status&TxOK != 0 {
				d.counters.tx_interrupts.Inc(1)
			}
			d.tx_reclaim()
		}
		switch {
		case status&(TxOK|RxOK) != 0:
			TIMER_INT0_8125.set(d, d.MitigationTimer)
			TCTR0_8125.set(d, d.MitigationTimer)
			d.intr_mask = intr_timer
		case status&PCSTimeout != 0:
			TIMER_INT0_8125.set(d, 0)
			d.intr_mask = intr_rxtx
		}
		d.polling.Store(false)
	}

	if status&LinkChg != 0 {
		d.check_link_status()
		TIMER_INT0_8125.set(d, 0)
		if !d.poll_mode.Load() {
			d.intr_mask = intr_rxtx
		}
	}
	IMR0_8125.set(d, d.intr_mask)
}

// Poll moves packets in poll mode and returns the frames delivered.
// Returns 0 when another poll is in flight.
func (d *Dev) Poll(max int) (n int) {
	if !d.enabled.Load() || !d.polling.CompareAndSwap(false, true) {
		return
	}
	defer d.polling.Store(false)
	n = d.rx_poll(max)
	d.pool.refill_spares()
	d.tx_reclaim()
	return
}

func (d *Dev) set_poll_mode(on bool) {
	d.poll_mode.Store(on)
	if on {
		d.intr_mask = intr_poll
	} else {
		d.intr_mask = intr_rxtx
	}
	if d.enabled.Load() {
		IMR0_8125.set(d, d.intr_mask)
	}
}

// SetPollMode leaves only link and bus error interrupts enabled; the
// caller drives Poll.  Poll mode ends at link down.
func (d *Dev) SetPollMode(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.set_poll_mode(on)
}

func (d *Dev) PollMode() bool { return d.poll_mode.Load() }

// pci_error clears latched SERR and parity errors and restarts the chip.
func (d *Dev) pci_error() {
	d.counters.pci_errors.Inc(1)
	if d.pci != nil {
		cmd := d.pci.ReadConfigUint16(pci.ConfigCommand)
		status := d.pci.ReadConfigUint16(pci.ConfigStatus)
		d.pci.WriteConfigUint16(pci.ConfigCommand, cmd|uint16(pci.SERR|pci.Parity))
		// Status error bits are write one to clear.
		d.pci.WriteConfigUint16(pci.ConfigStatus, status&uint16(pci.StatusErrors))
	}
	d.log().Error("pci bus error")
	d.restart()
}
