// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/rtk5/elib/hw/pci"
)

func (h *harness) imr() uint32 { return h.regs.Read32(uint(IMR0_8125)) }

func (h *harness) interrupt(bits uint32) {
	h.regs.Raise(bits)
	h.d.OnInterrupt()
}

func TestInterruptSpurious(t *testing.T) {
	h := new_harness(t, txconfig_8125b)
	d := h.d

	// Not enabled: nothing is touched.
	h.interrupt(RxOK)
	assert.Empty(t, h.regs.Writes())

	h.enable()
	h.regs.Write32(uint(ISR0_8125), ^uint32(0))
	h.regs.ClearWrites()

	h.interrupt(0)
	assert.Empty(t, h.regs.Writes())

	// All ones is a device that went away.
	h.interrupt(^uint32(0))
	assert.Empty(t, h.regs.Writes())
	assert.Zero(t, d.counters.interrupts.Count())
}

func TestInterruptRx(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()
	d := h.d

	h.hw_rx(0, fill(64, 1), FirstFrag|LastFrag, 0)
	h.interrupt(RxOK)
	assert.Len(t, h.in.Take(), 1)
	assert.Equal(t, int64(1), d.counters.interrupts.Count())
	assert.Zero(t, h.regs.Read32(uint(ISR0_8125)))

	// Traffic switches to timer mitigation.
	assert.Equal(t, uint32(intr_timer), h.imr())
	assert.Equal(t, d.MitigationTimer, h.regs.Read32(uint(TIMER_INT0_8125)))
	assert.Equal(t, d.MitigationTimer, h.regs.Read32(uint(TCTR0_8125)))

	// The timer firing with nothing to do goes back to per packet.
	h.interrupt(PCSTimeout)
	assert.Equal(t, uint32(intr_rxtx), h.imr())
	assert.Zero(t, h.regs.Read32(uint(TIMER_INT0_8125)))
}

func TestInterruptTx(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable().up(status_2500)
	d := h.d

	p := h.raw(2)
	_, err := d.Submit(p)
	require.NoError(t, err)
	h.complete(2)
	h.interrupt(TxOK)
	assert.Equal(t, 1, p.Freed())
	assert.Equal(t, int64(1), d.counters.tx_interrupts.Count())
	assert.Equal(t, uint32(intr_timer), h.imr())
}

func TestInterruptRxFIFOOverLatched(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()

	h.interrupt(RxFIFOOver | RxOK)
	assert.Equal(t, uint32(RxFIFOOver), h.regs.Read32(uint(ISR0_8125)))
}

func TestInterruptLinkChangeResetsMitigation(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()

	h.hw_rx(0, fill(64, 1), FirstFrag|LastFrag, 0)
	h.interrupt(RxOK)
	require.Equal(t, uint32(intr_timer), h.imr())

	h.up(status_1000)
	assert.Equal(t, uint32(intr_rxtx), h.imr())
	assert.Zero(t, h.regs.Read32(uint(TIMER_INT0_8125)))
}

func TestInterruptSystemError(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable().up(status_2500)
	d := h.d

	h.pci.Set(pci.ConfigCommand, uint16(pci.MemoryEnable|pci.BusMasterEnable))
	h.pci.Set(pci.ConfigStatus, uint16(pci.StatusSignaledSystemError|pci.StatusCapabilityList))
	p := h.raw(1)
	_, err := d.Submit(p)
	require.NoError(t, err)

	h.interrupt(SYSErr | RxOK)
	assert.Equal(t, int64(1), d.counters.pci_errors.Count())
	assert.Equal(t, int64(1), d.counters.restarts.Count())
	assert.Equal(t, uint16(pci.StatusCapabilityList), h.pci.ReadConfigUint16(pci.ConfigStatus))
	cmd := pci.Command(h.pci.ReadConfigUint16(pci.ConfigCommand))
	assert.Equal(t, pci.MemoryEnable|pci.BusMasterEnable|pci.SERR|pci.Parity, cmd)

	assert.Equal(t, 1, p.Freed())
	assert.Equal(t, Negotiating, d.LinkState())
	assert.Equal(t, uint32(intr_rxtx), h.imr())
}

func TestPollMode(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()
	d := h.d

	d.SetPollMode(true)
	assert.True(t, d.PollMode())
	assert.Equal(t, uint32(intr_poll), h.imr())

	// Interrupts leave packets to Poll.
	h.hw_rx(0, fill(64, 1), FirstFrag|LastFrag, 0)
	h.interrupt(RxOK)
	assert.Empty(t, h.in.Take())
	assert.Equal(t, uint32(intr_poll), h.imr())
	assert.Equal(t, 1, d.Poll(16))

	// One poller at a time.
	d.polling.Store(true)
	h.hw_rx(1, fill(64, 1), FirstFrag|LastFrag, 0)
	assert.Zero(t, d.Poll(16))
	d.polling.Store(false)
	assert.Equal(t, 1, d.Poll(16))

	d.SetPollMode(false)
	assert.Equal(t, uint32(intr_rxtx), h.imr())
}

func TestDisableWithPollInFlight(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()
	d := h.d

	d.polling.Store(true)
	d.Disable()
	assert.False(t, d.Enabled())
	assert.False(t, d.polling.Load())
	assert.Zero(t, h.dma.Live())
	assert.Zero(t, d.Poll(16))
}
