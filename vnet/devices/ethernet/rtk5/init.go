// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/vnet"
)

const tally_bytes = 64

// Enable allocates rings and buffers, brings the chip out of reset and
// starts negotiation.  Link up arrives later as a LinkChg interrupt.
func (d *Dev) Enable() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled.Load() {
		return
	}
	if err = d.allocate(); err != nil {
		d.run_undo()
		return
	}
	d.publish(vnet.LinkStatus{Valid: true})
	d.intr_mask = intr_rxtx
	d.poll_mode.Store(false)

	release := d.hold_polling()
	d.exit_oob()
	d.hw_init()
	d.nic_reset()
	d.init_hw()
	d.set_phy_medium()
	release()
	d.enabled.Store(true)
	d.log().WithFields(logrus.Fields{
		"tx ring":  d.tx.len(),
		"rx ring":  d.rx.len(),
		"medium":   d.ls.medium,
		"no close": d.tx_no_close,
	}).Info("enabled")
	return
}

// allocate stages everything Enable needs; each stage pushes its
// teardown onto d.undo.
func (d *Dev) allocate() (err error) {
	if err = d.tx.allocate(d.dma, d.TxRingLen); err != nil {
		return fmt.Errorf("tx ring: %w", err)
	}
	d.undo = append(d.undo, func() {
		d.tx.drain()
		d.tx.release(d.dma)
	})

	if err = d.rx.allocate(d.dma, d.RxRingLen); err != nil {
		return fmt.Errorf("rx ring: %w", err)
	}
	d.undo = append(d.undo, func() { d.rx.release(d.dma) })

	limit := int(2*d.RxRingLen + d.SpareBuffers)
	d.pool = new_rx_pool(d.dma, limit, int(d.SpareBuffers), d.counters.alloc_failures)
	d.undo = append(d.undo, func() { d.pool.close() })

	err = d.rx_fill()
	d.undo = append(d.undo, d.rx_empty)
	if err != nil {
		return
	}
	d.rx.reset(d.rx_buf_size)
	d.pool.refill_spares()

	var phys uint64
	if d.tally, phys, err = d.dma.DmaAlloc(tally_bytes, tally_bytes); err != nil {
		return fmt.Errorf("tally: %w", err)
	}
	d.tally_phys = phys
	d.undo = append(d.undo, func() {
		d.dma.DmaFree(d.tally)
		d.tally = nil
	})
	return
}

func (d *Dev) run_undo() {
	for i := len(d.undo) - 1; i >= 0; i-- {
		d.undo[i]()
	}
	d.undo = nil
}

// Disable stops the chip and frees everything Enable allocated.  Frames
// still held by the stack free their buffers as they are released.
func (d *Dev) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled.Load() {
		return
	}
	d.tx_flush()
	if !d.wait_polling() {
		d.log().Warn("disable: poll still in flight")
	}
	was_up := d.link_up.Load()
	d.enabled.Store(false)
	d.link_up.Store(false)
	d.poll_mode.Store(false)
	d.polling.Store(false)
	d.stop_watchdog()
	d.tx.done_count.Store(0)
	d.tx.done_last = 0

	IMR0_8125.set(d, 0)
	d.nic_reset()
	if was_up {
		d.publish(vnet.LinkStatus{Valid: true})
	}
	d.ls.state = LinkDown

	d.tx_mu.Lock()
	d.tx.drain()
	d.tx.reset()
	d.tx_mu.Unlock()
	d.rx_drop_chain()
	d.run_undo()
	d.log().Info("disabled")
}

// restart resets the chip and rings and renegotiates.
func (d *Dev) restart() {
	defer d.hold_polling()()
	d.counters.restarts.Inc(1)
	d.tx_flush()
	d.link_up.Store(false)
	d.publish(vnet.LinkStatus{Valid: true})
	d.nic_reset()
	d.clear_rings()
	d.enable_hw()
}

func (d *Dev) enable_hw() {
	d.init_hw()
	d.set_phy_medium()
}

// hw_init quiesces interrupts before the first reset.
func (d *Dev) hw_init() {
	IMR0_8125.set(d, 0)
	ISR0_8125.set(d, 0xffffffff)
	INT_CFG0_8125.set(d, 0)
	d.rx_config_clear()
}

func (d *Dev) rx_config_clear() { RxConfig.andnot(d, acceptAll) }

func (d *Dev) wait_fifo_empty() bool {
	return d.wait(d.ResetWaitCount, d.ChannelWaitDelay, func() bool {
		const empty = Txfifo_empty | Rxfifo_empty
		return MCUCmd.get(d)&empty == empty
	})
}

// nic_reset stops DMA and resets the MAC.
func (d *Dev) nic_reset() {
	d.rx_config_clear()
	MiscRxDvGate.or(d, bit3)
	if !d.wait_fifo_empty() {
		d.log().Debug("fifo not empty at reset")
	}
	ChipCmd.or(d, StopReq)
	ChipCmd.set(d, CmdReset)
	if !d.wait(d.ResetWaitCount, d.ChannelWaitDelay, func() bool {
		return ChipCmd.get(d)&CmdReset == 0
	}) {
		d.log().Warn("chip reset timeout")
	}
}

func (d *Dev) wait_ll_share_fifo() bool {
	return d.wait(d.ResetWaitCount, d.ChannelWaitDelay, func() bool {
		return LLShareFifo.get(d)&bit9 != 0
	})
}

// exit_oob takes the chip back from out of band management firmware.
func (d *Dev) exit_oob() {
	d.rx_config_clear()
	d.mac_ocp_write(0xc0bc, 0x00ff)
	d.nic_reset()
	MCUCmd.andnot(d, Now_is_oob)
	d.mac_ocp_clear_bits(0xe8de, bit14)
	d.wait_ll_share_fifo()
	d.mac_ocp_write(0xc0aa, 0x07d0)
	d.mac_ocp_write(0xc0a6, 0x01b5)
	d.mac_ocp_write(0xc01e, 0x5555)
	d.wait_ll_share_fifo()
}

func hi32(v uint64) uint32 { return uint32(v >> 32) }
func lo32(v uint64) uint32 { return uint32(v) }

// init_hw programs ring bases, DMA and offload configuration and the rx
// filter, then unmasks interrupts.  Tx and Rx stay off until link up.
func (d *Dev) init_hw() {
	d.rx_config_clear()
	d.nic_reset()
	Cfg9346.set(d, Cfg9346_Unlock)

	CounterAddrHigh.set(d, hi32(d.tally_phys))
	CounterAddrLow.set(d, lo32(d.tally_phys))

	d.clear_rings()
	TxDescStartAddrLow.set(d, lo32(d.tx.phys))
	TxDescStartAddrHigh.set(d, hi32(d.tx.phys))
	RxDescAddrLow.set(d, lo32(d.rx.phys))
	RxDescAddrHigh.set(d, hi32(d.rx.phys))

	txc := d.profile.DMABurst<<TxDMAShift | InterFrameGap<<TxInterFrameGapShift
	if d.tx_no_close {
		txc |= TxNoCloseEnable
	}
	TxConfig.set(d, txc)

	d.apply_tuning(d.profile.Tuning)
	d.tuning_fixups()

	TIMER_INT0_8125.set(d, 0)
	IntrMitigate.set(d, 0)
	CPlusCmd.set(d, RxChkSum|RxVlan)
	RxMaxSize.set(d, uint16(d.rx_buf_size-1))
	MiscRxDvGate.andnot(d, bit3)
	d.set_rx_mode()
	Cfg9346.set(d, Cfg9346_Lock)
	IMR0_8125.set(d, d.intr_mask)
}
