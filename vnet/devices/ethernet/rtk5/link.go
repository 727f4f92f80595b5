// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/vnet"
)

type LinkState uint8

const (
	LinkDown LinkState = iota
	Negotiating
	LinkUp
)

var linkStateNames = [...]string{
	LinkDown:    "down",
	Negotiating: "negotiating",
	LinkUp:      "up",
}

func (s LinkState) String() string {
	if int(s) < len(linkStateNames) {
		return linkStateNames[s]
	}
	return fmt.Sprintf("LinkState(%d)", uint8(s))
}

// link_state is owned by the link state machine; callers hold d.mu.
type link_state struct {
	state LinkState

	// Resolved at link up.
	mbps        uint
	full_duplex bool
	flow        bool
	eee         bool
	// Partner ability register, read after link up.
	lpa uint16

	// Targets.
	medium   vnet.Medium
	flow_ctl bool
	eee_adv  uint16
}

func duplex_name(full bool) string {
	if full {
		return "full"
	}
	return "half"
}

func (ls *link_state) resolved() vnet.Medium {
	return vnet.MediumOf(ls.mbps, ls.full_duplex, ls.flow, ls.eee)
}

// PollParams tunes a poll mode consumer to the link speed.
type PollParams struct {
	MinPackets, MaxPackets uint
	MinBytes, MaxBytes     uint
	Interval               time.Duration
}

func (d *Dev) poll_params(mbps uint) PollParams {
	if mbps == 10 {
		return PollParams{2, 8, 0x400, 0x1800, time.Millisecond}
	}
	p := PollParams{10, 40, 0x1000, 0x10000, time.Millisecond}
	switch {
	case mbps >= 2500:
		p.Interval = d.PollInterval2500
	case mbps == 1000:
		p.Interval = 170 * time.Microsecond
	}
	return p
}

func (d *Dev) LinkState() LinkState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ls.state
}

// LinkMedium is the resolved medium while the link is up.
func (d *Dev) LinkMedium() (m vnet.Medium, up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if up = d.ls.state == LinkUp; up {
		m = d.ls.resolved()
	}
	return
}

func (d *Dev) PollParams() PollParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poll
}

func (d *Dev) publish(s vnet.LinkStatus) {
	if d.link != nil {
		d.link.SetLinkStatus(s)
	}
}

// decode_phy_status fills the resolved part of ls from PHYstatus.
func decode_phy_status(ls *link_state, status uint16) {
	ls.flow = status&(TxFlowCtrl|RxFlowCtrl) != 0
	ls.full_duplex = true
	switch {
	case status&_5000bpsF != 0:
		ls.mbps = 5000
	case status&_2500bpsF != 0:
		ls.mbps = 2500
	case status&_1000bpsF != 0:
		ls.mbps = 1000
	case status&_100bps != 0:
		ls.mbps = 100
		ls.full_duplex = status&FullDup != 0
	default:
		ls.mbps = 10
		ls.full_duplex = status&FullDup != 0
	}
}

// check_link_status runs on LinkChg.
func (d *Dev) check_link_status() {
	d.counters.link_changes.Inc(1)
	status := PHYstatus.get(d)
	if status == 0xffff || status&LinkStatus == 0 {
		d.stop_watchdog()
		if d.link_up.Load() || d.ls.state == LinkUp {
			d.set_link_down()
		}
		return
	}
	ls := &d.ls
	ls.eee = d.get_eee_mode()
	decode_phy_status(ls, status)
	release := d.hold_polling()
	d.init_hw()
	release()
	d.set_link_up()
	d.start_watchdog()
	d.mdio_write(MII_PAGE, 0)
	ls.lpa = d.mdio_read(MII_LPA)
}

func (d *Dev) set_link_up() {
	ls := &d.ls
	ChipCmd.set(d, CmdTxEnb|CmdRxEnb)
	d.link_up.Store(true)
	ls.state = LinkUp
	d.poll = d.poll_params(ls.mbps)
	if d.PollOnLinkUp {
		d.set_poll_mode(true)
	}
	d.publish(vnet.LinkStatus{
		Valid:  true,
		Active: true,
		Medium: ls.resolved(),
		Speed:  uint64(ls.mbps) * 1e6,
	})
	if d.out != nil {
		d.out.Wake()
	}
	d.log().WithFields(logrus.Fields{
		"speed":  ls.mbps,
		"duplex": duplex_name(ls.full_duplex),
		"flow":   ls.flow,
		"eee":    ls.eee,
	}).Info("link up")
}

// set_link_down stops output, resets the chip and the rings and
// restarts negotiation.
func (d *Dev) set_link_down() {
	defer d.hold_polling()()
	was_up := d.link_up.Load()
	d.tx.warn = 0
	d.tx_flush()
	d.link_up.Store(false)
	d.set_poll_mode(false)
	d.publish(vnet.LinkStatus{Valid: true})
	d.nic_reset()
	d.clear_rings()
	d.set_phy_medium()
	if was_up {
		d.log().Info("link down")
	}
}

// wait_polling gives a poll in flight a bounded time to finish.
func (d *Dev) wait_polling() bool {
	idle := func() bool { return !d.polling.Load() }
	return idle() || d.wait(d.DisableWaitCount, d.DisableWaitDelay, idle)
}

// hold_polling takes the polling flag, waiting out a poll in flight, so
// that no completion path runs until release is called.
func (d *Dev) hold_polling() (release func()) {
	for !d.polling.CompareAndSwap(false, true) {
		time.Sleep(d.DisableWaitDelay)
	}
	return func() { d.polling.Store(false) }
}

// clear_rings returns every tx handle and resets both rings.  Caller
// holds polling.
func (d *Dev) clear_rings() {
	d.tx_mu.Lock()
	if d.tx.desc != nil {
		d.tx.drain()
		d.tx.reset()
	}
	d.tx_mu.Unlock()
	if d.rx.desc != nil {
		d.rx_drop_chain()
		d.rx.reset(d.rx_buf_size)
	}
}
