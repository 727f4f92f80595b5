// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/rtk5/vnet"
)

func TestDecodePHYStatus(t *testing.T) {
	for _, tc := range []struct {
		status uint16
		mbps   uint
		full   bool
		flow   bool
		medium vnet.Medium
	}{
		{LinkStatus | _5000bpsF | FullDup, 5000, true, false, vnet.Medium5000FD},
		{LinkStatus | _2500bpsF | FullDup | TxFlowCtrl, 2500, true, true, vnet.Medium2500FDFC},
		{LinkStatus | _1000bpsF | FullDup | RxFlowCtrl, 1000, true, true, vnet.Medium1000FDFC},
		{LinkStatus | _100bps | FullDup, 100, true, false, vnet.Medium100FD},
		{LinkStatus | _100bps, 100, false, false, vnet.Medium100HD},
		{LinkStatus | _10bps, 10, false, false, vnet.Medium10HD},
		{LinkStatus | _10bps | FullDup, 10, true, false, vnet.Medium10FD},
	} {
		var ls link_state
		decode_phy_status(&ls, tc.status)
		assert.Equal(t, tc.mbps, ls.mbps, "0x%04x", tc.status)
		assert.Equal(t, tc.full, ls.full_duplex, "0x%04x", tc.status)
		assert.Equal(t, tc.flow, ls.flow, "0x%04x", tc.status)
		assert.Equal(t, tc.medium, ls.resolved(), "0x%04x", tc.status)
	}
}

func TestPollParams(t *testing.T) {
	h := new_harness(t, txconfig_8125b, func(c *Config) { c.PollInterval2500 = 50 * time.Microsecond })
	d := h.d

	p := d.poll_params(10)
	assert.Equal(t, PollParams{2, 8, 0x400, 0x1800, time.Millisecond}, p)
	p = d.poll_params(100)
	assert.Equal(t, uint(40), p.MaxPackets)
	assert.Equal(t, time.Millisecond, p.Interval)
	assert.Equal(t, 170*time.Microsecond, d.poll_params(1000).Interval)
	assert.Equal(t, 50*time.Microsecond, d.poll_params(2500).Interval)
	assert.Equal(t, 50*time.Microsecond, d.poll_params(5000).Interval)
}

func TestLinkUpDown(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()
	d := h.d

	_, up := d.LinkMedium()
	assert.False(t, up)

	h.up(status_2500)
	s, ok := h.link.Last()
	require.True(t, ok)
	assert.True(t, s.Valid)
	assert.True(t, s.Active)
	assert.Equal(t, vnet.Medium2500FD, s.Medium)
	assert.Equal(t, uint64(2.5e9), s.Speed)
	m, up := d.LinkMedium()
	assert.True(t, up)
	assert.Equal(t, vnet.Medium2500FD, m)
	assert.Equal(t, d.PollInterval2500, d.PollParams().Interval)
	assert.True(t, d.watchdog_on)
	assert.Equal(t, uint8(CmdTxEnb|CmdRxEnb), h.regs.Read8(uint(ChipCmd)))
	assert.Equal(t, 1, h.out.Wakes())

	p := h.raw(1)
	_, err := d.Submit(p)
	require.NoError(t, err)

	// Link loss returns queued work and starts negotiating again.
	h.link_change(0)
	assert.Equal(t, Negotiating, d.LinkState())
	s, _ = h.link.Last()
	assert.True(t, s.Valid)
	assert.False(t, s.Active)
	assert.Equal(t, 1, p.Freed())
	assert.Zero(t, d.tx.outstanding())
	_, err = d.Submit(h.raw(1))
	assert.ErrorIs(t, err, ErrNotEnabled)
	assert.Equal(t, int64(2), d.counters.link_changes.Count())

	// All ones reads as a surprise removal: the link is down.
	h.up(status_1000)
	n := len(h.link.Statuses())
	h.link_change(0xffff)
	assert.Equal(t, Negotiating, d.LinkState())
	assert.Len(t, h.link.Statuses(), n+1)

	// Repeated loss publishes nothing new.
	h.link_change(0)
	assert.Len(t, h.link.Statuses(), n+1)
}

func TestLinkEEE(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()
	d := h.d

	// Not advertised: no EEE whatever the partner says.
	h.regs.PhyOCP[phy_ocp_eee_sup] = MDIO_EEE_100TX | MDIO_EEE_1000T
	h.regs.PhyOCP[phy_ocp_eee_lpa] = MDIO_EEE_1000T
	assert.Zero(t, h.regs.PhyOCP[phy_ocp_eee_adv])
	h.up(status_1000)
	m, _ := d.LinkMedium()
	assert.Equal(t, vnet.Medium1000FD, m)

	require.NoError(t, d.SelectMedium(vnet.Medium1000FDEEE))
	assert.Equal(t, uint16(MDIO_EEE_100TX|MDIO_EEE_1000T), h.regs.PhyOCP[phy_ocp_eee_adv])
	assert.Equal(t, uint16(mac_eee_enable_bits), h.regs.MacOCP[mac_ocp_eee_ctrl]&mac_eee_enable_bits)
	h.up(status_1000)
	m, _ = d.LinkMedium()
	assert.Equal(t, vnet.Medium1000FDEEE, m)
	assert.True(t, d.EEE())

	// The partner stops advertising.
	h.regs.PhyOCP[phy_ocp_eee_lpa] = 0
	h.link_change(0)
	h.up(status_1000)
	m, _ = d.LinkMedium()
	assert.Equal(t, vnet.Medium1000FD, m)

	require.NoError(t, d.SelectMedium(vnet.MediumAuto))
	assert.Zero(t, h.regs.PhyOCP[phy_ocp_eee_adv])
	assert.Zero(t, h.regs.MacOCP[mac_ocp_eee_ctrl]&mac_eee_enable_bits)
}

func TestAdvertisement(t *testing.T) {
	const (
		reg_bmcr      = ocp_std_phy + 2*MII_BMCR
		reg_advertise = ocp_std_phy + 2*MII_ADVERTISE
		reg_ctrl1000  = ocp_std_phy + 2*MII_CTRL1000
		all_10_100    = ADVERTISE_10HALF | ADVERTISE_10FULL | ADVERTISE_100HALF | ADVERTISE_100FULL
		pause         = ADVERTISE_PAUSE_CAP | ADVERTISE_PAUSE_ASYM
	)

	h := new_harness(t, txconfig_8125b).enable()
	d := h.d
	r := h.regs.PhyOCP
	assert.Equal(t, uint16(BMCR_ANENABLE|BMCR_ANRESTART), r[reg_bmcr])
	assert.Equal(t, uint16(all_10_100), r[reg_advertise])
	assert.Equal(t, uint16(ADVERTISE_1000FULL), r[reg_ctrl1000])
	assert.Equal(t, uint16(RTK_ADVERTISE_2500FULL), r[phy_ocp_ctrl_2500])

	require.NoError(t, d.SelectMedium(vnet.Medium1000FDFC))
	assert.Equal(t, uint16(pause), r[reg_advertise])
	assert.Equal(t, uint16(ADVERTISE_1000FULL), r[reg_ctrl1000])
	assert.Zero(t, r[phy_ocp_ctrl_2500])
	assert.Equal(t, Negotiating, d.LinkState())

	require.NoError(t, d.SelectMedium(vnet.Medium100HD))
	assert.Equal(t, uint16(ADVERTISE_100HALF), r[reg_advertise])
	assert.Zero(t, r[reg_ctrl1000])

	// Bits outside the advertisement survive.
	r[reg_advertise] |= 0x8000
	require.NoError(t, d.SelectMedium(vnet.Medium10FD))
	assert.Equal(t, uint16(0x8000|ADVERTISE_10FULL), r[reg_advertise])

	// Faster than the chip: clamped to its best.
	require.NoError(t, d.SelectMedium(vnet.Medium5000FDFC))
	assert.Equal(t, vnet.Medium2500FDFC, d.SelectedMedium())
	assert.Equal(t, uint16(RTK_ADVERTISE_2500FULL), r[phy_ocp_ctrl_2500])

	assert.Error(t, d.SelectMedium(vnet.NMedium))
	assert.Equal(t, vnet.Medium2500FDFC, d.SelectedMedium())

	h = new_harness(t, txconfig_8126a).enable()
	assert.Equal(t, uint16(RTK_ADVERTISE_2500FULL|RTK_ADVERTISE_5000FULL), h.regs.PhyOCP[phy_ocp_ctrl_2500])
	require.NoError(t, h.d.SelectMedium(vnet.Medium5000FD))
	assert.Equal(t, vnet.Medium5000FD, h.d.SelectedMedium())

	// Gigabit parts clamp to 1000.
	h = new_harness(t, txconfig_unknown, func(c *Config) { c.Medium = vnet.Medium2500FD })
	assert.Equal(t, vnet.Medium1000FD, h.d.SelectedMedium())
}

func TestPollOnLinkUp(t *testing.T) {
	h := new_harness(t, txconfig_8125b, func(c *Config) { c.PollOnLinkUp = true }).enable()
	d := h.d

	assert.False(t, d.PollMode())
	h.up(status_2500)
	assert.True(t, d.PollMode())
	assert.Equal(t, uint32(intr_poll), h.regs.Read32(uint(IMR0_8125)))

	h.link_change(0)
	assert.False(t, d.PollMode())
	assert.Equal(t, uint32(intr_rxtx), h.regs.Read32(uint(IMR0_8125)))
}
