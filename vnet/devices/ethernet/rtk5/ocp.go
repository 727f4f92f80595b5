// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"time"
)

// Indirect accesses multiplex a wide internal address space through a
// command/data register pair.  Each polls a flag bit a bounded number of
// times and returns all ones when the hardware never answers.

const (
	ocp_flag      = 1 << 31
	ocp_addr_max  = 0xffff
	ocp_std_phy   = 0xa400
	efuse_read_ok = 1 << 31
)

// Standard MII registers reached through mdio_read/mdio_write.
const (
	MII_BMCR      = 0x00
	MII_BMSR      = 0x01
	MII_PHYSID1   = 0x02
	MII_PHYSID2   = 0x03
	MII_ADVERTISE = 0x04
	MII_LPA       = 0x05
	MII_CTRL1000  = 0x09
	MII_STAT1000  = 0x0a
	MII_PAGE      = 0x1f

	BMCR_ANRESTART = 0x0200
	BMCR_ANENABLE  = 0x1000

	ADVERTISE_10HALF     = 0x0020
	ADVERTISE_10FULL     = 0x0040
	ADVERTISE_100HALF    = 0x0080
	ADVERTISE_100FULL    = 0x0100
	ADVERTISE_PAUSE_CAP  = 0x0400
	ADVERTISE_PAUSE_ASYM = 0x0800
	ADVERTISE_1000HALF   = 0x0100
	ADVERTISE_1000FULL   = 0x0200
)

func (d *Dev) wait(n int, delay time.Duration, done func() bool) bool {
	for i := 0; i < n; i++ {
		if delay > 0 {
			time.Sleep(delay)
		}
		if done() {
			return true
		}
	}
	return false
}

func (d *Dev) indirect_timeout(what string, addr uint32) {
	d.counters.indirect_timeouts.Inc(1)
	d.l.WithField("dev", d.name).Debugf("%s 0x%x: timeout", what, addr)
}

func (d *Dev) mac_ocp_write(addr uint32, v uint16) {
	if addr&1 != 0 || addr > ocp_addr_max {
		return
	}
	MACOCP.set(d, ocp_flag|(addr/2)<<16|uint32(v))
}

func (d *Dev) mac_ocp_read(addr uint32) uint16 {
	if addr&1 != 0 || addr > ocp_addr_max {
		return 0xffff
	}
	MACOCP.set(d, (addr/2)<<16)
	return uint16(MACOCP.get(d))
}

func (d *Dev) mac_ocp_set_bits(addr uint32, m uint16) {
	d.mac_ocp_write(addr, d.mac_ocp_read(addr)|m)
}

func (d *Dev) mac_ocp_clear_bits(addr uint32, m uint16) {
	d.mac_ocp_write(addr, d.mac_ocp_read(addr)&^m)
}

func (d *Dev) mac_ocp_modify(addr uint32, clear, set uint16) {
	d.mac_ocp_write(addr, d.mac_ocp_read(addr)&^clear|set)
}

func (d *Dev) phy_ocp_write(addr uint32, v uint16) {
	if addr&1 != 0 || addr > ocp_addr_max {
		return
	}
	PHYOCP.set(d, ocp_flag|(addr/2)<<16|uint32(v))
	c := &d.Config
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool { return PHYOCP.get(d)&ocp_flag == 0 }) {
		d.indirect_timeout("phy ocp write", addr)
	}
}

func (d *Dev) phy_ocp_read(addr uint32) uint16 {
	if addr&1 != 0 || addr > ocp_addr_max {
		return 0xffff
	}
	PHYOCP.set(d, (addr/2)<<16)
	c := &d.Config
	var v uint32
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool {
		v = PHYOCP.get(d)
		return v&ocp_flag != 0
	}) {
		d.indirect_timeout("phy ocp read", addr)
		return 0xffff
	}
	return uint16(v)
}

func (d *Dev) phy_ocp_set_bits(addr uint32, m uint16) {
	d.phy_ocp_write(addr, d.phy_ocp_read(addr)|m)
}

func (d *Dev) phy_ocp_clear_bits(addr uint32, m uint16) {
	d.phy_ocp_write(addr, d.phy_ocp_read(addr)&^m)
}

// MII registers map onto PHY OCP space.  Page 0 is the standard block at
// ocp_std_phy; other pages expose only registers 16-31.
func (d *Dev) mdio_ocp_addr(reg uint32) uint32 {
	if d.phy_page == 0 {
		return ocp_std_phy + reg*2
	}
	if reg < 16 {
		return 0
	}
	return d.phy_page<<4 + (reg-16)*2
}

func (d *Dev) mdio_write(reg uint32, v uint16) {
	if !d.profile.hasOCP() {
		d.phyar_write(reg, v)
		return
	}
	if reg == MII_PAGE {
		d.phy_page = uint32(v)
		return
	}
	d.phy_ocp_write(d.mdio_ocp_addr(reg), v)
}

func (d *Dev) mdio_read(reg uint32) uint16 {
	if !d.profile.hasOCP() {
		return d.phyar_read(reg)
	}
	return d.phy_ocp_read(d.mdio_ocp_addr(reg))
}

// Legacy PHY access register for profiles without PHY OCP.
func (d *Dev) phyar_write(reg uint32, v uint16) {
	PHYAR.set(d, ocp_flag|(reg&0x1f)<<16|uint32(v))
	c := &d.Config
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool { return PHYAR.get(d)&ocp_flag == 0 }) {
		d.indirect_timeout("phyar write", reg)
	}
}

func (d *Dev) phyar_read(reg uint32) uint16 {
	PHYAR.set(d, (reg&0x1f)<<16)
	c := &d.Config
	var v uint32
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool {
		v = PHYAR.get(d)
		return v&ocp_flag != 0
	}) {
		d.indirect_timeout("phyar read", reg)
		return 0xffff
	}
	return uint16(v)
}

const csi_byte_enable = 0xf << 12

func (d *Dev) csi_write(addr uint32, v uint32) {
	CSIDR.set(d, v)
	CSIAR.set(d, ocp_flag|csi_byte_enable|addr&0xfff)
	c := &d.Config
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool { return CSIAR.get(d)&ocp_flag == 0 }) {
		d.indirect_timeout("csi write", addr)
	}
}

func (d *Dev) csi_read(addr uint32) uint32 {
	CSIAR.set(d, csi_byte_enable|addr&0xfff)
	c := &d.Config
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool { return CSIAR.get(d)&ocp_flag != 0 }) {
		d.indirect_timeout("csi read", addr)
		return 0xffffffff
	}
	return CSIDR.get(d)
}

func (d *Dev) ephy_write(reg uint32, v uint16) {
	EPHYAR.set(d, ocp_flag|(reg&0x7f)<<16|uint32(v))
	c := &d.Config
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool { return EPHYAR.get(d)&ocp_flag == 0 }) {
		d.indirect_timeout("ephy write", reg)
	}
}

func (d *Dev) ephy_read(reg uint32) uint16 {
	EPHYAR.set(d, (reg&0x7f)<<16)
	c := &d.Config
	var v uint32
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool {
		v = EPHYAR.get(d)
		return v&ocp_flag != 0
	}) {
		d.indirect_timeout("ephy read", reg)
		return 0xffff
	}
	return uint16(v)
}

// ERI address types.
const (
	ERIAR_ExGMAC = 0
	ERIAR_MSIX   = 1
	ERIAR_ASF    = 2
	ERIAR_OOB    = 3
)

func eri_byte_enable(n uint) uint32 { return (1<<n - 1) & 0xf }

func (d *Dev) eri_write(addr uint32, n uint, v uint32, typ uint32) {
	ERIDR.set(d, v)
	ERIAR.set(d, ocp_flag|typ<<16|eri_byte_enable(n)<<12|addr&0xfff)
	c := &d.Config
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool { return ERIAR.get(d)&ocp_flag == 0 }) {
		d.indirect_timeout("eri write", addr)
	}
}

func (d *Dev) eri_read(addr uint32, n uint, typ uint32) uint32 {
	ERIAR.set(d, typ<<16|eri_byte_enable(n)<<12|addr&0xfff)
	c := &d.Config
	if !d.wait(c.ChannelWaitCount, c.ChannelWaitDelay, func() bool { return ERIAR.get(d)&ocp_flag != 0 }) {
		d.indirect_timeout("eri read", addr)
		return 0xffffffff
	}
	v := ERIDR.get(d)
	if n < 4 {
		v &= 1<<(8*n) - 1
	}
	return v
}

func (d *Dev) efuse_read(reg uint32) uint8 {
	EFUSEAR.set(d, (reg&0x3ff)<<8)
	c := &d.Config
	var v uint32
	if !d.wait(c.EfuseWaitCount, c.ChannelWaitDelay, func() bool {
		v = EFUSEAR.get(d)
		return v&efuse_read_ok != 0
	}) {
		d.indirect_timeout("efuse read", reg)
		return 0xff
	}
	return uint8(v)
}
