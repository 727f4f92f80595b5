// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
	"net"
	"slices"
)

// Beyond this many groups the hash filter passes all multicast.
const max_multicast_filter = 32

// ether_crc is the big endian ethernet CRC32 the multicast hash uses.
func ether_crc(addr []byte) uint32 {
	const poly = 0x04c11db7
	crc := ^uint32(0)
	for _, b := range addr {
		for bit := 0; bit < 8; bit, b = bit+1, b>>1 {
			msb := crc >> 31
			crc <<= 1
			if msb^uint32(b&1) != 0 {
				crc ^= poly
			}
		}
	}
	return crc
}

// multicast_filter returns the MAR0 and MAR4 values for addrs.
func multicast_filter(addrs []net.HardwareAddr) (mar0, mar4 uint32) {
	var filter uint64
	for _, a := range addrs {
		bit := ether_crc(a) >> 26
		filter |= 1 << (bit & 0x3f)
	}
	// MAR4 holds the low hash bits byte swapped.
	mar0 = byteswap32(uint32(filter >> 32))
	mar4 = byteswap32(uint32(filter))
	return
}

func byteswap32(v uint32) uint32 {
	return v>>24 | v>>8&0xff00 | v<<8&0xff0000 | v<<24
}

// set_rx_mode programs RxConfig accept bits and the multicast filter.
func (d *Dev) set_rx_mode() {
	rx_mode := uint32(AcceptBroadcast | AcceptMyPhys)
	mar0, mar4 := ^uint32(0), ^uint32(0)
	switch {
	case d.promiscuous.Load():
		rx_mode |= AcceptMulticast | AcceptAllPhys
	case d.multicast.Load() || len(d.mc_addrs) > max_multicast_filter:
		rx_mode |= AcceptMulticast
	case len(d.mc_addrs) > 0:
		rx_mode |= AcceptMulticast
		mar0, mar4 = multicast_filter(d.mc_addrs)
	default:
		mar0, mar4 = 0, 0
	}
	rx_mode |= d.profile.RCRConfig | RxConfig.get(d)&d.profile.RxConfigMask &^ acceptAll
	RxConfig.set(d, rx_mode)
	MAR0.set(d, mar0)
	MAR4.set(d, mar4)
}

func (d *Dev) SetPromiscuous(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.promiscuous.Store(on)
	if d.enabled.Load() {
		d.set_rx_mode()
	}
}

// SetMulticastAll accepts every multicast group.
func (d *Dev) SetMulticastAll(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.multicast.Store(on)
	if d.enabled.Load() {
		d.set_rx_mode()
	}
}

// SetMulticastList replaces the multicast groups of the hash filter.
func (d *Dev) SetMulticastList(addrs []net.HardwareAddr) (err error) {
	for _, a := range addrs {
		if len(a) != 6 || a[0]&1 == 0 {
			return fmt.Errorf("rtk5: %v: not a multicast address", a)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mc_addrs = slices.Clone(addrs)
	if d.enabled.Load() {
		d.set_rx_mode()
	}
	return
}

func (d *Dev) read_hw_addr() net.HardwareAddr {
	lo, hi := MAC0.get(d), MAC4.get(d)
	return net.HardwareAddr{
		byte(lo), byte(lo >> 8), byte(lo >> 16), byte(lo >> 24),
		byte(hi), byte(hi >> 8),
	}
}

func (d *Dev) HardwareAddress() net.HardwareAddr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.hw_addr)
}

// SetHardwareAddress programs the station address and its backup copy.
func (d *Dev) SetHardwareAddress(a net.HardwareAddr) (err error) {
	if len(a) != 6 {
		return fmt.Errorf("rtk5: %v: bad ethernet address", a)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	lo := uint32(a[0]) | uint32(a[1])<<8 | uint32(a[2])<<16 | uint32(a[3])<<24
	hi := uint32(a[4]) | uint32(a[5])<<8

	Cfg9346.set(d, Cfg9346_Unlock)
	MAC4.set(d, hi)
	MAC0.set(d, lo)
	BACKUP_ADDR0_8125.set(d, lo)
	BACKUP_ADDR1_8125.set(d, uint16(hi))
	Cfg9346.set(d, Cfg9346_Lock)
	d.hw_addr = slices.Clone(a)
	return
}
