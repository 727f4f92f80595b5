// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
)

// Space selects the address space of a tuning write.
type Space uint8

const (
	SpaceMMIO8 Space = iota
	SpaceMMIO16
	SpaceMMIO32
	SpaceMacOCP
	SpacePhyOCP
	SpaceCSI
	SpaceEPHY
	SpaceERI
	// Read only.
	SpaceEfuse
)

var spaceNames = [...]string{
	SpaceMMIO8:  "mmio8",
	SpaceMMIO16: "mmio16",
	SpaceMMIO32: "mmio32",
	SpaceMacOCP: "mac-ocp",
	SpacePhyOCP: "phy-ocp",
	SpaceCSI:    "csi",
	SpaceEPHY:   "ephy",
	SpaceERI:    "eri",
	SpaceEfuse:  "efuse",
}

func (s Space) String() string {
	if int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("space(%d)", uint8(s))
}

func (s Space) width_mask() uint32 {
	switch s {
	case SpaceMMIO8, SpaceEfuse:
		return 0xff
	case SpaceMMIO32, SpaceCSI, SpaceERI:
		return 0xffffffff
	}
	return 0xffff
}

// reg_write clears mask bits then sets value bits.  A mask covering the
// whole register is a plain write with no read.
type reg_write struct {
	space Space
	addr  uint32
	mask  uint32
	value uint32
}

func (w reg_write) String() string {
	return fmt.Sprintf("%v 0x%04x &^0x%x |0x%x", w.space, w.addr, w.mask, w.value)
}

// Read reads a register in any space.  Used by tuning and the debug shell.
func (d *Dev) Read(s Space, addr uint32) uint32 {
	switch s {
	case SpaceMMIO8:
		return uint32(d.regs.Read8(uint(addr)))
	case SpaceMMIO16:
		return uint32(d.regs.Read16(uint(addr)))
	case SpaceMMIO32:
		return d.regs.Read32(uint(addr))
	case SpaceMacOCP:
		return uint32(d.mac_ocp_read(addr))
	case SpacePhyOCP:
		return uint32(d.phy_ocp_read(addr))
	case SpaceCSI:
		return d.csi_read(addr)
	case SpaceEPHY:
		return uint32(d.ephy_read(addr))
	case SpaceERI:
		return d.eri_read(addr, 4, ERIAR_ExGMAC)
	case SpaceEfuse:
		return uint32(d.efuse_read(addr))
	}
	return 0xffffffff
}

func (d *Dev) Write(s Space, addr, v uint32) {
	switch s {
	case SpaceMMIO8:
		d.regs.Write8(uint(addr), uint8(v))
	case SpaceMMIO16:
		d.regs.Write16(uint(addr), uint16(v))
	case SpaceMMIO32:
		d.regs.Write32(uint(addr), v)
	case SpaceMacOCP:
		d.mac_ocp_write(addr, uint16(v))
	case SpacePhyOCP:
		d.phy_ocp_write(addr, uint16(v))
	case SpaceCSI:
		d.csi_write(addr, v)
	case SpaceEPHY:
		d.ephy_write(addr, uint16(v))
	case SpaceERI:
		d.eri_write(addr, 4, v, ERIAR_ExGMAC)
	}
}

func (d *Dev) apply_tuning(t []reg_write) {
	for _, w := range t {
		wm := w.space.width_mask()
		v := w.value
		if w.mask&wm != wm {
			v |= d.Read(w.space, w.addr) &^ w.mask
		}
		d.Write(w.space, w.addr, v&wm)
	}
}

const (
	bit0  = 1 << 0
	bit1  = 1 << 1
	bit2  = 1 << 2
	bit3  = 1 << 3
	bit4  = 1 << 4
	bit5  = 1 << 5
	bit6  = 1 << 6
	bit7  = 1 << 7
	bit8  = 1 << 8
	bit9  = 1 << 9
	bit10 = 1 << 10
	bit11 = 1 << 11
	bit12 = 1 << 12
	bit14 = 1 << 14
)

// MAC tuning common to every 8125 and 8126 revision.  Replayed by init_hw
// with Cfg9346 unlocked, after the ring bases are programmed.
var tuning_common = []reg_write{
	{SpaceMMIO8, 0xf1, bit7, 0},
	{SpaceMMIO8, uint32(Config2), bit7, 0},
	{SpaceMMIO8, uint32(Config5), bit0, 0},
	// Keep only bit 0.
	{SpaceMacOCP, 0xc0b6, 0xfffe, 0},
	{SpaceMMIO32, 0x4500, 0xffffffff, 0},
	{SpaceMMIO16, 0x4800, 0xffff, 0},
	{SpaceMMIO8, uint32(Config1), 0x10, 0},
	{SpaceMacOCP, 0xc140, 0xffff, 0xffff},
	{SpaceMacOCP, 0xc142, 0xffff, 0xffff},
	{SpaceMMIO8, 0xd8, EnableRxDescV4_0, 0},
	{SpaceMacOCP, 0xe63e, bit11 | bit10, 0},
	{SpaceMacOCP, 0xe63e, bit5 | bit4, 2 << 4},
	{SpaceMacOCP, 0xc0b4, bit0, 0},
	{SpaceMacOCP, 0xc0b4, 0, bit0},
	{SpaceMacOCP, 0xc0b4, 0, bit3 | bit2},
	{SpaceMacOCP, 0xeb6a, 0xff, bit5 | bit4 | bit1 | bit0},
	{SpaceMacOCP, 0xeb50, 0x3e0, bit6},
	{SpaceMacOCP, 0xe056, 0xf0, 0},
	{SpaceMMIO8, uint32(TDFNR), 0xff, 0x10},
	{SpaceMacOCP, 0xe040, bit12, 0},
	{SpaceMacOCP, 0xea1c, bit1 | bit0, bit0},
	{SpaceMacOCP, 0xe0c0, 0xffff, 0x4000},
	{SpaceMacOCP, 0xe052, 0, bit6 | bit5},
	{SpaceMacOCP, 0xe052, bit7 | bit3, 0},
	{SpaceMacOCP, 0xd430, 0xfff, 0x45f},
	{SpaceMMIO8, 0xd0, 0, bit7 | bit6},
	// EEE plus off.
	{SpaceMacOCP, 0xe080, bit1, 0},
	// Clear TCAM entries.
	{SpaceMacOCP, 0xeb54, 0, bit0},
	{SpaceMacOCP, 0xeb54, bit0, 0},
	{SpaceMMIO16, 0x1880, bit5 | bit4, 0},
	{SpaceMacOCP, 0xe098, 0xffff, 0xc302},
}

var tuning_8125 = append(append([]reg_write{}, tuning_common...),
	reg_write{SpaceMacOCP, 0xeb58, bit0, 0},
	reg_write{SpaceMacOCP, 0xea1c, bit2, 0},
)

var tuning_8126 = append(append([]reg_write{}, tuning_common...),
	reg_write{SpaceCSI, 0x890, bit0, 0},
	reg_write{SpaceMacOCP, 0xeb58, bit0, 0},
	reg_write{SpaceMacOCP, 0xea1c, bit2, 0},
)

// Revision specific fixups applied after the profile table.
func (d *Dev) tuning_fixups() {
	switch d.profile.Method {
	case CFG_METHOD_32, CFG_METHOD_33:
		d.mac_ocp_clear_bits(0xeb58, bit1)
		d.mac_ocp_clear_bits(0xea1c, bit9|bit8)
	}
	if d.profile.ExtendTallyCounter {
		d.mac_ocp_set_bits(0xea84, bit1|bit0)
	}
	// Tx DMA fetch depth depends on no-close mode.
	v := uint16(3 << 8)
	if d.tx_no_close {
		v = 4 << 8
	}
	d.mac_ocp_modify(0xe614, bit10|bit9|bit8, v)
}
