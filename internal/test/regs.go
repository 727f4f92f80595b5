// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package test

import (
	"encoding/binary"
	"sync"
)

// Register offsets the chip model gives behavior to.
const (
	reg_mac0            = 0x00
	reg_mac4            = 0x04
	reg_counter_addr_lo = 0x10
	reg_chip_cmd        = 0x37
	reg_isr0            = 0x3c
	reg_tx_config       = 0x40
	reg_phyar           = 0x60
	reg_csidr           = 0x64
	reg_csiar           = 0x68
	reg_phy_status      = 0x6c
	reg_eridr           = 0x70
	reg_eriar           = 0x74
	reg_ephyar          = 0x80
	reg_mac_ocp         = 0xb0
	reg_phy_ocp         = 0xb8
	reg_ll_share_fifo   = 0xd2
	reg_mcu_cmd         = 0xd3
	reg_efusear         = 0xdc
	reg_hw_close_ptr    = 0x2802
	reg_hw_close_ptr_bp = 0x0d34

	RegsBytes = 0x8000
)

const (
	flag_bit       = 1 << 31
	cmd_reset      = 1 << 4
	counter_reset  = 1 << 0
	counter_dump   = 1 << 3
	fifos_empty    = 1<<5 | 1<<4
	ll_share_ready = 1 << 9
)

// Access is one register write seen by the chip model.
type Access struct {
	Offset uint
	Size   int
	Value  uint32
}

// Regs models the parts of an RTL8125 register file the driver depends
// on: self clearing reset, idle fifos, write one to clear interrupt status
// and the flag handshakes of the indirect access channels, which complete
// at once.  Everything else is plain memory.
type Regs struct {
	mu  sync.Mutex
	mem [RegsBytes]byte

	// Indirect spaces keyed by address.
	MacOCP map[uint32]uint16
	PhyOCP map[uint32]uint16
	Mii    map[uint32]uint16
	CSI    map[uint32]uint32
	EPHY   map[uint32]uint16
	ERI    map[uint32]uint32
	Efuse  map[uint32]uint8

	// Channels, by command register offset, that never complete.
	stuck map[uint]bool
	// Keeps CmdReset set after a reset request.
	reset_stuck bool
	// Counter dumps complete as soon as they are requested.
	auto_dump bool

	writes []Access

	// Called after every write, outside the model's lock.
	OnWrite func(a Access)
	// Called when a tally dump is requested.
	OnDump func()
}

func NewRegs(txConfig uint32) *Regs {
	r := &Regs{
		MacOCP: make(map[uint32]uint16),
		PhyOCP: make(map[uint32]uint16),
		Mii:    make(map[uint32]uint16),
		CSI:    make(map[uint32]uint32),
		EPHY:   make(map[uint32]uint16),
		ERI:    make(map[uint32]uint32),
		Efuse:  make(map[uint32]uint8),
		stuck:  make(map[uint]bool),
	}
	r.put(reg_tx_config, 4, txConfig)
	return r
}

func (r *Regs) get(o uint, n int) uint32 {
	b := r.mem[o:]
	switch n {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Regs) put(o uint, n int, v uint32) {
	b := r.mem[o:]
	switch n {
	case 1:
		b[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, v)
	}
}

func (r *Regs) read(o uint, n int) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.get(o, n)
	switch {
	case o == reg_mcu_cmd && n == 1:
		v |= fifos_empty
	case o == reg_ll_share_fifo && n == 2:
		v |= ll_share_ready
	}
	return v
}

func (r *Regs) Read8(o uint) uint8   { return uint8(r.read(o, 1)) }
func (r *Regs) Read16(o uint) uint16 { return uint16(r.read(o, 2)) }
func (r *Regs) Read32(o uint) uint32 { return r.read(o, 4) }

func (r *Regs) Write8(o uint, v uint8)   { r.write(o, 1, uint32(v)) }
func (r *Regs) Write16(o uint, v uint16) { r.write(o, 2, uint32(v)) }
func (r *Regs) Write32(o uint, v uint32) { r.write(o, 4, v) }

func (r *Regs) write(o uint, n int, v uint32) {
	a := Access{Offset: o, Size: n, Value: v}
	r.mu.Lock()
	r.writes = append(r.writes, a)
	dump := false
	switch {
	case o == reg_chip_cmd && n == 1:
		if !r.reset_stuck {
			v &^= cmd_reset
		}
		r.put(o, n, v)
	case o == reg_isr0 && n == 4:
		r.put(o, n, r.get(o, n)&^v)
	case o == reg_counter_addr_lo && n == 4:
		v &^= counter_reset
		if v&counter_dump != 0 && r.auto_dump {
			v &^= counter_dump
			dump = true
		}
		r.put(o, n, v)
	case o == reg_mac_ocp && n == 4:
		r.mac_ocp(v)
	case o == reg_phy_ocp && n == 4:
		r.handshake(o, v, r.PhyOCP, (v>>16&0x7fff)*2)
	case o == reg_phyar && n == 4:
		r.handshake(o, v, r.Mii, v>>16&0x1f)
	case o == reg_ephyar && n == 4:
		r.handshake(o, v, r.EPHY, v>>16&0x7f)
	case o == reg_csiar && n == 4:
		r.data_handshake(o, reg_csidr, v, r.CSI, v&0xfff)
	case o == reg_eriar && n == 4:
		r.data_handshake(o, reg_eridr, v, r.ERI, (v>>16&3)<<16|v&0xfff)
	case o == reg_efusear && n == 4:
		r.efuse(v)
	default:
		r.put(o, n, v)
	}
	hook, on_dump := r.OnWrite, r.OnDump
	r.mu.Unlock()

	if dump && on_dump != nil {
		on_dump()
	}
	if hook != nil {
		hook(a)
	}
}

// MAC OCP reads need no handshake: the value is there on the next read.
func (r *Regs) mac_ocp(v uint32) {
	addr := (v >> 16 & 0x7fff) * 2
	if v&flag_bit != 0 {
		r.MacOCP[addr] = uint16(v)
		r.put(reg_mac_ocp, 4, v&^flag_bit)
		return
	}
	r.put(reg_mac_ocp, 4, v&0xffff0000|uint32(r.MacOCP[addr]))
}

// handshake runs a channel whose command register carries the data.  The
// flag is cleared when a write completes and set when a read completes.
func (r *Regs) handshake(o uint, v uint32, m map[uint32]uint16, addr uint32) {
	switch {
	case r.stuck[o]:
		r.put(o, 4, v)
	case v&flag_bit != 0:
		m[addr] = uint16(v)
		r.put(o, 4, v&^flag_bit)
	default:
		r.put(o, 4, v&0xffff0000|flag_bit|uint32(m[addr]))
	}
}

// data_handshake runs a channel with a separate data register.
func (r *Regs) data_handshake(o, data uint, v uint32, m map[uint32]uint32, addr uint32) {
	switch {
	case r.stuck[o]:
		r.put(o, 4, v)
	case v&flag_bit != 0:
		m[addr] = r.get(data, 4)
		r.put(o, 4, v&^flag_bit)
	default:
		r.put(data, 4, m[addr])
		r.put(o, 4, v|flag_bit)
	}
}

func (r *Regs) efuse(v uint32) {
	if r.stuck[reg_efusear] {
		r.put(reg_efusear, 4, v&^flag_bit)
		return
	}
	reg := v >> 8 & 0x3ff
	r.put(reg_efusear, 4, flag_bit|reg<<8|uint32(r.Efuse[reg]))
}

// Stick makes the channel whose command register is at o ignore requests.
func (r *Regs) Stick(o uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stuck[o] = true
}

// StickReset keeps the chip in reset.
func (r *Regs) StickReset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset_stuck = true
}

// AutoDump completes tally dumps as soon as they are requested.
func (r *Regs) AutoDump() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auto_dump = true
}

// CompleteDump clears a pending tally dump request.
func (r *Regs) CompleteDump() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(reg_counter_addr_lo, 4, r.get(reg_counter_addr_lo, 4)&^counter_dump)
}

// Raise sets interrupt status bits.
func (r *Regs) Raise(bits uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(reg_isr0, 4, r.get(reg_isr0, 4)|bits)
}

func (r *Regs) SetPHYStatus(v uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(reg_phy_status, 2, uint32(v))
}

// SetClosePtr sets the hardware tx close pointer.
func (r *Regs) SetClosePtr(v uint32, wide bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wide {
		r.put(reg_hw_close_ptr_bp, 4, v)
	} else {
		r.put(reg_hw_close_ptr, 2, v)
	}
}

// SetMAC presets the station address registers.
func (r *Regs) SetMAC(a [6]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(reg_mac0, 4, binary.LittleEndian.Uint32(a[:4]))
	r.put(reg_mac4, 4, uint32(binary.LittleEndian.Uint16(a[4:])))
}

// Writes returns the writes seen so far.
func (r *Regs) Writes() []Access {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Access(nil), r.writes...)
}

// WriteCount counts writes to o.
func (r *Regs) WriteCount(o uint) (n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.writes {
		if a.Offset == o {
			n++
		}
	}
	return
}

// LastWrite returns the last value written to o.
func (r *Regs) LastWrite(o uint) (v uint32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.writes) - 1; i >= 0; i-- {
		if a := r.writes[i]; a.Offset == o {
			return a.Value, true
		}
	}
	return
}

func (r *Regs) ClearWrites() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}

// PCIConfig is a config space for bus error recovery tests.  Status
// error bits are write one to clear.
type PCIConfig struct {
	mu  sync.Mutex
	cfg map[uint]uint16
}

const (
	pci_config_status = 0x06
	pci_status_errors = 0xf900
)

func NewPCIConfig() *PCIConfig { return &PCIConfig{cfg: make(map[uint]uint16)} }

func (c *PCIConfig) ReadConfigUint16(o uint) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg[o]
}

func (c *PCIConfig) WriteConfigUint16(o uint, v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o == pci_config_status {
		c.cfg[o] &^= v & pci_status_errors
		return
	}
	c.cfg[o] = v
}

// Set stores v without write one to clear semantics.
func (c *PCIConfig) Set(o uint, v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg[o] = v
}
