// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Driver for Realtek RTL8125/RTL8126 2.5G/5G Ethernet controllers.
package rtk5

// Regs is the MMIO window of the device.  Values are little endian on the
// bus; implementations convert to host order.
type Regs interface {
	Read8(o uint) uint8
	Read16(o uint) uint16
	Read32(o uint) uint32
	Write8(o uint, v uint8)
	Write16(o uint, v uint16)
	Write32(o uint, v uint32)
}

type reg8 uint
type reg16 uint
type reg32 uint

func (r reg8) get(d *Dev) uint8      { return d.regs.Read8(uint(r)) }
func (r reg8) set(d *Dev, v uint8)   { d.regs.Write8(uint(r), v) }
func (r reg16) get(d *Dev) uint16    { return d.regs.Read16(uint(r)) }
func (r reg16) set(d *Dev, v uint16) { d.regs.Write16(uint(r), v) }
func (r reg32) get(d *Dev) uint32    { return d.regs.Read32(uint(r)) }
func (r reg32) set(d *Dev, v uint32) { d.regs.Write32(uint(r), v) }

func (r reg8) or(d *Dev, v uint8) (x uint8) {
	x = r.get(d) | v
	r.set(d, x)
	return
}
func (r reg8) andnot(d *Dev, v uint8) (x uint8) {
	x = r.get(d) &^ v
	r.set(d, x)
	return
}
func (r reg16) or(d *Dev, v uint16) (x uint16) {
	x = r.get(d) | v
	r.set(d, x)
	return
}
func (r reg16) andnot(d *Dev, v uint16) (x uint16) {
	x = r.get(d) &^ v
	r.set(d, x)
	return
}
func (r reg32) or(d *Dev, v uint32) (x uint32) {
	x = r.get(d) | v
	r.set(d, x)
	return
}
func (r reg32) andnot(d *Dev, v uint32) (x uint32) {
	x = r.get(d) &^ v
	r.set(d, x)
	return
}

// Register offsets.
const (
	MAC0                reg32 = 0x00
	MAC4                reg32 = 0x04
	MAR0                reg32 = 0x08
	MAR4                reg32 = 0x0c
	CounterAddrLow      reg32 = 0x10
	CounterAddrHigh     reg32 = 0x14
	TxDescStartAddrLow  reg32 = 0x20
	TxDescStartAddrHigh reg32 = 0x24
	INT_CFG0_8125       reg8  = 0x34
	ChipCmd             reg8  = 0x37
	IMR0_8125           reg32 = 0x38
	ISR0_8125           reg32 = 0x3c
	TxConfig            reg32 = 0x40
	RxConfig            reg32 = 0x44
	TCTR0_8125          reg32 = 0x48
	Cfg9346             reg8  = 0x50
	Config1             reg8  = 0x52
	Config2             reg8  = 0x53
	Config3             reg8  = 0x54
	Config4             reg8  = 0x55
	Config5             reg8  = 0x56
	TDFNR               reg8  = 0x57
	TIMER_INT0_8125     reg32 = 0x58
	PHYAR               reg32 = 0x60
	CSIDR               reg32 = 0x64
	CSIAR               reg32 = 0x68
	PHYstatus           reg16 = 0x6c
	ERIDR               reg32 = 0x70
	ERIAR               reg32 = 0x74
	EPHYAR              reg32 = 0x80
	TPPOLL_8125         reg8  = 0x90
	MACOCP              reg32 = 0xb0
	PHYOCP              reg32 = 0xb8
	LLShareFifo         reg16 = 0xd2
	MCUCmd              reg8  = 0xd3
	RxMaxSize           reg16 = 0xda
	EFUSEAR             reg32 = 0xdc
	CPlusCmd            reg16 = 0xe0
	IntrMitigate        reg16 = 0xe2
	RxDescAddrLow       reg32 = 0xe4
	RxDescAddrHigh      reg32 = 0xe8
	MiscRxDvGate        reg8  = 0xf2
	BACKUP_ADDR0_8125   reg32 = 0x19e0
	BACKUP_ADDR1_8125   reg16 = 0x19e4
	SW_TAIL_PTR0_8125   reg16 = 0x2800
	HW_CLO_PTR0_8125    reg16 = 0x2802
	SW_TAIL_PTR0_8125BP reg32 = 0x0d30
	HW_CLO_PTR0_8125BP  reg32 = 0x0d34
)

// ChipCmd bits.
const (
	StopReq  = 1 << 7
	CmdReset = 1 << 4
	CmdRxEnb = 1 << 3
	CmdTxEnb = 1 << 2
)

// Cfg9346 bits.
const (
	Cfg9346_Lock   = 0x00
	Cfg9346_Unlock = 0xc0
)

// MCUCmd bits.
const (
	Now_is_oob   = 1 << 7
	Txfifo_empty = 1 << 5
	Rxfifo_empty = 1 << 4
)

// RxConfig bits.
const (
	AcceptErr       = 0x20
	AcceptRunt      = 0x10
	AcceptBroadcast = 0x08
	AcceptMulticast = 0x04
	AcceptMyPhys    = 0x02
	AcceptAllPhys   = 0x01

	acceptAll = AcceptErr | AcceptRunt | AcceptBroadcast | AcceptMulticast | AcceptMyPhys | AcceptAllPhys

	Rx_Fetch_Number_8 = 1 << 30
	OuterVlan         = 1 << 23
	InnerVlan         = 1 << 22
	Rx_Close_Multiple = 1 << 21
	pause_slot_en     = 1 << 11
	RxCfgDMAShift     = 8
	RX_DMA_BURST_512  = 5

	// Lives in register 0xd8, not RxConfig.
	EnableRxDescV4_0 = 1 << 1
)

// TxConfig bits.
const (
	TxDMAShift           = 8
	TxInterFrameGapShift = 24
	InterFrameGap        = 3
	TxNoCloseEnable      = 1 << 6
	TX_DMA_BURST_512     = 5
	TX_DMA_BURST_max     = 7
)

// CPlusCmd bits.
const (
	RxChkSum = 1 << 5
	RxVlan   = 1 << 6
)

// CounterAddrLow bits.
const (
	CounterReset = 1 << 0
	CounterDump  = 1 << 3
)

// PHYstatus bits.
const (
	PowerSaveStatus = 0x800
	_5000bpsF       = 0x1000
	_2500bpsF       = 0x400
	TxFlowCtrl      = 0x40
	RxFlowCtrl      = 0x20
	_1000bpsF       = 0x10
	_100bps         = 0x08
	_10bps          = 0x04
	LinkStatus      = 0x02
	FullDup         = 0x01
)
