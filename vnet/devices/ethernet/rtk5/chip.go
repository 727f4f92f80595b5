// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
)

// Method names a hardware configuration method; each silicon revision has
// its own init sequence and feature set.
type Method uint8

const (
	CFG_METHOD_DEFAULT Method = 0
	CFG_METHOD_2       Method = 2
	CFG_METHOD_3       Method = 3
	CFG_METHOD_4       Method = 4
	CFG_METHOD_5       Method = 5
	CFG_METHOD_6       Method = 6
	CFG_METHOD_7       Method = 7
	CFG_METHOD_8       Method = 8
	CFG_METHOD_9       Method = 9
	CFG_METHOD_10      Method = 10
	CFG_METHOD_11      Method = 11
	CFG_METHOD_12      Method = 12
	CFG_METHOD_13      Method = 13
	CFG_METHOD_31      Method = 31
	CFG_METHOD_32      Method = 32
	CFG_METHOD_33      Method = 33
)

func (m Method) String() string {
	if m == CFG_METHOD_DEFAULT {
		return "CFG_METHOD_DEFAULT"
	}
	return fmt.Sprintf("CFG_METHOD_%d", uint8(m))
}

// TxConfig fields used for identification.
const (
	txconfig_family_mask   = 0x7c800000
	txconfig_revision_mask = 0x00700000
	txconfig_revision_unit = 0x00100000
)

// Tx pointer register widths by no-close version.
const (
	MAX_TX_NO_CLOSE_DESC_PTR_MASK_V2 = 0xffff
	MAX_TX_NO_CLOSE_DESC_PTR_MASK_V3 = 0xffffffff
	MAX_TX_NO_CLOSE_DESC_PTR_MASK_V4 = 0x7fffffff
)

// Largest frame accepted with jumbo enabled.
const jumbo_9k = 9*1024 - 14 - 4

// EEE advertisement bits (clause 45 register 7.60 layout).
const (
	MDIO_EEE_100TX = 0x0002
	MDIO_EEE_1000T = 0x0004
	MDIO_EEE_2_5GT = 0x0001
	MDIO_EEE_5GT   = 0x0002
)

// ChipProfile describes one silicon revision.  It is immutable once
// identified.
type ChipProfile struct {
	Name           string
	Method         Method
	RamCodeVersion uint16
	DMABurst       uint32
	JumboFrameSize uint
	RCRConfig      uint32
	RxConfigMask   uint32
	// Mbps.
	MaxLinkSpeed uint
	// EEE abilities advertised by default.
	EEECap uint16

	TxNoCloseVersion     uint8
	PointerMask          uint32
	IsrVersion           uint8
	IntMitigationVersion uint8
	TcamVersion          uint8
	RssVersion           uint8
	PtpVersion           uint8
	MacMcuVersion        uint8
	ExtendTallyCounter   bool
	EfuseVersion         uint8
	NumTxQueues          uint8
	NumRxQueues          uint8

	// HW_CLO_PTR0 reports the hardware's close index.
	HasCloseRegister bool
	// 32 bit tail/close registers at 0x0d30/0x0d34.
	WidePointers bool

	Tuning []reg_write

	// Set when the revision was not recognized and a fallback was chosen.
	Unknown bool
}

func (p ChipProfile) String() (s string) {
	s = fmt.Sprintf("%s (%v)", p.Name, p.Method)
	if p.Unknown {
		s += " unknown revision"
	}
	return
}

// OCP access exists on every identified method; the default profile falls
// back to legacy PHYAR access.
func (p ChipProfile) hasOCP() bool { return p.Method != CFG_METHOD_DEFAULT }

func (p ChipProfile) HasTxNoClose() bool { return p.TxNoCloseVersion > 0 && p.HasCloseRegister }

func (p ChipProfile) SwTailOffset() uint {
	if p.WidePointers {
		return uint(SW_TAIL_PTR0_8125BP)
	}
	return uint(SW_TAIL_PTR0_8125)
}

func (p ChipProfile) HwCloseOffset() uint {
	if p.WidePointers {
		return uint(HW_CLO_PTR0_8125BP)
	}
	return uint(HW_CLO_PTR0_8125)
}

// Close pointer mask limited to the width of the register that holds it.
func (p ChipProfile) ptr_mask() uint32 {
	if p.WidePointers {
		return p.PointerMask
	}
	return p.PointerMask & 0xffff
}

func (p ChipProfile) SupportsSpeed(mbps uint) bool { return mbps <= p.MaxLinkSpeed }

func (p ChipProfile) is8126() bool { return p.Method >= CFG_METHOD_31 && p.Method <= CFG_METHOD_33 }

func pointer_mask(txNoCloseVersion uint8) uint32 {
	switch txNoCloseVersion {
	case 5, 6:
		return MAX_TX_NO_CLOSE_DESC_PTR_MASK_V4
	case 4:
		return MAX_TX_NO_CLOSE_DESC_PTR_MASK_V3
	case 3:
		return MAX_TX_NO_CLOSE_DESC_PTR_MASK_V2
	}
	return MAX_TX_NO_CLOSE_DESC_PTR_MASK_V2
}

const (
	rcr_config_8125 = Rx_Fetch_Number_8 | Rx_Close_Multiple | pause_slot_en | RX_DMA_BURST_512<<RxCfgDMAShift
	rx_config_mask  = 0xff7e5880
)

func profile_8125(name string, m Method, ramCode uint16, txNoClose uint8) ChipProfile {
	return ChipProfile{
		Name:                 name,
		Method:               m,
		RamCodeVersion:       ramCode,
		DMABurst:             TX_DMA_BURST_512,
		JumboFrameSize:       jumbo_9k,
		RCRConfig:            rcr_config_8125,
		RxConfigMask:         rx_config_mask,
		MaxLinkSpeed:         2500,
		EEECap:               MDIO_EEE_100TX | MDIO_EEE_1000T,
		TxNoCloseVersion:     txNoClose,
		PointerMask:          pointer_mask(txNoClose),
		IsrVersion:           2,
		IntMitigationVersion: 3,
		TcamVersion:          1,
		RssVersion:           2,
		PtpVersion:           1,
		MacMcuVersion:        1,
		EfuseVersion:         4,
		NumTxQueues:          2,
		NumRxQueues:          4,
		HasCloseRegister:     true,
		Tuning:               tuning_8125,
	}
}

func profile_8126(m Method, ramCode uint16, txNoClose uint8) ChipProfile {
	p := profile_8125("RTL8126A", m, ramCode, txNoClose)
	p.MaxLinkSpeed = 5000
	p.IsrVersion = 3
	p.IntMitigationVersion = 5
	p.TcamVersion = 2
	p.RssVersion = 5
	p.PtpVersion = 2
	p.MacMcuVersion = 2
	p.ExtendTallyCounter = true
	p.Tuning = tuning_8126
	if m == CFG_METHOD_31 {
		p.IsrVersion = 2
		p.IntMitigationVersion = 4
	}
	return p
}

var profiles = map[Method]ChipProfile{}

func init() {
	for _, p := range []ChipProfile{
		profile_8125("RTL8125A", CFG_METHOD_2, 0x0b11, 3),
		profile_8125("RTL8125A", CFG_METHOD_3, 0x0b33, 3),
		profile_8125("RTL8125B", CFG_METHOD_4, 0x0b17, 6),
		profile_8125("RTL8125B", CFG_METHOD_5, 0x0b99, 6),
		profile_8125("RTL8168KB", CFG_METHOD_6, 0x0b33, 3),
		profile_8125("RTL8168KB", CFG_METHOD_7, 0x0b99, 6),
		profile_8125("RTL8125BP", CFG_METHOD_8, 0x0013, 6),
		profile_8125("RTL8125BP", CFG_METHOD_9, 0x0001, 6),
		profile_8125("RTL8125D", CFG_METHOD_10, 0x0027, 6),
		profile_8125("RTL8125D", CFG_METHOD_11, 0x0031, 6),
		profile_8125("RTL8125CP", CFG_METHOD_12, 0x0010, 6),
		profile_8125("RTL8125CP", CFG_METHOD_13, 0x0010, 6),
		profile_8126(CFG_METHOD_31, 0x0023, 4),
		profile_8126(CFG_METHOD_32, 0x0033, 5),
		profile_8126(CFG_METHOD_33, 0x0060, 5),
	} {
		if p.Method == CFG_METHOD_8 || p.Method == CFG_METHOD_9 {
			p.WidePointers = true
		}
		profiles[p.Method] = p
	}
}

// DefaultProfile is used for unrecognized silicon: no offloads that depend
// on revision specifics, legacy doorbell, 16 bit pointers, gigabit.
var DefaultProfile = ChipProfile{
	Name:           "unknown",
	Method:         CFG_METHOD_DEFAULT,
	DMABurst:       TX_DMA_BURST_512,
	JumboFrameSize: jumbo_9k,
	RCRConfig:      rcr_config_8125,
	RxConfigMask:   rx_config_mask,
	MaxLinkSpeed:   1000,
	EEECap:         MDIO_EEE_100TX | MDIO_EEE_1000T,
	PointerMask:    MAX_TX_NO_CLOSE_DESC_PTR_MASK_V2,
	NumTxQueues:    1,
	NumRxQueues:    1,
	Unknown:        true,
}

type family struct {
	name    string
	txcfg   uint32
	methods []Method
}

var families = []family{
	{name: "RTL8125A", txcfg: 0x60800000, methods: []Method{CFG_METHOD_2, CFG_METHOD_3}},
	{name: "RTL8125B", txcfg: 0x64000000, methods: []Method{CFG_METHOD_4, CFG_METHOD_5}},
	{name: "RTL8125BP", txcfg: 0x68000000, methods: []Method{CFG_METHOD_8, CFG_METHOD_9}},
	{name: "RTL8125D", txcfg: 0x68800000, methods: []Method{CFG_METHOD_10, CFG_METHOD_11}},
	{name: "RTL8125CP", txcfg: 0x70800000, methods: []Method{CFG_METHOD_12, CFG_METHOD_13}},
	{name: "RTL8126A", txcfg: 0x64800000, methods: []Method{CFG_METHOD_31, CFG_METHOD_32, CFG_METHOD_33}},
}

// PCI device ids.
const (
	dev_id_8125 = 0x8125
	dev_id_3000 = 0x3000
	dev_id_8126 = 0x8126
	dev_id_5000 = 0x5000
	dev_id_8162 = 0x8162
)

// Identify maps the TxConfig hardware version fields to a profile.
// Unknown revisions of a known family resolve to the family's newest entry;
// an unknown family yields DefaultProfile and ErrUnknownChip.
func Identify(txConfig uint32, deviceID uint16) (p ChipProfile, err error) {
	fam, rev := txConfig&txconfig_family_mask, (txConfig&txconfig_revision_mask)/txconfig_revision_unit
	for i := range families {
		f := &families[i]
		if f.txcfg != fam {
			continue
		}
		unknown := false
		if int(rev) >= len(f.methods) {
			rev = uint32(len(f.methods) - 1)
			unknown = true
		}
		m := f.methods[rev]
		// RTL8168KB shares the 8125A/B silicon encodings.
		if deviceID == dev_id_8162 && (f.txcfg == 0x60800000 || f.txcfg == 0x64000000) {
			m = CFG_METHOD_7
			if rev == 0 {
				m = CFG_METHOD_6
			}
		}
		p = profiles[m]
		p.Unknown = unknown
		return
	}
	p = DefaultProfile
	err = fmt.Errorf("%w: txconfig 0x%08x", ErrUnknownChip, txConfig)
	return
}

// deviceIDMatches reports whether the PCI device id agrees with the family
// found in TxConfig.
func deviceIDMatches(p *ChipProfile, deviceID uint16) bool {
	switch deviceID {
	case dev_id_8126, dev_id_5000:
		return p.is8126()
	case dev_id_8125, dev_id_3000:
		return !p.is8126() && p.Method != CFG_METHOD_6 && p.Method != CFG_METHOD_7
	case dev_id_8162:
		return p.Method == CFG_METHOD_6 || p.Method == CFG_METHOD_7
	}
	return true
}
