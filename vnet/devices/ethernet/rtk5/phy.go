// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"github.com/platinasystems/rtk5/vnet"
)

// PHY OCP registers.
const (
	phy_ocp_giga_lite   = 0xa428
	phy_ocp_giga_lite2  = 0xa5ea
	phy_ocp_eee_sup     = 0xa5c4
	phy_ocp_eee_adv     = 0xa5d0
	phy_ocp_eee_lpa     = 0xa5d2
	phy_ocp_ctrl_2500   = 0xa5d4
	phy_ocp_eee_adv2    = 0xa6d4
	mac_ocp_eee_ctrl    = 0xe040
	mac_eee_enable_bits = bit1 | bit0

	RTK_ADVERTISE_2500FULL = 0x80
	RTK_ADVERTISE_5000FULL = 0x100
	// 0xa6d4 2.5G and 5G EEE abilities.
	RTK_EEE_ADVERTISE_2500 = bit0
	RTK_EEE_ADVERTISE_5000 = bit1
)

func (d *Dev) enable_eee() {
	d.mac_ocp_set_bits(mac_ocp_eee_ctrl, mac_eee_enable_bits)
	d.phy_ocp_write(phy_ocp_eee_adv, d.ls.eee_adv)
	d.phy_ocp_clear_bits(phy_ocp_eee_adv2, RTK_EEE_ADVERTISE_2500|RTK_EEE_ADVERTISE_5000)
}

func (d *Dev) disable_eee() {
	d.mac_ocp_clear_bits(mac_ocp_eee_ctrl, mac_eee_enable_bits)
	d.phy_ocp_write(phy_ocp_eee_adv, 0)
	d.phy_ocp_clear_bits(phy_ocp_eee_adv2, RTK_EEE_ADVERTISE_2500|RTK_EEE_ADVERTISE_5000)
}

// get_eee_mode reports whether EEE was negotiated: supported, advertised by
// us and advertised by the partner.
func (d *Dev) get_eee_mode() bool {
	sup := d.phy_ocp_read(phy_ocp_eee_sup)
	adv := d.phy_ocp_read(phy_ocp_eee_adv)
	lpa := d.phy_ocp_read(phy_ocp_eee_lpa)
	return sup&adv&lpa != 0
}

// EEE reports the negotiated energy efficient ethernet mode.
func (d *Dev) EEE() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.get_eee_mode()
}

func (d *Dev) phy_restart_nway() {
	d.mdio_write(MII_PAGE, 0)
	d.mdio_write(MII_BMCR, BMCR_ANENABLE|BMCR_ANRESTART)
}

// set_phy_medium writes the advertisement for the selected medium and
// restarts autonegotiation.  A fixed medium still negotiates; it only
// limits what is advertised.
func (d *Dev) set_phy_medium() {
	ls := &d.ls
	m := ls.medium
	auto := m == vnet.MediumAuto

	if ls.eee_adv != 0 {
		d.enable_eee()
	} else {
		d.disable_eee()
	}

	d.phy_ocp_clear_bits(phy_ocp_giga_lite, bit9)
	d.phy_ocp_clear_bits(phy_ocp_giga_lite2, bit2|bit1|bit0)

	d.mdio_write(MII_PAGE, 0)
	giga := d.mdio_read(MII_CTRL1000) &^ (ADVERTISE_1000HALF | ADVERTISE_1000FULL)
	ctrl2500 := d.phy_ocp_read(phy_ocp_ctrl_2500) &^ (RTK_ADVERTISE_2500FULL | RTK_ADVERTISE_5000FULL)
	adv := d.mdio_read(MII_ADVERTISE) &^ (ADVERTISE_10HALF | ADVERTISE_10FULL |
		ADVERTISE_100HALF | ADVERTISE_100FULL |
		ADVERTISE_PAUSE_CAP | ADVERTISE_PAUSE_ASYM)

	switch mbps, full := m.Mbps(), m.FullDuplex(); {
	case auto:
		adv |= ADVERTISE_10HALF | ADVERTISE_10FULL | ADVERTISE_100HALF | ADVERTISE_100FULL
		giga |= ADVERTISE_1000FULL
		if d.profile.SupportsSpeed(2500) {
			ctrl2500 |= RTK_ADVERTISE_2500FULL
		}
		if d.profile.SupportsSpeed(5000) {
			ctrl2500 |= RTK_ADVERTISE_5000FULL
		}
	case mbps == 5000:
		ctrl2500 |= RTK_ADVERTISE_5000FULL
	case mbps == 2500:
		ctrl2500 |= RTK_ADVERTISE_2500FULL
	case mbps == 1000:
		if full {
			giga |= ADVERTISE_1000FULL
		} else {
			giga |= ADVERTISE_1000HALF
		}
	case mbps == 100:
		if full {
			adv |= ADVERTISE_100FULL
		} else {
			adv |= ADVERTISE_100HALF
		}
	default:
		if full {
			adv |= ADVERTISE_10FULL
		} else {
			adv |= ADVERTISE_10HALF
		}
	}
	if ls.flow_ctl {
		adv |= ADVERTISE_PAUSE_CAP | ADVERTISE_PAUSE_ASYM
	}

	d.mdio_write(MII_PAGE, 0)
	d.mdio_write(MII_ADVERTISE, adv)
	d.mdio_write(MII_CTRL1000, giga)
	d.phy_ocp_write(phy_ocp_ctrl_2500, ctrl2500)
	d.phy_restart_nway()
	ls.state = Negotiating
}
