// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/vnet"
)

// clamp_medium replaces a medium faster than the chip with the fastest
// one it has, keeping flow control.
func (d *Dev) clamp_medium(m vnet.Medium) vnet.Medium {
	if m == vnet.MediumAuto || d.profile.SupportsSpeed(m.Mbps()) {
		return m
	}
	fc := m.FlowControl()
	switch {
	case d.profile.SupportsSpeed(2500):
		if fc {
			return vnet.Medium2500FDFC
		}
		return vnet.Medium2500FD
	case fc:
		return vnet.Medium1000FDFC
	}
	return vnet.Medium1000FD
}

// SelectMedium fixes or frees the link speed.  The link is taken down and
// renegotiated.
func (d *Dev) SelectMedium(m vnet.Medium) (err error) {
	if m >= vnet.NMedium {
		return fmt.Errorf("rtk5: %v: invalid medium", m)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if c := d.clamp_medium(m); c != m {
		d.log().WithFields(logrus.Fields{"want": m, "using": c}).Warn("medium above chip speed")
		m = c
	}
	ls := &d.ls
	ls.medium = m
	ls.flow_ctl = m.FlowControl()
	ls.eee_adv = 0
	if m.EEE() || (m == vnet.MediumAuto && d.Config.EEE) {
		ls.eee_adv = d.profile.EEECap
	}
	d.Medium = m
	if d.enabled.Load() {
		d.set_link_down()
	}
	return
}

func (d *Dev) SelectedMedium() vnet.Medium {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ls.medium
}
