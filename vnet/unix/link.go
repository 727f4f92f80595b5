// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unix

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/platinasystems/rtk5/vnet"
)

// link_ops changes the kernel's view of the tap.
type link_ops interface {
	set_admin(up bool) error
	set_carrier(up bool) error
	set_mtu(mtu uint) error
	set_hw_addr(a net.HardwareAddr) error
}

// Link mirrors device link state onto the tap interface.
type Link struct {
	mu     sync.Mutex
	ops    link_ops
	flags  iff_flag
	mtu    uint
	hwaddr net.HardwareAddr
	status vnet.LinkStatus
	l      *logrus.Entry

	// Kernel side settings last pushed to the device.
	kernel_mtu   uint
	kernel_flags iff_flag
}

func new_link(ops link_ops, a *netlink.LinkAttrs, l *logrus.Entry) *Link {
	x := &Link{ops: ops, l: l}
	if a != nil {
		x.flags = iff_flag(a.RawFlags)
		x.mtu = uint(a.MTU)
		x.hwaddr = a.HardwareAddr
		x.kernel_mtu = x.mtu
		x.kernel_flags = x.flags
	}
	return x
}

func (x *Link) change_flag(isUp bool, flag iff_flag, set func(bool) error) (err error) {
	if maybe_change_flag(&x.flags, isUp, flag) {
		if err = set(isUp); err != nil {
			x.l.WithError(err).WithField("flags", x.flags).Error("set flags")
		}
	}
	return
}

// SetAdminUp brings the tap up or down.
func (x *Link) SetAdminUp(isUp bool) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.change_flag(isUp, iff_up|iff_running, x.ops.set_admin)
}

// SetLinkStatus sets the tap's carrier to follow the device.
func (x *Link) SetLinkStatus(s vnet.LinkStatus) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.status = s
	up := s.Valid && s.Active
	if x.change_flag(up, iff_lower_up, x.ops.set_carrier) == nil {
		e := x.l.WithField("link", s)
		if up {
			e = e.WithField("speed", s.Speed)
		}
		e.Info("link")
	}
}

func (x *Link) Status() vnet.LinkStatus {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.status
}

func (x *Link) Flags() iff_flag {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.flags
}

// SetMTU changes the tap's MTU when it differs.
func (x *Link) SetMTU(mtu uint) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if mtu == x.mtu {
		return
	}
	if err = x.ops.set_mtu(mtu); err == nil {
		x.mtu = mtu
		x.kernel_mtu = mtu
	}
	return
}

// SetHardwareAddress changes the tap's address only when it differs:
// resetting the same address makes the kernel flush its neighbors.
func (x *Link) SetHardwareAddress(a net.HardwareAddr) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if bytes.Equal(a, x.hwaddr) {
		return
	}
	if err = x.ops.set_hw_addr(a); err == nil {
		x.hwaddr = append(net.HardwareAddr(nil), a...)
	}
	return
}

// Handler takes kernel side changes to the tap.
type Handler interface {
	SetMaxPacketSize(n uint) error
	SetPromiscuous(on bool)
	SetMulticastAll(on bool)
}

// Ethernet header and CRC on top of the MTU.
const frame_overhead = 14 + 4

// update applies a kernel link update to h.
func (x *Link) update(a *netlink.LinkAttrs, h Handler) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if mtu := uint(a.MTU); mtu != 0 && mtu != x.kernel_mtu {
		if err := h.SetMaxPacketSize(mtu + frame_overhead); err != nil {
			x.l.WithError(err).WithField("mtu", mtu).Error("set mtu")
		} else {
			x.kernel_mtu = mtu
			x.mtu = mtu
		}
	}
	flags := iff_flag(a.RawFlags)
	if changed := flags ^ x.kernel_flags; changed != 0 {
		if changed&iff_promisc != 0 {
			h.SetPromiscuous(flags&iff_promisc != 0)
		}
		if changed&iff_allmulti != 0 {
			h.SetMulticastAll(flags&iff_allmulti != 0)
		}
		x.kernel_flags = flags
	}
}

// Watch follows netlink updates for the tap at index until ctx is done.
func (x *Link) Watch(ctx context.Context, index int, h Handler) error {
	ch := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	defer close(done)
	err := netlink.LinkSubscribeWithOptions(ch, done, netlink.LinkSubscribeOptions{
		ErrorCallback: func(err error) { x.l.WithError(err).Warn("netlink subscription") },
	})
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			if u.Link == nil || u.Link.Attrs().Index != index {
				continue
			}
			x.update(u.Link.Attrs(), h)
		}
	}
}
