// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unix

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"

	"github.com/platinasystems/rtk5/internal/test"
	"github.com/platinasystems/rtk5/vnet"
)

type fake_ops struct {
	admin, carrier []bool
	mtu            []uint
	hw             []net.HardwareAddr
}

func (o *fake_ops) set_admin(up bool) error {
	o.admin = append(o.admin, up)
	return nil
}

func (o *fake_ops) set_carrier(up bool) error {
	o.carrier = append(o.carrier, up)
	return nil
}

func (o *fake_ops) set_mtu(mtu uint) error {
	o.mtu = append(o.mtu, mtu)
	return nil
}

func (o *fake_ops) set_hw_addr(a net.HardwareAddr) error {
	o.hw = append(o.hw, a)
	return nil
}

var tap_mac = net.HardwareAddr{0x00, 0xe0, 0x4c, 0x68, 0x00, 0x01}

func test_link(flags iff_flag) (*Link, *fake_ops) {
	o := &fake_ops{}
	a := &netlink.LinkAttrs{RawFlags: uint32(flags), MTU: 1500, HardwareAddr: tap_mac}
	return new_link(o, a, test.NewLogger().WithField("tap", "test")), o
}

func TestMaybeChangeFlag(t *testing.T) {
	for _, tc := range []struct {
		flags  iff_flag
		up     bool
		flag   iff_flag
		change bool
		want   iff_flag
	}{
		{0, true, iff_up | iff_running, true, iff_up | iff_running},
		{iff_up, true, iff_up | iff_running, true, iff_up | iff_running},
		{iff_up | iff_running, true, iff_up | iff_running, false, iff_up | iff_running},
		{iff_up, false, iff_up | iff_running, true, 0},
		{iff_broadcast, false, iff_lower_up, false, iff_broadcast},
	} {
		f := tc.flags
		assert.Equal(t, tc.change, maybe_change_flag(&f, tc.up, tc.flag), "%v", tc.flags)
		assert.Equal(t, tc.want, f)
	}
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "admin-up, link-up", (iff_up | iff_lower_up).String())
	assert.Equal(t, "none", iff_flag(0).String())
	assert.Equal(t, "echo, 0x80000", (iff_echo | 1<<19).String())
}

func TestLinkCarrier(t *testing.T) {
	x, o := test_link(iff_up | iff_running | iff_broadcast)

	up := vnet.LinkStatus{Valid: true, Active: true, Speed: 2500e6}
	x.SetLinkStatus(up)
	x.SetLinkStatus(up)
	assert.Equal(t, []bool{true}, o.carrier)
	assert.NotZero(t, x.Flags()&iff_lower_up)
	assert.Equal(t, up, x.Status())

	x.SetLinkStatus(vnet.LinkStatus{Valid: true})
	x.SetLinkStatus(vnet.LinkStatus{})
	assert.Equal(t, []bool{true, false}, o.carrier)
	assert.Zero(t, x.Flags()&iff_lower_up)
	// Admin state is untouched by link changes.
	assert.Empty(t, o.admin)
}

func TestLinkAdmin(t *testing.T) {
	x, o := test_link(iff_up | iff_running)
	assert.NoError(t, x.SetAdminUp(true))
	assert.Empty(t, o.admin)

	assert.NoError(t, x.SetAdminUp(false))
	assert.Equal(t, []bool{false}, o.admin)
	assert.Zero(t, x.Flags()&(iff_up|iff_running))
}

func TestLinkHardwareAddress(t *testing.T) {
	x, o := test_link(0)
	assert.NoError(t, x.SetHardwareAddress(tap_mac))
	assert.Empty(t, o.hw)

	other := net.HardwareAddr{0x02, 0, 0, 0, 0, 9}
	assert.NoError(t, x.SetHardwareAddress(other))
	assert.NoError(t, x.SetHardwareAddress(other))
	assert.Equal(t, []net.HardwareAddr{other}, o.hw)
}

func TestLinkSetMTU(t *testing.T) {
	x, o := test_link(0)
	assert.NoError(t, x.SetMTU(1500))
	assert.NoError(t, x.SetMTU(9000))
	assert.Equal(t, []uint{9000}, o.mtu)

	// The kernel echoing our own change is not passed on.
	h := &handler{}
	x.update(&netlink.LinkAttrs{MTU: 9000}, h)
	assert.Empty(t, h.sizes)
}

type handler struct {
	sizes           []uint
	promisc, allmul []bool
	err             error
}

func (h *handler) SetMaxPacketSize(n uint) error {
	h.sizes = append(h.sizes, n)
	return h.err
}
func (h *handler) SetPromiscuous(on bool)  { h.promisc = append(h.promisc, on) }
func (h *handler) SetMulticastAll(on bool) { h.allmul = append(h.allmul, on) }

func TestLinkUpdate(t *testing.T) {
	base := iff_up | iff_running | iff_broadcast | iff_multicast
	x, _ := test_link(base)
	h := &handler{}

	x.update(&netlink.LinkAttrs{MTU: 1500, RawFlags: uint32(base)}, h)
	assert.Empty(t, h.sizes)
	assert.Empty(t, h.promisc)

	x.update(&netlink.LinkAttrs{MTU: 9000, RawFlags: uint32(base | iff_promisc)}, h)
	assert.Equal(t, []uint{9018}, h.sizes)
	assert.Equal(t, []bool{true}, h.promisc)
	assert.Empty(t, h.allmul)

	x.update(&netlink.LinkAttrs{MTU: 9000, RawFlags: uint32(base | iff_allmulti)}, h)
	assert.Equal(t, []bool{true, false}, h.promisc)
	assert.Equal(t, []bool{true}, h.allmul)
	assert.Len(t, h.sizes, 1)

	// A refused size is retried on the next update.
	h.err = errors.New("too big")
	x.update(&netlink.LinkAttrs{MTU: 16000, RawFlags: uint32(base)}, h)
	x.update(&netlink.LinkAttrs{MTU: 16000, RawFlags: uint32(base)}, h)
	assert.Equal(t, []uint{9018, 16018, 16018}, h.sizes)
	assert.Equal(t, []bool{true, false}, h.allmul)
}
