// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/rtk5/internal/test"
	"github.com/platinasystems/rtk5/vnet"
)

// TxConfig values of the parts the tests run against.
const (
	txconfig_8125b   = 0x64000000
	txconfig_8125bp  = 0x68000000
	txconfig_8126a   = 0x64800000
	txconfig_unknown = 0x00000000
)

const (
	status_2500 = LinkStatus | FullDup | _2500bpsF
	status_1000 = LinkStatus | FullDup | _1000bpsF
)

var test_mac = [6]byte{0x00, 0xe0, 0x4c, 0x68, 0x00, 0x01}

type harness struct {
	t    *testing.T
	d    *Dev
	regs *test.Regs
	dma  *test.Dma
	out  *test.OutputQueue
	in   *test.InputQueue
	link *test.Link
	pci  *test.PCIConfig
}

// test_config keeps rings small and never sleeps in a handshake.
func test_config() Config {
	c := DefaultConfig()
	c.TxRingLen = 64
	c.RxRingLen = 16
	c.SpareBuffers = 4
	c.ChannelWaitCount = 3
	c.ChannelWaitDelay = 0
	c.EfuseWaitCount = 3
	c.ResetWaitCount = 3
	c.DisableWaitCount = 3
	c.DisableWaitDelay = time.Microsecond
	return c
}

func new_harness(t *testing.T, txConfig uint32, edit ...func(c *Config)) *harness {
	h := &harness{
		t:    t,
		regs: test.NewRegs(txConfig),
		dma:  test.NewDma(),
		out:  &test.OutputQueue{},
		in:   &test.InputQueue{},
		link: &test.Link{},
		pci:  test.NewPCIConfig(),
	}
	h.regs.SetMAC(test_mac)
	c := test_config()
	for _, f := range edit {
		f(&c)
	}
	d, err := New(test.NewLogger(), Options{
		Config:   c,
		Regs:     h.regs,
		Dma:      h.dma,
		Input:    h.in,
		Output:   h.out,
		Link:     h.link,
		PCI:      h.pci,
		DeviceID: dev_id_8125,
		Name:     "test0",
	})
	require.NoError(t, err)
	h.d = d
	return h
}

func (h *harness) enable() *harness {
	require.NoError(h.t, h.d.Enable())
	return h
}

// link_change raises LinkChg with the given PHY status.
func (h *harness) link_change(status uint16) {
	h.regs.SetPHYStatus(status)
	h.regs.Raise(LinkChg)
	h.d.OnInterrupt()
}

func (h *harness) up(status uint16) *harness {
	h.link_change(status)
	require.Equal(h.t, LinkUp, h.d.LinkState())
	h.regs.ClearWrites()
	return h
}

// packet cuts frame into segments of n bytes.
func (h *harness) packet(frame []byte, n int, o vnet.TxOffload) *test.Packet {
	return test.NewPacket(h.dma, frame, 0, n, o)
}

// raw is a frame with no offload cut into segs segments.
func (h *harness) raw(segs int) *test.Packet {
	return h.packet(make([]byte, 64*segs), 64, vnet.TxOffload{})
}

// complete moves the hardware close pointer over n more descriptors.
func (h *harness) complete(n uint32) {
	r := &h.d.tx
	h.regs.SetClosePtr((r.close_ptr+n)&h.d.profile.ptr_mask(), h.d.profile.WidePointers)
}

func TestNewRejectsBadRings(t *testing.T) {
	for _, tc := range []struct {
		name   string
		tx, rx uint
	}{
		{"tx not power of two", 100, 16},
		{"rx not power of two", 64, 17},
		{"tx too small", 32, 16},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := test_config()
			c.TxRingLen, c.RxRingLen = tc.tx, tc.rx
			_, err := New(test.NewLogger(), Options{Config: c, Regs: test.NewRegs(txconfig_8125b), Dma: test.NewDma()})
			assert.Error(t, err)
		})
	}

	_, err := New(test.NewLogger(), Options{Config: test_config()})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestNewIdentifies(t *testing.T) {
	h := new_harness(t, txconfig_8126a)
	assert.Equal(t, CFG_METHOD_31, h.d.Profile().Method)
	assert.True(t, h.d.tx_no_close)
	assert.Equal(t, net.HardwareAddr(test_mac[:]), h.d.HardwareAddress())
	assert.Equal(t, "test0", h.d.Name())

	// Unknown silicon still yields a usable device.
	h = new_harness(t, txconfig_unknown)
	assert.True(t, h.d.Profile().Unknown)
	assert.False(t, h.d.tx_no_close)
	assert.False(t, h.d.tso4)
}

func TestEnableDisable(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()
	d := h.d
	assert.True(t, d.Enabled())
	assert.Equal(t, Negotiating, d.LinkState())
	assert.Equal(t, uint32(intr_rxtx), h.regs.Read32(uint(IMR0_8125)))
	assert.Equal(t, uint32(d.rx.phys), h.regs.Read32(uint(RxDescAddrLow)))
	assert.Equal(t, uint32(d.tx.phys), h.regs.Read32(uint(TxDescStartAddrLow)))
	assert.Equal(t, uint16(rx_buf_size_std-1), h.regs.Read16(uint(RxMaxSize)))
	assert.NotZero(t, h.regs.Read32(uint(TxConfig))&TxNoCloseEnable)
	assert.Equal(t, 4, d.pool.spare_count())

	// Every rx slot is armed.
	for i := range d.rx.desc {
		assert.True(t, d.rx.desc[i].is_owned_by_hw(), "slot %d", i)
	}
	assert.NotZero(t, d.rx.desc[d.rx.mask].load_opts1()&RingEnd)

	// A second Enable is a no-op.
	assert.NoError(t, d.Enable())

	p := h.raw(1)
	h.up(status_2500)
	_, err := d.Submit(p)
	require.NoError(t, err)

	d.Disable()
	assert.False(t, d.Enabled())
	assert.Equal(t, 1, p.Freed())
	assert.Zero(t, h.dma.Live())
	last, _ := h.link.Last()
	assert.False(t, last.Active)
}

func TestEnableUnwindsOnAllocationFailure(t *testing.T) {
	h := new_harness(t, txconfig_8125b)
	// Refuse the tally block, the last allocation.
	h.dma.Refuse = func(n uint) bool { return n == tally_bytes }
	assert.Error(t, h.d.Enable())
	assert.False(t, h.d.Enabled())
	assert.Zero(t, h.dma.Live())

	h.dma.Refuse = nil
	assert.NoError(t, h.d.Enable())
}

func TestSetMaxPacketSize(t *testing.T) {
	h := new_harness(t, txconfig_8125b).enable()
	d := h.d
	h.up(status_2500)

	assert.Error(t, d.SetMaxPacketSize(10))
	assert.Error(t, d.SetMaxPacketSize(rx_buf_size_jumbo))

	require.NoError(t, d.SetMaxPacketSize(9000+ethernet_header_len+ethernet_crc_len))
	assert.Equal(t, uint(9000), d.MTU())
	assert.Equal(t, uint(rx_buf_size_jumbo), d.rx_buf_size)
	// Past MSS_MAX the descriptor cannot carry segmentation.
	assert.False(t, d.tso4)
	assert.False(t, d.tso6)
	assert.False(t, d.cso6)
	assert.Equal(t, int64(1), d.counters.restarts.Count())
	assert.Equal(t, uint16(rx_buf_size_jumbo-1), h.regs.Read16(uint(RxMaxSize)))
	assert.NotEqual(t, LinkUp, d.LinkState())

	require.NoError(t, d.SetMaxPacketSize(1500+ethernet_header_len+ethernet_crc_len))
	assert.True(t, d.tso4)
}
