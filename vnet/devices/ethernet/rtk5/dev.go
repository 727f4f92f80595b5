// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/vnet"
)

type Config struct {
	TxRingLen, RxRingLen uint
	MTU                  uint
	// Rx buffers held in reserve for allocation failures.
	SpareBuffers uint

	TSO4, TSO6, CSO6 bool
	EEE              bool
	Medium           vnet.Medium
	// Poll mode is entered at every link up.
	PollOnLinkUp bool

	// Poll interval at 2.5G and 5G.
	PollInterval2500 time.Duration

	// Watchdog ticks without tx progress before a forced reclaim, and
	// before a restart.
	TxCheckThreshold    uint
	TxDeadlockThreshold uint

	// Indirect register protocols.
	ChannelWaitCount int
	ChannelWaitDelay time.Duration
	EfuseWaitCount   int
	// Chip reset and fifo drain polls.
	ResetWaitCount int

	// TIMER_INT0 value while in timer mitigation mode.
	MitigationTimer uint32

	// Bounded wait for a poll in flight at Disable.
	DisableWaitCount int
	DisableWaitDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		TxRingLen:           1024,
		RxRingLen:           512,
		MTU:                 1500,
		SpareBuffers:        150,
		TSO4:                true,
		TSO6:                true,
		CSO6:                true,
		Medium:              vnet.MediumAuto,
		PollInterval2500:    100 * time.Microsecond,
		TxCheckThreshold:    265,
		TxDeadlockThreshold: 266,
		ChannelWaitCount:    20000,
		ChannelWaitDelay:    time.Microsecond,
		EfuseWaitCount:      300,
		ResetWaitCount:      1000,
		MitigationTimer:     0x5000,
		DisableWaitCount:    10,
		DisableWaitDelay:    5 * time.Microsecond,
	}
}

// PCIErrorClearer is config space access used to clear fatal bus errors.
type PCIErrorClearer interface {
	ReadConfigUint16(o uint) uint16
	WriteConfigUint16(o uint, v uint16)
}

type Options struct {
	Config
	Regs   Regs
	Dma    vnet.DmaAllocator
	Input  vnet.InputQueue
	Output vnet.OutputQueue
	Link   vnet.LinkStatusPublisher
	PCI    PCIErrorClearer
	// PCI device id, cross checked against the silicon.
	DeviceID uint16
	Name     string
}

type counters struct {
	restarts           metrics.Counter
	tx_timeouts        metrics.Counter
	tx_drops           metrics.Counter
	rx_no_buffer       metrics.Counter
	rx_crc_errors      metrics.Counter
	rx_length_errors   metrics.Counter
	rx_fragment_errors metrics.Counter
	rx_errors          metrics.Counter
	alloc_failures     metrics.Counter
	indirect_timeouts  metrics.Counter
	interrupts         metrics.Counter
	tx_interrupts      metrics.Counter
	link_changes       metrics.Counter
	pci_errors         metrics.Counter
}

func (c *counters) init(r metrics.Registry) {
	for _, x := range []struct {
		name string
		c    *metrics.Counter
	}{
		{"restarts", &c.restarts},
		{"tx_timeouts", &c.tx_timeouts},
		{"tx_drops", &c.tx_drops},
		{"rx_no_buffer", &c.rx_no_buffer},
		{"rx_crc_errors", &c.rx_crc_errors},
		{"rx_length_errors", &c.rx_length_errors},
		{"rx_fragment_errors", &c.rx_fragment_errors},
		{"rx_errors", &c.rx_errors},
		{"alloc_failures", &c.alloc_failures},
		{"indirect_timeouts", &c.indirect_timeouts},
		{"interrupts", &c.interrupts},
		{"tx_interrupts", &c.tx_interrupts},
		{"link_changes", &c.link_changes},
		{"pci_errors", &c.pci_errors},
	} {
		*x.c = metrics.NewRegisteredCounter(x.name, r)
	}
}

// Dev is one RTL8125/RTL8126 port.
type Dev struct {
	Config

	l    *logrus.Logger
	name string

	regs Regs
	dma  vnet.DmaAllocator
	in   vnet.InputQueue
	out  vnet.OutputQueue
	link vnet.LinkStatusPublisher
	pci  PCIErrorClearer

	device_id   uint16
	profile     ChipProfile
	tx_no_close bool

	// Serializes control operations, interrupt service and the watchdog.
	mu sync.Mutex
	// Serializes descriptor writers.
	tx_mu sync.Mutex

	enabled     atomic.Bool
	link_up     atomic.Bool
	promiscuous atomic.Bool
	multicast   atomic.Bool
	poll_mode   atomic.Bool
	polling     atomic.Bool

	intr_mask uint32

	tx     tx_ring
	rx     rx_ring
	pool   *rx_pool
	parser *hdr_parser

	mtu         uint
	rx_buf_size uint
	// Effective offloads after MTU gating.
	tso4, tso6, cso6 bool

	phy_page uint32
	ls       link_state
	poll     PollParams

	hw_addr  net.HardwareAddr
	mc_addrs []net.HardwareAddr

	tally      []byte
	tally_phys uint64
	stats      Stats
	stats_mu   sync.Mutex

	watchdog_on bool

	// Teardown of Enable's allocations, run in reverse.
	undo []func()
	// Run by Close.
	on_close []func()

	registry metrics.Registry
	counters counters
}

// New identifies the chip behind o.Regs.  The device stays idle until
// Enable.
func New(l *logrus.Logger, o Options) (d *Dev, err error) {
	if o.Regs == nil || o.Dma == nil {
		return nil, ErrNoDevice
	}
	c := o.Config
	if !is_pow2(c.TxRingLen) || !is_pow2(c.RxRingLen) {
		return nil, fmt.Errorf("rtk5: ring sizes %d/%d must be powers of two", c.TxRingLen, c.RxRingLen)
	}
	if c.TxRingLen <= tx_admit_min {
		return nil, fmt.Errorf("rtk5: tx ring %d too small", c.TxRingLen)
	}
	if l == nil {
		l = logrus.StandardLogger()
	}
	d = &Dev{
		Config:    c,
		l:         l,
		name:      o.Name,
		regs:      o.Regs,
		dma:       o.Dma,
		in:        o.Input,
		out:       o.Output,
		link:      o.Link,
		pci:       o.PCI,
		device_id: o.DeviceID,
		parser:    new_hdr_parser(),
		registry:  metrics.NewRegistry(),
	}
	if d.name == "" {
		d.name = "rtk5"
	}
	d.counters.init(d.registry)

	txc := TxConfig.get(d)
	if d.profile, err = Identify(txc, d.device_id); err != nil {
		d.log().WithError(err).Warn("using default chip profile")
		err = nil
	}
	if !deviceIDMatches(&d.profile, d.device_id) {
		d.log().WithFields(logrus.Fields{
			"chip":     d.profile.Name,
			"deviceID": fmt.Sprintf("0x%04x", d.device_id),
		}).Warn("pci device id does not match silicon")
	}
	d.tx_no_close = d.profile.HasTxNoClose()
	d.ls.medium = d.clamp_medium(c.Medium)
	d.ls.flow_ctl = d.ls.medium.FlowControl()
	if c.EEE || d.ls.medium.EEE() {
		d.ls.eee_adv = d.profile.EEECap
	}
	d.set_mtu(c.MTU)
	d.hw_addr = d.read_hw_addr()
	d.log().WithFields(logrus.Fields{
		"chip": d.profile.String(),
		"mac":  d.hw_addr.String(),
	}).Info("found")
	return
}

func (d *Dev) log() *logrus.Entry { return d.l.WithField("dev", d.name) }

func (d *Dev) Name() string               { return d.name }
func (d *Dev) Profile() ChipProfile       { return d.profile }
func (d *Dev) Registry() metrics.Registry { return d.registry }
func (d *Dev) Enabled() bool              { return d.enabled.Load() }
func (d *Dev) MTU() uint                  { return d.mtu }

// set_mtu picks the rx buffer size and gates offloads the descriptor
// cannot express at this MTU.
func (d *Dev) set_mtu(mtu uint) {
	d.mtu = mtu
	d.rx_buf_size = rx_buf_size_std
	if mtu > 1500 {
		d.rx_buf_size = rx_buf_size_jumbo
	}
	ok := mtu <= MSS_MAX && d.profile.hasOCP()
	d.tso4 = d.TSO4 && ok
	d.tso6 = d.TSO6 && ok
	d.cso6 = d.CSO6 && ok
}

// Offloads reports the offloads in effect at the current MTU.
func (d *Dev) Offloads() (tso4, tso6, cso6 bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tso4, d.tso6, d.cso6
}

// SetMaxPacketSize sets the largest frame, header and CRC included.
func (d *Dev) SetMaxPacketSize(n uint) (err error) {
	const overhead = ethernet_header_len + ethernet_crc_len
	if n <= overhead || n > rx_buf_size_jumbo-2 {
		return fmt.Errorf("rtk5: max packet size %d out of range", n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	mtu := n - overhead
	if mtu == d.mtu {
		return
	}
	d.set_mtu(mtu)
	d.log().WithField("mtu", mtu).Info("mtu change")
	if d.enabled.Load() {
		d.set_link_down()
		d.stop_watchdog()
		d.restart()
	}
	return
}
