// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package unix bridges a device to the host network stack through a tap
// interface.
package unix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	sys "golang.org/x/sys/unix"

	"github.com/platinasystems/rtk5/vnet"
)

type Config struct {
	Name string
	// Exchange offload requests with the kernel in a virtio_net_hdr.
	VnetHdr bool
	// Offloads advertised to the kernel; only with VnetHdr.
	Csum, TSO4, TSO6 bool
	// Keep the interface after close.
	Persist bool
	// Frames held while the device is busy.
	QueueLen int
	MTU      uint
	HwAddr   net.HardwareAddr
	Dma      vnet.DmaAllocator
	Registry metrics.Registry
}

type Tap struct {
	name    string
	index   int
	fd      int
	file    *os.File
	cfg     Config
	scratch []byte

	out  *OutputQueue
	in   *InputQueue
	link *Link
	c    counters
	l    *logrus.Entry
}

func (t *Tap) Name() string               { return t.name }
func (t *Tap) Index() int                 { return t.index }
func (t *Tap) Output() *OutputQueue       { return t.out }
func (t *Tap) Input() *InputQueue         { return t.in }
func (t *Tap) Link() *Link                { return t.link }
func (t *Tap) Registry() metrics.Registry { return t.cfg.Registry }

func ioctl_error(req string, err error) error { return fmt.Errorf("tap ioctl %s: %w", req, err) }

// Open creates (or attaches to) the tap named in c and brings it up.
func Open(l *logrus.Logger, c Config) (t *Tap, err error) {
	if c.Dma == nil {
		return nil, errors.New("tap: no dma allocator")
	}
	if c.QueueLen <= 0 {
		c.QueueLen = 1024
	}
	if c.Registry == nil {
		c.Registry = metrics.NewRegistry()
	}

	fd, err := sys.Open("/dev/net/tun", sys.O_RDWR|sys.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/net/tun: %w", err)
	}
	defer func() {
		if err != nil {
			sys.Close(fd)
		}
	}()

	ifr, err := sys.NewIfreq(c.Name)
	if err != nil {
		return
	}
	flags := uint16(iff_tap | iff_no_pi)
	if c.VnetHdr {
		flags |= iff_vnet_hdr
	}
	ifr.SetUint16(flags)
	if err = sys.IoctlIfreq(fd, sys.TUNSETIFF, ifr); err != nil {
		return nil, ioctl_error("TUNSETIFF", err)
	}
	if c.VnetHdr {
		if err = sys.IoctlSetPointerInt(fd, sys.TUNSETVNETHDRSZ, virtio_net_hdr_len); err != nil {
			return nil, ioctl_error("TUNSETVNETHDRSZ", err)
		}
		if err = set_offload(fd, c.Csum, c.TSO4, c.TSO6); err != nil {
			return
		}
	}
	persist := 0
	if c.Persist {
		persist = 1
	}
	if err = sys.IoctlSetInt(fd, sys.TUNSETPERSIST, persist); err != nil {
		return nil, ioctl_error("TUNSETPERSIST", err)
	}
	if err = sys.SetNonblock(fd, true); err != nil {
		return
	}

	t = &Tap{name: ifr.Name(), fd: fd, cfg: c}
	t.l = l.WithField("tap", t.name)
	t.c.init(c.Registry)

	nl, err := netlink.LinkByName(t.name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	t.index = nl.Attrs().Index
	t.link = new_link(&netlink_ops{name: t.name, fd: fd}, nl.Attrs(), t.l)
	if c.MTU != 0 {
		if err = t.link.SetMTU(c.MTU); err != nil {
			return nil, fmt.Errorf("%s: set mtu %d: %w", t.name, c.MTU, err)
		}
	}
	if c.HwAddr != nil {
		if err = t.link.SetHardwareAddress(c.HwAddr); err != nil {
			return nil, fmt.Errorf("%s: set address %v: %w", t.name, c.HwAddr, err)
		}
	}
	// Carrier follows the device; down until it reports link.
	if err = t.link.ops.set_carrier(false); err != nil {
		return
	}
	t.link.flags &^= iff_lower_up
	if err = t.link.SetAdminUp(true); err != nil {
		return
	}

	t.file = os.NewFile(uintptr(fd), "/dev/net/tun")
	t.out = new_output_queue(c.QueueLen, &t.c)
	t.in = new_input_queue(t.file, c.VnetHdr, &t.c, t.l)
	t.scratch = make([]byte, virtio_net_hdr_len+64<<10)
	t.l.WithFields(logrus.Fields{"index": t.index, "flags": t.link.Flags(), "vnet_hdr": c.VnetHdr}).Info("tap open")
	return
}

func set_offload(fd int, csum, tso4, tso6 bool) error {
	offloads := 0
	if csum {
		offloads |= tun_f_csum
		if tso4 {
			offloads |= tun_f_tso4
		}
		if tso6 {
			offloads |= tun_f_tso6
		}
	}
	if err := sys.IoctlSetInt(fd, sys.TUNSETOFFLOAD, offloads); err != nil {
		return ioctl_error("TUNSETOFFLOAD", err)
	}
	return nil
}

// SetOffloads changes what the kernel may ask of the device.
func (t *Tap) SetOffloads(csum, tso4, tso6 bool) error {
	if !t.cfg.VnetHdr {
		return nil
	}
	t.cfg.Csum, t.cfg.TSO4, t.cfg.TSO6 = csum, tso4, tso6
	t.l.WithFields(logrus.Fields{"csum": csum, "tso4": tso4, "tso6": tso6}).Debug("offloads")
	return set_offload(t.fd, csum, tso4, tso6)
}

// ReadLoop moves frames written by the kernel to the output queue until
// ctx is done or the tap is closed.
func (t *Tap) ReadLoop(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { t.file.SetReadDeadline(time.Now()) })
	defer stop()
	for {
		n, err := t.file.Read(t.scratch)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
				return ctx.Err()
			}
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
		t.receive(t.scratch[:n])
	}
}

// receive queues one frame as read from the tap.
func (t *Tap) receive(b []byte) {
	var (
		o   vnet.TxOffload
		err error
	)
	if t.cfg.VnetHdr {
		var h virtio_net_hdr
		if err = h.decode(b); err != nil {
			t.c.tx_errors.Inc(1)
			return
		}
		b = b[virtio_net_hdr_len:]
		o, err = h.offload(b)
	}
	if len(b) < 14 {
		t.c.tx_errors.Inc(1)
		return
	}
	p, perr := new_packet(t.cfg.Dma, b)
	if perr != nil {
		t.c.tx_drops.Inc(1)
		t.l.WithError(perr).Debug("tap packet")
		return
	}
	// An offload the device cannot honor is left for the driver to drop.
	p.off, p.off_err = o, err
	if t.out.push(p) {
		t.c.tx_packets.Inc(1)
		t.c.tx_bytes.Inc(int64(len(b)))
	}
}

func (t *Tap) Close() (err error) {
	if t.link != nil {
		t.link.SetAdminUp(false)
	}
	if t.out != nil {
		t.out.drain()
	}
	if t.file != nil {
		err = t.file.Close()
		t.file = nil
	}
	return
}

type netlink_ops struct {
	name string
	fd   int
}

func (o *netlink_ops) link() (netlink.Link, error) { return netlink.LinkByName(o.name) }

func (o *netlink_ops) set_admin(up bool) error {
	l, err := o.link()
	if err != nil {
		return err
	}
	if up {
		return netlink.LinkSetUp(l)
	}
	return netlink.LinkSetDown(l)
}

func (o *netlink_ops) set_carrier(up bool) error {
	v := 0
	if up {
		v = 1
	}
	if err := sys.IoctlSetPointerInt(o.fd, tunsetcarrier, v); err != nil {
		return ioctl_error("TUNSETCARRIER", err)
	}
	return nil
}

func (o *netlink_ops) set_mtu(mtu uint) error {
	l, err := o.link()
	if err != nil {
		return err
	}
	return netlink.LinkSetMTU(l, int(mtu))
}

func (o *netlink_ops) set_hw_addr(a net.HardwareAddr) error {
	l, err := o.link()
	if err != nil {
		return err
	}
	return netlink.LinkSetHardwareAddr(l, a)
}
