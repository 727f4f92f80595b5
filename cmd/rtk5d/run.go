// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinasystems/rtk5/elib/hw"
	"github.com/platinasystems/rtk5/elib/hw/pci"
	"github.com/platinasystems/rtk5/internal/config"
	"github.com/platinasystems/rtk5/vnet"
	"github.com/platinasystems/rtk5/vnet/devices/ethernet/rtk5"
	"github.com/platinasystems/rtk5/vnet/unix"
)

var ErrNoDevice = errors.New("no supported device found")

// A session that lasted this long resets the reopen backoff.
const stable_session = time.Minute

type daemon struct {
	l    *logrus.Logger
	o    options
	heap *hw.Heap
	// Device of the current session, for config reloads.
	cur atomic.Pointer[rtk5.Dev]
}

// run opens the device and serves it until ctx is done, reopening it
// with backoff whenever a session fails.
func run(ctx context.Context, l *logrus.Logger, c *config.C, o options) (err error) {
	dm := &daemon{l: l, o: o}
	c.RegisterReloadCallback(dm.reload)

	if dm.heap, err = hw.HugeHeap(o.heap_log2); err != nil {
		return
	}
	l.WithField("heap", dm.heap).Debug("dma heap")

	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}
	for {
		start := time.Now()
		err = dm.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(start) > stable_session {
			b.Reset()
		}
		wait := b.Duration()
		l.WithError(err).WithField("retry", wait).Error("session failed")
		log.Print("daemon", "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (dm *daemon) reload(c *config.C) {
	if err := configure_logging(dm.l, c, false); err != nil {
		dm.l.WithError(err).Error("reload logging")
	}
	d := dm.cur.Load()
	if d == nil {
		return
	}
	m, err := vnet.ParseMedium(c.GetString("device.medium", "auto"))
	if err == nil {
		err = d.SelectMedium(m)
	}
	if err != nil {
		dm.l.WithError(err).Error("reload medium")
	}
}

// find picks the configured device or the first supported one.
func (dm *daemon) find() (pd *pci.Device, err error) {
	if _, err = pci.DiscoverDevices(); err != nil {
		return
	}
	devs := rtk5.Devices()
	if dm.o.pci == "" {
		if len(devs) == 0 {
			return nil, ErrNoDevice
		}
		return devs[0], nil
	}
	a, err := pci.ParseBusAddress(dm.o.pci)
	if err != nil {
		return
	}
	for _, d := range devs {
		if d.Addr == a {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", a, ErrNoDevice)
}

// link_notice reports link transitions to syslog as well.
type link_notice struct {
	vnet.LinkStatusPublisher
	name string
}

func (n *link_notice) SetLinkStatus(s vnet.LinkStatus) {
	log.Print("daemon", "info", n.name, ": link ", s)
	n.LinkStatusPublisher.SetLinkStatus(s)
}

// mtu_handler keeps the tap's offloads in step with MTU changes.
type mtu_handler struct {
	*rtk5.Dev
	tap      *unix.Tap
	vnet_hdr bool
}

func (h *mtu_handler) SetMaxPacketSize(n uint) (err error) {
	if err = h.Dev.SetMaxPacketSize(n); err != nil {
		return
	}
	tso4, tso6, cso6 := h.Offloads()
	return h.tap.SetOffloads(tap_offloads(h.vnet_hdr, tso4, tso6, cso6))
}

func (dm *daemon) session(ctx context.Context) (err error) {
	l := dm.l
	pd, err := dm.find()
	if err != nil {
		return
	}
	l.WithFields(logrus.Fields{"pci": pd.Addr, "name": pd.Name()}).Info("device")

	uio, err := pci.OpenUio(pd)
	if err != nil {
		return
	}
	defer uio.Close()

	tc := dm.o.tap
	tc.Dma = dm.heap
	// Nothing is offloaded until the device says what it can do.
	tap, err := unix.Open(l, tc)
	if err != nil {
		return
	}
	defer tap.Close()

	d, err := rtk5.OpenPCI(l, pd, rtk5.Options{
		Config: dm.o.dev,
		Dma:    dm.heap,
		Input:  tap.Input(),
		Output: tap.Output(),
		Link:   &link_notice{LinkStatusPublisher: tap.Link(), name: tap.Name()},
	})
	if err != nil {
		return
	}
	defer d.Close()

	if err = tap.Link().SetHardwareAddress(d.HardwareAddress()); err != nil {
		return
	}
	tso4, tso6, cso6 := d.Offloads()
	if err = tap.SetOffloads(tap_offloads(tc.VnetHdr, tso4, tso6, cso6)); err != nil {
		return
	}
	if err = d.Enable(); err != nil {
		return
	}
	dm.cur.Store(d)
	defer dm.cur.Store(nil)
	log.Print("daemon", "info", d.Name(), ": ", d.Profile().String(), " on ", tap.Name())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return interrupts(gctx, uio, d) })
	g.Go(func() error { return ticks(gctx, dm.o.watchdog, d.Tick) })
	g.Go(func() error { return poll(gctx, d) })
	g.Go(func() error { return tap.ReadLoop(gctx) })
	g.Go(func() error { return tap.Output().Pump(gctx, d) })
	g.Go(func() error { return tap.Link().Watch(gctx, tap.Index(), &mtu_handler{Dev: d, tap: tap, vnet_hdr: tc.VnetHdr}) })
	if dm.o.stats_listen != "" {
		s := new_stats(l, dm.o, d, tap)
		g.Go(func() error { return s.serve(gctx) })
		g.Go(func() error { return ticks(gctx, dm.o.stats_interval, s.update) })
	}
	err = g.Wait()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil && ctx.Err() == nil {
		err = errors.New("session ended")
	}
	return
}

// interrupts services the device's interrupt until ctx is done.
func interrupts(ctx context.Context, u *pci.Uio, d *rtk5.Dev) error {
	if err := u.Unmask(); err != nil {
		return err
	}
	for {
		if _, err := u.Wait(ctx); err != nil {
			if errors.Is(err, pci.ErrClosed) {
				return ctx.Err()
			}
			return err
		}
		d.OnInterrupt()
		if err := u.Unmask(); err != nil {
			return err
		}
	}
}

func ticks(ctx context.Context, every time.Duration, f func()) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			f()
		}
	}
}

// Poll mode check interval while interrupts drive the device.
const idle_poll = 10 * time.Millisecond

// poll drives the device while it is in poll mode, paced to link speed.
func poll(ctx context.Context, d *rtk5.Dev) error {
	t := time.NewTimer(idle_poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		next := idle_poll
		if d.PollMode() {
			p := d.PollParams()
			d.Poll(int(p.MaxPackets))
			next = p.Interval
		}
		t.Reset(next)
	}
}
