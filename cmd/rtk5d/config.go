// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/elib/hw/pci"
	"github.com/platinasystems/rtk5/internal/config"
	"github.com/platinasystems/rtk5/vnet"
	"github.com/platinasystems/rtk5/vnet/devices/ethernet/rtk5"
	"github.com/platinasystems/rtk5/vnet/unix"
)

func defaults() map[string]any {
	return map[string]any{
		"device": map[string]any{
			"pci":    "",
			"mtu":    1500,
			"medium": "auto",
			"eee":    false,
			"poll":   false,
		},
		"offload": map[string]any{
			"tso4": true,
			"tso6": true,
			"cso6": true,
		},
		"rx": map[string]any{
			"ring":          512,
			"spare_buffers": 150,
		},
		"tx": map[string]any{
			"ring": 1024,
		},
		"dma": map[string]any{
			"heap_log2": 28,
		},
		"tap": map[string]any{
			"name":     "rtk0",
			"vnet_hdr": true,
			"queue":    1024,
			"persist":  false,
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "",
		},
		"stats": map[string]any{
			"listen":   "",
			"path":     "/metrics",
			"interval": "10s",
		},
		"watchdog": map[string]any{
			"interval": "1s",
		},
	}
}

type options struct {
	pci       string
	dev       rtk5.Config
	tap       unix.Config
	heap_log2 uint

	stats_listen   string
	stats_path     string
	stats_interval time.Duration
	watchdog       time.Duration
}

func positive(c *config.C, k string, d int) (uint, error) {
	v := c.GetInt(k, d)
	if v <= 0 {
		return 0, fmt.Errorf("%s: %d is not positive", k, v)
	}
	return uint(v), nil
}

// read_options builds daemon options from c.
func read_options(c *config.C) (o options, err error) {
	o.dev = rtk5.DefaultConfig()
	o.pci = c.GetString("device.pci", "")
	if o.pci != "" {
		if _, err = pci.ParseBusAddress(o.pci); err != nil {
			return
		}
	}
	if o.dev.MTU, err = positive(c, "device.mtu", 1500); err != nil {
		return
	}
	if o.dev.Medium, err = vnet.ParseMedium(c.GetString("device.medium", "auto")); err != nil {
		err = fmt.Errorf("device.medium: %w", err)
		return
	}
	o.dev.EEE = c.GetBool("device.eee", false)
	o.dev.PollOnLinkUp = c.GetBool("device.poll", false)
	o.dev.TSO4 = c.GetBool("offload.tso4", true)
	o.dev.TSO6 = c.GetBool("offload.tso6", true)
	o.dev.CSO6 = c.GetBool("offload.cso6", true)
	if o.dev.RxRingLen, err = positive(c, "rx.ring", 512); err != nil {
		return
	}
	if o.dev.TxRingLen, err = positive(c, "tx.ring", 1024); err != nil {
		return
	}
	if o.dev.SpareBuffers, err = positive(c, "rx.spare_buffers", 150); err != nil {
		return
	}

	if o.heap_log2, err = positive(c, "dma.heap_log2", 28); err != nil {
		return
	}
	if o.heap_log2 < 21 || o.heap_log2 > 34 {
		err = fmt.Errorf("dma.heap_log2: %d out of range 21-34", o.heap_log2)
		return
	}

	o.tap = unix.Config{
		Name:    c.GetString("tap.name", "rtk0"),
		VnetHdr: c.GetBool("tap.vnet_hdr", true),
		Persist: c.GetBool("tap.persist", false),
		MTU:     o.dev.MTU,
	}
	var q uint
	if q, err = positive(c, "tap.queue", 1024); err != nil {
		return
	}
	o.tap.QueueLen = int(q)
	if len(o.tap.Name) >= 16 {
		err = fmt.Errorf("tap.name: %q too long", o.tap.Name)
		return
	}

	o.stats_listen = c.GetString("stats.listen", "")
	o.stats_path = c.GetString("stats.path", "/metrics")
	o.stats_interval = c.GetDuration("stats.interval", 10*time.Second)
	o.watchdog = c.GetDuration("watchdog.interval", time.Second)
	if o.watchdog <= 0 || o.stats_interval <= 0 {
		err = fmt.Errorf("watchdog.interval and stats.interval must be positive")
	}
	return
}

// tap_offloads advertises to the kernel only what the device will do.
// The kernel's checksum offload covers both address families.
func tap_offloads(vnet_hdr, tso4, tso6, cso6 bool) (csum, t4, t6 bool) {
	csum = vnet_hdr && cso6
	return csum, csum && tso4, csum && tso6
}

func configure_logging(l *logrus.Logger, c *config.C, debug bool) error {
	level, err := logrus.ParseLevel(c.GetString("logging.level", "info"))
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if debug {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	switch f := c.GetString("logging.format", ""); f {
	case "json":
		l.Formatter = &logrus.JSONFormatter{}
	case "text":
		l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "":
		if isatty.IsTerminal(os.Stdout.Fd()) {
			l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
		} else {
			l.Formatter = &logrus.JSONFormatter{}
		}
	default:
		return fmt.Errorf("logging.format: unknown format %q", f)
	}
	return nil
}
