// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// rtk5d drives one RTL8125/RTL8126 from userspace and bridges it to the
// host through a tap interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/elib/hw/pci"
	"github.com/platinasystems/rtk5/internal/config"
)

const Name = "rtk5d"

const Usage = Name + ` [-config PATH] [-pci ADDR] [-tap NAME] [-debug] [-test]

	-config PATH	load configuration from a file or directory of yaml files
	-pci ADDR	use the device at this bus address, default the first found
	-tap NAME	name of the tap interface
	-debug		log at debug level
	-test		load and check the configuration, then exit
`

func main() {
	if err := Main(os.Args[1:]...); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", Name, err)
		os.Exit(1)
	}
}

func Main(args ...string) error {
	flag, args := flags.New(args, "-debug", "-test", "-h", "-help")
	parm, args := parms.New(args, "-config", "-pci", "-tap")
	if flag.ByName["-h"] || flag.ByName["-help"] {
		fmt.Print(Usage)
		return nil
	}
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected\n%s", args, Usage)
	}

	l := logrus.New()
	l.Out = os.Stdout

	c, o, err := load(l, parm, flag.ByName["-debug"])
	if err != nil {
		return err
	}
	if flag.ByName["-test"] {
		l.WithField("files", c.Files()).Info("config ok")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	c.CatchHUP(ctx)

	log.Print("daemon", "info", Name, " started")
	err = run(ctx, l, c, o)
	log.Print("daemon", "info", Name, " done")
	return err
}

// load reads configuration and applies command line overrides.
func load(l *logrus.Logger, parm *parms.Parms, debug bool) (c *config.C, o options, err error) {
	c = config.NewC(l)
	if err = c.SetDefaults(defaults()); err != nil {
		return
	}
	if p := parm.ByName["-config"]; p != "" {
		if err = c.Load(p); err != nil {
			err = fmt.Errorf("config: %w", err)
			return
		}
	}
	if err = configure_logging(l, c, debug); err != nil {
		return
	}
	if o, err = read_options(c); err != nil {
		return
	}
	if s := parm.ByName["-pci"]; s != "" {
		if _, err = pci.ParseBusAddress(s); err != nil {
			return
		}
		o.pci = s
	}
	if s := parm.ByName["-tap"]; s != "" {
		o.tap.Name = s
	}
	return
}
