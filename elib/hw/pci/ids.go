// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pci

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

type DeviceClass uint16

const (
	Network_Ethernet DeviceClass = 0x0200
	Network_Other    DeviceClass = 0x0280
)

var (
	dbOnce sync.Once
	db     *pcidb.PCIDB
)

// DB loads the system pci.ids database once.  Nil if unavailable.
func DB() *pcidb.PCIDB {
	dbOnce.Do(func() {
		var err error
		if db, err = pcidb.New(); err != nil {
			db = nil
		}
	})
	return db
}

func dbKey(v ...uint16) string {
	var s strings.Builder
	for _, x := range v {
		fmt.Fprintf(&s, "%04x", x)
	}
	return s.String()
}

// Name returns "vendor product" from db, or the hex id when unknown.
func Name(db *pcidb.PCIDB, id DeviceID) string {
	if db == nil {
		return id.String()
	}
	vendor := dbKey(uint16(id.Vendor))
	p, ok := db.Products[dbKey(uint16(id.Vendor), uint16(id.Device))]
	if !ok {
		if v, ok := db.Vendors[vendor]; ok {
			return fmt.Sprintf("%s %s", v.Name, id.Device)
		}
		return id.String()
	}
	if v, ok := db.Vendors[vendor]; ok {
		return v.Name + " " + p.Name
	}
	return p.Name
}

func (d *Device) Name() string { return Name(DB(), d.ID) }
