// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vnet

import (
	"fmt"
	"strings"
)

// Medium is a selectable speed, duplex, flow control and EEE combination.
type Medium uint8

const (
	MediumAuto Medium = iota
	Medium10HD
	Medium10FD
	Medium100HD
	Medium100FD
	Medium100FDFC
	Medium1000FD
	Medium1000FDFC
	Medium100FDEEE
	Medium100FDFCEEE
	Medium1000FDEEE
	Medium1000FDFCEEE
	Medium2500FD
	Medium2500FDFC
	Medium5000FD
	Medium5000FDFC
	NMedium
)

type mediumInfo struct {
	name       string
	mbps       uint
	fullDuplex bool
	flow, eee  bool
}

var mediums = [NMedium]mediumInfo{
	MediumAuto:        {name: "auto", fullDuplex: true},
	Medium10HD:        {name: "10HD", mbps: 10},
	Medium10FD:        {name: "10FD", mbps: 10, fullDuplex: true},
	Medium100HD:       {name: "100HD", mbps: 100},
	Medium100FD:       {name: "100FD", mbps: 100, fullDuplex: true},
	Medium100FDFC:     {name: "100FDFC", mbps: 100, fullDuplex: true, flow: true},
	Medium1000FD:      {name: "1000FD", mbps: 1000, fullDuplex: true},
	Medium1000FDFC:    {name: "1000FDFC", mbps: 1000, fullDuplex: true, flow: true},
	Medium100FDEEE:    {name: "100FDEEE", mbps: 100, fullDuplex: true, eee: true},
	Medium100FDFCEEE:  {name: "100FDFCEEE", mbps: 100, fullDuplex: true, flow: true, eee: true},
	Medium1000FDEEE:   {name: "1000FDEEE", mbps: 1000, fullDuplex: true, eee: true},
	Medium1000FDFCEEE: {name: "1000FDFCEEE", mbps: 1000, fullDuplex: true, flow: true, eee: true},
	Medium2500FD:      {name: "2500FD", mbps: 2500, fullDuplex: true},
	Medium2500FDFC:    {name: "2500FDFC", mbps: 2500, fullDuplex: true, flow: true},
	Medium5000FD:      {name: "5000FD", mbps: 5000, fullDuplex: true},
	Medium5000FDFC:    {name: "5000FDFC", mbps: 5000, fullDuplex: true, flow: true},
}

func (m Medium) info() mediumInfo {
	if m < NMedium {
		return mediums[m]
	}
	return mediumInfo{}
}

func (m Medium) String() string {
	if m < NMedium {
		return mediums[m].name
	}
	return fmt.Sprintf("medium(%d)", uint8(m))
}

// Mbps is zero for MediumAuto.
func (m Medium) Mbps() uint         { return m.info().mbps }
func (m Medium) FullDuplex() bool   { return m.info().fullDuplex }
func (m Medium) FlowControl() bool  { return m.info().flow }
func (m Medium) EEE() bool          { return m.info().eee }
func (m Medium) BitsPerSec() uint64 { return uint64(m.Mbps()) * 1e6 }

func ParseMedium(s string) (m Medium, err error) {
	for i := range mediums {
		if strings.EqualFold(s, mediums[i].name) {
			m = Medium(i)
			return
		}
	}
	err = fmt.Errorf("vnet: unknown medium %q", s)
	return
}

// MediumOf maps a resolved link to the medium describing it.  EEE is only
// reported at 100 and 1000; half duplex only below 1000.
func MediumOf(mbps uint, fullDuplex, flow, eee bool) Medium {
	switch mbps {
	case 5000:
		if flow {
			return Medium5000FDFC
		}
		return Medium5000FD
	case 2500:
		if flow {
			return Medium2500FDFC
		}
		return Medium2500FD
	case 1000:
		switch {
		case flow && eee:
			return Medium1000FDFCEEE
		case flow:
			return Medium1000FDFC
		case eee:
			return Medium1000FDEEE
		}
		return Medium1000FD
	case 100:
		switch {
		case !fullDuplex:
			return Medium100HD
		case flow && eee:
			return Medium100FDFCEEE
		case flow:
			return Medium100FDFC
		case eee:
			return Medium100FDEEE
		}
		return Medium100FD
	}
	if fullDuplex {
		return Medium10FD
	}
	return Medium10HD
}
