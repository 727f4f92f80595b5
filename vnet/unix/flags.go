// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unix

import (
	"fmt"
	"strings"
)

// Linux interface flags
type iff_flag uint32

const (
	iff_up_bit, iff_up iff_flag = iota, 1 << iota
	iff_broadcast_bit, iff_broadcast
	iff_debug_bit, iff_debug
	iff_loopback_bit, iff_loopback
	iff_pointopoint_bit, iff_pointopoint
	iff_notrailers_bit, iff_notrailers
	iff_running_bit, iff_running
	iff_noarp_bit, iff_noarp
	iff_promisc_bit, iff_promisc
	iff_allmulti_bit, iff_allmulti
	iff_master_bit, iff_master
	iff_slave_bit, iff_slave
	iff_multicast_bit, iff_multicast
	iff_portsel_bit, iff_portsel
	iff_automedia_bit, iff_automedia
	iff_dynamic_bit, iff_dynamic
	iff_lower_up_bit, iff_lower_up
	iff_dormant_bit, iff_dormant
	iff_echo_bit, iff_echo
)

var iff_flag_names = [...]string{
	iff_up_bit:          "admin-up",
	iff_broadcast_bit:   "broadcast",
	iff_debug_bit:       "debug",
	iff_loopback_bit:    "loopback",
	iff_pointopoint_bit: "point-to-point",
	iff_notrailers_bit:  "no-trailers",
	iff_running_bit:     "running",
	iff_noarp_bit:       "no-arp",
	iff_promisc_bit:     "promiscuous",
	iff_allmulti_bit:    "all-multicast",
	iff_master_bit:      "master",
	iff_slave_bit:       "slave",
	iff_multicast_bit:   "multicast",
	iff_portsel_bit:     "portsel",
	iff_automedia_bit:   "automedia",
	iff_dynamic_bit:     "dynamic",
	iff_lower_up_bit:    "link-up",
	iff_dormant_bit:     "dormant",
	iff_echo_bit:        "echo",
}

func (f iff_flag) String() string {
	var s []string
	for i := range iff_flag_names {
		if f&(1<<i) != 0 {
			s = append(s, iff_flag_names[i])
			f &^= 1 << i
		}
	}
	if f != 0 {
		s = append(s, fmt.Sprintf("0x%x", uint32(f)))
	}
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}

// TUNSETIFF flags
const (
	iff_tap      = 1 << 1
	iff_no_pi    = 1 << 12
	iff_vnet_hdr = 1 << 14
)

// _IOW('T', 226, int)
const tunsetcarrier = 0x400454e2

// TUNSETOFFLOAD flags
const (
	tun_f_csum = 1 << 0
	tun_f_tso4 = 1 << 1
	tun_f_tso6 = 1 << 2
)

// maybe_change_flag sets or clears flag in *flags and reports whether
// anything changed.
func maybe_change_flag(flags *iff_flag, isUp bool, flag iff_flag) (change bool) {
	switch {
	case isUp && *flags&flag != flag:
		change = true
		*flags |= flag
	case !isUp && *flags&flag != 0:
		change = true
		*flags &^= flag
	}
	return
}
