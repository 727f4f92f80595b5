// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"github.com/sirupsen/logrus"
)

func (d *Dev) start_watchdog() { d.watchdog_on = true }

func (d *Dev) stop_watchdog() {
	d.watchdog_on = false
	d.tx.warn = 0
}

// Tick is the 1 second watchdog: statistics and tx hang detection.
func (d *Dev) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled.Load() {
		return
	}
	d.update_statistics()
	if d.watchdog_on {
		d.tx_hang_check()
	}
}

// tx_hang_check looks for a ring with work outstanding that made no
// progress since the last tick.  After TxCheckThreshold such ticks it
// reclaims once by hand; at TxDeadlockThreshold it restarts the chip.
func (d *Dev) tx_hang_check() {
	r := &d.tx
	if r.desc == nil {
		return
	}
	done := r.done_count.Load()
	stalled := done == r.done_last && r.outstanding() > 0
	r.done_last = done
	if !stalled {
		r.warn = 0
		return
	}
	r.warn++
	switch {
	case r.warn >= d.TxDeadlockThreshold:
		d.log().WithFields(logrus.Fields{
			"outstanding": r.outstanding(),
			"ticks":       r.warn,
		}).Warn("tx deadlock, restarting")
		r.warn = 0
		d.restart()
	case r.warn == d.TxCheckThreshold:
		d.counters.tx_timeouts.Inc(1)
		d.log().WithField("outstanding", r.outstanding()).Warn("tx timeout")
		// A poll in flight reclaims on its own.
		if d.polling.CompareAndSwap(false, true) {
			d.tx_reclaim()
			d.polling.Store(false)
		}
		r.done_last = r.done_count.Load()
	}
}
