// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package test

import (
	"sync"

	"github.com/platinasystems/rtk5/vnet"
)

// OutputQueue is a FIFO of packets that records stalls and wakes.
type OutputQueue struct {
	mu     sync.Mutex
	pkts   []vnet.Packet
	stalls int
	wakes  int
}

func (q *OutputQueue) Push(p ...vnet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pkts = append(q.pkts, p...)
}

func (q *OutputQueue) Dequeue() (p vnet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pkts) > 0 {
		p, q.pkts = q.pkts[0], q.pkts[1:]
	}
	return
}

func (q *OutputQueue) Stall() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stalls++
}

func (q *OutputQueue) Wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.wakes++
}

func (q *OutputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pkts)
}

func (q *OutputQueue) Stalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stalls
}

func (q *OutputQueue) Wakes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wakes
}

// InputQueue collects received frames.
type InputQueue struct {
	mu      sync.Mutex
	frames  []*vnet.RxFrame
	flushes int
}

func (q *InputQueue) Enqueue(f *vnet.RxFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append(q.frames, f)
}

func (q *InputQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushes++
}

// Take returns and forgets the frames received so far.
func (q *InputQueue) Take() (f []*vnet.RxFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	f, q.frames = q.frames, nil
	return
}

func (q *InputQueue) Flushes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushes
}

// Link records published link status.
type Link struct {
	mu     sync.Mutex
	status []vnet.LinkStatus
}

func (l *Link) SetLinkStatus(s vnet.LinkStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = append(l.status, s)
}

func (l *Link) Statuses() []vnet.LinkStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]vnet.LinkStatus(nil), l.status...)
}

// Last returns the most recent status.
func (l *Link) Last() (s vnet.LinkStatus, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.status); n > 0 {
		s, ok = l.status[n-1], true
	}
	return
}
