// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"errors"

	"github.com/platinasystems/rtk5/vnet"
)

var (
	ErrNoDevice        = errors.New("rtk5: no device")
	ErrRingFull        = errors.New("rtk5: tx ring full")
	ErrTooManySegments = vnet.ErrTooManySegments
	ErrOffload         = errors.New("rtk5: offload not possible")
	ErrNotEnabled      = errors.New("rtk5: not enabled")
	// Identification fell back to the default profile.  Not fatal.
	ErrUnknownChip = errors.New("rtk5: unknown chip")
)
