//go:build linux
// +build linux

/*************************************************************************
 * Copyright 2023 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package log

import (
	"bytes"
	"io/ioutil"
)

var kernelVersion string

func init() {
	if val, err := ioutil.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		kernelVersion = string(bytes.Trim(val, " \n\r"))
	}
}

// HostKernelVersion returns the real Linux kernel release this simulated
// kernel happens to be running under, for the boot banner — a nod to the
// host underneath the simulation, not anything this kernel models itself.
func HostKernelVersion() string {
	if kernelVersion == "" {
		return "unknown"
	}
	return kernelVersion
}
