// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package supervisor

import "syscall"

// sysProcAttr puts the child in its own process group and asks the kernel
// for SIGKILL when the forking OS thread exits. The runtime only retires a
// thread when a goroutine exits while locked to it, so Launch must not be
// called from such a goroutine. Terminate remains the orderly path.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
