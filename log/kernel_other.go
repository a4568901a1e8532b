//go:build !linux
// +build !linux

package log

// HostKernelVersion is unknown on non-Linux hosts; nothing under
// /proc/sys/kernel to read.
func HostKernelVersion() string { return "unknown" }
