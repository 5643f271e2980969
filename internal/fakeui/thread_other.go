//go:build !linux && !windows

package fakeui

// No portable way to read the OS thread id here; affinity is not checked.
const threadsTracked = false

func threadID() int { return 0 }
