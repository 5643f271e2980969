//go:build linux

package fakeui

import "golang.org/x/sys/unix"

const threadsTracked = true

func threadID() int { return unix.Gettid() }
