//go:build windows

package fakeui

import "golang.org/x/sys/windows"

const threadsTracked = true

func threadID() int { return int(windows.GetCurrentThreadId()) }
