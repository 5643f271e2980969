//go:build windows

package platform

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"go.aimuz.me/chatwatch/access"
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procFindWindowExW   = user32.NewProc("FindWindowExW")
	procIsWindowVisible = user32.NewProc("IsWindowVisible")
)

// Classifier identifies windows with Win32 calls.
type Classifier struct {
	rules Rules
}

// NewClassifier creates a classifier for rules.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

func (c *Classifier) Foreground(context.Context) (access.WindowHandle, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return 0, access.ErrUnavailable
	}
	return access.WindowHandle(hwnd), nil
}

func (c *Classifier) Classify(_ context.Context, hwnd access.WindowHandle) (access.WindowInfo, error) {
	h := windows.HWND(hwnd)
	process, err := processName(h)
	if err != nil {
		return access.WindowInfo{}, err
	}
	class, err := className(h)
	if err != nil {
		return access.WindowInfo{}, err
	}
	return access.WindowInfo{Kind: c.rules.Kind(process, class), Handle: hwnd}, nil
}

// MenuVisible looks for a visible popup menu window owned by the target
// process.
func (c *Classifier) MenuVisible(context.Context) (bool, error) {
	for _, class := range c.rules.menuClasses() {
		name, err := windows.UTF16PtrFromString(class)
		if err != nil {
			return false, err
		}
		var after uintptr
		for {
			r, _, _ := procFindWindowExW.Call(0, after, uintptr(unsafe.Pointer(name)), 0)
			if r == 0 {
				break
			}
			after = r
			if visible, _, _ := procIsWindowVisible.Call(r); visible == 0 {
				continue
			}
			if p, err := processName(windows.HWND(r)); err == nil && c.rules.owns(p) {
				return true, nil
			}
		}
	}
	return false, nil
}

func className(h windows.HWND) (string, error) {
	buf := make([]uint16, 256)
	n, err := windows.GetClassName(h, &buf[0], int32(len(buf)))
	if err != nil {
		return "", fmt.Errorf("get class name: %w", access.ErrStaleElement)
	}
	return windows.UTF16ToString(buf[:n]), nil
}

func processName(h windows.HWND) (string, error) {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(h, &pid); err != nil || pid == 0 {
		return "", fmt.Errorf("get window process: %w", access.ErrStaleElement)
	}

	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(proc, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("query process image: %w", err)
	}
	return windows.UTF16ToString(buf[:size]), nil
}
