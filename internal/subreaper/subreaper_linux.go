//go:build linux

package subreaper

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func enable() error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("subreaper: set child subreaper: %w", err)
	}
	return nil
}

func enabled() (bool, error) {
	var isSubreaper int
	// PR_GET_CHILD_SUBREAPER writes its result through arg2, not the
	// return value, per prctl(2).
	if err := unix.Prctl(unix.PR_GET_CHILD_SUBREAPER, uintptr(unsafe.Pointer(&isSubreaper)), 0, 0, 0); err != nil {
		return false, fmt.Errorf("subreaper: get child subreaper: %w", err)
	}
	return isSubreaper != 0, nil
}
