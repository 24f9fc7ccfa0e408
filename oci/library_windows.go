//go:build windows

package oci

import "syscall"

func openLibrary(path string) (uintptr, error) {
	handle, err := syscall.LoadLibrary(path)
	if err != nil {
		return 0, err
	}
	return uintptr(handle), nil
}

func closeLibrary(handle uintptr) {
	if handle != 0 {
		_ = syscall.FreeLibrary(syscall.Handle(handle))
	}
}
