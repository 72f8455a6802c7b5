//go:build windows

package transport

import "golang.org/x/sys/windows"

// setReuseAddr включает повторное использование адреса.
// SO_REUSEPORT в Windows отсутствует, SO_REUSEADDR покрывает оба случая.
func setReuseAddr(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
}
