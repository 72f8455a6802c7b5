//go:build darwin

package transport

import "golang.org/x/sys/unix"

// setReuseAddr включает повторное использование адреса и порта.
// На macOS для дележа порта группы между процессами нужны обе опции.
func setReuseAddr(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
