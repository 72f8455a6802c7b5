//go:build linux

package transport

import "golang.org/x/sys/unix"

// setReuseAddr включает повторное использование адреса и порта.
// SO_REUSEPORT на Linux дополнительно позволяет нескольким процессам
// слушать один порт группы.
func setReuseAddr(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
