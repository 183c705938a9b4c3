//go:build linux

package hci

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// socket is a raw HCI socket bound to one device.
type socket struct {
	fd int
}

func (s *socket) Write(p []byte) (int, error) {
	return unix.Write(s.fd, p)
}

func (s *socket) Close() error {
	return unix.Close(s.fd)
}

// Open binds a raw HCI socket to hci<dev> and returns an advertiser for it.
func Open(dev int) (*Advertiser, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, fmt.Errorf("hci socket: %w", err)
	}

	addr := &unix.SockaddrHCI{Dev: uint16(dev), Channel: unix.HCI_CHANNEL_RAW}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd) //nolint:errcheck // already failing
		return nil, fmt.Errorf("hci bind hci%d: %w", dev, err)
	}

	return newAdvertiser(&socket{fd: fd}, dev), nil
}
