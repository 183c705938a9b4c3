//go:build !linux

package hci

// Open is only available on Linux.
func Open(dev int) (*Advertiser, error) {
	return nil, ErrUnsupported
}
