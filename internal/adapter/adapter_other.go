//go:build !linux && !windows

package adapter

func openPlatform(Config) (Device, error) {
	return nil, ErrNotSupported
}
