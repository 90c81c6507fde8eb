//go:build linux

package adapter

import (
	"net"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	tunCloneDevice = "/dev/net/tun"
	ifnamsiz       = 16
	tunSetIff      = 0x400454ca
	iffTun         = 0x0001
	iffNoPi        = 0x1000
)

type linuxTUN struct {
	name string
	mtu  int
	fd   *os.File
}

func openPlatform(cfg Config) (Device, error) {
	fd, err := os.OpenFile(tunCloneDevice, os.O_RDWR|syscall.O_CLOEXEC, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, &DeviceError{Op: "open clone device", Err: err}
	}

	// The kernel copies a full struct ifreq (40 bytes) in and back out.
	var ifr [40]byte
	copy(ifr[:], cfg.Name)
	flags := uint16(iffTun | iffNoPi)
	ifr[ifnamsiz] = byte(flags)
	ifr[ifnamsiz+1] = byte(flags >> 8)

	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd.Fd(), tunSetIff, uintptr(unsafe.Pointer(&ifr[0])))
	if errno != 0 {
		fd.Close()
		if errno == unix.EPERM {
			return nil, ErrPermissionDenied
		}
		return nil, &DeviceError{Op: "ioctl TUNSETIFF", Err: errno}
	}

	// The kernel may adjust the requested name.
	name := string(ifr[:ifnamsiz])
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}

	if err := unix.SetNonblock(int(fd.Fd()), true); err != nil {
		fd.Close()
		return nil, &DeviceError{Op: "set nonblocking", Err: err}
	}

	t := &linuxTUN{name: name, mtu: cfg.MTU, fd: fd}
	if err := t.configure(cfg); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *linuxTUN) configure(cfg Config) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return &DeviceError{Op: "create config socket", Err: err}
	}
	defer unix.Close(sock)

	if err := t.setMTU(sock, cfg.MTU); err != nil {
		return err
	}
	if err := t.setAddress(sock, cfg); err != nil {
		return err
	}
	return t.setUp(sock)
}

func (t *linuxTUN) setMTU(sock int, mtu int) error {
	var ifr [40]byte
	copy(ifr[:], t.name)
	*(*int32)(unsafe.Pointer(&ifr[16])) = int32(mtu)

	if errno := ioctl(sock, unix.SIOCSIFMTU, &ifr); errno != 0 {
		return &DeviceError{Op: "set MTU", Err: errno}
	}
	return nil
}

func (t *linuxTUN) setAddress(sock int, cfg Config) error {
	if !cfg.Address.Addr().Is4() {
		return &DeviceError{Op: "set address", Err: unix.EAFNOSUPPORT}
	}
	addr := cfg.Address.Addr().As4()

	var ifrAddr [40]byte
	copy(ifrAddr[:], t.name)
	ifrAddr[16] = syscall.AF_INET
	copy(ifrAddr[20:24], addr[:])
	if errno := ioctl(sock, unix.SIOCSIFADDR, &ifrAddr); errno != 0 {
		return &DeviceError{Op: "set address", Err: errno}
	}

	var ifrMask [40]byte
	copy(ifrMask[:], t.name)
	ifrMask[16] = syscall.AF_INET
	mask := net.CIDRMask(cfg.Address.Bits(), 32)
	copy(ifrMask[20:24], mask)
	if errno := ioctl(sock, unix.SIOCSIFNETMASK, &ifrMask); errno != 0 {
		return &DeviceError{Op: "set netmask", Err: errno}
	}
	return nil
}

func (t *linuxTUN) setUp(sock int) error {
	var ifr [40]byte
	copy(ifr[:], t.name)

	if errno := ioctl(sock, unix.SIOCGIFFLAGS, &ifr); errno != 0 {
		return &DeviceError{Op: "get flags", Err: errno}
	}
	flags := *(*uint16)(unsafe.Pointer(&ifr[16]))
	flags |= unix.IFF_UP | unix.IFF_RUNNING
	*(*uint16)(unsafe.Pointer(&ifr[16])) = flags

	if errno := ioctl(sock, unix.SIOCSIFFLAGS, &ifr); errno != 0 {
		return &DeviceError{Op: "set flags", Err: errno}
	}
	return nil
}

func ioctl(fd int, req uint, ifr *[40]byte) syscall.Errno {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(&ifr[0])))
	return errno
}

func (t *linuxTUN) Name() string { return t.name }
func (t *linuxTUN) MTU() int     { return t.mtu }

func (t *linuxTUN) TryRead(buf []byte) (int, error) {
	n, err := unix.Read(int(t.fd.Fd()), buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrNoPacket
		}
		return 0, &DeviceError{Op: "read", Err: err}
	}
	return n, nil
}

func (t *linuxTUN) Write(pkt []byte) (int, error) {
	n, err := t.fd.Write(pkt)
	if err != nil {
		return n, &DeviceError{Op: "write", Err: err}
	}
	return n, nil
}

func (t *linuxTUN) Close() error {
	return t.fd.Close()
}
