//go:build linux

package ubi

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// nodeOps talks to UBI device nodes through the kernel
type nodeOps struct{}

func (nodeOps) CharDevNum(node string) (uint32, uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(node, &st); err != nil {
		return 0, 0, fmt.Errorf("cannot stat %s: %w", node, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return 0, 0, fmt.Errorf("%s: %w", node, ErrNotCharDevice)
	}
	return unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev)), nil
}

func (nodeOps) Mkvol(node string, req *mkvolReq) error {
	fd, err := unix.Open(node, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", node, err)
	}
	defer unix.Close(fd)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlMkvol, uintptr(unsafe.Pointer(req)))
	if errno != 0 {
		return fmt.Errorf("ioctl UBI_IOCMKVOL on %s: %w", node, errno)
	}
	return nil
}
