//go:build !mips && !mipsle && !mips64 && !mips64le && !ppc64 && !ppc64le && !sparc64

package ubi

// asm-generic ioctl encoding
const (
	iocSizeBits = 14
	iocWrite    = 1
)
