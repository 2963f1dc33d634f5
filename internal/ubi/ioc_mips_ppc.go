//go:build mips || mipsle || mips64 || mips64le || ppc64 || ppc64le || sparc64

package ubi

// mips, powerpc and sparc use a 3-bit direction field and 13 size bits
const (
	iocSizeBits = 13
	iocWrite    = 4
)
