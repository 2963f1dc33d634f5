package ubi

import (
	"unsafe"
)

// mkvolReq mirrors struct ubi_mkvol_req from <mtd/ubi-user.h>
type mkvolReq struct {
	VolID     int32
	Alignment int32
	Bytes     int64
	VolType   int8
	_         int8
	NameLen   int16
	_         [4]int8
	Name      [MaxVolumeNameLen + 1]byte
}

// iocSizeBits and iocWrite depend on the architecture, see ioc_*.go
const (
	iocNRBits   = 8
	iocTypeBits = 8

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	// ubiVolIocMagic is the ioctl magic of UBI device nodes
	ubiVolIocMagic = 'o'
)

func iow(typ, nr, size uintptr) uintptr {
	return iocWrite<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// ioctlMkvol is UBI_IOCMKVOL
var ioctlMkvol = iow(ubiVolIocMagic, 0, unsafe.Sizeof(mkvolReq{}))

func newMkvolReq(r *MkvolRequest) *mkvolReq {
	req := &mkvolReq{
		VolID:     int32(r.VolID),
		Alignment: int32(r.Alignment),
		Bytes:     r.Bytes,
		VolType:   int8(r.VolType),
		NameLen:   int16(len(r.Name)),
	}
	copy(req.Name[:MaxVolumeNameLen], r.Name)
	return req
}
