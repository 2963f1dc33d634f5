package ubi

import (
	"errors"
	"fmt"
)

const (
	// VolNumAuto asks the driver to pick a free volume ID
	VolNumAuto = -1

	// MaxVolumeNameLen is the longest volume name the driver accepts
	MaxVolumeNameLen = 127

	// supportedVersion is the only UBI sysfs layout understood here
	supportedVersion = 1
)

var (
	ErrNotPresent     = errors.New("UBI is not present in the system")
	ErrNoDevice       = errors.New("no such UBI device")
	ErrNoVolume       = errors.New("no such UBI volume")
	ErrNotCharDevice  = errors.New("not a character device")
	ErrInvalidRequest = errors.New("invalid volume creation request")
	ErrClosed         = errors.New("UBI library handle is closed")
)

// VolumeType is the UBI volume type as encoded in ioctl requests
type VolumeType int8

const (
	DynamicVolume VolumeType = 3
	StaticVolume  VolumeType = 4
)

// ParseVolumeType converts "dynamic" or "static" to a VolumeType
func ParseVolumeType(s string) (VolumeType, error) {
	switch s {
	case "dynamic":
		return DynamicVolume, nil
	case "static":
		return StaticVolume, nil
	default:
		return 0, fmt.Errorf("unknown volume type %q", s)
	}
}

func (t VolumeType) String() string {
	switch t {
	case DynamicVolume:
		return "dynamic"
	case StaticVolume:
		return "static"
	default:
		return fmt.Sprintf("unknown(%d)", int8(t))
	}
}

// MarshalText renders the type the same way sysfs does
func (t VolumeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Info describes the UBI subsystem as a whole
type Info struct {
	DevCount      int    `json:"dev_count"`
	LowestDevNum  int    `json:"lowest_dev_num"`
	HighestDevNum int    `json:"highest_dev_num"`
	Version       int    `json:"version"`
	CtrlMajor     uint32 `json:"ctrl_major"`
	CtrlMinor     uint32 `json:"ctrl_minor"`
}

// DeviceInfo describes one UBI device (ubiN)
type DeviceInfo struct {
	DevNum      int    `json:"dev_num"`
	Major       uint32 `json:"major"`
	Minor       uint32 `json:"minor"`
	VolCount    int    `json:"vol_count"`
	MaxVolCount int    `json:"max_vol_count"`
	TotalLEBs   int64  `json:"total_lebs"`
	AvailLEBs   int64  `json:"avail_lebs"`
	TotalBytes  int64  `json:"total_bytes"`
	AvailBytes  int64  `json:"avail_bytes"`
	BadCount    int64  `json:"bad_count"`
	LEBSize     int64  `json:"leb_size"`
	MinIOSize   int64  `json:"min_io_size"`
	MaxEC       int64  `json:"max_ec"`
}

// VolumeInfo describes one UBI volume (ubiN_M)
type VolumeInfo struct {
	DevNum       int        `json:"dev_num"`
	VolID        int        `json:"vol_id"`
	Type         VolumeType `json:"type"`
	Alignment    int        `json:"alignment"`
	DataBytes    int64      `json:"data_bytes"`
	RsvdLEBs     int64      `json:"rsvd_lebs"`
	RsvdBytes    int64      `json:"rsvd_bytes"`
	LEBSize      int64      `json:"leb_size"`
	Corrupted    bool       `json:"corrupted"`
	UpdateMarker bool       `json:"upd_marker"`
	Name         string     `json:"name"`
}

// MkvolRequest holds the parameters of a volume creation request.
// VolID is updated with the ID assigned by the driver.
type MkvolRequest struct {
	VolID     int
	Alignment int
	Bytes     int64
	VolType   VolumeType
	Name      string
}

// Validate rejects requests the driver would refuse anyway
func (r *MkvolRequest) Validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: empty volume name", ErrInvalidRequest)
	case len(r.Name) > MaxVolumeNameLen:
		return fmt.Errorf("%w: name is %d bytes, max is %d", ErrInvalidRequest, len(r.Name), MaxVolumeNameLen)
	case r.Alignment <= 0:
		return fmt.Errorf("%w: bad alignment %d", ErrInvalidRequest, r.Alignment)
	case r.Bytes <= 0:
		return fmt.Errorf("%w: bad size %d", ErrInvalidRequest, r.Bytes)
	case r.VolID < VolNumAuto:
		return fmt.Errorf("%w: bad volume ID %d", ErrInvalidRequest, r.VolID)
	case r.VolType != DynamicVolume && r.VolType != StaticVolume:
		return fmt.Errorf("%w: bad volume type %d", ErrInvalidRequest, int8(r.VolType))
	}
	return nil
}
