package ubi

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DefaultSysfsRoot is where sysfs is normally mounted
const DefaultSysfsRoot = "/sys"

// deviceOps covers the operations that need a real device node
type deviceOps interface {
	CharDevNum(node string) (major, minor uint32, err error)
	Mkvol(node string, req *mkvolReq) error
}

// Client is an open handle to the UBI management interface.
// Device and volume state is read from sysfs, mutations go through ioctls.
type Client struct {
	fs     afero.Fs
	root   string
	ops    deviceOps
	closed bool
}

// Option configures a Client
type Option func(*Client)

// WithSysfs sets the sysfs mount point
func WithSysfs(root string) Option {
	return func(c *Client) {
		if root != "" {
			c.root = root
		}
	}
}

// WithFs sets the filesystem sysfs is read from
func WithFs(fsys afero.Fs) Option {
	return func(c *Client) {
		c.fs = fsys
	}
}

func withDeviceOps(ops deviceOps) Option {
	return func(c *Client) {
		c.ops = ops
	}
}

// Open opens the UBI library. It fails with ErrNotPresent if the UBI
// driver is not loaded.
func Open(opts ...Option) (*Client, error) {
	c := &Client{
		fs:   afero.NewOsFs(),
		root: DefaultSysfsRoot,
		ops:  nodeOps{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := c.fs.Stat(c.classPath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotPresent
		}
		return nil, fmt.Errorf("cannot access %s: %w", c.classPath(), err)
	}

	version, err := c.readInt(c.classPath("version"))
	if err != nil {
		return nil, err
	}
	if version != supportedVersion {
		return nil, fmt.Errorf("UBI version %d is not supported", version)
	}

	return c, nil
}

// Close releases the handle
func (c *Client) Close() error {
	c.closed = true
	return nil
}

// Info returns global UBI information
func (c *Client) Info() (*Info, error) {
	if c.closed {
		return nil, ErrClosed
	}

	version, err := c.readInt(c.classPath("version"))
	if err != nil {
		return nil, err
	}

	info := &Info{
		Version:       int(version),
		LowestDevNum:  -1,
		HighestDevNum: -1,
	}

	major, minor, err := c.readDevNum(filepath.Join(c.root, "class", "misc", "ubi_ctrl", "dev"))
	if err == nil {
		info.CtrlMajor, info.CtrlMinor = major, minor
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	devices, err := c.devices()
	if err != nil {
		return nil, err
	}
	info.DevCount = len(devices)
	if len(devices) > 0 {
		info.LowestDevNum = devices[0]
		info.HighestDevNum = devices[len(devices)-1]
	}

	return info, nil
}

// DeviceInfo returns information about the UBI device behind a device node
func (c *Client) DeviceInfo(node string) (*DeviceInfo, error) {
	if c.closed {
		return nil, ErrClosed
	}

	major, minor, err := c.ops.CharDevNum(node)
	if err != nil {
		return nil, err
	}

	devNum, err := c.findDevice(major, minor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node, err)
	}

	return c.DeviceInfoByNum(devNum)
}

// DeviceInfoByNum returns information about UBI device devNum
func (c *Client) DeviceInfoByNum(devNum int) (*DeviceInfo, error) {
	if c.closed {
		return nil, ErrClosed
	}

	dir := c.classPath(fmt.Sprintf("ubi%d", devNum))
	ok, err := afero.DirExists(c.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("UBI device %d: %w", devNum, ErrNoDevice)
	}

	info := &DeviceInfo{DevNum: devNum}

	if info.Major, info.Minor, err = c.readDevNum(filepath.Join(dir, "dev")); err != nil {
		return nil, err
	}

	fields := []struct {
		name string
		dst  *int64
	}{
		{"avail_eraseblocks", &info.AvailLEBs},
		{"total_eraseblocks", &info.TotalLEBs},
		{"bad_peb_count", &info.BadCount},
		{"eraseblock_size", &info.LEBSize},
		{"max_ec", &info.MaxEC},
		{"min_io_size", &info.MinIOSize},
	}
	for _, f := range fields {
		if *f.dst, err = c.readInt(filepath.Join(dir, f.name)); err != nil {
			return nil, err
		}
	}

	maxVols, err := c.readInt(filepath.Join(dir, "max_vol_count"))
	if err != nil {
		return nil, err
	}
	info.MaxVolCount = int(maxVols)

	vols, err := c.readInt(filepath.Join(dir, "volumes_count"))
	if err != nil {
		return nil, err
	}
	info.VolCount = int(vols)

	info.AvailBytes = info.AvailLEBs * info.LEBSize
	info.TotalBytes = info.TotalLEBs * info.LEBSize

	return info, nil
}

// MakeVolume creates a volume on the UBI device behind node. On success
// req.VolID holds the ID of the new volume.
func (c *Client) MakeVolume(node string, req *MkvolRequest) error {
	if c.closed {
		return ErrClosed
	}
	if err := req.Validate(); err != nil {
		return err
	}

	r := newMkvolReq(req)
	if err := c.ops.Mkvol(node, r); err != nil {
		return err
	}

	req.VolID = int(r.VolID)
	return nil
}

// VolumeInfo returns information about volume volID on UBI device devNum
func (c *Client) VolumeInfo(devNum, volID int) (*VolumeInfo, error) {
	if c.closed {
		return nil, ErrClosed
	}

	dir := c.classPath(fmt.Sprintf("ubi%d_%d", devNum, volID))
	ok, err := afero.DirExists(c.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("UBI volume %d:%d: %w", devNum, volID, ErrNoVolume)
	}

	info := &VolumeInfo{DevNum: devNum, VolID: volID}

	typ, err := c.readString(filepath.Join(dir, "type"))
	if err != nil {
		return nil, err
	}
	if info.Type, err = ParseVolumeType(typ); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, "type"), err)
	}

	alignment, err := c.readInt(filepath.Join(dir, "alignment"))
	if err != nil {
		return nil, err
	}
	info.Alignment = int(alignment)

	if info.DataBytes, err = c.readInt(filepath.Join(dir, "data_bytes")); err != nil {
		return nil, err
	}
	if info.RsvdLEBs, err = c.readInt(filepath.Join(dir, "reserved_ebs")); err != nil {
		return nil, err
	}
	if info.LEBSize, err = c.readInt(filepath.Join(dir, "usable_eb_size")); err != nil {
		return nil, err
	}
	if info.Corrupted, err = c.readBool(filepath.Join(dir, "corrupted")); err != nil {
		return nil, err
	}
	if info.UpdateMarker, err = c.readBool(filepath.Join(dir, "upd_marker")); err != nil {
		return nil, err
	}
	if info.Name, err = c.readString(filepath.Join(dir, "name")); err != nil {
		return nil, err
	}

	info.RsvdBytes = info.RsvdLEBs * info.LEBSize

	return info, nil
}

var deviceDirRe = regexp.MustCompile(`^ubi(\d+)$`)

// devices returns the numbers of all UBI devices, sorted
func (c *Client) devices() ([]int, error) {
	entries, err := afero.ReadDir(c.fs, c.classPath())
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", c.classPath(), err)
	}

	var nums []int
	for _, e := range entries {
		m := deviceDirRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)

	return nums, nil
}

func (c *Client) findDevice(major, minor uint32) (int, error) {
	devices, err := c.devices()
	if err != nil {
		return -1, err
	}

	for _, n := range devices {
		mj, mn, err := c.readDevNum(c.classPath(fmt.Sprintf("ubi%d", n), "dev"))
		if err != nil {
			continue
		}
		if mj == major && mn == minor {
			return n, nil
		}
	}

	return -1, ErrNoDevice
}

func (c *Client) classPath(elem ...string) string {
	return filepath.Join(append([]string{c.root, "class", "ubi"}, elem...)...)
}

func (c *Client) readString(path string) (string, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func (c *Client) readInt(path string) (int64, error) {
	s, err := c.readString(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad contents of %s: %w", path, err)
	}
	return n, nil
}

func (c *Client) readBool(path string) (bool, error) {
	n, err := c.readInt(path)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// readDevNum parses a "major:minor" sysfs dev file
func (c *Client) readDevNum(path string) (uint32, uint32, error) {
	s, err := c.readString(path)
	if err != nil {
		return 0, 0, err
	}

	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad contents of %s: %q", path, s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad major number in %s: %w", path, err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor number in %s: %w", path, err)
	}

	return uint32(major), uint32(minor), nil
}
