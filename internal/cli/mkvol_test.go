package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"syscall"
	"testing"

	"github.com/nace/ubimkvol/internal/ubi"
	"github.com/nace/ubimkvol/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLEBSize = 129024

// fakeLibrary emulates a UBI device that rounds volumes up to whole LEBs
type fakeLibrary struct {
	info       *ubi.Info
	infoErr    error
	dev        *ubi.DeviceInfo
	devErr     error
	mkvolErr   error
	volInfoErr error
	nextID     int

	node    string
	created *ubi.MkvolRequest
	vol     *ubi.VolumeInfo
	closed  bool
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		info: &ubi.Info{DevCount: 1, LowestDevNum: 0, HighestDevNum: 0, Version: 1},
		dev: &ubi.DeviceInfo{
			DevNum:     0,
			LEBSize:    testLEBSize,
			AvailLEBs:  100,
			TotalLEBs:  200,
			AvailBytes: 100 * testLEBSize,
			TotalBytes: 200 * testLEBSize,
		},
	}
}

func (f *fakeLibrary) Info() (*ubi.Info, error) {
	return f.info, f.infoErr
}

func (f *fakeLibrary) DeviceInfo(node string) (*ubi.DeviceInfo, error) {
	f.node = node
	if f.devErr != nil {
		return nil, f.devErr
	}
	return f.dev, nil
}

func (f *fakeLibrary) MakeVolume(node string, req *ubi.MkvolRequest) error {
	if f.mkvolErr != nil {
		return f.mkvolErr
	}
	if req.VolID == ubi.VolNumAuto {
		req.VolID = f.nextID
	}
	created := *req
	f.created = &created

	lebs := (req.Bytes + f.dev.LEBSize - 1) / f.dev.LEBSize
	f.vol = &ubi.VolumeInfo{
		DevNum:    f.dev.DevNum,
		VolID:     req.VolID,
		Type:      req.VolType,
		Alignment: req.Alignment,
		RsvdLEBs:  lebs,
		RsvdBytes: lebs * f.dev.LEBSize,
		LEBSize:   f.dev.LEBSize,
		Name:      req.Name,
	}
	return nil
}

func (f *fakeLibrary) VolumeInfo(devNum, volID int) (*ubi.VolumeInfo, error) {
	if f.volInfoErr != nil {
		return nil, f.volInfoErr
	}
	if f.vol == nil || f.vol.DevNum != devNum || f.vol.VolID != volID {
		return nil, ubi.ErrNoVolume
	}
	return f.vol, nil
}

func (f *fakeLibrary) Close() error {
	f.closed = true
	return nil
}

type result struct {
	stdout string
	stderr string
	opens  int
	root   string
	err    error
}

func run(t *testing.T, lib *fakeLibrary, args ...string) result {
	t.Helper()

	var res result
	var stdout, stderr bytes.Buffer
	ctx := &GlobalContext{
		Logger:    ui.NewLogger(&stderr, false, false, true),
		SysfsRoot: ubi.DefaultSysfsRoot,
		Open: func(root string) (Library, error) {
			res.opens++
			res.root = root
			return lib, nil
		},
	}

	cmd := NewRootCommand(ctx)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	res.err = Execute(ctx, cmd)
	res.stdout = stdout.String()
	res.stderr = stderr.String()
	return res
}

func TestCreateVolume(t *testing.T) {
	t.Run("dynamic_volume_rounded_to_lebs", func(t *testing.T) {
		lib := newFakeLibrary()
		res := run(t, lib, "/dev/ubi0", "-s", "1MiB", "-N", "test")
		require.NoError(t, res.err)

		assert.Equal(t, "/dev/ubi0", lib.node)
		require.NotNil(t, lib.created)
		assert.Equal(t, int64(1<<20), lib.created.Bytes)
		assert.Equal(t, 1, lib.created.Alignment)
		assert.Equal(t, ubi.DynamicVolume, lib.created.VolType)

		assert.GreaterOrEqual(t, lib.vol.RsvdBytes, int64(1<<20))
		assert.Zero(t, lib.vol.RsvdBytes%testLEBSize)

		assert.Equal(t,
			"Volume ID is 0, size 9 LEBs (1161216 bytes, 1.1 MiB) LEB size is 129024 bytes (126.0 KiB), dynamic volume, name \"test\"\n",
			res.stdout)
		assert.True(t, lib.closed)
		assert.Contains(t, res.stderr, "[SUCCESS] Volume 0 created on /dev/ubi0")
	})

	t.Run("static_volume_with_explicit_id", func(t *testing.T) {
		lib := newFakeLibrary()
		res := run(t, lib, "/dev/ubi0", "--size=4096", "--name=boot", "--type=static", "--vol_id=5", "--alignment=0x800")
		require.NoError(t, res.err)

		assert.Equal(t, 5, lib.created.VolID)
		assert.Equal(t, 2048, lib.created.Alignment)
		assert.Equal(t, ubi.StaticVolume, lib.created.VolType)
		assert.Contains(t, res.stdout, "Volume ID is 5, size 1 LEBs")
		assert.Contains(t, res.stdout, "static volume, name \"boot\"")
	})

	t.Run("maxavsize_uses_available_bytes", func(t *testing.T) {
		lib := newFakeLibrary()
		res := run(t, lib, "/dev/ubi0", "-m", "-N", "all")
		require.NoError(t, res.err)

		assert.Equal(t, lib.dev.AvailBytes, lib.created.Bytes)
		assert.True(t, strings.HasPrefix(res.stdout, "Set volume size to 12902400\n"))
		assert.Contains(t, res.stdout, "size 100 LEBs")
	})

	t.Run("maxavsize_overrides_size", func(t *testing.T) {
		lib := newFakeLibrary()
		res := run(t, lib, "/dev/ubi0", "-s", "1KiB", "-m", "-N", "all")
		require.NoError(t, res.err)

		assert.Equal(t, lib.dev.AvailBytes, lib.created.Bytes)
	})

	t.Run("json_output", func(t *testing.T) {
		lib := newFakeLibrary()
		lib.nextID = 2
		res := run(t, lib, "/dev/ubi0", "-s", "1MiB", "-N", "data", "--json")
		require.NoError(t, res.err)

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
		assert.Equal(t, float64(2), got["vol_id"])
		assert.Equal(t, "dynamic", got["type"])
		assert.Equal(t, "data", got["name"])
	})

	t.Run("deprecated_devn", func(t *testing.T) {
		lib := newFakeLibrary()
		res := run(t, lib, "-d", "0", "-s", "1MiB", "-N", "legacy")
		require.NoError(t, res.err)

		assert.Equal(t, "/dev/ubi0", lib.node)
		assert.Contains(t, res.stderr, "deprecated")
	})
}

func TestHelpAndVersion(t *testing.T) {
	for _, args := range [][]string{
		{"-h"},
		{"--help"},
		{"/dev/ubi0", "-h", "-s", "1MiB"},
	} {
		res := run(t, newFakeLibrary(), args...)
		require.NoError(t, res.err, args)
		assert.Contains(t, res.stdout, "Usage:", args)
		assert.Zero(t, res.opens, args)
	}

	for _, args := range [][]string{
		{"-V"},
		{"--version"},
		{"/dev/ubi0", "-V"},
	} {
		res := run(t, newFakeLibrary(), args...)
		require.NoError(t, res.err, args)
		assert.Equal(t, "1.6\n", res.stdout, args)
		assert.Zero(t, res.opens, args)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{"missing_node", []string{"-s", "1MiB", "-N", "x"}, "UBI device name was not specified"},
		{"too_long_node", []string{"/dev/" + strings.Repeat("u", 255), "-s", "1MiB", "-N", "x"}, "too long device node name"},
		{"bad_type", []string{"/dev/ubi0", "-t", "fixed"}, `bad volume type: "fixed"`},
		{"bad_size_unit", []string{"/dev/ubi0", "-s", "1MB"}, "bad size specifier"},
		{"bad_size", []string{"/dev/ubi0", "-s", "lots"}, "bad volume size"},
		{"zero_alignment", []string{"/dev/ubi0", "-a", "0"}, "bad volume alignment"},
		{"partial_alignment", []string{"/dev/ubi0", "-a", "4k"}, "bad volume alignment"},
		{"negative_devn", []string{"/dev/ubi0", "-d", "-1"}, "bad UBI device number"},
		{"bad_vol_id", []string{"/dev/ubi0", "-n", "one"}, "bad volume ID"},
		{"unknown_flag", []string{"/dev/ubi0", "--bogus"}, "use -h for help"},
		{"missing_flag_value", []string{"/dev/ubi0", "-N"}, "use -h for help"},
		{"two_nodes", []string{"/dev/ubi0", "/dev/ubi1"}, "accepts at most 1 arg"},
		{"node_without_options", []string{"/dev/ubi0"}, "too few arguments (use -h for help)"},
		{"binary_alignment", []string{"/dev/ubi0", "-a", "0b100"}, "bad volume alignment"},
		{"go_octal_vol_id", []string{"/dev/ubi0", "-n", "0o7"}, "bad volume ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, newFakeLibrary(), tt.args...)
			require.Error(t, res.err)
			assert.Contains(t, res.err.Error(), tt.message)
			assert.Contains(t, res.stderr, "[ERROR] "+res.err.Error()+"\n")
			assert.NotContains(t, res.stderr, "Error:")
			assert.Zero(t, res.opens)
		})
	}
}

func TestSanityErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		lib     func(*fakeLibrary)
		message string
	}{
		{
			name:    "no_size",
			args:    []string{"/dev/ubi0", "-N", "x", "-t", "static", "-a", "8"},
			message: "volume size was not specified",
		},
		{
			name:    "zero_size",
			args:    []string{"/dev/ubi0", "-s", "0", "-N", "x"},
			message: "volume size was not specified",
		},
		{
			name:    "no_name",
			args:    []string{"/dev/ubi0", "-s", "1MiB"},
			message: "volume name was not specified",
		},
		{
			name:    "name_too_long",
			args:    []string{"/dev/ubi0", "-s", "1MiB", "-N", strings.Repeat("n", 128)},
			message: "too long name (128 symbols), max is 127",
		},
		{
			name:    "device_does_not_exist",
			args:    []string{"-d", "1", "-s", "1MiB", "-N", "x"},
			message: "UBI device 1 does not exist",
		},
		{
			name:    "info_fails",
			args:    []string{"/dev/ubi0", "-s", "1MiB", "-N", "x"},
			lib:     func(f *fakeLibrary) { f.infoErr = syscall.EIO },
			message: "cannot get UBI information: input/output error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := newFakeLibrary()
			if tt.lib != nil {
				tt.lib(lib)
			}

			res := run(t, lib, tt.args...)
			require.Error(t, res.err)
			assert.Contains(t, res.err.Error(), tt.message)
			assert.Nil(t, lib.created)
			assert.True(t, lib.closed)
		})
	}
}

func TestLibraryErrors(t *testing.T) {
	t.Run("open_fails", func(t *testing.T) {
		ctx := &GlobalContext{
			Logger: ui.NewLogger(io.Discard, false, false, true),
			Open: func(string) (Library, error) {
				return nil, ubi.ErrNotPresent
			},
		}
		cmd := NewRootCommand(ctx)
		cmd.SetArgs([]string{"/dev/ubi0", "-s", "1MiB", "-N", "x"})
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)

		err := cmd.Execute()
		require.Error(t, err)
		assert.ErrorIs(t, err, ubi.ErrNotPresent)
		assert.Contains(t, err.Error(), "cannot open libubi")
	})

	t.Run("device_info_fails", func(t *testing.T) {
		lib := newFakeLibrary()
		lib.devErr = ubi.ErrNoDevice

		res := run(t, lib, "/dev/mtd0", "-s", "1MiB", "-N", "x")
		require.Error(t, res.err)
		assert.ErrorIs(t, res.err, ubi.ErrNoDevice)
		assert.Contains(t, res.err.Error(), "cannot get information about UBI device /dev/mtd0")
		assert.True(t, lib.closed)
	})

	t.Run("creation_fails", func(t *testing.T) {
		lib := newFakeLibrary()
		lib.mkvolErr = syscall.ENOSPC

		res := run(t, lib, "/dev/ubi0", "-s", "1GiB", "-N", "big")
		require.Error(t, res.err)
		assert.True(t, errors.Is(res.err, syscall.ENOSPC))
		assert.Equal(t, "cannot UBI create volume: no space left on device", res.err.Error())
		assert.Contains(t, res.stderr, "[ERROR] cannot UBI create volume: no space left on device\n")
		assert.NotContains(t, res.stderr, "[SUCCESS]")
		assert.Empty(t, res.stdout)
		assert.True(t, lib.closed)
	})

	t.Run("volume_info_fails", func(t *testing.T) {
		lib := newFakeLibrary()
		lib.volInfoErr = ubi.ErrNoVolume

		res := run(t, lib, "/dev/ubi0", "-s", "1MiB", "-N", "x")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "cannot get information about newly created UBI volume")
		assert.True(t, lib.closed)
	})
}

func TestLogLevels(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		res := run(t, newFakeLibrary(), "/dev/ubi0", "-s", "1MiB", "-N", "x")
		require.NoError(t, res.err)
		assert.Contains(t, res.stderr, "[INFO] Creating")
		assert.Contains(t, res.stderr, "[SUCCESS]")
		assert.NotContains(t, res.stderr, "[DEBUG]")
	})

	for name, flag := range map[string]string{"quiet_short": "-q", "quiet_long": "--quiet"} {
		t.Run(name, func(t *testing.T) {
			res := run(t, newFakeLibrary(), "/dev/ubi0", "-s", "1MiB", "-N", "x", flag)
			require.NoError(t, res.err)
			assert.NotContains(t, res.stderr, "[INFO]")
			assert.NotContains(t, res.stderr, "[SUCCESS]")
			assert.Contains(t, res.stdout, "Volume ID is 0")
		})
	}

	t.Run("quiet_still_reports_errors", func(t *testing.T) {
		lib := newFakeLibrary()
		lib.mkvolErr = syscall.ENOSPC

		res := run(t, lib, "/dev/ubi0", "-q", "-s", "1MiB", "-N", "x")
		require.Error(t, res.err)
		assert.Contains(t, res.stderr, "[ERROR] cannot UBI create volume")
	})

	for name, flag := range map[string]string{"verbose_short": "-v", "verbose_long": "--verbose"} {
		t.Run(name, func(t *testing.T) {
			res := run(t, newFakeLibrary(), "/dev/ubi0", "-s", "1MiB", "-N", "x", flag)
			require.NoError(t, res.err)
			assert.Contains(t, res.stderr, "[DEBUG] Using sysfs at /sys")
		})
	}

	t.Run("version_is_upper_case_v", func(t *testing.T) {
		res := run(t, newFakeLibrary(), "-V")
		require.NoError(t, res.err)
		assert.Equal(t, "1.6\n", res.stdout)
	})
}

func TestSysfsRoot(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		res := run(t, newFakeLibrary(), "/dev/ubi0", "-s", "1MiB", "-N", "x")
		require.NoError(t, res.err)
		assert.Equal(t, "/sys", res.root)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("UBIMKVOL_SYSFS", "/tmp/sysfs")

		res := run(t, newFakeLibrary(), "/dev/ubi0", "-s", "1MiB", "-N", "x")
		require.NoError(t, res.err)
		assert.Equal(t, "/tmp/sysfs", res.root)
	})

	t.Run("flag_wins_over_environment", func(t *testing.T) {
		t.Setenv("UBIMKVOL_SYSFS", "/tmp/sysfs")

		res := run(t, newFakeLibrary(), "/dev/ubi0", "-s", "1MiB", "-N", "x", "--sysfs", "/mnt/sys")
		require.NoError(t, res.err)
		assert.Equal(t, "/mnt/sys", res.root)
	})
}

func TestFormatReport(t *testing.T) {
	vol := &ubi.VolumeInfo{
		VolID:     1,
		Type:      ubi.StaticVolume,
		RsvdBytes: 8200 * testLEBSize,
		LEBSize:   testLEBSize,
		Name:      "rootfs",
	}
	assert.Equal(t,
		"Volume ID is 1, size 8200 LEBs (1057996800 bytes, 1009.0 MiB) LEB size is 129024 bytes (126.0 KiB), static volume, name \"rootfs\"",
		FormatReport(vol))

	vol.RsvdBytes = 3 * testLEBSize
	assert.Contains(t, FormatReport(vol), "(387072 bytes, 378.0 KiB)")
}
