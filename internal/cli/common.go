package cli

import (
	"os"

	"github.com/nace/ubimkvol/internal/ubi"
	"github.com/nace/ubimkvol/internal/ui"
)

// Library is the subset of the UBI management interface the commands use
type Library interface {
	Info() (*ubi.Info, error)
	DeviceInfo(node string) (*ubi.DeviceInfo, error)
	MakeVolume(node string, req *ubi.MkvolRequest) error
	VolumeInfo(devNum, volID int) (*ubi.VolumeInfo, error)
	Close() error
}

// Opener opens a Library handle for the given sysfs mount point
type Opener func(sysfsRoot string) (Library, error)

// GlobalContext holds shared resources for all commands
type GlobalContext struct {
	Logger    *ui.Logger
	SysfsRoot string
	Open      Opener
}

// NewGlobalContext creates a new global context
func NewGlobalContext(verbose, quiet, noColor bool) *GlobalContext {
	return &GlobalContext{
		Logger:    ui.NewLogger(os.Stderr, verbose, quiet, noColor),
		SysfsRoot: ubi.DefaultSysfsRoot,
		Open:      OpenLibrary,
	}
}

// OpenLibrary opens the kernel UBI interface
func OpenLibrary(sysfsRoot string) (Library, error) {
	c, err := ubi.Open(ubi.WithSysfs(sysfsRoot))
	if err != nil {
		return nil, err
	}
	return c, nil
}
