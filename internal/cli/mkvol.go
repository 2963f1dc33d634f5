package cli

import (
	"fmt"
	"io"
	"math"

	"github.com/nace/ubimkvol/internal/system"
	"github.com/nace/ubimkvol/internal/ubi"
	"github.com/nace/ubimkvol/internal/ui"
	"github.com/spf13/cobra"
)

// Config holds the parsed command line of a volume creation
type Config struct {
	Node         string
	DevNum       int
	VolID        int
	VolType      ubi.VolumeType
	Bytes        int64
	Alignment    int
	Name         string
	NameSet      bool
	MaxAvailable bool
	JSON         bool
}

// MkvolCommand handles volume creation
type MkvolCommand struct {
	ctx       *GlobalContext
	alignment string
	devn      string
	volID     string
	name      string
	size      string
	volType   string
	maxAvail  bool
	json      bool
}

// Run executes the mkvol command
func (c *MkvolCommand) Run(cmd *cobra.Command, args []string) error {
	cfg, err := c.config(cmd, args)
	if err != nil {
		return err
	}

	lib, err := c.ctx.Open(c.ctx.SysfsRoot)
	if err != nil {
		return fmt.Errorf("cannot open libubi: %w", err)
	}
	defer lib.Close()

	if err := SanityCheck(cfg, lib); err != nil {
		return err
	}

	return c.execute(cmd.OutOrStdout(), cfg, lib)
}

// config turns parsed flags into a Config
func (c *MkvolCommand) config(cmd *cobra.Command, args []string) (*Config, error) {
	flags := cmd.Flags()

	cfg := &Config{
		DevNum:       -1,
		VolID:        ubi.VolNumAuto,
		Alignment:    1,
		Name:         c.name,
		NameSet:      flags.Changed("name"),
		MaxAvailable: c.maxAvail,
		JSON:         c.json,
	}

	if len(args) == 1 && flags.NFlag() == 0 {
		return nil, fmt.Errorf("too few arguments (use -h for help)")
	}

	if len(args) > 0 {
		cfg.Node = args[0]
		if err := system.ValidateNodeName(cfg.Node); err != nil {
			return nil, err
		}
	}

	volType, err := ubi.ParseVolumeType(c.volType)
	if err != nil {
		return nil, fmt.Errorf("bad volume type: %q", c.volType)
	}
	cfg.VolType = volType

	if flags.Changed("size") {
		if cfg.Bytes, err = system.ParseSize(c.size); err != nil {
			return nil, err
		}
	}

	if flags.Changed("alignment") {
		n, err := parseInt32(c.alignment)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("bad volume alignment: %q", c.alignment)
		}
		cfg.Alignment = n
	}

	if flags.Changed("devn") {
		n, err := parseInt32(c.devn)
		if err != nil {
			return nil, fmt.Errorf("bad UBI device number: %q", c.devn)
		}
		cfg.DevNum = n
		cfg.Node = system.DeviceNodeName(n)
		c.ctx.Logger.Warning("-d and --devn options are deprecated and will be removed soon, "+
			"pass UBI device node name instead\nExample: %s /dev/ubi0, instead of %s -d 0",
			programName, programName)
	}

	if flags.Changed("vol_id") {
		n, err := parseInt32(c.volID)
		if err != nil {
			return nil, fmt.Errorf("bad volume ID: %q", c.volID)
		}
		cfg.VolID = n
	}

	if err := system.ValidateNodeName(cfg.Node); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt32(s string) (int, error) {
	n, err := system.ParseNumber(s)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%s is out of range", s)
	}
	return int(n), nil
}

// SanityCheck validates cfg against the live UBI state before anything
// is created
func SanityCheck(cfg *Config, lib Library) error {
	if cfg.Bytes == 0 && !cfg.MaxAvailable {
		return fmt.Errorf("volume size was not specified (use -h for help)")
	}

	if !cfg.NameSet {
		return fmt.Errorf("volume name was not specified (use -h for help)")
	}

	info, err := lib.Info()
	if err != nil {
		return fmt.Errorf("cannot get UBI information: %w", err)
	}

	if cfg.DevNum >= info.DevCount {
		return fmt.Errorf("UBI device %d does not exist", cfg.DevNum)
	}

	if len(cfg.Name) > ubi.MaxVolumeNameLen {
		return fmt.Errorf("too long name (%d symbols), max is %d", len(cfg.Name), ubi.MaxVolumeNameLen)
	}

	return nil
}

func (c *MkvolCommand) execute(out io.Writer, cfg *Config, lib Library) error {
	dev, err := lib.DeviceInfo(cfg.Node)
	if err != nil {
		if cfg.DevNum >= 0 {
			return fmt.Errorf("cannot get information about UBI device number %d (%s): %w", cfg.DevNum, cfg.Node, err)
		}
		return fmt.Errorf("cannot get information about UBI device %s: %w", cfg.Node, err)
	}
	c.ctx.Logger.Debug("UBI device %d: %d of %d LEBs available, LEB size %d bytes",
		dev.DevNum, dev.AvailLEBs, dev.TotalLEBs, dev.LEBSize)

	bytes := cfg.Bytes
	if cfg.MaxAvailable {
		bytes = dev.AvailBytes
		fmt.Fprintf(out, "Set volume size to %d\n", bytes)
	}

	req := &ubi.MkvolRequest{
		VolID:     cfg.VolID,
		Alignment: cfg.Alignment,
		Bytes:     bytes,
		VolType:   cfg.VolType,
		Name:      cfg.Name,
	}

	c.ctx.Logger.Info("Creating %s %s volume %q on %s", system.FormatSize(bytes), req.VolType, req.Name, cfg.Node)
	if err := lib.MakeVolume(cfg.Node, req); err != nil {
		if system.IsPermissionError(err) && !system.IsRoot() {
			c.ctx.Logger.Warning("Creating UBI volumes requires root privileges (try with sudo)")
		}
		return fmt.Errorf("cannot UBI create volume: %w", err)
	}

	vol, err := lib.VolumeInfo(dev.DevNum, req.VolID)
	if err != nil {
		return fmt.Errorf("cannot get information about newly created UBI volume: %w", err)
	}
	c.ctx.Logger.Success("Volume %d created on %s", vol.VolID, cfg.Node)

	if cfg.JSON {
		return ui.PrintJSON(out, vol)
	}

	fmt.Fprintln(out, FormatReport(vol))
	return nil
}

// FormatReport describes a created volume in one line
func FormatReport(vol *ubi.VolumeInfo) string {
	var lebs int64
	if vol.LEBSize > 0 {
		lebs = vol.RsvdBytes / vol.LEBSize
	}

	return fmt.Sprintf("Volume ID is %d, size %d LEBs (%d bytes, %s) LEB size is %d bytes (%.1f KiB), %s volume, name \"%s\"",
		vol.VolID, lebs, vol.RsvdBytes, system.FormatSize(vol.RsvdBytes),
		vol.LEBSize, float64(vol.LEBSize)/system.KiB, vol.Type, vol.Name)
}
