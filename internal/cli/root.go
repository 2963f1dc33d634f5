package cli

import (
	"fmt"
	"strings"

	"github.com/nace/ubimkvol/internal/ubi"
	"github.com/nace/ubimkvol/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	programName    = "ubimkvol"
	programVersion = "1.6"
	envPrefix      = "UBIMKVOL"
)

// NewRootCommand creates the ubimkvol command. Global flags may also be set
// through UBIMKVOL_* environment variables.
func NewRootCommand(ctx *GlobalContext) *cobra.Command {
	mkvol := &MkvolCommand{ctx: ctx}
	v := viper.New()

	cobraCmd := &cobra.Command{
		Use:   programName + " <UBI device node> [flags]",
		Short: "Create UBI volumes",
		Long: `ubimkvol creates a volume on a UBI device.

The UBI device is given by its character device node, e.g. /dev/ubi0.
The volume size may be given in bytes or with a KiB, MiB or GiB suffix.

Example: ubimkvol /dev/ubi0 -s 20MiB -N config_data`,
		Version:       programVersion,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx.Logger = ui.NewLogger(cmd.ErrOrStderr(),
				v.GetBool("verbose"), v.GetBool("quiet"), v.GetBool("no-color"))
			ctx.SysfsRoot = v.GetString("sysfs")
			ctx.Logger.Debug("Using sysfs at %s", ctx.SysfsRoot)
			return nil
		},
		RunE: mkvol.Run,
	}

	// Global flags
	persistent := cobraCmd.PersistentFlags()
	persistent.BoolP("verbose", "v", false, "Verbose output")
	persistent.BoolP("quiet", "q", false, "Quiet mode (suppress non-error output)")
	persistent.Bool("no-color", false, "Disable color output")
	persistent.String("sysfs", ubi.DefaultSysfsRoot, "sysfs mount point")
	_ = persistent.MarkHidden("sysfs")

	mkvol.addFlags(cobraCmd.Flags())
	cobraCmd.Flags().BoolP("version", "V", false, "Print program version")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(persistent)

	cobraCmd.SetVersionTemplate("{{.Version}}\n")
	cobraCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w (use -h for help)", err)
	})

	cobraCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})
	cobraCmd.CompletionOptions.DisableDefaultCmd = true

	return cobraCmd
}

// Execute runs cmd and reports a failure through the context logger
func Execute(ctx *GlobalContext, cmd *cobra.Command) error {
	err := cmd.Execute()
	if err != nil {
		ctx.Logger.Error("%v", err)
	}
	return err
}

func (c *MkvolCommand) addFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&c.alignment, "alignment", "a", "1", "Volume alignment")
	flags.StringVarP(&c.devn, "devn", "d", "", "UBI device number (deprecated, pass the device node instead)")
	flags.StringVarP(&c.volID, "vol_id", "n", "", "UBI volume ID, assigned automatically if not specified")
	flags.StringVarP(&c.name, "name", "N", "", "Volume name")
	flags.StringVarP(&c.size, "size", "s", "", "Volume size in bytes, KiB, MiB or GiB")
	flags.StringVarP(&c.volType, "type", "t", "dynamic", "Volume type (dynamic, static)")
	flags.BoolVarP(&c.maxAvail, "maxavsize", "m", false, "Set volume size to maximum available size")
	flags.BoolVarP(&c.json, "json", "j", false, "Print the created volume as JSON")
}
