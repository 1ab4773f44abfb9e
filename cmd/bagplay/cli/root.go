package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onkernel/bagctl/cmd/config"
	"github.com/onkernel/bagctl/lib/bag"
)

type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger
}

func (d *Dependencies) params() bag.Params {
	return bag.Params{
		BinaryPath:      d.Config.RosbagPath,
		StopGracePeriod: &d.Config.StopGracePeriod,
		ExitFlushDelay:  &d.Config.ExitFlushDelay,
	}
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "bagplay",
		Short:        "Play ROS bag files through rosbag",
		Long:         "Play ROS bag files with `rosbag play`, forwarding pause and step keys from the terminal.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewPlayCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
