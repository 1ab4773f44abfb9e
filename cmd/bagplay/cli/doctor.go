package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			ok := true

			if path, err := exec.LookPath(deps.Config.RosbagPath); err != nil {
				fmt.Fprintf(w, "✗ rosbag: %q not found. Source your ROS setup or set ROSBAG_PATH\n", deps.Config.RosbagPath)
				ok = false
			} else {
				fmt.Fprintf(w, "✓ rosbag: %s\n", path)
			}

			if uri := os.Getenv("ROS_MASTER_URI"); uri != "" {
				fmt.Fprintf(w, "✓ ROS_MASTER_URI: %s\n", uri)
			} else {
				fmt.Fprintf(w, "! ROS_MASTER_URI: not set, rosbag will use its default\n")
			}

			fmt.Fprintf(w, "✓ stop grace period: %s\n", deps.Config.StopGracePeriod)

			if !ok {
				return errors.New("some prerequisites are missing")
			}
			fmt.Fprintln(w, "\nAll prerequisites met.")
			return nil
		},
	}
}
