package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perfgate/perfgate/internal/config"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in network throttling presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range config.PresetNames() {
			c, _ := config.Preset(name)
			if c.Offline {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s offline\n", name)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s latency %.0fms, down %.0fkbps, up %.0fkbps\n",
				name, c.LatencyMs, c.DownloadBytes*8/1000, c.UploadBytes*8/1000)
		}
		return nil
	},
}
