package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func NewPingCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Test the connection to the engine",
		Long: `Query the engine's version endpoint to confirm it is reachable.

The endpoint comes from --host, DOCKMAN_HOST, DOCKER_HOST or the config
file, in that order.`,
		Example: `  # Check the default endpoint
  dockman ping

  # Check a remote engine
  dockman ping --host tcp://10.0.0.5:2376`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := root.OutputOptions()
			v, err := root.Engine().Version(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format != OutputTable {
				return PrintOutput(v, Table{}, opts)
			}
			PrintSuccess(fmt.Sprintf("Connected to %s (engine %s, API %s)",
				root.Config().Endpoint.Host, v.Version, v.APIVersion), opts)
			return nil
		},
	}

	return cmd
}

func NewInfoCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show engine system information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := root.Engine().Info(cmd.Context())
			if err != nil {
				return err
			}

			t := Table{}
			t.Append("Server Version:", info.ServerVersion)
			t.Append("Operating System:", info.OperatingSystem)
			t.Append("Architecture:", info.Architecture)
			t.Append("Containers:", strconv.Itoa(info.Containers))
			t.Append(" Running:", strconv.Itoa(info.ContainersRunning))
			t.Append(" Paused:", strconv.Itoa(info.ContainersPaused))
			t.Append(" Stopped:", strconv.Itoa(info.ContainersStopped))
			t.Append("Images:", strconv.Itoa(info.Images))
			t.Append("Total Memory:", fmt.Sprintf("%.2f GB", info.MemTotalGB()))
			return PrintOutput(info, t, root.OutputOptions())
		},
	}

	return cmd
}
