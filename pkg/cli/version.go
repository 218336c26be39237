package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewVersionCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the version, build date, and git commit of dockman.",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(root.OutputOptions())
		},
	}

	return cmd
}

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
}

func printVersion(opts *OutputOptions) {
	info := versionInfo{
		Version:   cliVersion,
		BuildDate: cliBuildDate,
		GitCommit: cliGitCommit,
	}

	if opts.Format == OutputJSON || opts.Format == OutputYAML {
		_ = PrintOutput(info, Table{}, opts)
		return
	}
	fmt.Fprintf(opts.Writer, "dockman version %s\n", info.Version)
	fmt.Fprintf(opts.Writer, "  Commit: %s\n", info.GitCommit)
	fmt.Fprintf(opts.Writer, "  Built:  %s\n", info.BuildDate)
}
