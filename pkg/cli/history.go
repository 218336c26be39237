package cli

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jguan/dockman/pkg/infra/store"
)

func NewHistoryCommand(root *RootCommand) *cobra.Command {
	var filter store.Filter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded operations",
		Long: `List the mutating commands run against the engine, newest first.

Every start, stop, rm, create, pull and rmi is recorded with its outcome
unless history is disabled in the config or with --no-history.`,
		Example: `  # Last 20 operations
  dockman history --limit 20

  # Only image pulls
  dockman history --operation image.pull`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := root.History()
			if h == nil {
				return errors.New("history is disabled")
			}
			entries, err := h.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			t := Table{Headers: []string{"STARTED", "OPERATION", "TARGET", "OUTCOME", "STATUS", "DURATION", "MESSAGE"}}
			for _, e := range entries {
				status := ""
				if e.StatusCode != 0 {
					status = strconv.Itoa(e.StatusCode)
				}
				t.Append(
					e.StartedAt.Local().Format("2006-01-02 15:04:05"),
					e.Operation,
					e.Target,
					e.Outcome,
					status,
					e.Duration.Round(time.Millisecond).String(),
					e.Message,
				)
			}
			return PrintOutput(entries, t, root.OutputOptions())
		},
	}

	cmd.Flags().IntVar(&filter.Limit, "limit", store.DefaultListLimit, "Maximum number of entries")
	cmd.Flags().StringVar(&filter.Operation, "operation", "", "Only show this operation, e.g. container.stop")
	cmd.Flags().StringVar(&filter.Target, "target", "", "Only show operations on this container or image")

	return cmd
}
