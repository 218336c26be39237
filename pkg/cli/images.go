package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jguan/dockman/pkg/domain"
	"github.com/jguan/dockman/pkg/infra/docker"
)

func NewImagesCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List images",
		Long:  `List local images, one row per tag. Sizes are in MB.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := root.Engine().ListImages(cmd.Context())
			if err != nil {
				return err
			}

			t := Table{Headers: []string{"TAG", "IMAGE ID", "SIZE (MB)", "CREATED"}}
			for _, row := range domain.ImageRows(images) {
				t.Append(row.Tag, row.ID, fmt.Sprintf("%.1f", row.SizeMB), row.Created)
			}
			return PrintOutput(images, t, root.OutputOptions())
		},
	}

	return cmd
}

func NewPullCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull <image>",
		Short: "Pull an image",
		Long: `Pull an image from its registry and show per-layer progress.

On a terminal the layer list is redrawn in place; otherwise each status
change is printed once.`,
		Example: `  dockman pull nginx:latest`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd.Context(), root, args[0])
		},
	}

	return cmd
}

func runPull(ctx context.Context, root *RootCommand, ref string) error {
	opts := root.OutputOptions()

	var status string
	err := root.track(ctx, "image.pull", ref, func() error {
		op, err := root.Engine().PullImage(ctx, ref)
		if err != nil {
			return err
		}

		var p progressPrinter = nopProgress{}
		if !opts.Quiet && opts.Format == OutputTable {
			p = newProgressPrinter(opts.Writer)
		}
		err = op.Wait(func(ev docker.PullEvent) {
			p.Update(ev, op.Layers())
		})
		p.Done()
		status = op.Status()
		return err
	})
	if err != nil {
		return err
	}

	if opts.Format != OutputTable {
		result := map[string]string{"image": ref, "status": status}
		return PrintOutput(result, Table{}, opts)
	}
	if status != "" {
		PrintSuccess(status, opts)
	}
	return nil
}

func NewRmiCommand(root *RootCommand) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rmi <image>",
		Short: "Remove an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := args[0]
			err := root.track(cmd.Context(), "image.remove", ref, func() error {
				return root.Engine().RemoveImage(cmd.Context(), ref, force)
			})
			if err != nil {
				return err
			}
			PrintSuccess(fmt.Sprintf("Image %s removed", ref), root.OutputOptions())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove an image used by containers")

	return cmd
}
