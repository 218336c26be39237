package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jguan/dockman/pkg/domain"
	"github.com/jguan/dockman/pkg/infra/docker"
)

func NewPsCommand(root *RootCommand) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List containers",
		Long:  `List running containers, or all containers with --all.`,
		Example: `  # Running containers
  dockman ps

  # Every container as JSON
  dockman ps -a -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPs(cmd.Context(), root, all)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show stopped containers too")

	return cmd
}

func runPs(ctx context.Context, root *RootCommand, all bool) error {
	containers, err := root.Engine().ListContainers(ctx, all)
	if err != nil {
		return err
	}

	t := Table{Headers: []string{"CONTAINER ID", "NAME", "IMAGE", "STATUS", "PORTS"}}
	for _, c := range containers {
		t.Append(c.ShortID(), c.DisplayName(), c.Image, c.Status, c.PublishedPorts())
	}
	return PrintOutput(containers, t, root.OutputOptions())
}

func NewStartCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <container>",
		Short: "Start a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			err := root.track(cmd.Context(), "container.start", id, func() error {
				return root.Engine().StartContainer(cmd.Context(), id)
			})
			if err != nil {
				return err
			}
			PrintSuccess(fmt.Sprintf("Container %s started", id), root.OutputOptions())
			return nil
		},
	}

	return cmd
}

func NewStopCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <container>",
		Short: "Stop a running container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			err := root.track(cmd.Context(), "container.stop", id, func() error {
				return root.Engine().StopContainer(cmd.Context(), id)
			})
			if err != nil {
				return err
			}
			PrintSuccess(fmt.Sprintf("Container %s stopped", id), root.OutputOptions())
			return nil
		},
	}

	return cmd
}

func NewRmCommand(root *RootCommand) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <container>",
		Short: "Remove a container",
		Long: `Remove a container. A running container is only removed with --force,
which stops it first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			err := root.track(cmd.Context(), "container.remove", id, func() error {
				return root.Engine().RemoveContainer(cmd.Context(), id, force)
			})
			if err != nil {
				return err
			}
			PrintSuccess(fmt.Sprintf("Container %s removed", id), root.OutputOptions())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove a running container")

	return cmd
}

type createOptions struct {
	name    string
	image   string
	publish string
	env     []string
	envFile string
	start   bool
}

func NewCreateCommand(root *RootCommand) *cobra.Command {
	var o createOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a container",
		Long: `Create a container from an image.

The port mapping is a single host:container pair published over TCP.
Environment entries are KEY=VALUE; entries without "=" are ignored.`,
		Example: `  # Create and start nginx on host port 8080
  dockman create --name web1 --image nginx:latest -p 8080:80 -e FOO=bar --start

  # Read environment from a file, one KEY=VALUE per line
  dockman create --name api --image api:1.4 --env-file ./api.env`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), root, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.name, "name", "", "Container name")
	flags.StringVar(&o.image, "image", "", "Image reference")
	flags.StringVarP(&o.publish, "publish", "p", "", "Port mapping host:container")
	flags.StringArrayVarP(&o.env, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	flags.StringVar(&o.envFile, "env-file", "", "File with one KEY=VALUE per line")
	flags.BoolVar(&o.start, "start", false, "Start the container after creating it")

	return cmd
}

func runCreate(ctx context.Context, root *RootCommand, o createOptions) error {
	envText := docker.EnvText(o.env)
	if o.envFile != "" {
		data, err := os.ReadFile(o.envFile)
		if err != nil {
			return fmt.Errorf("read env file: %w", err)
		}
		envText = strings.Join([]string{envText, string(data)}, "\n")
	}

	spec := docker.CreateSpec{
		Name:        o.name,
		Image:       o.image,
		PortMapping: o.publish,
		Env:         envText,
	}

	var created domain.CreatedContainer
	err := root.track(ctx, "container.create", o.name, func() error {
		var err error
		created, err = root.Engine().CreateContainer(ctx, spec)
		return err
	})
	if err != nil {
		return err
	}

	opts := root.OutputOptions()
	for _, w := range created.Warnings {
		fmt.Fprintf(opts.ErrWriter, "Warning: %s\n", w)
	}

	if o.start {
		err := root.track(ctx, "container.start", created.ID, func() error {
			return root.Engine().StartContainer(ctx, created.ID)
		})
		if err != nil {
			return fmt.Errorf("container %s created but not started: %w", created.ID, err)
		}
	}

	t := Table{Headers: []string{"CONTAINER ID", "NAME"}}
	t.Append(created.ID, created.Name)
	return PrintOutput(created, t, opts)
}

type logsOptions struct {
	follow     bool
	tail       tailValue
	timestamps bool
}

// tailValue is the --tail flag: a line count or "all".
type tailValue int

var _ pflag.Value = (*tailValue)(nil)

func (v *tailValue) String() string {
	if *v < 0 {
		return "all"
	}
	return strconv.Itoa(int(*v))
}

func (v *tailValue) Set(s string) error {
	if strings.EqualFold(s, "all") {
		*v = -1
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("tail must be a number or \"all\": %q", s)
	}
	if n < 0 {
		n = -1
	}
	*v = tailValue(n)
	return nil
}

func (v *tailValue) Type() string { return "lines" }

func NewLogsCommand(root *RootCommand) *cobra.Command {
	var o logsOptions

	cmd := &cobra.Command{
		Use:   "logs <container>",
		Short: "Show container logs",
		Long: `Print the last lines of a container's output.

With --follow the output keeps streaming until interrupted. --tail all
prints the whole log.`,
		Example: `  # Last 100 lines
  dockman logs web1

  # Follow new output
  dockman logs -f --tail 10 web1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("tail") {
				o.tail = tailValue(root.Config().Logs.Tail)
			}
			return runLogs(cmd.Context(), root, args[0], o)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&o.follow, "follow", "f", false, "Follow log output")
	o.tail = docker.DefaultLogTail
	flags.VarP(&o.tail, "tail", "n", `Number of trailing lines, or "all"`)
	flags.BoolVarP(&o.timestamps, "timestamps", "t", false, "Prefix lines with their timestamp")

	return cmd
}

func runLogs(ctx context.Context, root *RootCommand, id string, o logsOptions) error {
	op, err := root.Engine().ContainerLogs(ctx, id, docker.LogOptions{Follow: o.follow, Tail: int(o.tail)})
	if err != nil {
		return err
	}
	defer op.Close()

	opts := root.OutputOptions()
	var enc *json.Encoder
	if opts.Format == OutputJSON {
		enc = json.NewEncoder(opts.Writer)
	}

	for {
		line, err := op.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if op.State() == docker.StateCancelled && ctx.Err() != nil {
				return nil
			}
			return err
		}
		if opts.Quiet {
			continue
		}
		if enc != nil {
			if err := enc.Encode(line); err != nil {
				return fmt.Errorf("encode log line: %w", err)
			}
			continue
		}
		writeLogLine(opts, line, o.timestamps)
	}
}

func writeLogLine(opts *OutputOptions, line docker.LogLine, timestamps bool) {
	w := opts.Writer
	if line.Stream == docker.Stderr {
		w = opts.ErrWriter
	}
	if timestamps {
		fmt.Fprintf(w, "%s %s\n", line.Timestamp.UTC().Format(time.RFC3339Nano), line.Text)
		return
	}
	fmt.Fprintln(w, line.Text)
}
