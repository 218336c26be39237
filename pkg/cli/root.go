package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jguan/dockman/pkg/config"
	"github.com/jguan/dockman/pkg/infra/docker"
	"github.com/jguan/dockman/pkg/infra/logger"
	"github.com/jguan/dockman/pkg/infra/metrics"
	"github.com/jguan/dockman/pkg/infra/store"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

type RootCommand struct {
	cmd       *cobra.Command
	v         *viper.Viper
	cfg       *config.Config
	engine    docker.Engine
	history   store.HistoryStore
	opts      *OutputOptions
	formatStr string
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{
		v:    viper.New(),
		opts: NewOutputOptions(),
	}

	cmd := &cobra.Command{
		Use:   "dockman",
		Short: "dockman - container engine client",
		Long: `dockman talks to a container engine over its HTTP API.

It lists, creates, starts, stops and removes containers, pulls and removes
images, and streams container logs and pull progress.`,
		PersistentPreRunE: root.persistentPreRunE,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pflags := cmd.PersistentFlags()

	pflags.StringVarP(&root.formatStr, "output", "o", "table", "Output format (table, json, yaml)")
	pflags.BoolVarP(&root.opts.Quiet, "quiet", "q", false, "Suppress output")
	pflags.String("config", "", "Config file path (default: ~/.dockman/config.toml)")
	pflags.StringP("host", "H", "", "Engine endpoint, e.g. tcp://10.0.0.5:2376")
	pflags.String("log-level", "", "Log level (debug, info, warn, error)")
	pflags.String("log-format", "", "Log format (text, json)")
	pflags.Bool("no-history", false, "Do not record this command in the history")

	for _, name := range []string{"output", "quiet", "config", "host", "log-level", "log-format", "no-history"} {
		_ = root.v.BindPFlag(name, pflags.Lookup(name))
	}

	root.cmd = cmd

	root.addSubCommands()

	return root
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(r.v.GetString("output"))
	if err != nil {
		return err
	}
	r.opts.Format = format

	r.cfg, err = config.Load(r.v.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.applyFlagOverrides()

	if err := logger.Setup(logger.Options{
		Level:  r.cfg.Logging.Level,
		Format: r.cfg.Logging.Format,
		Output: r.opts.ErrWriter,
	}); err != nil {
		return err
	}

	if r.engine == nil {
		c, err := docker.NewFromHost(r.cfg.Endpoint.Host, docker.TLSOptions{
			CAFile:     r.cfg.Endpoint.TLSCA,
			CertFile:   r.cfg.Endpoint.TLSCert,
			KeyFile:    r.cfg.Endpoint.TLSKey,
			SkipVerify: r.cfg.Endpoint.TLSSkipVerify,
		}, docker.WithTimeouts(docker.Timeouts{
			Query:   r.cfg.Timeouts.QueryD,
			Mutate:  r.cfg.Timeouts.MutateD,
			Connect: r.cfg.Timeouts.ConnectD,
		}))
		if err != nil {
			return err
		}
		r.engine = c
	}

	if r.history == nil {
		r.history = r.openHistory()
	}

	return nil
}

func (r *RootCommand) applyFlagOverrides() {
	if h := r.v.GetString("host"); h != "" {
		r.cfg.Endpoint.Host = h
	}
	if lvl := r.v.GetString("log-level"); lvl != "" {
		r.cfg.Logging.Level = lvl
	}
	if f := r.v.GetString("log-format"); f != "" {
		r.cfg.Logging.Format = f
	}
	if r.v.GetBool("no-history") {
		r.cfg.History.Enabled = false
	}
}

// openHistory opens the SQLite history, falling back to an in-memory store
// so a broken history file never blocks engine commands.
func (r *RootCommand) openHistory() store.HistoryStore {
	if !r.cfg.History.Enabled {
		return nil
	}
	s, err := store.NewSQLiteStore(r.cfg.History.Path)
	if err != nil {
		logger.Warn("failed to open history database, using memory store",
			"path", r.cfg.History.Path, "error", err)
		return store.NewMemoryStore()
	}
	return s
}

// track runs a mutating engine call and records its outcome.
func (r *RootCommand) track(ctx context.Context, op, target string, fn func() error) error {
	started := time.Now()
	err := fn()
	if r.history == nil {
		return err
	}

	entry := store.Entry{
		Operation: op,
		Target:    target,
		Outcome:   store.OutcomeOK,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if err != nil {
		entry.Outcome = string(docker.KindOf(err))
		entry.StatusCode = docker.StatusCode(err)
		entry.Message = describeError(err).Message
	}
	// The command may have been cancelled; the record still goes in.
	if rerr := r.history.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		logger.ForCall(ctx).Warn("failed to record history", "operation", op, "error", rerr)
	}
	return err
}

type callStats interface {
	Metrics() metrics.RequestSnapshot
}

func (r *RootCommand) logCallStats() {
	c, ok := r.engine.(callStats)
	if !ok {
		return
	}
	snap := c.Metrics()
	if snap.TotalRequests == 0 {
		return
	}
	logger.Debug("engine calls",
		"total", snap.TotalRequests,
		"errors", snap.TotalErrors,
		"avg_latency_ms", snap.AvgLatencyMs,
		"error_kinds", snap.Kinds(),
	)
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewVersionCommand(r))
	r.cmd.AddCommand(NewPingCommand(r))
	r.cmd.AddCommand(NewInfoCommand(r))
	r.cmd.AddCommand(NewPsCommand(r))
	r.cmd.AddCommand(NewStartCommand(r))
	r.cmd.AddCommand(NewStopCommand(r))
	r.cmd.AddCommand(NewRmCommand(r))
	r.cmd.AddCommand(NewCreateCommand(r))
	r.cmd.AddCommand(NewLogsCommand(r))
	r.cmd.AddCommand(NewImagesCommand(r))
	r.cmd.AddCommand(NewPullCommand(r))
	r.cmd.AddCommand(NewRmiCommand(r))
	r.cmd.AddCommand(NewHistoryCommand(r))
}

func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

func (r *RootCommand) Engine() docker.Engine {
	return r.engine
}

// SetEngine replaces the engine client built from the configuration.
func (r *RootCommand) SetEngine(e docker.Engine) {
	r.engine = e
}

func (r *RootCommand) History() store.HistoryStore {
	return r.history
}

// SetHistory replaces the history store opened from the configuration.
func (r *RootCommand) SetHistory(h store.HistoryStore) {
	r.history = h
}

func (r *RootCommand) Config() *config.Config {
	return r.cfg
}

func (r *RootCommand) OutputOptions() *OutputOptions {
	return r.opts
}

func (r *RootCommand) SetOutputWriter(w io.Writer) {
	r.opts.Writer = w
}

func (r *RootCommand) SetErrorWriter(w io.Writer) {
	r.opts.ErrWriter = w
}

func (r *RootCommand) SetArgs(args []string) {
	r.cmd.SetArgs(args)
}

func (r *RootCommand) Execute() error {
	return r.ExecuteContext(context.Background())
}

// ExecuteContext runs the command tree, prints any failure and closes the
// history store.
func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	r.cmd.SetOut(r.opts.Writer)
	r.cmd.SetErr(r.opts.ErrWriter)

	err := r.cmd.ExecuteContext(ctx)
	if err != nil {
		PrintError(err, r.opts)
	}
	r.logCallStats()
	if r.history != nil {
		if cerr := r.history.Close(); cerr != nil {
			logger.Warn("failed to close history", "error", cerr)
		}
		r.history = nil
	}
	return err
}

func Execute() {
	root := NewRootCommand()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func SetVersion(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}

func GetVersion() string {
	return cliVersion
}

func GetBuildDate() string {
	return cliBuildDate
}

func GetGitCommit() string {
	return cliGitCommit
}
