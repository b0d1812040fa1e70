package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lifesignal/internal/config"
	"lifesignal/internal/entity"
	"lifesignal/internal/logging"
	"lifesignal/internal/workspace"
)

const appName = "lifesignal"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	workspace string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Life-area signals, goal progress and deduplicated alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.workspace, "workspace", os.Getenv("LIFESIGNAL_WORKSPACE"), "Path to workspace root")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		newInitCmd(opts),
		newStatusCmd(opts),
		newGoalsCmd(opts),
		newCorrelateCmd(opts),
		newAlertsCmd(opts),
		newDaemonCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// app is the resolved workspace plus its configuration.
type app struct {
	ws     *workspace.Workspace
	cfg    config.Config
	loc    *time.Location
	logger *slog.Logger
}

func (o *rootOptions) load(cmd *cobra.Command) (*app, error) {
	root := strings.TrimSpace(o.workspace)
	if root == "" {
		return nil, fmt.Errorf("--workspace is required")
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(ws.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &app{ws: ws, cfg: cfg, loc: loc, logger: logger}, nil
}

func (a *app) loader() entity.Loader {
	return entity.DirLoader(a.ws.EntitiesDir)
}

// parseNow reads an optional RFC3339 --now flag.
func parseNow(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: want RFC3339", value)
	}
	return t, nil
}
