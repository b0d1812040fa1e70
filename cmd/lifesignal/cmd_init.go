package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lifesignal/internal/audit"
	"lifesignal/internal/config"
	"lifesignal/internal/workspace"
)

const exampleArea = `area: {id: health, kind: health, title: Health}
metrics:
  - id: sleep-hours
    title: Sleep
    direction: increase
    frequency: daily
    observations: []
actions:
  - id: evening-walk
    title: Evening walk
    completed: false
goals:
  - id: sleep-eight
    title: Sleep eight hours
    kind: strategic
    metric_id: sleep-hours
    start: 6
    target: 8
`

func newInitCmd(opts *rootOptions) *cobra.Command {
	var withExample bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (finishErr error) {
			if strings.TrimSpace(opts.workspace) == "" {
				return fmt.Errorf("--workspace is required")
			}
			root, err := workspace.ResolveRoot(opts.workspace)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(root, 0o755); err != nil {
				return fmt.Errorf("create workspace root: %w", err)
			}
			ws, err := workspace.Resolve(root)
			if err != nil {
				return err
			}
			if err := ws.EnsureDirs(); err != nil {
				return err
			}

			logger := audit.NewLog(ws.AuditDBPath)
			defer logger.Close()
			if err := logger.LogEvent("cli", "workspace_init_started", map[string]any{"workspace": ws.Root}); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "audit log failed:", err)
			}
			defer func() {
				payload := map[string]any{"workspace": ws.Root}
				if finishErr != nil {
					payload["error"] = finishErr.Error()
				}
				_ = logger.LogEvent("cli", "workspace_init_finished", payload)
			}()

			if err := config.Write(ws.ConfigPath, config.Default()); err != nil {
				return err
			}
			if withExample {
				if err := writeIfMissing(filepath.Join(ws.EntitiesDir, "health.yml"), exampleArea); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized workspace at %s\n", ws.Root)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withExample, "example", true, "Write an example area file")
	return cmd
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
