package integration_test

import (
	"os"
	"path/filepath"
	"testing"

	"lifesignal/integration/harness"
)

func TestInitSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	runDir := t.TempDir()
	workspaceRoot := filepath.Join(t.TempDir(), "workspace-init")

	args := []string{
		"init",
		"--workspace", workspaceRoot,
	}
	stdout, stderr, code := harness.Run(t, binPath, runDir, args)
	if code != 0 {
		t.Fatalf("lifesignal init exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	paths := []string{
		filepath.Join(workspaceRoot, "lifesignal.yml"),
		filepath.Join(workspaceRoot, "entities"),
		filepath.Join(workspaceRoot, "entities", "health.yml"),
		filepath.Join(workspaceRoot, "reports"),
		filepath.Join(workspaceRoot, "state"),
		filepath.Join(workspaceRoot, "logs"),
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing init path %s: %v", path, err)
		}
	}

	auditPath := filepath.Join(workspaceRoot, "state", "audit.sqlite")
	if _, err := os.Stat(auditPath); err != nil {
		t.Fatalf("audit db not written at %s: %v", auditPath, err)
	}
	requireAuditEvents(t, auditPath, []string{
		"workspace_init_started",
		"workspace_init_finished",
	})

	// A second init keeps the existing files.
	stdout, stderr, code = harness.Run(t, binPath, runDir, args)
	if code != 0 {
		t.Fatalf("second init exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
}
