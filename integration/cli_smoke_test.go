package integration_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lifesignal/integration/harness"
)

const testNow = "2026-10-16T09:00:00Z"

func TestCLISmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := t.TempDir()
	runDir := t.TempDir()

	fixture := filepath.Join(harness.RepoRoot(t), "integration", "fixtures", "workspace-min")
	harness.CopyDir(t, fixture, workspace)

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{"--help"})
	if code != 0 {
		t.Fatalf("lifesignal --help exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout+stderr, "Life-area signals") {
		t.Fatalf("expected help output to include header\nstdout:\n%s\nstderr:\n%s", stdout, stderr)
	}

	stdout, stderr, code = harness.Run(t, binPath, runDir, []string{
		"status", "--workspace", workspace, "--now", testNow, "--json", "--save",
	})
	if code != 0 {
		t.Fatalf("lifesignal status exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	var rep struct {
		SchemaVersion int    `json:"schema_version"`
		Date          string `json:"date"`
		Areas         []struct {
			AreaID string `json:"area_id"`
			Status string `json:"status"`
		} `json:"areas"`
	}
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("decode status output: %v\nstdout:\n%s", err, stdout)
	}
	if rep.SchemaVersion != 1 || rep.Date != "2026-10-16" {
		t.Fatalf("unexpected report header: %+v", rep)
	}
	if len(rep.Areas) != 1 || rep.Areas[0].AreaID != "health" {
		t.Fatalf("expected one health area, got %+v", rep.Areas)
	}
	reportPath := filepath.Join(workspace, "reports", "2026-10-16.json")
	if _, err := os.Stat(reportPath); err != nil {
		t.Fatalf("report not written at %s: %v", reportPath, err)
	}

	trigger := []string{"alerts", "trigger", "--workspace", workspace, "--now", testNow}
	stdout, stderr, code = harness.Run(t, binPath, runDir, trigger)
	if code != 0 {
		t.Fatalf("lifesignal alerts trigger exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "Due today") {
		t.Fatalf("expected a due-today alert\nstdout:\n%s", stdout)
	}

	// Same day, same pass inputs: dedup keeps the second pass quiet.
	stdout, stderr, code = harness.Run(t, binPath, runDir, trigger)
	if code != 0 {
		t.Fatalf("second trigger exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "emitted=0") {
		t.Fatalf("expected second pass to emit nothing\nstdout:\n%s", stdout)
	}

	stdout, stderr, code = harness.Run(t, binPath, runDir, []string{
		"alerts", "list", "--workspace", workspace, "--json",
	})
	if code != 0 {
		t.Fatalf("lifesignal alerts list exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	var listed []map[string]any
	if err := json.Unmarshal([]byte(stdout), &listed); err != nil {
		t.Fatalf("decode alerts list: %v\nstdout:\n%s", err, stdout)
	}
	if len(listed) == 0 {
		t.Fatalf("expected persisted alerts")
	}

	auditPath := filepath.Join(workspace, "state", "audit.sqlite")
	requireAuditEvents(t, auditPath, []string{"pass_finished"})
}

func TestCorrelateRequiresFlags(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := t.TempDir()
	fixture := filepath.Join(harness.RepoRoot(t), "integration", "fixtures", "workspace-min")
	harness.CopyDir(t, fixture, workspace)

	_, stderr, code := harness.Run(t, binPath, t.TempDir(), []string{"correlate", "--workspace", workspace})
	if code == 0 {
		t.Fatalf("expected correlate without --driver to fail")
	}
	if !strings.Contains(stderr, "driver") {
		t.Fatalf("expected missing flag error, got:\n%s", stderr)
	}
}
