package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitThenStatus(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "ws")
	if _, err := execute(t, "init", "--workspace", ws); err != nil {
		t.Fatalf("init: %v", err)
	}

	out, err := execute(t, "status", "--workspace", ws, "--json", "--now", "2026-10-16T09:00:00Z")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var rep struct {
		Date  string `json:"date"`
		Areas []struct {
			AreaID string `json:"area_id"`
		} `json:"areas"`
		Goals []struct {
			GoalID string `json:"goal_id"`
		} `json:"goals"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if rep.Date != "2026-10-16" || len(rep.Areas) != 1 || rep.Areas[0].AreaID != "health" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(rep.Goals) != 1 || rep.Goals[0].GoalID != "sleep-eight" {
		t.Fatalf("unexpected goals: %+v", rep.Goals)
	}
}

func TestWorkspaceRequired(t *testing.T) {
	t.Setenv("LIFESIGNAL_WORKSPACE", "")
	_, err := execute(t, "status")
	if err == nil || !strings.Contains(err.Error(), "--workspace is required") {
		t.Fatalf("expected workspace error, got %v", err)
	}
}

func TestParseNow(t *testing.T) {
	got, err := parseNow("2026-10-16T09:00:00Z")
	if err != nil {
		t.Fatalf("parseNow: %v", err)
	}
	if got.Day() != 16 || got.Hour() != 9 {
		t.Fatalf("unexpected time %v", got)
	}
	if _, err := parseNow("tomorrow"); err == nil {
		t.Fatalf("expected error for non-RFC3339 value")
	}
}
