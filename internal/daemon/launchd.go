package daemon

import (
	"bytes"
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"lifesignal/internal/workspace"
)

// WorkspaceHash generates a stable short hash from the workspace root path.
func WorkspaceHash(wsRoot string) string {
	h := sha256.Sum256([]byte(wsRoot))
	return fmt.Sprintf("%x", h[:4]) // 8 hex chars
}

// PlistLabel returns the LaunchAgent label for a workspace.
func PlistLabel(wsRoot string) string {
	return fmt.Sprintf("io.lifesignal.%s", WorkspaceHash(wsRoot))
}

// PlistPath returns the full path to the plist file for a workspace.
func PlistPath(wsRoot string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, "Library", "LaunchAgents", PlistLabel(wsRoot)+".plist"), nil
}

// LogPath returns the path launchd redirects daemon output to.
func LogPath(ws *workspace.Workspace) string {
	if ws == nil {
		return ""
	}
	return filepath.Join(ws.LogDir, "lifesignal.log")
}

// GeneratePlist renders the LaunchAgent for `lifesignal daemon run`. env is
// passed through as EnvironmentVariables, typically LIFESIGNAL_* overrides.
func GeneratePlist(ws *workspace.Workspace, binaryPath string, env map[string]string) (string, error) {
	if ws == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	absBinaryPath, err := filepath.Abs(binaryPath)
	if err != nil {
		return "", fmt.Errorf("resolve binary path: %w", err)
	}

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
`)
	writeKey(&b, 1, "Label")
	writeString(&b, 1, PlistLabel(ws.Root))
	writeKey(&b, 1, "ProgramArguments")
	b.WriteString("\t<array>\n")
	for _, arg := range []string{absBinaryPath, "--workspace", ws.Root, "daemon", "run"} {
		writeString(&b, 2, arg)
	}
	b.WriteString("\t</array>\n")
	writeKey(&b, 1, "WorkingDirectory")
	writeString(&b, 1, ws.Root)

	if len(env) > 0 {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeKey(&b, 1, "EnvironmentVariables")
		b.WriteString("\t<dict>\n")
		for _, k := range keys {
			writeKey(&b, 2, k)
			writeString(&b, 2, env[k])
		}
		b.WriteString("\t</dict>\n")
	}

	logPath := LogPath(ws)
	writeKey(&b, 1, "StandardOutPath")
	writeString(&b, 1, logPath)
	writeKey(&b, 1, "StandardErrorPath")
	writeString(&b, 1, logPath)
	writeKey(&b, 1, "KeepAlive")
	b.WriteString("\t<true/>\n")
	writeKey(&b, 1, "RunAtLoad")
	b.WriteString("\t<true/>\n")
	writeKey(&b, 1, "ThrottleInterval")
	b.WriteString("\t<integer>30</integer>\n")
	b.WriteString("</dict>\n</plist>\n")

	return b.String(), nil
}

func writeKey(b *bytes.Buffer, depth int, key string) {
	writeElement(b, depth, "key", key)
}

func writeString(b *bytes.Buffer, depth int, value string) {
	writeElement(b, depth, "string", value)
}

func writeElement(b *bytes.Buffer, depth int, tag, value string) {
	b.WriteString(strings.Repeat("\t", depth))
	b.WriteString("<" + tag + ">")
	_ = xml.EscapeText(b, []byte(value))
	b.WriteString("</" + tag + ">\n")
}

// Install writes the LaunchAgent plist for the workspace.
func Install(ws *workspace.Workspace, binaryPath string, env map[string]string) (string, error) {
	if ws == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	if err := os.MkdirAll(ws.LogDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure log dir: %w", err)
	}

	plistContent, err := GeneratePlist(ws, binaryPath, env)
	if err != nil {
		return "", fmt.Errorf("generate plist: %w", err)
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return "", fmt.Errorf("resolve plist path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(plistPath, []byte(plistContent), 0o644); err != nil {
		return "", fmt.Errorf("write plist: %w", err)
	}
	return plistPath, nil
}

// Uninstall unloads (best effort) and removes the LaunchAgent plist.
func Uninstall(ws *workspace.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace is nil")
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		return fmt.Errorf("plist not found: %s", plistPath)
	}
	_ = Unload(ws)
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

// Load starts the LaunchAgent using launchctl.
func Load(ws *workspace.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace is nil")
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		return fmt.Errorf("plist not found: %s (run 'lifesignal daemon install' first)", plistPath)
	}
	if output, err := launchctl("load", plistPath); err != nil {
		return fmt.Errorf("launchctl load failed: %w\nOutput: %s", err, output)
	}
	return nil
}

// Unload stops the LaunchAgent. Not being loaded is not an error.
func Unload(ws *workspace.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace is nil")
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	output, err := launchctl("unload", plistPath)
	if err != nil && !strings.Contains(output, "Could not find specified service") {
		return fmt.Errorf("launchctl unload failed: %w\nOutput: %s", err, output)
	}
	return nil
}

// IsLoaded reports whether launchd knows the workspace's agent.
func IsLoaded(ws *workspace.Workspace) (bool, error) {
	if ws == nil {
		return false, fmt.Errorf("workspace is nil")
	}
	output, err := launchctl("list")
	if err != nil {
		return false, fmt.Errorf("launchctl list failed: %w", err)
	}
	return strings.Contains(output, PlistLabel(ws.Root)), nil
}

func launchctl(args ...string) (string, error) {
	output, err := exec.Command("launchctl", args...).CombinedOutput()
	return strings.TrimSpace(string(output)), err
}
