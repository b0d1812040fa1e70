package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"lifesignal/internal/alerts"
)

// DesktopSink shows alerts as system notifications.
// On macOS it uses osascript; elsewhere it is a no-op.
type DesktopSink struct {
	Enabled bool
}

func (n DesktopSink) Deliver(ctx context.Context, rec alerts.Record) error {
	if !n.Enabled {
		return nil
	}

	if runtime.GOOS != "darwin" {
		return nil
	}

	return sendMacOSNotification(ctx, rec.Title, rec.Message)
}

func sendMacOSNotification(ctx context.Context, title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
