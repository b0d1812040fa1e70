package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesignal/internal/alerts"
	"lifesignal/internal/config"
	"lifesignal/internal/logging"
	"lifesignal/internal/notify"
	"lifesignal/internal/workspace"
)

const healthYAML = `area: {id: health, kind: health, title: Health}
metrics:
  - id: weight
    title: Body weight
    direction: decrease
    frequency: daily
actions:
  - id: plants
    title: Water plants
    reminder_at: 2026-10-16T18:30:00Z
`

func newTestDaemon(t *testing.T, sink notify.Sink) *Daemon {
	t.Helper()
	ws, err := workspace.Resolve(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.EnsureDirs())
	healthPath := filepath.Join(ws.EntitiesDir, "health.yml")
	require.NoError(t, os.WriteFile(healthPath, []byte(healthYAML), 0o644))

	settings := config.Default()
	settings.Timezone = "UTC"
	settings.Interval = time.Hour
	settings.WatchInterval = 0

	d, err := New(Config{
		Workspace:  ws,
		Settings:   settings,
		Sink:       sink,
		Registerer: prometheus.NewRegistry(),
		Logger:     logging.Discard(),
		Now:        func() time.Time { return time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return d
}

func TestDaemonPassDeliversAndPersists(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var delivered []alerts.Record
	d := newTestDaemon(t, notify.SinkFunc(func(_ context.Context, rec alerts.Record) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, rec)
		return nil
	}))
	d.Dispatcher.Start(ctx)

	sum, err := d.Engine.TryEvaluate(ctx, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, PassOK, sum.Status)
	require.GreaterOrEqual(t, sum.Emitted, 2)

	logged, err := d.Audit.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, logged, sum.Emitted)

	// Reminder write-back reached the YAML file.
	data, err := os.ReadFile(filepath.Join(d.Workspace.EntitiesDir, "health.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "reminder_fired: true")

	second, err := d.Engine.TryEvaluate(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, second.Emitted)

	require.NoError(t, d.Close())
	mu.Lock()
	defer mu.Unlock()
	rules := map[alerts.Rule]bool{}
	for _, rec := range delivered {
		rules[rec.Rule] = true
	}
	assert.True(t, rules[alerts.RuleReminderDue])
	assert.True(t, rules[alerts.RuleMetricUnupdated])
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	d := newTestDaemon(t, notify.SinkFunc(func(context.Context, alerts.Record) error { return nil }))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		passes, err := d.State.ListPasses(context.Background(), 5)
		return err == nil && len(passes) == 1 && passes[0].FinishedAt != nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	require.NoError(t, <-errCh)
	require.NoError(t, d.Close())
}

func TestGeneratePlist(t *testing.T) {
	ws := &workspace.Workspace{Root: "/Users/sam/life & work", LogDir: "/Users/sam/life & work/logs"}
	plist, err := GeneratePlist(ws, "/usr/local/bin/lifesignal", map[string]string{
		"LIFESIGNAL_LOG_FORMAT": "json",
	})
	require.NoError(t, err)

	assert.Contains(t, plist, "<string>"+PlistLabel(ws.Root)+"</string>")
	assert.True(t, strings.HasPrefix(PlistLabel(ws.Root), "io.lifesignal."))
	assert.Contains(t, plist, "<string>/Users/sam/life &amp; work</string>")
	assert.Contains(t, plist, "<key>LIFESIGNAL_LOG_FORMAT</key>")
	assert.Contains(t, plist, "<string>daemon</string>\n\t\t<string>run</string>")
	assert.Contains(t, plist, "lifesignal.log")

	_, err = GeneratePlist(nil, "lifesignal", nil)
	assert.Error(t, err)
}
