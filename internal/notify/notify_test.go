package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesignal/internal/alerts"
)

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func rec(id string) alerts.Record {
	return alerts.Record{ID: id, Rule: alerts.RuleReminderDue, Severity: alerts.SeverityInfo, Title: "t", Message: "m"}
}

func TestRetrySinkRetriesThenSucceeds(t *testing.T) {
	calls := 0
	flaky := SinkFunc(func(context.Context, alerts.Record) error {
		calls++
		if calls < 3 {
			return errors.New("sink offline")
		}
		return nil
	})
	s := NewRetrySink(flaky, RetryOptions{MaxRetries: 3, BackOff: fastBackOff})

	require.NoError(t, s.Deliver(context.Background(), rec("a")))
	assert.Equal(t, 3, calls)
}

func TestRetrySinkIsBounded(t *testing.T) {
	calls := 0
	broken := SinkFunc(func(context.Context, alerts.Record) error {
		calls++
		return errors.New("sink offline")
	})
	s := NewRetrySink(broken, RetryOptions{MaxRetries: 2, BackOff: fastBackOff})

	err := s.Deliver(context.Background(), rec("a"))
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}

type recorder struct {
	mu   sync.Mutex
	ids  []string
	gate chan struct{}
}

func (r *recorder) Deliver(_ context.Context, rec alerts.Record) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, rec.ID)
	return nil
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(r, 8, nil)
	d.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, d.Enqueue(rec(id)))
	}
	d.Close()

	assert.Equal(t, []string{"a", "b", "c"}, r.ids)
	delivered, failed, dropped := d.Stats()
	assert.Equal(t, int64(3), delivered)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	r := &recorder{gate: make(chan struct{})}
	d := NewDispatcher(r, 1, nil)

	// Not started yet, so the single slot fills up.
	require.True(t, d.Enqueue(rec("a")))
	assert.False(t, d.Enqueue(rec("b")))

	close(r.gate)
	d.Close()
	assert.False(t, d.Enqueue(rec("c")), "enqueue after close is dropped")

	assert.Equal(t, []string{"a"}, r.ids)
	_, _, dropped := d.Stats()
	assert.Equal(t, int64(2), dropped)
}

func TestDispatcherCountsFailures(t *testing.T) {
	d := NewDispatcher(SinkFunc(func(context.Context, alerts.Record) error {
		return errors.New("boom")
	}), 4, nil)
	d.Start(context.Background())
	d.Enqueue(rec("a"))
	d.Close()

	_, failed, _ := d.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestMultiJoinsErrors(t *testing.T) {
	okSink := SinkFunc(func(context.Context, alerts.Record) error { return nil })
	bad := SinkFunc(func(context.Context, alerts.Record) error { return errors.New("bad") })

	err := Multi{okSink, bad, LogSink{}}.Deliver(context.Background(), rec("a"))
	require.Error(t, err)
	assert.Equal(t, "bad", err.Error())
}

func TestDesktopSinkDisabledIsNoop(t *testing.T) {
	assert.NoError(t, DesktopSink{}.Deliver(context.Background(), rec("a")))
}
