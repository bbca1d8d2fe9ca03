package cronrunner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerRejectsBadSpec(t *testing.T) {
	r := New(context.Background(), testLogger())
	_, err := r.Add("bad", "not a schedule", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Zero(t, r.Len())
}

func TestRunnerRunsJobs(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "base")
	r := New(ctx, testLogger())

	var runs, failures atomic.Int32
	_, err := r.Add("ok", "@every 1s", func(ctx context.Context) error {
		if ctx.Value(key{}) == "base" {
			runs.Add(1)
		}
		return nil
	})
	require.NoError(t, err)
	_, err = r.Add("failing", "@every 1s", func(context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	r.Start()
	defer r.Stop()
	require.Eventually(t, func() bool { return runs.Load() >= 1 && failures.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}
