package cronrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRunsJobs(t *testing.T) {
	r := New(nil, context.Background())
	var runs int32
	_, err := r.Add("tick", "@every 1s", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("logged, not fatal")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Entries())

	r.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 3*time.Second, 50*time.Millisecond)
	r.Stop()
}

func TestRunnerRejectsBadSpec(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Add("bad", "not a spec", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestRunnerSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(nil, ctx)
	var runs int32
	_, err := r.Add("tick", "@every 1s", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	require.NoError(t, err)
	r.Start()
	time.Sleep(1200 * time.Millisecond)
	r.Stop()
	assert.Zero(t, atomic.LoadInt32(&runs))
}
