package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"marketplace/pkg/logger"
)

func TestRunJobsTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ok, failing atomic.Int32
	done := make(chan struct{})
	go func() {
		RunJobs(ctx, logger.Default(),
			Job{Name: "ok", Interval: 5 * time.Millisecond, Run: func(context.Context) (int, error) {
				ok.Add(1)
				return 1, nil
			}},
			Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) (int, error) {
				failing.Add(1)
				return 0, errors.New("boom")
			}},
			Job{Name: "disabled", Run: func(context.Context) (int, error) {
				t.Error("disabled job ran")
				return 0, nil
			}},
		)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ok.Load() >= 3 && failing.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunJobs did not return after cancel")
	}
}
