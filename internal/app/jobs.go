package app

import (
	"context"
	"sync"
	"time"

	"marketplace/pkg/logger"
)

// Job is a periodic background task. Run returns how many records it handled.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// RunJobs ticks every job on its own goroutine until ctx is cancelled.
// A job never overlaps with itself; a slow run delays its next tick.
func RunJobs(ctx context.Context, log *logger.Logger, jobs ...Job) {
	var wg sync.WaitGroup
	for _, j := range jobs {
		if j.Interval <= 0 {
			log.Warnw("job disabled", "job", j.Name)
			continue
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			runJob(ctx, log.With("job", j.Name), j)
		}(j)
	}
	wg.Wait()
}

func runJob(ctx context.Context, log *logger.Logger, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	log.Infow("job started", "interval", j.Interval.String())
	for {
		select {
		case <-ctx.Done():
			log.Infow("job stopped")
			return
		case <-ticker.C:
			n, err := j.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorw("job failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debugw("job processed", "count", n)
			}
		}
	}
}
