package collect

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Throttle paces task submission. Admit is called before submitting task number submitted (zero based)
// and returns once that task may be submitted.
type Throttle interface {
	Admit(ctx context.Context, submitted int) error
}

// ThrottleFunc adapts a function to Throttle.
type ThrottleFunc func(ctx context.Context, submitted int) error

// Admit implements Throttle.
func (f ThrottleFunc) Admit(ctx context.Context, submitted int) error {
	return f(ctx, submitted)
}

// NoThrottle admits every submission immediately.
var NoThrottle Throttle = ThrottleFunc(func(ctx context.Context, _ int) error {
	return ctx.Err()
})

// FixedCadence pauses for Pause after every Every submissions, regardless of how many tasks are in flight.
type FixedCadence struct {
	Every int
	Pause time.Duration
	// Sleep is injected for testability; the default waits on a timer or the context.
	Sleep    func(ctx context.Context, d time.Duration) error
	Logger   *zap.Logger
	Recorder Recorder
}

// Admit implements Throttle.
func (c FixedCadence) Admit(ctx context.Context, submitted int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Every <= 0 || c.Pause <= 0 || submitted == 0 || submitted%c.Every != 0 {
		return nil
	}

	if c.Logger != nil {
		c.Logger.Info("pausing submissions to avoid rate limiting",
			zap.Int("submitted", submitted),
			zap.Duration("pause", c.Pause),
		)
	}
	if c.Recorder != nil {
		c.Recorder.ThrottlePaused()
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, c.Pause)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
