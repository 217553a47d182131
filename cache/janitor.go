package cache

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
)

// janitor runs the eviction sweep on a cron schedule with second
// granularity, so short grace periods still get collected promptly.
type janitor struct {
	cron   *cron.Cron
	logger types.Logger
}

func newJanitor(schedule string, logger types.Logger, cache *QueryCache) (*janitor, error) {
	cronL := safeCronLogger{logger: logger}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronL)),
	)

	_, err := c.AddFunc(schedule, func() {
		cache.Sweep(time.Now())
	})
	if err != nil {
		return nil, types.WrapError(err, "invalid sweep schedule")
	}

	return &janitor{cron: c, logger: logger}, nil
}

func (j *janitor) Start() {
	j.cron.Start()
	j.logger.Debug("Cache janitor started")
}

func (j *janitor) Stop() {
	ctx := j.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		j.logger.Warn("Cache janitor stop timeout")
	}
}

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
