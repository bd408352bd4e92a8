package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type WindowCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// RateWindowCleanupJob drops counter rows whose window has already reset.
type RateWindowCleanupJob struct {
	limiter WindowCleaner
}

func NewRateWindowCleanupJob(limiter WindowCleaner) *RateWindowCleanupJob {
	return &RateWindowCleanupJob{limiter: limiter}
}

func (j *RateWindowCleanupJob) Name() string {
	return "rate_window_cleanup"
}

func (j *RateWindowCleanupJob) Run(ctx context.Context) error {
	if j.limiter == nil {
		return nil
	}
	n, err := j.limiter.Cleanup(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Info("expired rate windows removed", zap.Int64("deleted", n))
	}
	return nil
}
