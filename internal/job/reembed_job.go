package job

import (
	"context"

	"github.com/xxxsen/mtutor/internal/service"
)

type Reembedder interface {
	Run(ctx context.Context) (*service.ReembedResult, error)
}

type ReembedJob struct {
	reembed Reembedder
}

func NewReembedJob(reembed Reembedder) *ReembedJob {
	return &ReembedJob{reembed: reembed}
}

func (j *ReembedJob) Name() string {
	return "reembed"
}

func (j *ReembedJob) Run(ctx context.Context) error {
	if j.reembed == nil {
		return nil
	}
	_, err := j.reembed.Run(ctx)
	return err
}
