package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"EmailBlaster/internal/dispatch"
	"EmailBlaster/internal/metrics"
	"EmailBlaster/internal/models"
)

var ErrQueueFull = errors.New("dispatch queue is full")

type Runner interface {
	Run(ctx context.Context, job models.DispatchJob) (*dispatch.Result, error)
}

// Queue is the in-process job channel shared by the API and the pool.
type Queue struct {
	jobs chan models.DispatchJob
}

func NewQueue(size int) *Queue {
	return &Queue{jobs: make(chan models.DispatchJob, size)}
}

// Enqueue never blocks: a full queue is reported to the caller so the
// campaign can be released instead of hanging the request.
func (q *Queue) Enqueue(ctx context.Context, job models.DispatchJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Jobs() <-chan models.DispatchJob { return q.jobs }

func (q *Queue) Close() { close(q.jobs) }

// Drain returns the jobs no worker picked up, in queue order. Call it after
// Close once the pool has stopped.
func (q *Queue) Drain() []models.DispatchJob {
	var left []models.DispatchJob
	for job := range q.jobs {
		left = append(left, job)
	}
	return left
}

func StartPool(
	ctx context.Context,
	wg *sync.WaitGroup,
	workers int,
	jobs <-chan models.DispatchJob,
	runner Runner,
	logger *zap.Logger,
) {

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			logger.Info("worker started", zap.Int("worker_id", id))

			for {
				select {

				case <-ctx.Done():
					logger.Info("worker shutting down", zap.Int("worker_id", id))
					return

				case job, ok := <-jobs:
					if !ok {
						logger.Info("job channel closed", zap.Int("worker_id", id))
						return
					}

					// ----------------------------
					// Dispatch Pass
					// ----------------------------
					res, err := runJob(ctx, runner, job)
					if err != nil {
						logger.Error("dispatch pass failed",
							zap.Int("worker_id", id),
							zap.Int64("campaign_id", job.CampaignID),
							zap.Error(err),
						)
						continue
					}

					logger.Info("dispatch pass complete",
						zap.Int("worker_id", id),
						zap.Int64("campaign_id", job.CampaignID),
						zap.Int("sent", res.Sent),
						zap.Int("failed", res.Failed),
					)
				}
			}
		}(i)
	}
}

// runJob is the error boundary around one pass: a panic is turned into an
// error so the worker keeps serving.
func runJob(ctx context.Context, runner Runner, job models.DispatchJob) (res *dispatch.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchPasses.WithLabelValues("panicked").Inc()
			err = fmt.Errorf("dispatch pass panicked: %v", r)
		}
	}()

	return runner.Run(ctx, job)
}
