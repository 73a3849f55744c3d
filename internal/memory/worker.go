package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Job kinds the worker knows how to run.
const (
	JobSummarize    = "summarize"
	JobExtractFacts = "extract_facts"
)

// Job is one unit of background memory work.
type Job struct {
	Kind      string
	UserID    string
	SessionID string
}

// Worker runs memory jobs off the hot path so summarization latency never
// delays a user-visible reply. Failed jobs get one delayed retry and are
// then dropped with a log line; memory is best effort.
type Worker struct {
	manager *Manager
	jobs    chan Job
	logger  *slog.Logger
	done    chan struct{}
}

func NewWorker(manager *Manager, queueSize int, logger *slog.Logger) *Worker {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Worker{
		manager: manager,
		jobs:    make(chan Job, queueSize),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Enqueue hands a job to the worker. It never blocks the caller: when the
// queue is full the job is dropped and reported false.
func (w *Worker) Enqueue(job Job) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		w.logger.Warn("memory queue full, dropping job", "kind", job.Kind, "session_id", job.SessionID)
		return false
	}
}

// Pending reports how many jobs are queued but not yet picked up.
func (w *Worker) Pending() int {
	return len(w.jobs)
}

// Run processes jobs until ctx is canceled, then drains what is already
// queued before returning.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case job := <-w.jobs:
			// A canceled ctx would fail the job before its first
			// attempt; shutdown-era jobs still get drained.
			jobCtx := ctx
			if ctx.Err() != nil {
				jobCtx = context.Background()
			}
			w.process(jobCtx, job)
		case <-ctx.Done():
			for {
				select {
				case job := <-w.jobs:
					w.process(context.Background(), job)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() {
	<-w.done
}

func (w *Worker) process(ctx context.Context, job Job) {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		switch job.Kind {
		case JobSummarize:
			err = w.manager.Summarize(ctx, job.UserID, job.SessionID)
		case JobExtractFacts:
			err = w.manager.ExtractFacts(ctx, job.UserID, job.SessionID)
		default:
			w.logger.Error("unknown memory job kind", "kind", job.Kind)
			return nil
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("memory job failed", "kind", job.Kind, "session_id", job.SessionID, "error", err)
	}
}
