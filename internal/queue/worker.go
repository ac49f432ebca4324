package queue

import (
	"context"
	"fmt"

	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Worker runs the background notification tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds a Worker consuming DefaultQueue with the given concurrency.
func NewWorker(opt asynq.RedisConnOpt, concurrency int, alerts *services.MessageAlerts) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{DefaultQueue: 1},
		Logger:      zerologAdapter{},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task_type", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMessageNotification, HandleMessageNotification(alerts))
	return &Worker{server: srv, mux: mux}
}

// Run starts processing and blocks until ctx is cancelled, then shuts down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("asynq: start worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

// zerologAdapter routes asynq's internal logging through zerolog.
type zerologAdapter struct{}

func (zerologAdapter) Debug(args ...interface{}) { log.Debug().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Info(args ...interface{})  { log.Info().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Warn(args ...interface{})  { log.Warn().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Error(args ...interface{}) { log.Error().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Fatal(args ...interface{}) { log.Fatal().Msg(fmt.Sprint(args...)) }
