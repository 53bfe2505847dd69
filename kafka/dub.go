package kafka

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dubbot/config"
	"dubbot/job"
)

// JobRunner executes one dubbing job end to end.
type JobRunner interface {
	Run(ctx context.Context, j *job.Job) error
}

// NewTemplateConsumer builds a consumer that feeds dub templates from
// the configured topic through the pipeline. Processing failures
// leave the offset unmarked, so the job is retried; the content-
// addressed cache makes the retry cheap.
func NewTemplateConsumer(cfg *config.Config, runner JobRunner) (*Consumer, error) {
	handler := &TypedMessageHandler[job.Template]{
		Validate: func(tpl *job.Template) bool {
			if tpl.Video == "" {
				log.Printf("Skipping message without video reference")
				return false
			}
			if len(tpl.Script) == 0 {
				log.Printf("Skipping message without script entries")
				return false
			}
			return true
		},
		Process: func(ctx context.Context, tpl *job.Template) error {
			j, err := job.New(*tpl, cfg)
			if err != nil {
				// Construction failures are template defects; a
				// redelivery cannot fix them.
				log.Printf("Rejecting malformed template: %v", err)
				return nil
			}

			log.Printf("[%s] processing dub job for %s", j.ID, tpl.Video)
			if err := runner.Run(ctx, j); err != nil {
				log.Printf("[%s] dub job failed: %v", j.ID, err)
				return err
			}
			log.Printf("[%s] dub job complete: %s", j.ID, j.OutputPublicLocation)
			return nil
		},
		AlwaysMark: true,
	}

	return NewConsumer(ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
		Handler: handler,
	})
}

// StartConsumerWithGracefulShutdown runs the template consumer until
// SIGINT/SIGTERM, giving in-flight processing a moment to finish.
func StartConsumerWithGracefulShutdown(cfg *config.Config, runner JobRunner) error {
	consumer, err := NewTemplateConsumer(cfg, runner)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := consumer.Start(ctx); err != nil {
		return err
	}

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigterm:
		log.Println("Received termination signal")
	case <-ctx.Done():
		log.Println("Context canceled")
	}

	cancel()
	time.Sleep(2 * time.Second)

	return consumer.Close()
}
