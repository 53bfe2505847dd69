package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"

	"dubbot/api"
	"dubbot/config"
	"dubbot/job"
	"dubbot/kafka"
	"dubbot/locks"
	"dubbot/media"
	"dubbot/pipeline"
	"dubbot/publish"
	"dubbot/storage"
	"dubbot/tts"
)

func main() {
	batchMode := flag.Bool("batch", false, "Process template files from the input directory and exit")
	kafkaMode := flag.Bool("kafka", false, "Consume templates from the Kafka topic")
	inputDir := flag.String("input", "input", "Template directory for batch mode")
	addr := flag.String("addr", "", "HTTP listen address (default \":$PORT\" or :8080)")
	flag.Parse()

	log.SetOutput(os.Stderr)

	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("failed to prepare cache: %v", err)
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	if *batchMode {
		if err := runBatch(cfg, p, *inputDir); err != nil {
			log.Fatalf("batch processing failed: %v", err)
		}
		return
	}

	if *kafkaMode {
		log.Printf("Kafka brokers: %v, topic: %s, group: %s", cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
		if err := kafka.StartConsumerWithGracefulShutdown(cfg, p); err != nil {
			log.Fatalf("kafka consumer failed: %v", err)
		}
		return
	}

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = ":" + config.GetEnvOrDefault("PORT", "8080")
	}

	r := api.NewRouter(cfg, p)
	log.Printf("Starting API server on %s", listenAddr)
	log.Println("API endpoints available:")
	log.Println("  GET  /api/health")
	log.Println("  POST /api/dub")
	if err := http.ListenAndServe(listenAddr, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildPipeline wires the pipeline's collaborators from configuration:
// the TTS client, the ffmpeg toolset, the publisher (with an S3 store
// only in remote output mode), and the optional Redis cache-fill lock.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	synth := tts.NewClient(cfg.TTS.Endpoint, cfg.TTS.AuthToken())
	tools := media.NewFFmpeg(config.NarrationCodec, config.OutputCodec)

	var store storage.ObjectStore
	if cfg.Output.Type == config.OutputRemote {
		s3store, err := storage.NewS3(context.Background(), storage.S3Config{
			Region:       cfg.Output.Region,
			Profile:      cfg.Output.Profile,
			UsePathStyle: cfg.Output.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		store = s3store
	}
	publisher := publish.New(store, cfg.Output)

	var lock locks.Lock = locks.Noop{}
	if cfg.Redis.Addr != "" {
		redisLock, err := locks.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Warning: redis lock unavailable: %v (cache fills run unlocked)", err)
		} else {
			log.Printf("Redis cache-fill lock enabled (%s)", cfg.Redis.Addr)
			lock = redisLock
		}
	}

	return pipeline.New(cfg, synth, tools, publisher, lock), nil
}

// runBatch processes every *.json template in dir with bounded
// concurrency. On this surface a publish failure is tolerated: the
// rendered local artifact is still reported as the job's result.
func runBatch(cfg *config.Config, p *pipeline.Pipeline, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Printf("No template files found in %s", dir)
		return nil
	}
	log.Printf("Found %d templates to process", len(files))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, config.MaxConcurrentJobs)

	for i, file := range files {
		wg.Add(1)
		go func(idx int, file string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := processTemplateFile(cfg, p, file); err != nil {
				log.Printf("[%d/%d] failed to process %s: %v", idx+1, len(files), filepath.Base(file), err)
				return
			}
			log.Printf("[%d/%d] processed %s", idx+1, len(files), filepath.Base(file))
		}(i, file)
	}

	wg.Wait()
	log.Println("All templates processed")
	return nil
}

func processTemplateFile(cfg *config.Config, p *pipeline.Pipeline, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	tpl, err := job.ParseTemplate(data)
	if err != nil {
		return err
	}

	j, err := job.New(tpl, cfg)
	if err != nil {
		return err
	}

	err = p.Run(context.Background(), j)
	if errors.Is(err, pipeline.ErrPublishFailed) {
		log.Printf("[%s] publish failed, keeping local result %s: %v", j.ID, j.OutputPath, err)
		err = nil
	}
	if err != nil {
		return err
	}

	log.Printf("[%s] output: %s (digest %s)", j.ID, j.OutputPublicLocation, j.ContentDigest)
	return nil
}
