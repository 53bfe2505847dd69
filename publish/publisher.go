// Package publish moves the finished output into durable storage,
// uploading at most once per distinct content.
package publish

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"dubbot/config"
	"dubbot/job"
	"dubbot/storage"
)

// Publisher uploads a job's output file unless an identical object
// (by content digest) is already stored remotely. In local output
// mode no network call is ever made.
type Publisher struct {
	store storage.ObjectStore
	cfg   config.OutputConfig
}

// New creates a Publisher. store may be nil in local output mode.
func New(store storage.ObjectStore, cfg config.OutputConfig) *Publisher {
	return &Publisher{store: store, cfg: cfg}
}

// Publish computes the output's content digest, records it on the
// job, and uploads the file when the remote object is absent or its
// integrity tag differs. The digest is md5 because a single-part S3
// upload's ETag is the hex md5 of the body, which makes the
// head-compare-skip check possible without downloading anything.
func (p *Publisher) Publish(ctx context.Context, j *job.Job) error {
	digest, err := fileMD5(j.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to digest output %s: %w", j.OutputPath, err)
	}
	j.ContentDigest = digest

	if p.cfg.Type == config.OutputLocal {
		return nil
	}

	key := p.cfg.Key(filepath.Base(j.OutputPath))
	head, err := p.store.Head(ctx, p.cfg.Bucket, key)
	if err != nil {
		return fmt.Errorf("failed to head s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}
	if head.Exists && head.IntegrityTag == digest {
		log.Printf("[%s] publish: s3://%s/%s already matches digest %s, skipping upload", j.ID, p.cfg.Bucket, key, digest)
		return nil
	}

	f, err := os.Open(j.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to open output %s: %w", j.OutputPath, err)
	}
	defer f.Close()

	if err := p.store.Put(ctx, p.cfg.Bucket, key, f, config.OutputContentType, p.cfg.ACL); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}
	log.Printf("[%s] publish: uploaded s3://%s/%s (digest %s)", j.ID, p.cfg.Bucket, key, digest)
	return nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
