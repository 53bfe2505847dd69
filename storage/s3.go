// Package storage provides the object store the publisher uploads to.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// HeadInfo describes an existing remote object. IntegrityTag is the
// store's content tag (for S3, the ETag with quotes stripped; a
// single-part upload's ETag is the hex md5 of the body).
type HeadInfo struct {
	Exists       bool
	IntegrityTag string
}

// ObjectStore is the durable storage contract the publisher depends
// on. Head reports a missing object as Exists=false, not an error.
type ObjectStore interface {
	Head(ctx context.Context, bucket, key string) (HeadInfo, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType, acl string) error
}

// S3 implements ObjectStore with the AWS SDK v2 client.
type S3 struct {
	client *s3.Client
}

// S3Config carries optional overrides on top of the standard AWS
// config/credential chain.
type S3Config struct {
	Region       string
	Profile      string
	UsePathStyle bool
}

// NewS3 builds the client from the default AWS configuration chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3{client: client}, nil
}

// Head returns the object's integrity tag, or Exists=false on 404.
func (s *S3) Head(ctx context.Context, bucket, key string) (HeadInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return HeadInfo{}, nil
		}
		return HeadInfo{}, err
	}

	tag := ""
	if out.ETag != nil {
		tag = strings.Trim(*out.ETag, `"`)
	}
	return HeadInfo{Exists: true, IntegrityTag: tag}, nil
}

// Put uploads the object with the given content type and canned ACL.
func (s *S3) Put(ctx context.Context, bucket, key string, body io.Reader, contentType, acl string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if acl != "" {
		in.ACL = s3types.ObjectCannedACL(acl)
	}

	_, err := s.client.PutObject(ctx, in)
	return err
}

// isNotFound discriminates a 404 from other HeadObject failures, via
// either the HTTP response error or the API error code.
func isNotFound(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}

	return false
}
