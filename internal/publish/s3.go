// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package publish

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"reportforge/cli/internal/httperrors"
	"reportforge/cli/internal/render"
	"reportforge/cli/internal/retry"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const stagingDir = ".staging"

// S3 publishes to an S3-compatible bucket. Uploads go to a staging key and are
// copied server-side to the final key on commit.
type S3 struct {
	store   ObjectStore
	bucket  string
	prefix  string
	runID   string
	retrier *retry.Retrier
	logger  *zap.Logger
}

// NewS3 checks the bucket, creating it when create is set.
func NewS3(ctx context.Context, store ObjectStore, bucket, prefix string, create bool, opts Options) (*S3, error) {
	if bucket == "" {
		return nil, publishError("bucket is required", nil)
	}
	p := &S3{
		store:   store,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		runID:   opts.RunID,
		retrier: retry.New(opts.Retry.WithTimeout(opts.Timeout), opts.logger()),
		logger:  opts.logger().With(zap.String("bucket", bucket)),
	}
	if create {
		if err := p.do(ctx, "ensure bucket", func(ctx context.Context) error {
			return store.EnsureBucket(ctx, bucket)
		}); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *S3) Describe() string {
	return fmt.Sprintf("s3://%s/%s (%s)", p.bucket, p.prefix, p.store.Endpoint())
}

func (p *S3) key(parts ...string) string {
	if p.prefix != "" {
		parts = append([]string{p.prefix}, parts...)
	}
	return path.Join(parts...)
}

func (p *S3) Stage(ctx context.Context, a render.Artifact) (Staged, error) {
	if err := checkArtifact(a); err != nil {
		return nil, err
	}
	name := path.Base(a.Filename)
	st := &s3Staged{
		p:          p,
		name:       name,
		stagingKey: p.key(stagingDir, p.runID, name),
		finalKey:   p.key(name),
	}
	err := p.do(ctx, "upload "+name, func(ctx context.Context) error {
		return p.store.Put(ctx, p.bucket, st.stagingKey, bytes.NewReader(a.Content), int64(len(a.Content)), ContentType(a.Format))
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("staged", zap.String("key", st.stagingKey), zap.Int("bytes", len(a.Content)))
	return st, nil
}

func (p *S3) Retract(ctx context.Context, loc Locator) error {
	if err := p.do(ctx, "retract "+loc.Key, func(ctx context.Context) error {
		return p.store.Remove(ctx, p.bucket, loc.Key)
	}); err != nil {
		return err
	}
	p.logger.Info("retracted", zap.String("key", loc.Key))
	return nil
}

// do runs op under the retry policy and maps failures to PublishError.
func (p *S3) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	stats, err := p.retrier.Do(ctx, op, isTransientStoreError, fn)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	switch {
	case isDenied(err):
		return publishError(op+": permission denied", err)
	case isQuota(err):
		return publishError(op+": storage quota exceeded", err)
	}
	return publishError(op, err).WithAttempts(stats.Attempts, stats.Exhausted)
}

func isTransientStoreError(err error) bool {
	if isDenied(err) || isQuota(err) {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if transientCodes[resp.Code] || httperrors.IsServerStatus(resp.StatusCode) {
		return true
	}
	return httperrors.IsTransient(err)
}

type s3Staged struct {
	p          *S3
	name       string
	stagingKey string
	finalKey   string
}

func (s *s3Staged) Commit(ctx context.Context) (Locator, error) {
	err := s.p.do(ctx, "commit "+s.name, func(ctx context.Context) error {
		return s.p.store.Copy(ctx, s.p.bucket, s.stagingKey, s.finalKey)
	})
	if err != nil {
		return Locator{}, err
	}
	// The final object is in place; a leftover staging key is only clutter.
	if err := s.p.store.Remove(ctx, s.p.bucket, s.stagingKey); err != nil {
		s.p.logger.Warn("staging object not removed", zap.String("key", s.stagingKey), zap.Error(err))
	}
	s.p.logger.Info("published", zap.String("key", s.finalKey))
	return Locator{
		Destination: "s3",
		Key:         s.finalKey,
		URI:         fmt.Sprintf("s3://%s/%s", s.p.bucket, s.finalKey),
	}, nil
}

func (s *s3Staged) Abort(ctx context.Context) error {
	return s.p.do(ctx, "abort "+s.name, func(ctx context.Context) error {
		return s.p.store.Remove(ctx, s.p.bucket, s.stagingKey)
	})
}
