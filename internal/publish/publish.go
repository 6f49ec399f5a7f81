// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package publish writes rendered artifacts to their destination in two phases.
//
// Stage puts the bytes somewhere invisible to readers; Commit makes them visible under
// the final name in one step. A run that fails after some commits calls Retract on
// what it already committed, so a destination never holds part of a run's output.
package publish

import (
	"context"
	"fmt"
	"time"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/render"
	"reportforge/cli/internal/retry"

	"go.uber.org/zap"
)

// Locator identifies a committed artifact.
type Locator struct {
	Destination string `json:"destination"`
	// Key is the path or object key of the artifact.
	Key string `json:"key"`
	URI string `json:"uri"`
}

func (l Locator) String() string { return l.URI }

// Staged is an artifact written but not yet visible.
type Staged interface {
	Commit(ctx context.Context) (Locator, error)
	Abort(ctx context.Context) error
}

// Publisher is a destination for artifacts.
type Publisher interface {
	Stage(ctx context.Context, a render.Artifact) (Staged, error)
	Retract(ctx context.Context, loc Locator) error
	Describe() string
}

// Settings is the destination section of the run config.
type Settings struct {
	Kind     string `yaml:"kind" json:"kind"` // local | s3
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Bucket   string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	// Secret names for the object storage keys.
	AccessKeySecret string `yaml:"access_key_secret,omitempty" json:"access_key_secret,omitempty"`
	SecretKeySecret string `yaml:"secret_key_secret,omitempty" json:"secret_key_secret,omitempty"`
	UseSSL          bool   `yaml:"use_ssl,omitempty" json:"use_ssl,omitempty"`
	CreateBucket    bool   `yaml:"create_bucket,omitempty" json:"create_bucket,omitempty"`
}

// SecretNames returns the credentials the destination needs.
func (s Settings) SecretNames() []string {
	if s.Kind != "s3" {
		return nil
	}
	var names []string
	for _, n := range []string{s.AccessKeySecret, s.SecretKeySecret} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Options are shared by publishers of one run.
type Options struct {
	RunID   string
	Retry   retry.Policy
	Timeout time.Duration
	Logger  *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.Named("publish")
}

// Open builds the Publisher for s. secret looks up resolved credential values by name.
func Open(ctx context.Context, s Settings, secret func(name string) string, opts Options) (Publisher, error) {
	switch s.Kind {
	case "", "local":
		return NewLocal(s.Path, opts)
	case "s3":
		store, err := NewMinioStore(MinioConfig{
			Endpoint:  s.Endpoint,
			Region:    s.Region,
			AccessKey: secret(s.AccessKeySecret),
			SecretKey: secret(s.SecretKeySecret),
			UseSSL:    s.UseSSL,
		})
		if err != nil {
			return nil, errs.Wrap(errs.PublishError, "cannot create object storage client", err).In("publisher")
		}
		return NewS3(ctx, store, s.Bucket, s.Prefix, s.CreateBucket, opts)
	default:
		return nil, errs.Newf(errs.ConfigError, "unknown destination kind %q", s.Kind)
	}
}

// Publish stages and commits a single artifact.
func Publish(ctx context.Context, p Publisher, a render.Artifact) (Locator, error) {
	st, err := p.Stage(ctx, a)
	if err != nil {
		return Locator{}, err
	}
	loc, err := st.Commit(ctx)
	if err != nil {
		_ = st.Abort(context.WithoutCancel(ctx))
		return Locator{}, err
	}
	return loc, nil
}

// ContentType returns the MIME type of a format.
func ContentType(f render.Format) string {
	switch f {
	case render.XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case render.PPTX:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/octet-stream"
	}
}

func publishError(msg string, err error) *errs.E {
	return errs.Wrap(errs.PublishError, msg, err).In("publisher")
}

func checkArtifact(a render.Artifact) error {
	if a.Filename == "" {
		return errs.New(errs.PublishError, "artifact has no filename").In("publisher")
	}
	if len(a.Content) == 0 {
		return errs.New(errs.PublishError, fmt.Sprintf("artifact %s is empty", a.Filename)).In("publisher")
	}
	return nil
}
