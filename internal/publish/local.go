// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"reportforge/cli/internal/render"

	"go.uber.org/zap"
)

// Local publishes into a directory. Artifacts are written to a hidden temp file
// and renamed into place on commit. A file replaced by a commit is kept in memory
// until the publisher is discarded so Retract can put it back.
type Local struct {
	dir    string
	runID  string
	logger *zap.Logger

	mu       sync.Mutex
	replaced map[string]previousFile
}

type previousFile struct {
	content []byte
	mode    fs.FileMode
}

// NewLocal creates the directory if needed.
func NewLocal(dir string, opts Options) (*Local, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, publishError("resolve output directory", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, publishError(fmt.Sprintf("create output directory %s", abs), err)
	}
	return &Local{
		dir:      abs,
		runID:    opts.RunID,
		logger:   opts.logger().With(zap.String("destination", abs)),
		replaced: make(map[string]previousFile),
	}, nil
}

func (l *Local) Describe() string { return "local:" + l.dir }

func (l *Local) Stage(ctx context.Context, a render.Artifact) (Staged, error) {
	if err := checkArtifact(a); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := filepath.Base(a.Filename)
	tmp := filepath.Join(l.dir, fmt.Sprintf(".%s.tmp-%s", name, l.runID))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, localError("stage "+name, err)
	}
	if _, err := f.Write(a.Content); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, localError("write "+name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, localError("sync "+name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, localError("close "+name, err)
	}
	l.logger.Debug("staged", zap.String("artifact", name), zap.Int("bytes", len(a.Content)))
	return &localStaged{l: l, tmp: tmp, final: filepath.Join(l.dir, name)}, nil
}

// Retract removes a committed artifact, or restores the file it replaced.
func (l *Local) Retract(_ context.Context, loc Locator) error {
	l.mu.Lock()
	prev, ok := l.replaced[loc.Key]
	l.mu.Unlock()
	if ok {
		if err := l.restore(loc.Key, prev); err != nil {
			return localError("restore "+loc.Key, err)
		}
		l.mu.Lock()
		delete(l.replaced, loc.Key)
		l.mu.Unlock()
		l.logger.Info("restored previous file", zap.String("artifact", loc.Key))
		return nil
	}
	if err := os.Remove(loc.Key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return localError("retract "+loc.Key, err)
	}
	l.logger.Info("retracted", zap.String("artifact", loc.Key))
	return nil
}

// restore writes prev next to path and renames it over the committed artifact.
func (l *Local) restore(path string, prev previousFile) error {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.restore-%s", filepath.Base(path), l.runID))
	if err := os.WriteFile(tmp, prev.content, prev.mode.Perm()); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// remember keeps the current content of path if it is a regular file.
func (l *Local) remember(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s exists and is not a regular file", filepath.Base(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	if _, seen := l.replaced[path]; !seen {
		l.replaced[path] = previousFile{content: content, mode: info.Mode()}
	}
	l.mu.Unlock()
	return nil
}

type localStaged struct {
	l     *Local
	tmp   string
	final string
}

func (s *localStaged) Commit(ctx context.Context) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return Locator{}, err
	}
	if err := s.l.remember(s.final); err != nil {
		return Locator{}, localError("commit "+filepath.Base(s.final), err)
	}
	if err := os.Rename(s.tmp, s.final); err != nil {
		s.l.mu.Lock()
		delete(s.l.replaced, s.final)
		s.l.mu.Unlock()
		return Locator{}, localError("commit "+filepath.Base(s.final), err)
	}
	s.l.logger.Info("published", zap.String("artifact", s.final))
	return Locator{Destination: "local", Key: s.final, URI: "file://" + filepath.ToSlash(s.final)}, nil
}

func (s *localStaged) Abort(context.Context) error {
	if err := os.Remove(s.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return localError("abort "+filepath.Base(s.final), err)
	}
	return nil
}

func localError(op string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return publishError(op+": permission denied", err)
	}
	return publishError(op, err)
}
