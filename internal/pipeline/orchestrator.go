// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pipeline runs a report end to end: resolve secrets, connect, extract,
// transform, render and publish.
//
// Each stage finishes completely before the next one starts. A failure in any stage
// moves the run to Failed and unwinds everything the run created: the connection is
// closed, credentials are scrubbed, staged artifacts are aborted and artifacts that
// were already committed are retracted, so a destination never holds a partial set.
package pipeline

import (
	"context"
	"time"

	"reportforge/cli/internal/config"
	"reportforge/cli/internal/datasource"
	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/logging"
	"reportforge/cli/internal/notify"
	"reportforge/cli/internal/publish"
	"reportforge/cli/internal/render"
	"reportforge/cli/internal/secrets"
	"reportforge/cli/internal/transform"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// cleanupTimeout bounds abort and retract calls made after a failure or cancellation.
const cleanupTimeout = 30 * time.Second

// defaultConcurrency is used when the config leaves concurrency unset.
const defaultConcurrency = 4

// Notifier announces a finished run.
type Notifier interface {
	Send(ctx context.Context, s notify.Summary) error
}

// Deps builds the external collaborators of a run. Tests replace them with fakes.
type Deps struct {
	Secrets   func(ctx context.Context, cfg *config.RunConfig, logger *zap.Logger) (secrets.Resolver, error)
	Source    func(cfg *config.RunConfig, logger *zap.Logger) datasource.DataSource
	Renderer  func(f render.Format, opts render.Options) (render.Renderer, error)
	Publisher func(ctx context.Context, cfg *config.RunConfig, creds *secrets.Credentials, opts publish.Options) (publish.Publisher, error)
	Notifier  func(cfg *config.RunConfig, creds *secrets.Credentials, logger *zap.Logger) Notifier
}

// DefaultDeps wires the production implementations.
func DefaultDeps() Deps {
	return Deps{
		Secrets: func(ctx context.Context, cfg *config.RunConfig, logger *zap.Logger) (secrets.Resolver, error) {
			backend, err := secrets.Open(ctx, cfg.Vault)
			if err != nil {
				return nil, err
			}
			return secrets.NewResolver(backend, cfg.Retry.Policy(cfg.Timeouts.Vault), logger), nil
		},
		Source: func(cfg *config.RunConfig, logger *zap.Logger) datasource.DataSource {
			return datasource.NewConnector(datasource.Options{
				Retry:          cfg.Retry.Policy(0),
				ConnectTimeout: cfg.Timeouts.Connect,
				QueryTimeout:   cfg.Timeouts.Query,
				MaxRows:        cfg.Database.MaxRows,
				Logger:         logger,
			})
		},
		Renderer: render.New,
		Publisher: func(ctx context.Context, cfg *config.RunConfig, creds *secrets.Credentials, opts publish.Options) (publish.Publisher, error) {
			return publish.Open(ctx, cfg.Destination, creds.Value, opts)
		},
		Notifier: func(cfg *config.RunConfig, creds *secrets.Credentials, logger *zap.Logger) Notifier {
			return notify.NewMailer(cfg.Notify, creds.Value, logger)
		},
	}
}

// Options control a single run.
type Options struct {
	// Only selects outputs by name; empty or "all" selects every output.
	Only []string
	// DryRun stops after rendering.
	DryRun   bool
	Logger   *zap.Logger
	Observer Observer
	// Now and NewRunID default to the wall clock and a random id.
	Now      func() time.Time
	NewRunID func() string
}

// ArtifactInfo describes a rendered artifact.
type ArtifactInfo struct {
	Output   string
	Format   render.Format
	Filename string
	Bytes    int
	Hash     string
}

// Result is what a run produced.
type Result struct {
	RunID     string
	State     State
	DryRun    bool
	Started   time.Time
	Finished  time.Time
	Artifacts []ArtifactInfo
	Locators  []publish.Locator
}

// Orchestrator drives one report configuration through the pipeline.
type Orchestrator struct {
	cfg    *config.RunConfig
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New creates an orchestrator for a validated config.
func New(cfg *config.RunConfig, deps Deps, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = NewRunID
	}
	return &Orchestrator{cfg: cfg, deps: deps, opts: opts, logger: opts.Logger}
}

// NewRunID returns a short run identifier: the first 8 hex digits of a random UUID.
func NewRunID() string {
	return uuid.NewString()[:8]
}

type stage struct {
	state State
	run   func(ctx context.Context, rc *RunContext) error
}

// Run executes the pipeline. On failure the returned error is a *Failure naming the
// stage and kind; configuration problems found before the run starts are returned as
// plain ConfigError values.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	outputs, err := o.cfg.Select(o.opts.Only)
	if err != nil {
		return nil, err
	}

	started := o.opts.Now().UTC().Truncate(time.Second)
	rc := newRunContext(o.opts.NewRunID(), started, o.cfg, outputs)
	defer rc.Close()

	log := o.logger.With(zap.String("run_id", rc.RunID), zap.String("report", o.cfg.Report))
	log.Info("run started", zap.Int("outputs", len(outputs)), zap.Bool("dry_run", o.opts.DryRun))

	res := &Result{RunID: rc.RunID, Started: started, DryRun: o.opts.DryRun}
	stages := []stage{
		{ResolvingSecrets, o.resolveSecrets},
		{Connecting, o.connect},
		{Extracting, o.extract},
		{Transforming, o.transform},
		{Rendering, o.render},
		{Publishing, o.publish},
	}
	for _, s := range stages {
		if o.opts.DryRun && s.state == Publishing {
			break
		}
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, rc, log, rc.State(), err)
		}
		if err := rc.transition(s.state); err != nil {
			return o.fail(ctx, rc, log, rc.State(), err)
		}
		o.emit(Event{Type: EventStage, State: s.state})
		log.Debug("stage started", zap.Stringer("stage", s.state))

		if err := s.run(ctx, rc); err != nil {
			return o.fail(ctx, rc, log, s.state, err)
		}
	}

	res.Artifacts = artifactInfos(rc)
	res.Finished = o.opts.Now().UTC()
	if o.opts.DryRun {
		res.State = rc.State()
		log.Info("dry run finished", zap.Int("artifacts", len(res.Artifacts)))
		return res, nil
	}

	if err := rc.transition(Done); err != nil {
		return o.fail(ctx, rc, log, rc.State(), err)
	}
	res.State = Done
	res.Locators = rc.Locators()
	o.emit(Event{Type: EventStage, State: Done})
	log.Info("run finished", zap.Int("published", len(res.Locators)), zap.Duration("elapsed", res.Finished.Sub(started)))

	o.announce(ctx, rc, res, log)
	return res, nil
}

func (o *Orchestrator) emit(ev Event) {
	if o.opts.Observer == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = o.opts.Now()
	}
	o.opts.Observer(ev)
}

// fail unwinds the run and returns its single top-level error.
func (o *Orchestrator) fail(ctx context.Context, rc *RunContext, log *zap.Logger, at State, cause error) (*Result, error) {
	kind := errs.KindOf(cause)
	if ctx.Err() != nil {
		kind = errs.Canceled
		if _, ok := errs.As(cause); !ok {
			cause = errs.Wrap(errs.Canceled, "run cancelled", cause)
		}
	}
	if kind == "" {
		kind = at.defaultKind()
	}

	// Cleanup must still run when ctx is the reason for failing.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	o.unwind(cleanupCtx, rc, log)

	_ = rc.transition(Failed)
	f := &Failure{Stage: at, Kind: kind, Err: cause}
	o.emit(Event{Type: EventStage, State: Failed, Name: at.String(), Err: f})
	log.Error("run failed", zap.Stringer("stage", at), zap.String("kind", string(kind)), logging.Err(cause))
	return &Result{RunID: rc.RunID, State: Failed, Started: rc.Started, Finished: o.opts.Now().UTC()}, f
}

// unwind aborts staged artifacts and retracts committed ones.
func (o *Orchestrator) unwind(ctx context.Context, rc *RunContext, log *zap.Logger) {
	rc.mu.Lock()
	staged := rc.staged
	committed := rc.committed
	rc.staged = nil
	rc.committed = nil
	rc.artifacts = nil
	rc.mu.Unlock()

	for _, s := range staged {
		if err := s.st.Abort(ctx); err != nil {
			log.Warn("abort staged artifact", zap.String("artifact", s.name), logging.Err(err))
		}
	}
	for i := len(committed) - 1; i >= 0; i-- {
		if err := rc.Publisher.Retract(ctx, committed[i]); err != nil {
			log.Warn("retract published artifact", zap.String("uri", committed[i].URI), logging.Err(err))
		}
	}
}

func (o *Orchestrator) resolveSecrets(ctx context.Context, rc *RunContext) error {
	resolver, err := o.deps.Secrets(ctx, o.cfg, o.logger)
	if err != nil {
		return err
	}
	creds, err := resolver.Resolve(ctx, o.cfg.SecretNames())
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.Credentials = creds
	rc.mu.Unlock()
	return nil
}

func (o *Orchestrator) connect(ctx context.Context, rc *RunContext) error {
	var cred *secrets.Credential
	if name := o.cfg.Database.Credential; name != "" {
		cred, _ = rc.Credentials.Get(name)
	}
	cc, err := datasource.NewConnectionConfig(o.cfg.Database, cred)
	if err != nil {
		return err
	}
	h, err := o.deps.Source(o.cfg, o.logger).Connect(ctx, cc)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.Handle = h
	rc.mu.Unlock()
	return nil
}

// extract runs the needed queries on a bounded pool over the run's single handle.
func (o *Orchestrator) extract(ctx context.Context, rc *RunContext) error {
	limit := o.cfg.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for _, d := range o.cfg.DatasetsFor(rc.Outputs) {
		eg.Go(func() error {
			t, err := rc.Handle.Execute(egCtx, d.QuerySpec())
			if err != nil {
				return err
			}
			rc.setTable(d.Name, t)
			o.emit(Event{Type: EventDataset, State: Extracting, Name: d.Name, Rows: t.Len()})
			return nil
		})
	}
	return eg.Wait()
}

func (o *Orchestrator) transform(ctx context.Context, rc *RunContext) error {
	for _, d := range o.cfg.DatasetsFor(rc.Outputs) {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, _ := rc.Table(d.Name)
		out, err := transform.Apply(in, d.Transforms)
		if err != nil {
			if e, ok := errs.As(err); ok {
				e.Message = "dataset " + d.Name + ": " + e.Message
			}
			return err
		}
		rc.setTable(d.Name, out)
		o.emit(Event{Type: EventDataset, State: Transforming, Name: d.Name, Rows: out.Len()})
	}
	return nil
}

// render produces every artifact in parallel. Nothing is kept unless all succeed.
func (o *Orchestrator) render(ctx context.Context, rc *RunContext) error {
	names := ArtifactNames(o.cfg, rc.Outputs, rc.Started)
	results := make([]rendered, len(rc.Outputs))
	ropts := render.Options{
		Report:   o.cfg.Report,
		RunID:    rc.RunID,
		Now:      func() time.Time { return rc.Started },
		MaxBytes: o.cfg.Render.MaxBytes,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, out := range rc.Outputs {
		eg.Go(func() error {
			r, err := o.deps.Renderer(out.Format, ropts)
			if err != nil {
				return err
			}
			t, _ := rc.Table(out.Dataset)
			a, err := r.Render(egCtx, t, out.Layout)
			if err != nil {
				return err
			}
			a.Filename = names[out.Name]
			results[i] = rendered{output: out, artifact: a}
			o.emit(Event{Type: EventArtifact, State: Rendering, Name: out.Name, Filename: a.Filename, Bytes: len(a.Content)})
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	rc.mu.Lock()
	rc.artifacts = results
	rc.mu.Unlock()
	return nil
}

// publish stages every artifact, then commits them all. Any failure leaves the
// destination as it was before the run.
func (o *Orchestrator) publish(ctx context.Context, rc *RunContext) error {
	pub, err := o.deps.Publisher(ctx, o.cfg, rc.Credentials, publish.Options{
		RunID:   rc.RunID,
		Retry:   o.cfg.Retry.Policy(0),
		Timeout: o.cfg.Timeouts.Publish,
		Logger:  o.logger,
	})
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.Publisher = pub
	artifacts := rc.artifacts
	rc.mu.Unlock()

	for _, r := range artifacts {
		st, err := pub.Stage(ctx, r.artifact)
		if err != nil {
			return err
		}
		rc.mu.Lock()
		rc.staged = append(rc.staged, stagedArtifact{name: r.artifact.Filename, st: st})
		rc.mu.Unlock()
	}

	rc.mu.Lock()
	pending := append([]stagedArtifact(nil), rc.staged...)
	rc.mu.Unlock()
	for _, next := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		loc, err := next.st.Commit(ctx)
		if err != nil {
			return err
		}
		rc.mu.Lock()
		rc.staged = rc.staged[1:]
		rc.committed = append(rc.committed, loc)
		rc.mu.Unlock()
		o.emit(Event{Type: EventPublished, State: Publishing, Filename: next.name, URI: loc.URI})
	}
	return nil
}

// announce sends the optional notification. A failure here does not change the
// outcome because the artifacts are already published.
func (o *Orchestrator) announce(ctx context.Context, rc *RunContext, res *Result, log *zap.Logger) {
	if !o.cfg.Notify.Enabled() || o.deps.Notifier == nil {
		return
	}
	n := o.deps.Notifier(o.cfg, rc.Credentials, o.logger)
	err := n.Send(ctx, notify.Summary{
		Report:   o.cfg.Report,
		RunID:    rc.RunID,
		Started:  res.Started,
		Finished: res.Finished,
		Locators: res.Locators,
	})
	if err != nil {
		log.Warn("notification failed", logging.Err(err))
	}
}

// ArtifactNames returns the filename of every output. Outputs that share a format
// with another selected output carry their own name.
func ArtifactNames(cfg *config.RunConfig, outputs []config.Output, ts time.Time) map[string]string {
	perFormat := map[render.Format]int{}
	for _, out := range outputs {
		perFormat[out.Format]++
	}
	names := make(map[string]string, len(outputs))
	prefix := cfg.FilenamePrefix()
	for _, out := range outputs {
		tag := ""
		if perFormat[out.Format] > 1 {
			tag = out.Name
		}
		names[out.Name] = prefix + render.ArtifactName(cfg.Report, tag, ts, out.Format)
	}
	return names
}

func artifactInfos(rc *RunContext) []ArtifactInfo {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	var infos []ArtifactInfo
	for _, r := range rc.artifacts {
		hash, err := render.ContentHash(r.artifact)
		if err != nil {
			hash = ""
		}
		infos = append(infos, ArtifactInfo{
			Output:   r.output.Name,
			Format:   r.artifact.Format,
			Filename: r.artifact.Filename,
			Bytes:    len(r.artifact.Content),
			Hash:     hash,
		})
	}
	return infos
}
