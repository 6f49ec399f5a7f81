// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads the YAML run file and the per-user CLI settings.
//
// A run file is resolved in layers: built-in defaults, then the file, then
// REPORTFORGE_* environment variables, then command-line flags applied by the
// caller. The result is validated once and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reportforge/cli/internal/datasource"
	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/notify"
	"reportforge/cli/internal/publish"
	"reportforge/cli/internal/render"
	"reportforge/cli/internal/retry"
	"reportforge/cli/internal/secrets"
	"reportforge/cli/internal/transform"
	"reportforge/cli/internal/xdg"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the run file name looked up in the config directory.
const DefaultFile = "report.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REPORTFORGE_"

// AllOutputs selects every output in Select.
const AllOutputs = "all"

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// RunConfig is one report definition.
type RunConfig struct {
	Report      string              `yaml:"report"`
	Environment string              `yaml:"environment"`
	Vault       secrets.VaultRef    `yaml:"vault"`
	Secrets     []string            `yaml:"secrets"`
	Database    datasource.Settings `yaml:"database"`
	Datasets    []Dataset           `yaml:"datasets"`
	Outputs     []Output            `yaml:"outputs"`
	Destination publish.Settings    `yaml:"destination"`
	Retry       Retry               `yaml:"retry"`
	Timeouts    Timeouts            `yaml:"timeouts"`
	Render      RenderSettings      `yaml:"render"`
	Concurrency int                 `yaml:"concurrency"`
	Notify      notify.Settings     `yaml:"notify"`
}

// Dataset is a named query plus the transforms applied to its result.
type Dataset struct {
	Name       string           `yaml:"name"`
	Query      string           `yaml:"query"`
	Params     map[string]any   `yaml:"params,omitempty"`
	Transforms []transform.Step `yaml:"transforms,omitempty"`
}

// QuerySpec returns the datasource request for d.
func (d Dataset) QuerySpec() datasource.QuerySpec {
	return datasource.QuerySpec{Name: d.Name, SQL: d.Query, Params: d.Params}
}

// Output is one document rendered from a dataset.
type Output struct {
	Name    string        `yaml:"name"`
	Format  render.Format `yaml:"format"`
	Dataset string        `yaml:"dataset"`
	Layout  render.Layout `yaml:"layout"`
}

// Retry is the retry section; it maps onto retry.Policy.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Policy returns the retry policy with the given per-attempt timeout.
func (r Retry) Policy(timeout time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		Multiplier:  r.Multiplier,
		MaxDelay:    r.MaxDelay,
		Timeout:     timeout,
	}
}

// Timeouts bound a single attempt against each external system.
type Timeouts struct {
	Vault   time.Duration `yaml:"vault"`
	Connect time.Duration `yaml:"connect"`
	Query   time.Duration `yaml:"query"`
	Publish time.Duration `yaml:"publish"`
}

type RenderSettings struct {
	MaxBytes int `yaml:"max_bytes"`
}

// Defaults returns a RunConfig with every optional field set.
func Defaults() *RunConfig {
	p := retry.DefaultPolicy()
	return &RunConfig{
		Environment: "prod",
		Vault:       secrets.VaultRef{Kind: "env"},
		Database:    datasource.Settings{MaxRows: 100000},
		Destination: publish.Settings{Kind: "local", Path: "out"},
		Retry: Retry{
			MaxAttempts: p.MaxAttempts,
			BaseDelay:   p.BaseDelay,
			Multiplier:  p.Multiplier,
			MaxDelay:    p.MaxDelay,
		},
		Timeouts: Timeouts{
			Vault:   10 * time.Second,
			Connect: 10 * time.Second,
			Query:   5 * time.Minute,
			Publish: 60 * time.Second,
		},
		Render: RenderSettings{MaxBytes: 50 << 20},
	}
}

// DefaultPath returns the run file in the XDG config directory.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(DefaultFile)
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Newf(errs.ConfigError, "run file %s does not exist", path)
		}
		return nil, errs.Wrap(errs.ConfigError, "cannot read run file "+path, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses a run file over Defaults. Unknown keys are rejected.
func Decode(r io.Reader) (*RunConfig, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.New(errs.ConfigError, "run file is empty")
		}
		return nil, errs.Wrap(errs.ConfigError, "invalid run file", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from REPORTFORGE_* variables found through lookup.
func (c *RunConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ConfigError, fmt.Sprintf("%s%s must be an integer", EnvPrefix, name), err)
		}
		*dst = n
		return nil
	}

	str("ENVIRONMENT", &c.Environment)
	str("DB_HOST", &c.Database.Host)
	str("DB_NAME", &c.Database.Name)
	str("DB_USER", &c.Database.User)
	str("DESTINATION_PATH", &c.Destination.Path)
	str("DESTINATION_BUCKET", &c.Destination.Bucket)
	if err := num("DB_PORT", &c.Database.Port); err != nil {
		return err
	}
	if err := num("MAX_ROWS", &c.Database.MaxRows); err != nil {
		return err
	}
	return num("CONCURRENCY", &c.Concurrency)
}

// ApplySettings fills fields the run file left unset from user settings.
func (c *RunConfig) ApplySettings(s Settings) {
	if c.Concurrency == 0 {
		c.Concurrency = s.Concurrency
	}
}

// Validate reports the first problem found as a ConfigError.
func (c *RunConfig) Validate() error {
	fail := func(format string, args ...any) error {
		return errs.Newf(errs.ConfigError, format, args...).In("config")
	}

	if strings.TrimSpace(c.Report) == "" {
		return fail("report name is required")
	}
	if strings.ContainsAny(c.Report, `/\`) {
		return fail("report name %q must not contain path separators", c.Report)
	}
	switch c.Vault.Kind {
	case "", "env", "keyring":
	case "azure":
		if c.Vault.URL == "" {
			return fail("vault.url is required for azure")
		}
	default:
		return fail("unknown vault kind %q", c.Vault.Kind)
	}

	switch c.Database.Driver {
	case datasource.Postgres, datasource.SQLite:
	case "":
		return fail("database.driver is required")
	default:
		return fail("unknown database driver %q", c.Database.Driver)
	}
	switch c.Database.Auth {
	case datasource.AuthNone:
	case "":
		// postgres defaults to password auth
		if c.Database.Driver == datasource.Postgres && c.Database.Credential == "" {
			return fail("database.credential is required for postgres unless auth is %q", datasource.AuthNone)
		}
	case datasource.AuthPassword, datasource.AuthDSN:
		if c.Database.Credential == "" {
			return fail("database.credential is required for auth %q", c.Database.Auth)
		}
	default:
		return fail("unknown database auth mode %q", c.Database.Auth)
	}
	if c.Database.MaxRows < 1 {
		return fail("database.max_rows must be positive")
	}

	if len(c.Datasets) == 0 {
		return fail("at least one dataset is required")
	}
	datasets := make(map[string]bool, len(c.Datasets))
	for i, d := range c.Datasets {
		if !namePattern.MatchString(d.Name) {
			return fail("dataset %d: name %q must match %s", i, d.Name, namePattern)
		}
		if datasets[d.Name] {
			return fail("dataset %q is defined twice", d.Name)
		}
		datasets[d.Name] = true
		if strings.TrimSpace(d.Query) == "" {
			return fail("dataset %q: query is required", d.Name)
		}
		for j, s := range d.Transforms {
			if s.Kind() == "" {
				return fail("dataset %q: transform %d must set exactly one of filter, aggregate, pivot, derive", d.Name, j)
			}
		}
	}

	if len(c.Outputs) == 0 {
		return fail("at least one output is required")
	}
	outputs := make(map[string]bool, len(c.Outputs))
	for i, o := range c.Outputs {
		if !namePattern.MatchString(o.Name) || o.Name == AllOutputs {
			return fail("output %d: invalid name %q", i, o.Name)
		}
		if outputs[o.Name] {
			return fail("output %q is defined twice", o.Name)
		}
		outputs[o.Name] = true
		switch o.Format {
		case render.XLSX, render.PPTX:
		default:
			return fail("output %q: unknown format %q", o.Name, o.Format)
		}
		if !datasets[o.Dataset] {
			return fail("output %q references unknown dataset %q", o.Name, o.Dataset)
		}
	}

	switch c.Destination.Kind {
	case "local":
		if c.Destination.Path == "" {
			return fail("destination.path is required for local")
		}
	case "s3":
		if c.Destination.Endpoint == "" || c.Destination.Bucket == "" {
			return fail("destination.endpoint and destination.bucket are required for s3")
		}
		if c.Destination.AccessKeySecret == "" || c.Destination.SecretKeySecret == "" {
			return fail("destination access_key_secret and secret_key_secret are required for s3")
		}
	default:
		return fail("unknown destination kind %q", c.Destination.Kind)
	}

	if c.Retry.MaxAttempts < 1 {
		return fail("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fail("retry delays must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"vault": c.Timeouts.Vault, "connect": c.Timeouts.Connect,
		"query": c.Timeouts.Query, "publish": c.Timeouts.Publish,
	} {
		if d < 0 {
			return fail("timeouts.%s must not be negative", name)
		}
	}
	if c.Concurrency < 0 {
		return fail("concurrency must not be negative")
	}
	if c.Notify.SMTPHost != "" && (c.Notify.From == "" || len(c.Notify.To) == 0) {
		return fail("notify.from and notify.to are required when smtp_host is set")
	}
	if c.Notify.Timeout < 0 {
		return fail("notify.timeout must not be negative")
	}
	return nil
}

// SecretNames returns every secret the run needs: the declared list plus the
// names referenced by the database, destination and notify sections.
func (c *RunConfig) SecretNames() []string {
	seen := map[string]bool{}
	var names []string
	add := func(ns ...string) {
		for _, n := range ns {
			if n != "" && !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	add(c.Secrets...)
	if c.Database.Auth == datasource.AuthPassword || c.Database.Auth == datasource.AuthDSN ||
		(c.Database.Auth == "" && c.Database.Driver == datasource.Postgres) {
		add(c.Database.Credential)
	}
	add(c.Destination.SecretNames()...)
	add(c.Notify.SecretNames()...)
	return names
}

// Select returns the outputs named in only, in config order. An empty list or
// "all" selects every output.
func (c *RunConfig) Select(only []string) ([]Output, error) {
	if len(only) == 0 {
		return c.Outputs, nil
	}
	want := map[string]bool{}
	for _, n := range only {
		n = strings.TrimSpace(n)
		if n == AllOutputs {
			return c.Outputs, nil
		}
		if n != "" {
			want[n] = true
		}
	}
	var out []Output
	for _, o := range c.Outputs {
		if want[o.Name] {
			out = append(out, o)
			delete(want, o.Name)
		}
	}
	for _, n := range only {
		if want[strings.TrimSpace(n)] {
			return nil, errs.Newf(errs.ConfigError, "specified output does not exist: %s", strings.TrimSpace(n))
		}
	}
	if len(out) == 0 {
		return nil, errs.New(errs.ConfigError, "no outputs selected")
	}
	return out, nil
}

// DatasetsFor returns the datasets the given outputs read, in config order.
func (c *RunConfig) DatasetsFor(outputs []Output) []Dataset {
	need := map[string]bool{}
	for _, o := range outputs {
		need[o.Dataset] = true
	}
	var ds []Dataset
	for _, d := range c.Datasets {
		if need[d.Name] {
			ds = append(ds, d)
		}
	}
	return ds
}

// Production reports whether artifacts are published without the dev prefix.
func (c *RunConfig) Production() bool {
	switch strings.ToLower(c.Environment) {
	case "", "prod", "production":
		return true
	}
	return false
}

// FilenamePrefix is prepended to every artifact name outside production.
func (c *RunConfig) FilenamePrefix() string {
	if c.Production() {
		return ""
	}
	return "DEV_"
}
