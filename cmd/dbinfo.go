// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"time"

	"reportforge/cli/internal/datasource"
	"reportforge/cli/internal/logging"
	"reportforge/cli/internal/secrets"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var dbinfoPing bool

// dbinfoCmd shows the connection a run would use, with the password masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the database connection from the run file",
	Long: `The dbinfo command displays the connection a run would open, built from the
database section of the run file and the credential resolved from the vault. The
password is replaced with *** so the output is safe to share.

With --ping it also connects and runs a trivial query.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig()
		if err != nil {
			return configFailure(err)
		}
		ctx := cmd.Context()

		var cred *secrets.Credential
		if name := cfg.Database.Credential; name != "" && cfg.Database.Auth != datasource.AuthNone {
			backend, err := secrets.Open(ctx, cfg.Vault)
			if err != nil {
				logging.PresentFailure("opening the vault", err)
				return &exitError{code: exitRunFailed}
			}
			creds, err := secrets.NewResolver(backend, cfg.Retry.Policy(cfg.Timeouts.Vault), logger).Resolve(ctx, []string{name})
			if err != nil {
				logging.PresentFailure("resolving the database credential", err)
				return &exitError{code: exitRunFailed}
			}
			defer creds.Scrub()
			cred, _ = creds.Get(name)
		}

		cc, err := datasource.NewConnectionConfig(cfg.Database, cred)
		if err != nil {
			return configFailure(err)
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(cc.Describe())
		pterm.Printfln("Driver: %s   Auth: %s   Row cap: %d", cc.Driver(), cc.AuthMode(), cfg.Database.MaxRows)

		if !dbinfoPing {
			return nil
		}
		return ping(ctx, cc, datasource.Options{
			Retry:          cfg.Retry.Policy(0),
			ConnectTimeout: cfg.Timeouts.Connect,
			QueryTimeout:   cfg.Timeouts.Connect,
			MaxRows:        cfg.Database.MaxRows,
			Logger:         logger,
		})
	},
}

func ping(ctx context.Context, cc datasource.ConnectionConfig, opts datasource.Options) error {
	connector := datasource.NewConnector(opts)
	start := time.Now()
	err := withSpinner("Connecting to "+cc.Database(), func() error {
		h, err := connector.Connect(ctx, cc)
		if err != nil {
			return err
		}
		defer h.Close()
		_, err = h.Execute(ctx, datasource.QuerySpec{Name: "ping", SQL: "SELECT 1"})
		return err
	})
	if err != nil {
		logging.PresentFailure("pinging the database", err)
		return &exitError{code: exitRunFailed}
	}
	pterm.Success.Printf("Connected in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func init() {
	dbinfoCmd.Flags().BoolVar(&dbinfoPing, "ping", false, "Connect and run SELECT 1")
	rootCmd.AddCommand(dbinfoCmd)
}
