// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"reportforge/cli/internal/keychain"
	"reportforge/cli/internal/logging"
	"reportforge/cli/internal/secrets"
	"reportforge/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// secretsCmd groups the keychain and vault helpers.
var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage secrets in the OS keychain and check the configured vault",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a secret in the OS keychain",
	Long: `Prompts for the value without echo and stores it in the OS keychain under
<name>. Run files with vault.kind "keyring" read secrets from there. When stdin is
not a terminal the first line of stdin is used as the value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			pterm.Println("❌ Secure storage is not available on this system")
			return err
		}
		prompt := fmt.Sprintf("Value for %s: ", args[0])
		value, err := terminal.ReadSecret(prompt)
		if err != nil {
			return err
		}
		if err := km.SaveSecret(args[0], value); err != nil {
			return err
		}
		pterm.Success.Printf("Stored %s in the OS keychain\n", args[0])
		return nil
	},
}

var secretsRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a secret from the OS keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		if err := km.DeleteSecret(args[0]); err != nil {
			return err
		}
		pterm.Success.Printf("Removed %s\n", args[0])
		return nil
	},
}

var secretsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List secret names stored in the OS keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		names, err := km.ListSecrets()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			pterm.Println("No secrets stored")
			return nil
		}
		for _, n := range names {
			pterm.Println(n)
		}
		return nil
	},
}

var secretsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve every secret the run file needs and report which are available",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig()
		if err != nil {
			return configFailure(err)
		}
		backend, err := secrets.Open(cmd.Context(), cfg.Vault)
		if err != nil {
			logging.PresentFailure("opening the vault", err)
			return &exitError{code: exitRunFailed}
		}
		resolver := secrets.NewResolver(backend, cfg.Retry.Policy(cfg.Timeouts.Vault), logger)

		pterm.Printfln("Vault: %s", backend.Name())
		missing := 0
		for _, name := range cfg.SecretNames() {
			var creds *secrets.Credentials
			err := withSpinner("Resolving "+name, func() error {
				var err error
				creds, err = resolver.Resolve(cmd.Context(), []string{name})
				return err
			})
			if err != nil {
				missing++
				pterm.Printfln("  ✗ %s  %s", name, logging.Mask(err.Error()))
				continue
			}
			pterm.Printfln("  ✓ %s  (%d characters)", name, len(creds.Value(name)))
			creds.Scrub()
		}
		if missing > 0 {
			return &exitError{code: exitRunFailed, err: fmt.Errorf("%d secret(s) unavailable", missing)}
		}
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsRmCmd, secretsLsCmd, secretsCheckCmd)
	rootCmd.AddCommand(secretsCmd)
}
