// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/logging"
	"reportforge/cli/internal/pipeline"
	"reportforge/cli/internal/progress"
	"reportforge/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	runOnly   []string
	runDryRun bool
)

// runCmd runs the report pipeline once.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the report pipeline and publish its outputs",
	Long: `The run command resolves secrets, queries the database, applies the dataset
transforms, renders every selected output and publishes the artifacts.

Publishing is all-or-nothing: if any output fails, nothing from this run is left
at the destination. Exit status is 0 when every output was published, 1 when the
run failed and 2 when the run file is invalid.`,
	Example: `  reportforge run
  reportforge run --config sales.yaml --only summary,deck
  reportforge run --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig()
		if err != nil {
			return configFailure(err)
		}

		display := progress.NewDisplay(terminal.IsInteractive() && !verbose)
		display.Start()
		res, err := pipeline.New(cfg, pipeline.DefaultDeps(), pipeline.Options{
			Only:     runOnly,
			DryRun:   runDryRun,
			Logger:   logger,
			Observer: display.Observe,
		}).Run(cmd.Context())
		display.Stop()

		if err != nil {
			var f *pipeline.Failure
			if errors.As(err, &f) {
				logging.PresentFailure(f.Stage.String(), f.Err)
				fmt.Fprintf(os.Stderr, "Failed(%s, %s)\n", f.Stage, f.Kind)
				return &exitError{code: exitRunFailed}
			}
			if errs.Is(err, errs.ConfigError) {
				return configFailure(err)
			}
			return err
		}

		if res.DryRun {
			printDryRun(res)
			return nil
		}
		pterm.Success.Printf("Published %d artifact(s) for %s (run %s)\n", len(res.Locators), cfg.Report, res.RunID)
		items := make([]pterm.BulletListItem, 0, len(res.Locators))
		for _, loc := range res.Locators {
			items = append(items, pterm.BulletListItem{Level: 0, Text: loc.URI})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
		return nil
	},
}

func printDryRun(res *pipeline.Result) {
	data := pterm.TableData{{"Output", "File", "Bytes", "Content SHA-256"}}
	for _, a := range res.Artifacts {
		data = append(data, []string{a.Output, a.Filename, fmt.Sprint(a.Bytes), a.Hash})
	}
	pterm.Info.Printf("Dry run %s: %d artifact(s) rendered, nothing published\n", res.RunID, len(res.Artifacts))
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func init() {
	runCmd.Flags().StringSliceVar(&runOnly, "only", nil, `Outputs to produce, comma separated ("all" for every output)`)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Render outputs and report their sizes and hashes without publishing")
	rootCmd.AddCommand(runCmd)
}
