// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"
	"time"

	"reportforge/cli/internal/pipeline"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// validateCmd checks a run file without touching any external system.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the run file and show what a run would do",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig()
		if err != nil {
			return configFailure(err)
		}
		outputs, err := cfg.Select(runOnly)
		if err != nil {
			return configFailure(err)
		}

		pterm.Success.Printf("Run file for %q is valid\n", cfg.Report)
		pterm.Println()

		datasets := pterm.TableData{{"Dataset", "Transforms", "Query"}}
		for _, d := range cfg.DatasetsFor(outputs) {
			kinds := make([]string, 0, len(d.Transforms))
			for _, s := range d.Transforms {
				kinds = append(kinds, string(s.Kind()))
			}
			datasets = append(datasets, []string{d.Name, strings.Join(kinds, " → "), oneLine(d.Query, 60)})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(datasets).Render()
		pterm.Println()

		names := pipeline.ArtifactNames(cfg, outputs, time.Now())
		plan := pterm.TableData{{"Output", "Format", "Dataset", "Artifact"}}
		for _, o := range outputs {
			plan = append(plan, []string{o.Name, string(o.Format), o.Dataset, names[o.Name]})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(plan).Render()
		pterm.Println()

		dest := cfg.Destination.Path
		if cfg.Destination.Kind == "s3" {
			dest = fmt.Sprintf("s3://%s/%s (%s)", cfg.Destination.Bucket, strings.Trim(cfg.Destination.Prefix, "/"), cfg.Destination.Endpoint)
		}
		pterm.Printfln("Destination: %s", dest)
		pterm.Printfln("Secrets:     %s", strings.Join(cfg.SecretNames(), ", "))
		if cfg.Notify.Enabled() {
			pterm.Printfln("Notify:      %s", strings.Join(cfg.Notify.To, ", "))
		}
		return nil
	},
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

func init() {
	validateCmd.Flags().StringSliceVar(&runOnly, "only", nil, "Outputs to check, comma separated")
	rootCmd.AddCommand(validateCmd)
}
