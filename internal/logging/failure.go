// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"os"
	"strings"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/httperrors"

	"github.com/pterm/pterm"
)

type failureText struct {
	title string
	what  string
	hints []string
}

var failureTexts = map[errs.Kind]failureText{
	errs.SecretUnavailable: {
		title: "Secret Unavailable",
		what:  "A required secret could not be read from the vault.",
		hints: []string{
			"Check that every name under 'secrets' exists in the vault",
			"Run 'reportforge secrets check' to see which ones resolve",
			"Make sure the vault is reachable from this machine",
		},
	},
	errs.AuthFailure: {
		title: "Authentication Failed",
		what:  "The vault or the database rejected the credentials.",
		hints: []string{
			"Verify the service principal or keychain entry has read access",
			"Rotate the database password secret if it has expired",
		},
	},
	errs.ConnectionError: {
		title: "Database Unreachable",
		what:  "The database could not be reached.",
		hints: []string{
			"Run 'reportforge dbinfo --ping' to test the connection",
			"Check host, port, firewall rules and VPN",
		},
	},
	errs.QueryError: {
		title: "Query Failed",
		what:  "The database rejected one of the dataset queries.",
		hints: []string{"Run the query by hand and check table and column names"},
	},
	errs.ResultTooLarge: {
		title: "Result Too Large",
		what:  "A query returned more rows than database.max_rows allows.",
		hints: []string{"Narrow the query or raise database.max_rows"},
	},
	errs.TransformError: {
		title: "Transform Failed",
		what:  "A transform step could not be applied to its dataset.",
		hints: []string{"Check the column names and expressions of the reported step"},
	},
	errs.RenderError: {
		title: "Rendering Failed",
		what:  "An output document could not be produced.",
		hints: []string{"Check the layout column names and render.max_bytes"},
	},
	errs.PublishError: {
		title: "Publishing Failed",
		what:  "The artifacts could not be written to the destination. Nothing was published.",
		hints: []string{"Check destination permissions, bucket name and storage quota"},
	},
	errs.ConfigError: {
		title: "Invalid Configuration",
		what:  "The run configuration is not valid.",
		hints: []string{"Run 'reportforge validate' for details"},
	},
	errs.Canceled: {
		title: "Run Canceled",
		what:  "The run was interrupted. Nothing was published.",
	},
}

// FormatFailure renders a run failure for the terminal.
func FormatFailure(stage string, err error) string {
	kind := errs.KindOf(err)
	text, ok := failureTexts[kind]
	if !ok {
		text = failureText{title: "Run Failed", what: "The run stopped with an unexpected error."}
	}

	var builder strings.Builder
	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(text.title))
	if stage != "" {
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprintf(" (while %s)", stage))
	}
	builder.WriteString("\n\n")
	builder.WriteString(text.what)
	builder.WriteString("\n")

	if e, ok := errs.As(err); ok && e.Exhausted {
		builder.WriteString(fmt.Sprintf("Gave up after %d attempts.\n", e.Attempts))
	}
	hints := text.hints
	if hint := httperrors.Classify(err).Hint(); hint != "" {
		hints = append([]string{hint}, hints...)
	}
	if len(hints) > 0 {
		builder.WriteString("\n")
		for _, h := range hints {
			builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + h))
			builder.WriteString("\n")
		}
	}

	if err != nil {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}
	return builder.String()
}

// PresentFailure prints a formatted failure to stderr.
func PresentFailure(stage string, err error) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, FormatFailure(stage, err))
	fmt.Fprintln(os.Stderr)
}
