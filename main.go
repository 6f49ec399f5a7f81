// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the reportforge CLI.
package main

import (
	"os"

	"reportforge/cli/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
