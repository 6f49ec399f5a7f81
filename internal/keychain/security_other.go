// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !darwin

package keychain

import (
	"errors"

	"github.com/99designs/keyring"
)

func nativeRing() (keyring.Keyring, error) {
	return nil, errors.New("the security tool is only available on macOS")
}
