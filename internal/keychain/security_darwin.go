// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build darwin

package keychain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/99designs/keyring"
)

const securityTimeout = 10 * time.Second

// securityRing is a keyring.Keyring backed by the macOS security tool. It is used
// when the Keychain API is unavailable to unsigned binaries.
type securityRing struct {
	path string
}

func nativeRing() (keyring.Keyring, error) {
	path, err := exec.LookPath("security")
	if err != nil {
		return nil, fmt.Errorf("security command not found: %w", err)
	}
	return &securityRing{path: path}, nil
}

func (s *securityRing) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), securityTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.path, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "could not be found") {
			return "", keyring.ErrKeyNotFound
		}
		return "", fmt.Errorf("security %s: %s: %w", args[0], msg, err)
	}
	return stdout.String(), nil
}

func (s *securityRing) Get(key string) (keyring.Item, error) {
	out, err := s.run("find-generic-password", "-a", ServiceName, "-s", key, "-w")
	if err != nil {
		return keyring.Item{}, err
	}
	return keyring.Item{Key: key, Data: []byte(strings.TrimRight(out, "\n"))}, nil
}

func (s *securityRing) GetMetadata(key string) (keyring.Metadata, error) {
	return keyring.Metadata{}, errors.New("metadata is not available from the security tool")
}

func (s *securityRing) Set(item keyring.Item) error {
	_, err := s.run("add-generic-password", "-U", "-a", ServiceName, "-s", item.Key, "-l", item.Label, "-w", string(item.Data))
	return err
}

func (s *securityRing) Remove(key string) error {
	_, err := s.run("delete-generic-password", "-a", ServiceName, "-s", key)
	return err
}

func (s *securityRing) Keys() ([]string, error) {
	return nil, errListUnsupported
}
