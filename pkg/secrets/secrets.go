// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets loads API credentials into mlocked memory.
//
// Credentials come from an environment variable or a container secret file
// (Podman/Docker secrets under /run/secrets). Once loaded, the plaintext is
// sealed in a memguard enclave so the key never sits in swappable heap
// memory between requests.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// Secret is a credential sealed in locked memory. Zero value is unusable;
// construct through Load.
type Secret struct {
	name    string
	enclave *memguard.Enclave
}

// ErrNotConfigured wraps the secret name when neither the environment
// variable nor the secret file provided a value.
type ErrNotConfigured struct {
	EnvVar     string
	SecretPath string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("secret not configured: set %s or provide %s", e.EnvVar, e.SecretPath)
}

// Load reads a credential from envVar, falling back to the container secret
// file at secretPath. The environment variable is unset after reading so the
// plaintext does not linger in the process environment.
func Load(name, envVar, secretPath string) (*Secret, error) {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value != "" {
		os.Unsetenv(envVar)
		slog.Info("Loaded secret from environment", "secret", name)
		return seal(name, value), nil
	}

	if secretPath != "" {
		content, err := os.ReadFile(secretPath)
		if err == nil {
			value = strings.TrimSpace(string(content))
			if value != "" {
				slog.Info("Loaded secret from container secret file",
					"secret", name, "path", secretPath)
				return seal(name, value), nil
			}
		}
	}
	return nil, &ErrNotConfigured{EnvVar: envVar, SecretPath: secretPath}
}

func seal(name, value string) *Secret {
	buf := memguard.NewBufferFromBytes([]byte(value))
	return &Secret{name: name, enclave: buf.Seal()}
}

// Use opens the sealed credential, passes the plaintext to fn, and wipes the
// working copy before returning. The plaintext must not escape fn.
func (s *Secret) Use(fn func(value string) error) error {
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("failed to open secret %s: %w", s.name, err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// Reveal returns the plaintext credential. Prefer Use; Reveal exists for
// client libraries that retain the key for the process lifetime anyway.
func (s *Secret) Reveal() (string, error) {
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open secret %s: %w", s.name, err)
	}
	defer buf.Destroy()
	// Copy out: the buffer's own backing memory is wiped on Destroy.
	return string(buf.Bytes()), nil
}
