// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys for embedding backends from a directory of
// plain-text files and from a dotenv file.
//
// Each file in the directory represents one secret: the filename is the key
// name and the file contents (trimmed) are the value. Dotenv keys are
// normalised to the same form, so OPENAI_API_KEY in .env and a
// .secrets/openai-api-key file name the same secret.
//
// Supported keys: openai-api-key, embedding-api-key.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadWithEnv merges Load(dir) with the dotenv file at envFile. Directory
// secrets win over dotenv values. A missing dotenv file is not an error.
func LoadWithEnv(dir, envFile string) (map[string]string, error) {
	secrets, err := Load(dir)
	if err != nil {
		return nil, err
	}

	env, err := godotenv.Read(envFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return secrets, nil
		}
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}

	for k, v := range env {
		key := Normalize(k)
		v = strings.TrimSpace(v)
		if _, ok := secrets[key]; !ok && v != "" {
			secrets[key] = v
		}
	}
	return secrets, nil
}

// Normalize converts an environment style name (OPENAI_API_KEY) to the
// file name form (openai-api-key).
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}
